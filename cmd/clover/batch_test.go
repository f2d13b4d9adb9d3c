package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "6f1c2b0a-5a0e-4c5e-9b7d-0c1f2a3b4c5d"
	bob   = "0b7e9d1c-2f3a-4b5c-8d6e-7f8091a2b3c4"
	carol = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"
)

func TestParseBatch(t *testing.T) {
	t.Run("ForwardDefaultsWhenOmitted", func(t *testing.T) {
		file := `
- absorber_id: ` + alice + `
  absorbee_id: ` + bob + `
- absorber_id: ` + alice + `
  absorbee_id: ` + carol + `
  forward: false
  deactivate: true
`
		requests, err := parseBatch(strings.NewReader(file), true)
		require.NoError(t, err)
		require.Len(t, requests, 2)

		assert.Equal(t, alice, requests[0].AbsorberID)
		assert.Equal(t, bob, requests[0].AbsorbeeID)
		assert.True(t, requests[0].Forward)
		assert.False(t, requests[0].Deactivate)

		assert.False(t, requests[1].Forward)
		assert.True(t, requests[1].Deactivate)
	})

	t.Run("DefaultCanBeOff", func(t *testing.T) {
		file := "- absorber_id: " + alice + "\n  absorbee_id: " + bob + "\n"
		requests, err := parseBatch(strings.NewReader(file), false)
		require.NoError(t, err)
		assert.False(t, requests[0].Forward)
	})

	tests := []struct {
		name    string
		file    string
		wantErr string
	}{
		{name: "Empty", file: "", wantErr: "empty"},
		{name: "EmptyList", file: "[]", wantErr: "empty"},
		{name: "NotAList", file: "absorber_id: x", wantErr: "decode batch file"},
		{name: "SameUser", file: "- absorber_id: " + alice + "\n  absorbee_id: " + alice + "\n", wantErr: "entry 1"},
		{name: "BadID", file: "- absorber_id: " + alice + "\n  absorbee_id: " + bob + "\n- absorber_id: nope\n  absorbee_id: " + bob + "\n", wantErr: "entry 2"},
		{name: "MissingAbsorbee", file: "- absorber_id: " + alice + "\n", wantErr: "entry 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseBatch(strings.NewReader(tt.file), true)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
