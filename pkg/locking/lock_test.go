package locking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockOrder(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		expected []string
	}{
		{
			name:     "already sorted",
			keys:     []string{"merge:user:a", "merge:user:b"},
			expected: []string{"merge:user:a", "merge:user:b"},
		},
		{
			name:     "reversed pair locks in the same order",
			keys:     []string{"merge:user:b", "merge:user:a"},
			expected: []string{"merge:user:a", "merge:user:b"},
		},
		{
			name:     "duplicates collapse",
			keys:     []string{"merge:user:a", "merge:user:a"},
			expected: []string{"merge:user:a"},
		},
		{
			name:     "no keys",
			keys:     nil,
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, lockOrder(tt.keys))
		})
	}
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 20*time.Millisecond, nextBackoff(10*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, nextBackoff(400*time.Millisecond))
	assert.Equal(t, 500*time.Millisecond, nextBackoff(500*time.Millisecond))
}
