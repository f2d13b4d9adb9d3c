package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/schema"
)

type stubFactory struct {
	tables []string
}

func (s *stubFactory) accessor(table string, writable bool) schema.Accessor {
	s.tables = append(s.tables, table)
	a := schema.Accessor{
		Referencing: func(context.Context, string) ([]string, error) { return nil, nil },
		Members:     func(context.Context, string) ([]string, error) { return nil, nil },
	}
	if writable {
		a.Set = func(context.Context, string, string, string) (bool, error) { return false, nil }
		a.Add = func(context.Context, string, ...string) error { return nil }
		a.Remove = func(context.Context, string, ...string) (bool, error) { return false, nil }
	}
	return a
}

func (s *stubFactory) ForeignKey(table, column string) schema.Accessor {
	return s.accessor(table, true)
}

func (s *stubFactory) Junction(table, ownerColumn, targetColumn string, symmetric bool) schema.Accessor {
	return s.accessor(table, true)
}

func (s *stubFactory) Through(table, ownerColumn, targetColumn string) schema.Accessor {
	return s.accessor(table, false)
}

func TestBuild(t *testing.T) {
	registry, err := Build(&stubFactory{})
	require.NoError(t, err)

	assert.Len(t, registry.Names(), 9)

	var incoming []string
	for _, d := range registry.Incoming(models.EntityTypeUser) {
		incoming = append(incoming, d.Name)
	}
	assert.Equal(t, []string{
		"contact_infos.user",
		"student_profiles.user",
		"records.user",
		"transfers.user",
		"registrations.user",
		"class_sections.students",
		"class_subjects.teachers",
		"users.associates",
	}, incoming)

	var local []string
	for _, d := range registry.LocalManyToMany(models.EntityTypeUser) {
		local = append(local, d.Name)
	}
	assert.Equal(t, []string{"users.groups", "users.associates"}, local)

	through, ok := registry.Get("class_sections.students")
	require.True(t, ok)
	assert.True(t, through.Through)
	assert.Nil(t, through.Accessor.Add)

	associates, ok := registry.Get("users.associates")
	require.True(t, ok)
	assert.True(t, associates.Symmetric)
}
