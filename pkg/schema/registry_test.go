package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopAccessor() Accessor {
	return Accessor{
		Referencing: func(context.Context, string) ([]string, error) { return nil, nil },
		Members:     func(context.Context, string) ([]string, error) { return nil, nil },
		Set:         func(context.Context, string, string, string) (bool, error) { return true, nil },
		Add:         func(context.Context, string, ...string) error { return nil },
		Remove:      func(context.Context, string, ...string) (bool, error) { return true, nil },
	}
}

func TestRelationDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		desc    RelationDescriptor
		wantErr string
	}{
		{
			name: "foreign key",
			desc: RelationDescriptor{Name: "posts.author", Owner: "posts", Field: "author", Target: "users", Cardinality: OneToMany, Accessor: noopAccessor()},
		},
		{
			name: "symmetric",
			desc: RelationDescriptor{Name: "users.friends", Owner: "users", Field: "friends", Target: "users", Cardinality: ManyToMany, Symmetric: true, Accessor: noopAccessor()},
		},
		{
			name:    "missing name",
			desc:    RelationDescriptor{Owner: "posts", Field: "author", Target: "users", Cardinality: OneToMany, Accessor: noopAccessor()},
			wantErr: "Name",
		},
		{
			name:    "unknown cardinality",
			desc:    RelationDescriptor{Name: "x", Owner: "posts", Field: "author", Target: "users", Cardinality: "many_to_one", Accessor: noopAccessor()},
			wantErr: "Cardinality",
		},
		{
			name:    "symmetric across types",
			desc:    RelationDescriptor{Name: "users.groups", Owner: "users", Field: "groups", Target: "groups", Cardinality: ManyToMany, Symmetric: true, Accessor: noopAccessor()},
			wantErr: "self-referential",
		},
		{
			name:    "through on a foreign key",
			desc:    RelationDescriptor{Name: "posts.author", Owner: "posts", Field: "author", Target: "users", Cardinality: OneToOne, Through: true, Accessor: noopAccessor()},
			wantErr: "through junction",
		},
		{
			name:    "foreign key without Set",
			desc:    RelationDescriptor{Name: "posts.author", Owner: "posts", Field: "author", Target: "users", Cardinality: OneToMany, Accessor: Accessor{Referencing: noopAccessor().Referencing}},
			wantErr: "Set",
		},
		{
			name: "many-to-many without Add",
			desc: RelationDescriptor{Name: "users.groups", Owner: "users", Field: "groups", Target: "groups", Cardinality: ManyToMany, Accessor: Accessor{
				Referencing: noopAccessor().Referencing,
				Members:     noopAccessor().Members,
			}},
			wantErr: "Add and Remove",
		},
		{
			name: "read-only through",
			desc: RelationDescriptor{Name: "sections.students", Owner: "sections", Field: "students", Target: "users", Cardinality: ManyToMany, Through: true, Accessor: Accessor{
				Referencing: noopAccessor().Referencing,
				Members:     noopAccessor().Members,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewRegistry(t *testing.T) {
	author := RelationDescriptor{Name: "posts.author", Owner: "posts", Field: "author", Target: "users", Cardinality: OneToMany, Accessor: noopAccessor()}
	groups := RelationDescriptor{Name: "users.groups", Owner: "users", Field: "groups", Target: "groups", Cardinality: ManyToMany, Accessor: noopAccessor()}
	friends := RelationDescriptor{Name: "users.friends", Owner: "users", Field: "friends", Target: "users", Cardinality: ManyToMany, Symmetric: true, Accessor: noopAccessor()}

	registry, err := NewRegistry(author, groups, friends)
	require.NoError(t, err)

	names := func(descs []*RelationDescriptor) []string {
		out := []string{}
		for _, d := range descs {
			out = append(out, d.Name)
		}
		return out
	}

	assert.Equal(t, []string{"posts.author", "users.friends"}, names(registry.Incoming("users")))
	assert.Equal(t, []string{"users.groups"}, names(registry.Incoming("groups")))
	assert.Empty(t, registry.Incoming("posts"))
	assert.Equal(t, []string{"users.groups", "users.friends"}, names(registry.LocalManyToMany("users")))
	assert.Empty(t, registry.LocalManyToMany("posts"))
	assert.Equal(t, []string{"posts.author", "users.friends", "users.groups"}, registry.Names())

	d, ok := registry.Get("users.friends")
	require.True(t, ok)
	assert.True(t, d.Symmetric)

	_, ok = registry.Get("missing")
	assert.False(t, ok)

	t.Run("DuplicateName", func(t *testing.T) {
		_, err := NewRegistry(author, author)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "declared twice")
	})

	t.Run("InvalidDescriptor", func(t *testing.T) {
		_, err := NewRegistry(author, RelationDescriptor{Name: "broken"})
		require.Error(t, err)
	})
}

func TestObjectRef_String(t *testing.T) {
	assert.Equal(t, "users:42", ObjectRef{Type: "users", ID: "42"}.String())
}
