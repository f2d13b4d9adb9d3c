// Package schema declares the relations between entity types. The registry is
// built once at startup from static descriptors and answers which relations
// point at a type and which many-to-many fields a type declares itself.
package schema

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

// EntityType names a persisted type, which is also its table.
type EntityType string

// Cardinality is stated from the side that holds the field.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToMany Cardinality = "many_to_many"
)

// ObjectRef identifies one persisted entity.
type ObjectRef struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
}

func (o ObjectRef) String() string {
	return fmt.Sprintf("%s:%s", o.Type, o.ID)
}

// Accessor holds the reads and writes for one relation, bound when the
// registry is built. Foreign-key relations provide Referencing and Set.
// Many-to-many relations provide Referencing, Members, Add and Remove, except
// Through relations which are read-only. Every closure runs in whatever
// transaction scope ctx carries.
type Accessor struct {
	// Referencing returns the ids of owner rows linked to targetID.
	Referencing func(ctx context.Context, targetID string) ([]string, error)
	// Members returns the target ids an owner row is linked to.
	Members func(ctx context.Context, ownerID string) ([]string, error)
	// Set repoints the owner's field from one target to another. It reports
	// false when the owner no longer points at from.
	Set func(ctx context.Context, ownerID, from, to string) (bool, error)
	// Add links the owner to targets. Existing links are left as they are.
	Add func(ctx context.Context, ownerID string, targetIDs ...string) error
	// Remove unlinks the owner from targets and reports whether any link
	// existed.
	Remove func(ctx context.Context, ownerID string, targetIDs ...string) (bool, error)
}

// RelationDescriptor describes one relationship field.
type RelationDescriptor struct {
	Name        string      `validate:"required"`
	Owner       EntityType  `validate:"required"`
	Field       string      `validate:"required"`
	Target      EntityType  `validate:"required"`
	Cardinality Cardinality `validate:"required,oneof=one_to_one one_to_many many_to_many"`
	// Symmetric relations are self-referential many-to-many relations where
	// membership is mutual and an entity never relates to itself.
	Symmetric bool
	// Through marks a many-to-many relation stored in a junction that has its
	// own columns. Its rows are moved by the junction's foreign-key relation,
	// so the relation itself is only read.
	Through  bool
	Accessor Accessor `validate:"-"`
}

func (d *RelationDescriptor) IsManyToMany() bool {
	return d.Cardinality == ManyToMany
}

// Validate checks that the descriptor is internally consistent and has the
// accessors its cardinality needs.
func (d *RelationDescriptor) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("relation %q: %w", d.Name, err)
	}

	if d.Symmetric && (!d.IsManyToMany() || d.Owner != d.Target) {
		return fmt.Errorf("relation %q: symmetric relations must be self-referential many-to-many", d.Name)
	}
	if d.Through && !d.IsManyToMany() {
		return fmt.Errorf("relation %q: only many-to-many relations have a through junction", d.Name)
	}

	a := d.Accessor
	if a.Referencing == nil {
		return fmt.Errorf("relation %q: missing Referencing accessor", d.Name)
	}
	if d.IsManyToMany() {
		if a.Members == nil {
			return fmt.Errorf("relation %q: missing Members accessor", d.Name)
		}
		if !d.Through && (a.Add == nil || a.Remove == nil) {
			return fmt.Errorf("relation %q: many-to-many relations need Add and Remove accessors", d.Name)
		}
		return nil
	}
	if a.Set == nil {
		return fmt.Errorf("relation %q: missing Set accessor", d.Name)
	}
	return nil
}

var validate = validator.New()

// Registry indexes relation descriptors by the type they point at and by the
// type that declares them.
type Registry struct {
	descriptors []*RelationDescriptor
	byName      map[string]*RelationDescriptor
	incoming    map[EntityType][]*RelationDescriptor
	local       map[EntityType][]*RelationDescriptor
}

// NewRegistry validates the descriptors and builds the indexes.
func NewRegistry(descriptors ...RelationDescriptor) (*Registry, error) {
	r := &Registry{
		byName:   make(map[string]*RelationDescriptor, len(descriptors)),
		incoming: make(map[EntityType][]*RelationDescriptor),
		local:    make(map[EntityType][]*RelationDescriptor),
	}

	for i := range descriptors {
		d := descriptors[i]
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.byName[d.Name]; exists {
			return nil, fmt.Errorf("relation %q declared twice", d.Name)
		}

		r.descriptors = append(r.descriptors, &d)
		r.byName[d.Name] = &d
		r.incoming[d.Target] = append(r.incoming[d.Target], &d)
		if d.IsManyToMany() {
			r.local[d.Owner] = append(r.local[d.Owner], &d)
		}
	}

	return r, nil
}

// Incoming returns every relation whose target is t, in declaration order.
// These are the reverse one-to-one, one-to-many and many-to-many relations
// that point at an entity of type t.
func (r *Registry) Incoming(t EntityType) []*RelationDescriptor {
	return r.incoming[t]
}

// LocalManyToMany returns the many-to-many relations declared on t itself.
func (r *Registry) LocalManyToMany(t EntityType) []*RelationDescriptor {
	return r.local[t]
}

func (r *Registry) Get(name string) (*RelationDescriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Names returns the registered relation names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
