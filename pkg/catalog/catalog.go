// Package catalog declares every relation of the account schema and binds it
// to its Postgres accessor.
package catalog

import (
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/schema"
)

// AccessorFactory builds relation accessors over tables.
type AccessorFactory interface {
	ForeignKey(table, column string) schema.Accessor
	Junction(table, ownerColumn, targetColumn string, symmetric bool) schema.Accessor
	Through(table, ownerColumn, targetColumn string) schema.Accessor
}

// Descriptors returns the relation declarations in the order merges visit them.
func Descriptors(f AccessorFactory) []schema.RelationDescriptor {
	return []schema.RelationDescriptor{
		{
			Name:        "contact_infos.user",
			Owner:       models.EntityTypeContactInfo,
			Field:       "user",
			Target:      models.EntityTypeUser,
			Cardinality: schema.OneToMany,
			Accessor:    f.ForeignKey("contact_infos", "user_id"),
		},
		{
			Name:        "student_profiles.user",
			Owner:       models.EntityTypeStudentProfile,
			Field:       "user",
			Target:      models.EntityTypeUser,
			Cardinality: schema.OneToOne,
			Accessor:    f.ForeignKey("student_profiles", "user_id"),
		},
		{
			Name:        "records.user",
			Owner:       models.EntityTypeRecord,
			Field:       "user",
			Target:      models.EntityTypeUser,
			Cardinality: schema.OneToMany,
			Accessor:    f.ForeignKey("records", "user_id"),
		},
		{
			Name:        "transfers.user",
			Owner:       models.EntityTypeTransfer,
			Field:       "user",
			Target:      models.EntityTypeUser,
			Cardinality: schema.OneToMany,
			Accessor:    f.ForeignKey("transfers", "user_id"),
		},
		{
			Name:        "registrations.user",
			Owner:       models.EntityTypeRegistration,
			Field:       "user",
			Target:      models.EntityTypeUser,
			Cardinality: schema.OneToMany,
			Accessor:    f.ForeignKey("registrations", "user_id"),
		},
		{
			Name:        "class_sections.students",
			Owner:       models.EntityTypeClassSection,
			Field:       "students",
			Target:      models.EntityTypeUser,
			Cardinality: schema.ManyToMany,
			Through:     true,
			Accessor:    f.Through("registrations", "section_id", "user_id"),
		},
		{
			Name:        "class_subjects.teachers",
			Owner:       models.EntityTypeClassSubject,
			Field:       "teachers",
			Target:      models.EntityTypeUser,
			Cardinality: schema.ManyToMany,
			Accessor:    f.Junction("class_subject_teachers", "class_subject_id", "user_id", false),
		},
		{
			Name:        "users.groups",
			Owner:       models.EntityTypeUser,
			Field:       "groups",
			Target:      models.EntityTypeGroup,
			Cardinality: schema.ManyToMany,
			Accessor:    f.Junction("user_groups", "user_id", "group_id", false),
		},
		{
			Name:        "users.associates",
			Owner:       models.EntityTypeUser,
			Field:       "associates",
			Target:      models.EntityTypeUser,
			Cardinality: schema.ManyToMany,
			Symmetric:   true,
			Accessor:    f.Junction("user_associations", "from_user_id", "to_user_id", true),
		},
	}
}

// Build validates the declarations and returns the registry.
func Build(f AccessorFactory) (*schema.Registry, error) {
	return schema.NewRegistry(Descriptors(f)...)
}
