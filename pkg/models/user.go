package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/schema"
)

// Entity types known to the account schema.
const (
	EntityTypeUser           schema.EntityType = "users"
	EntityTypeGroup          schema.EntityType = "groups"
	EntityTypeContactInfo    schema.EntityType = "contact_infos"
	EntityTypeStudentProfile schema.EntityType = "student_profiles"
	EntityTypeRecord         schema.EntityType = "records"
	EntityTypeTransfer       schema.EntityType = "transfers"
	EntityTypeRegistration   schema.EntityType = "registrations"
	EntityTypeClassSection   schema.EntityType = "class_sections"
	EntityTypeClassSubject   schema.EntityType = "class_subjects"
)

// User is an account of the program site.
type User struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username" validate:"required"`
	Email     string    `json:"email" db:"email"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

func (u *User) Ref() schema.ObjectRef {
	return schema.ObjectRef{Type: EntityTypeUser, ID: u.ID}
}
