package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/schema"
)

// MergeRequest asks for every relation of AbsorbeeID to move to AbsorberID.
type MergeRequest struct {
	AbsorberID string `json:"absorber_id" yaml:"absorber_id" validate:"required,uuid"`
	AbsorbeeID string `json:"absorbee_id" yaml:"absorbee_id" validate:"required,uuid,nefield=AbsorberID"`
	Forward    bool   `json:"forward" yaml:"forward"`
	Deactivate bool   `json:"deactivate" yaml:"deactivate"`
}

// RelatedObject is one relation instance that references an entity.
type RelatedObject struct {
	Object     schema.ObjectRef           `json:"object"`
	Relation   string                     `json:"relation"`
	Field      string                     `json:"field"`
	ManyToMany bool                       `json:"many_to_many"`
	Descriptor *schema.RelationDescriptor `json:"-"`
}

// TransferOutcome is the result of moving one relation instance.
type TransferOutcome string

const (
	TransferApplied          TransferOutcome = "applied"
	TransferSkippedDuplicate TransferOutcome = "skipped_duplicate"
	// TransferSkippedThrough is reported for many-to-many relations whose
	// junction rows are moved by their own foreign-key relation.
	TransferSkippedThrough TransferOutcome = "skipped_through"
	// TransferUnchanged is reported when the relation no longer points at the
	// absorbee, e.g. because an earlier transfer already moved it.
	TransferUnchanged TransferOutcome = "unchanged"
)

// SkippedTransfer records a relation instance left on the absorbee.
type SkippedTransfer struct {
	Object   schema.ObjectRef `json:"object"`
	Relation string           `json:"relation"`
	Field    string           `json:"field"`
	Reason   string           `json:"reason"`
}

// MergeReport summarises a completed merge.
type MergeReport struct {
	MergeID     string            `json:"merge_id"`
	AbsorberID  string            `json:"absorber_id"`
	AbsorbeeID  string            `json:"absorbee_id"`
	Discovered  int               `json:"discovered"`
	Applied     int               `json:"applied"`
	Skipped     []SkippedTransfer `json:"skipped"`
	Unchanged   int               `json:"unchanged"`
	Reconciled  int               `json:"reconciled"`
	Forwarded   bool              `json:"forwarded"`
	Deactivated bool              `json:"deactivated"`
	StartedAt   time.Time         `json:"started_at"`
	Duration    time.Duration     `json:"duration"`
}
