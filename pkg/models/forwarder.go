package models

import "time"

// UserForwarder redirects lookups of SourceID to TargetID. A source has at
// most one forwarder.
type UserForwarder struct {
	ID        string    `json:"id" db:"id"`
	SourceID  string    `json:"source_id" db:"source_id"`
	TargetID  string    `json:"target_id" db:"target_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Resolution is the outcome of following forwarders from a user.
type Resolution struct {
	RequestedID string   `json:"requested_id"`
	ResolvedID  string   `json:"resolved_id"`
	Path        []string `json:"path"`
}
