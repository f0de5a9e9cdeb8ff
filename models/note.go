package models

import (
	"context"
	"time"
)

// Note is the read-side view of a note as the integration core sees
// it. Note CRUD itself is owned by an external collaborator; the core
// only needs lookups for invariant checks and message composition.
type Note struct {
	ID             string
	OrganizationID string
	Title          string
	Content        string
	AuthorID       string
	AuthorName     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NoteRepository exposes read access to notes
type NoteRepository interface {
	Get(ctx context.Context, id string) (*Note, error)
}

// Note change types carried on dispatch events.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// NoteSnapshot is the caller-captured state of a note that is about to
// be deleted. After deletion the row and its connections are gone, so
// the dispatcher cannot look anything up.
type NoteSnapshot struct {
	Title          string
	OrganizationID string
}

// NoteEvent describes one note lifecycle change to be fanned out.
type NoteEvent struct {
	NoteID     string        `json:"note_id"`
	UserID     string        `json:"user_id"`
	ChangeType string        `json:"change_type"`
	Snapshot   *NoteSnapshot `json:"snapshot,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// EventResult aggregates the outcome of one event dispatch. Success
// reflects infrastructure faults only; individual post failures land
// in Errors and the activity log.
type EventResult struct {
	Success             bool
	ConnectionsNotified int
	Errors              []string
}
