// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventAdmitted    EventKind = "admitted"
	EventSpawnFailed EventKind = "spawn_failed"
	EventOrphaned    EventKind = "orphaned"
	EventRecovered   EventKind = "recovered"
	EventReleased    EventKind = "released"
)

// Event describes a tenant lifecycle transition.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Kind      EventKind `json:"kind"`
	Handle    string    `json:"handle,omitempty"`
	OwnerID   int64     `json:"owner_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewEvent(kind EventKind, handle string, ownerID int64) Event {
	return Event{
		ID:        uuid.New(),
		Kind:      kind,
		Handle:    handle,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}
}
