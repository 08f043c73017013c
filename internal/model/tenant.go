// internal/model/tenant.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a child bot instance that was started and durably registered.
// Records are never updated after registration.
type Tenant struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Token     string    `db:"token" json:"-"`
	Handle    string    `db:"handle" json:"handle"`
	BotUserID int64     `db:"bot_user_id" json:"bot_user_id"`
	OwnerID   int64     `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Set names one of the directory's key sets.
type Set string

const (
	SetUsers      Set = "users"
	SetTotalUsers Set = "total_users"
	SetTokens     Set = "tokens"
	SetBots       Set = "bots"
)

// Valid reports whether s is a known set.
func (s Set) Valid() bool {
	switch s {
	case SetUsers, SetTotalUsers, SetTokens, SetBots:
		return true
	}
	return false
}
