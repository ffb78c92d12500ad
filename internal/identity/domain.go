// Package identity stores administrator credentials.
package identity

import (
	"time"

	"github.com/google/uuid"
)

// Identity is an authentication identity backed by a bcrypt credential.
type Identity struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Accepted password lengths in bytes. bcrypt ignores input past 72 bytes.
const (
	MinCredentialLength = 8
	MaxCredentialLength = 72
)
