package auth

import (
	"time"

	"github.com/google/uuid"
)

// User is an authenticated account. Email is the primary identity;
// GoogleID is attached when the user first signs in with Google.
type User struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name,omitempty"`
	GoogleID    string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}
