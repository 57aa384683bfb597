package users

import (
	"time"

	"github.com/opsboard/opsboard/internal/roles"
)

// User is one row of the user directory.
type User struct {
	ID        int64      `json:"id" db:"id"`
	Email     string     `json:"email" db:"email"`
	Name      string     `json:"name" db:"name"`
	Role      roles.Role `json:"role" db:"-"`
	RawRole   string     `json:"-" db:"role"`
	IsActive  bool       `json:"active" db:"active"`
	AreaPaths []string   `json:"areas" db:"-"`
	Editable  bool       `json:"editable" db:"-"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// Filter narrows ListUsers.
type Filter struct {
	Role       roles.Role
	ActiveOnly bool
	Search     string
}
