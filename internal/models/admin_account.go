package models

import "time"

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleManager
}

// AdminAccount is a restaurant administrator. Email is stored normalized
// (lower-case) and is unique.
type AdminAccount struct {
	ID           string    `json:"id" db:"account_id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Profile is the non-secret view the frontend may cache.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (a *AdminAccount) Profile() Profile {
	return Profile{ID: a.ID, Email: a.Email, Role: a.Role}
}
