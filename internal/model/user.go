package model

import "time"

// User mirrors the 'users' table.  Passwords are stored as bcrypt
// hashes; the raw password never leaves the handler layer.
type User struct {
	ID           uint64    // users.id
	FirstName    string    // users.first_name
	LastName     string    // users.last_name
	Email        string    // users.email (unique, lower-cased)
	PasswordHash string    // users.password_hash
	Role         string    // users.role (ADMIN or CUSTOMER)
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}
