package models

import "time"

// Employee mirrors the identity/role directory consumed by the dynamic
// assignee-resolution strategy. The directory itself is maintained elsewhere;
// this service only reads it.
type Employee struct {
	ID         string    `db:"id" json:"id"`
	FullName   string    `db:"full_name" json:"fullName"`
	Email      string    `db:"email" json:"email"`
	Position   string    `db:"position" json:"position"`
	Department string    `db:"department" json:"department"`
	Phone      *string   `db:"phone" json:"phone,omitempty"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
