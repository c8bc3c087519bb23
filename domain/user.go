package domain

import "time"

// User is the identity record supplied by the account collaborator. Only
// the fields the handshake needs are modeled here; profile management
// lives elsewhere.
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Email        string    `bson:"email" json:"email"`
	DisplayName  string    `bson:"display_name" json:"display_name"`
	Role         string    `bson:"role" json:"role"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// Well-known roles carried by credentials. Pages gate on these.
const (
	RoleDoctor   = "doctor"
	RolePatient  = "patient"
	RoleSysAdmin = "sysadmin"
)
