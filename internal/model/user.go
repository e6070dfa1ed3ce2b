// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account.
//
// PasswordHash holds the full bcrypt output (salt and cost included), never
// the raw password. It is tagged json:"-" so it can't leak into an API
// response by accident.
type User struct {
	ID           int64     `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
