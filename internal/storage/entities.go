package storage

import "time"

// User is a full user record. Password holds the opaque hashed credential
// and is never serialized.
type User struct {
	Username    string    `json:"username"`
	Password    string    `json:"-"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Phone       string    `json:"phone"`
	JoinAt      time.Time `json:"join_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}

// UserSummary is the public subset of a user record embedded in listings
// and message payloads.
type UserSummary struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// NewUser carries the fields required to register a user. Password is the
// already-hashed credential.
type NewUser struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// Message is a direct message between two users. ReadAt is nil until the
// recipient marks the message read. FromUser and ToUser are populated on
// detail reads only.
type Message struct {
	ID           int64        `json:"id"`
	FromUsername string       `json:"from_username,omitempty"`
	ToUsername   string       `json:"to_username,omitempty"`
	Body         string       `json:"body"`
	SentAt       time.Time    `json:"sent_at"`
	ReadAt       *time.Time   `json:"read_at"`
	FromUser     *UserSummary `json:"from_user,omitempty"`
	ToUser       *UserSummary `json:"to_user,omitempty"`
}
