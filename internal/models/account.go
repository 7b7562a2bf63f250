package models

import "time"

// Account represents a registered user.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose this to the client
	CreatedAt    time.Time `json:"created_at"`
}

// Public returns the account without any password material.
func (a Account) Public() Account {
	a.PasswordHash = ""
	return a
}

// AuthResult is returned by register and login.
type AuthResult struct {
	Token   string  `json:"token"`
	Account Account `json:"account"`
}
