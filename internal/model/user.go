// Package model defines domain entities for the application.
package model

import "time"

// User is an authenticated person owning projects.
type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name,omitempty"`
	Image           string     `json:"image,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Account types.
const (
	AccountTypeCredentials = "credentials"
	AccountTypeOAuth       = "oauth"
)

// ProviderCredentials is the provider name for email/password accounts.
const ProviderCredentials = "credentials"

// Account links a user to an identity provider.
// Credentials accounts carry an Argon2id password hash.
type Account struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Type              string    `json:"type"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"provider_account_id"`
	PasswordHash      string    `json:"-"` // Never serialize
	CreatedAt         time.Time `json:"created_at"`
}

// IsCredentials reports whether the account signs in with a password.
func (a *Account) IsCredentials() bool {
	return a.Type == AccountTypeCredentials
}
