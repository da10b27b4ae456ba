package domain

import (
	"crypto/subtle"
	"time"
)

// Application is a relying party registered with the broker (the OAuth client)
type Application struct {
	ID            string    `json:"id"`
	ClientID      string    `json:"client_id"`
	Label         string    `json:"label,omitempty"`
	ClientSecrets []string  `json:"-"` // Never serialize
	RedirectURI   string    `json:"redirect_uri"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ValidateRedirectURI requires a byte-for-byte match with the registered uri
func (a *Application) ValidateRedirectURI(uri string) error {
	if uri == "" || uri != a.RedirectURI {
		return ErrRedirectURIMismatch
	}
	return nil
}

// ValidateClientSecret checks the secret against every registered secret
func (a *Application) ValidateClientSecret(secret string) error {
	if secret == "" {
		return ErrInvalidClientSecret
	}
	match := 0
	for _, s := range a.ClientSecrets {
		match |= subtle.ConstantTimeCompare([]byte(s), []byte(secret))
	}
	if match != 1 {
		return ErrInvalidClientSecret
	}
	return nil
}
