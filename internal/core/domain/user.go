package domain

import "time"

// User is a local identity scoped to an application and a provider kind
type User struct {
	ID            string       `json:"id"`
	ApplicationID string       `json:"application_id"`
	ProviderKind  ProviderKind `json:"provider_kind"`
	Login         string       `json:"login"`
	Email         string       `json:"email"`
	PasswordHash  string       `json:"-"` // Never serialize
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// HasPassword reports whether the user can log in with credentials
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Profile converts a User to the profile served by the user info endpoint
func (u *User) Profile() *UserProfile {
	return &UserProfile{
		ID:       u.ID,
		Login:    u.Login,
		Email:    u.Email,
		Provider: u.ProviderKind,
	}
}

// UserProfile is the identity returned to relying applications
type UserProfile struct {
	ID        string       `json:"id"`
	Login     string       `json:"login"`
	Email     string       `json:"email,omitempty"`
	Name      string       `json:"name,omitempty"`
	AvatarURL string       `json:"avatar_url,omitempty"`
	Provider  ProviderKind `json:"provider,omitempty"`
}
