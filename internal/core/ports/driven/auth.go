package driven

// PasswordHasher handles password hashing for the credentials provider.
// Cleartext passwords never leave this boundary.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, hash string) bool
}
