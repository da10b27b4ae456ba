package domain

// Catalog is a full snapshot of the registry configuration:
// applications with the providers and users they own.
type Catalog struct {
	Applications []CatalogEntry
}

// CatalogEntry groups one application with its providers and users
type CatalogEntry struct {
	Application Application
	Providers   []Provider
	Users       []CatalogUser
}

// CatalogUser is a configured user. Password is the cleartext value from the
// configuration file and is replaced by User.PasswordHash during synchronisation.
type CatalogUser struct {
	User     User
	Password string
}

// Find returns the entry for a client id, nil when absent
func (c *Catalog) Find(clientID string) *CatalogEntry {
	for i := range c.Applications {
		if c.Applications[i].Application.ClientID == clientID {
			return &c.Applications[i]
		}
	}
	return nil
}
