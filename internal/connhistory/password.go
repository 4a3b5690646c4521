package connhistory

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const serviceName = "lazydb"

// ErrPasswordNotFound reports that no password is stored for a connection.
var ErrPasswordNotFound = errors.New("password not found")

// PasswordStore keeps connection passwords in the OS keyring, keyed by the
// password-stripped connection string.
type PasswordStore struct{}

// NewPasswordStore creates a password store.
func NewPasswordStore() *PasswordStore {
	return &PasswordStore{}
}

// Save stores a password. Empty passwords are not saved.
func (ps *PasswordStore) Save(connstr, password string) error {
	if password == "" {
		return nil
	}
	if err := keyring.Set(serviceName, connstr, password); err != nil {
		return fmt.Errorf("failed to save password to keyring: %w", err)
	}
	return nil
}

// Get retrieves a stored password.
func (ps *PasswordStore) Get(connstr string) (string, error) {
	pw, err := keyring.Get(serviceName, connstr)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrPasswordNotFound
		}
		return "", fmt.Errorf("failed to read password from keyring: %w", err)
	}
	return pw, nil
}

// Delete removes a stored password.
func (ps *PasswordStore) Delete(connstr string) error {
	err := keyring.Delete(serviceName, connstr)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete password from keyring: %w", err)
	}
	return nil
}
