package adapter

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// ErrPasswordNotFound is returned when no password is stored for a destination.
var ErrPasswordNotFound = errors.New("password not found")

// PasswordStore keeps archive passwords keyed by destination path.
type PasswordStore interface {
	Get(destination string) (string, error)
	Set(destination, password string) error
	Delete(destination string) error
}

// KeyringPasswordStore stores passwords in the operating system keyring.
type KeyringPasswordStore struct {
	service string
}

// NewKeyringPasswordStore creates a store under service.
func NewKeyringPasswordStore(service string) *KeyringPasswordStore {
	return &KeyringPasswordStore{service: service}
}

// Get returns the password for destination.
func (s *KeyringPasswordStore) Get(destination string) (string, error) {
	pw, err := keyring.Get(s.service, destination)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrPasswordNotFound
	}

	if err != nil {
		return "", fmt.Errorf("failed to read keyring: %w", err)
	}

	return pw, nil
}

// Set stores password for destination.
func (s *KeyringPasswordStore) Set(destination, password string) error {
	if err := keyring.Set(s.service, destination, password); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}

	return nil
}

// Delete removes the password for destination.
func (s *KeyringPasswordStore) Delete(destination string) error {
	err := keyring.Delete(s.service, destination)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrPasswordNotFound
	}

	if err != nil {
		return fmt.Errorf("failed to update keyring: %w", err)
	}

	return nil
}
