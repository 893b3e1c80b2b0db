package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for profile store operations
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
	ErrStoreBusy       = errors.New("store is busy: a connection is in progress")
)

// Backend is the injected persistence dependency for the profile store.
// LoadAll is called once at startup; SaveAll after every committed mutation.
// The in-memory store remains the source of truth for the running process, so
// a SaveAll failure is reported but never rolls back the in-memory change.
type Backend interface {
	LoadAll() (map[string]Profile, error)
	SaveAll(profiles map[string]Profile) error
	Close() error
}

// NewBackend creates the persistence backend selected by the settings
// (defaults to SQLite).
func NewBackend(settings Settings) (Backend, error) {
	switch settings.Store {
	case "", StoreSQLite:
		return NewSQLiteBackend()
	case StoreJSON:
		return NewJSONBackend(settings.ProfilesFile)
	default:
		return nil, fmt.Errorf("unknown store backend %q (expected %q or %q)", settings.Store, StoreSQLite, StoreJSON)
	}
}
