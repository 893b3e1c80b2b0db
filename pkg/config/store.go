package config

import (
	"fmt"
	"sync"

	"github.com/xlttj/sshfwd/pkg/logging"
)

// ProfileStore manages the collection of SSH profiles. It is the in-memory
// source of truth for the running process; every committed mutation is
// written through to the injected Backend.
//
// Mutations are rejected with ErrStoreBusy while the busy hook reports true
// (a connection attempt is in flight), so a profile can never change
// underneath an in-flight request. The rejected call leaves the store
// untouched.
type ProfileStore struct {
	profiles map[string]Profile
	backend  Backend
	busy     func() bool
	mutex    sync.RWMutex // For thread-safe access
}

// NewProfileStore loads all profiles from the backend and returns a store.
func NewProfileStore(backend Backend) (*ProfileStore, error) {
	profiles, err := backend.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	if profiles == nil {
		profiles = make(map[string]Profile)
	}
	logging.LogDebug("Profile store initialized with %d profiles", len(profiles))
	return &ProfileStore{
		profiles: profiles,
		backend:  backend,
		busy:     func() bool { return false },
	}, nil
}

// SetBusyCheck installs the hook consulted before every mutation. The
// coordinator points this at the session so connect-in-flight blocks edits.
func (ps *ProfileStore) SetBusyCheck(busy func() bool) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	if busy != nil {
		ps.busy = busy
	}
}

// List returns a copy of the current profile set. Never fails.
func (ps *ProfileStore) List() map[string]Profile {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	out := make(map[string]Profile, len(ps.profiles))
	for name, p := range ps.profiles {
		out[name] = p.Clone()
	}
	return out
}

// Len returns the number of profiles.
func (ps *ProfileStore) Len() int {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()
	return len(ps.profiles)
}

// Get returns the profile with the given name.
func (ps *ProfileStore) Get(name string) (Profile, error) {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	p, ok := ps.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	return p.Clone(), nil
}

// Create adds a new profile. Fails with ErrProfileExists when the name is
// taken and with a *ValidationError when the profile is structurally invalid.
// Empty forward slots are dropped before validation and never persisted.
func (ps *ProfileStore) Create(p Profile) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.busy() {
		return ErrStoreBusy
	}
	p.Forwards = p.CompleteForwards()
	if verr := ValidateProfile(p); verr != nil {
		return verr
	}
	if _, exists := ps.profiles[p.Name]; exists {
		return fmt.Errorf("%w: %q", ErrProfileExists, p.Name)
	}

	ps.profiles[p.Name] = p.Clone()
	logging.LogDebug("Created profile %q (%d forwards)", p.Name, len(p.Forwards))
	return ps.writeThrough()
}

// Update replaces an existing profile. The name in the profile must equal
// name: rename is delete+create, never update.
func (ps *ProfileStore) Update(name string, p Profile) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.busy() {
		return ErrStoreBusy
	}
	if p.Name != name {
		verr := &ValidationError{}
		verr.add("name", "profile name cannot be changed")
		return verr
	}
	p.Forwards = p.CompleteForwards()
	if verr := ValidateProfile(p); verr != nil {
		return verr
	}
	if _, exists := ps.profiles[name]; !exists {
		return fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}

	ps.profiles[name] = p.Clone()
	logging.LogDebug("Updated profile %q (%d forwards)", name, len(p.Forwards))
	return ps.writeThrough()
}

// Delete removes a profile by name.
func (ps *ProfileStore) Delete(name string) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.busy() {
		return ErrStoreBusy
	}
	if _, exists := ps.profiles[name]; !exists {
		return fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}

	delete(ps.profiles, name)
	logging.LogDebug("Deleted profile %q", name)
	return ps.writeThrough()
}

// Replace swaps the entire profile set, used when the worker reports an
// authoritative profiles_list. Does not write through: the list came from
// the side that already persisted it.
func (ps *ProfileStore) Replace(profiles map[string]Profile) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	ps.profiles = make(map[string]Profile, len(profiles))
	for name, p := range profiles {
		ps.profiles[name] = p.Clone()
	}
	logging.LogDebug("Profile store replaced with %d profiles", len(profiles))
}

// SaveError wraps a persistence write-through failure. The in-memory
// mutation that triggered the write has already been committed.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("profile change applied but not persisted: %v", e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// writeThrough persists the current set. Must be called with the mutex held.
func (ps *ProfileStore) writeThrough() error {
	snapshot := make(map[string]Profile, len(ps.profiles))
	for name, p := range ps.profiles {
		snapshot[name] = p.Clone()
	}
	if err := ps.backend.SaveAll(snapshot); err != nil {
		logging.LogError("Profile write-through failed: %v", err)
		return &SaveError{Err: err}
	}
	return nil
}
