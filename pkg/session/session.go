// Package session owns the single process-wide SSH connection lifecycle.
//
// State transitions:
//
//	Idle --Connect--> Connecting --worker Connected--> Connected
//	Connecting --worker Disconnected--> Idle
//	Connecting --worker Error--> Error(reason)
//	Connected --Disconnect--> Disconnecting --worker Disconnected--> Idle
//	Connected --worker Disconnected--> Idle   (unsolicited remote drop)
//	Error --Connect--> Connecting             (Error is recoverable)
//	any --WorkerCrashed--> Error("backend offline"), terminal Offline
//
// Everything else is rejected with ErrInvalidTransition and leaves the
// session unchanged. Exactly one Session exists per process; it starts Idle
// and lives for the process lifetime.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xlttj/sshfwd/pkg/logging"
)

// State is the lifecycle state of the session.
type State string

const (
	StateIdle          State = "idle"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
	StateError         State = "error"
)

// Sentinel errors for session events
var (
	ErrBusy               = errors.New("a connection is already in progress")
	ErrInvalidTransition  = errors.New("invalid session state transition")
	ErrBackendUnavailable = errors.New("backend offline: restart the application")
)

// Snapshot is the immutable view of session state pushed to observers on
// every change. The UI learns of state only through snapshots, never by
// polling.
type Snapshot struct {
	State         State
	ActiveProfile string // empty when no connection is in flight
	Message       string // human-readable detail for the current state
	Offline       bool   // worker process died; terminal until restart
}

// Session is the connection lifecycle state machine.
type Session struct {
	mutex         sync.RWMutex
	state         State
	activeProfile string
	message       string
	offline       bool
	listener      func(Snapshot)

	emitMutex sync.Mutex // serializes listener delivery
	seq       uint64     // transition counter, guarded by mutex
	delivered uint64     // newest seq handed to the listener, guarded by emitMutex
}

// New creates a session in Idle.
func New() *Session {
	return &Session{state: StateIdle}
}

// SetListener installs the snapshot observer. The listener is invoked
// synchronously, after the transition commits, on every state change.
func (s *Session) SetListener(fn func(Snapshot)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.listener = fn
}

// Snapshot returns the current state view.
func (s *Session) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:         s.state,
		ActiveProfile: s.activeProfile,
		Message:       s.message,
		Offline:       s.offline,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state
}

// Busy reports whether a connection is in flight. Store mutations are
// rejected while busy so a profile cannot change underneath a request.
func (s *Session) Busy() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	switch s.state {
	case StateConnecting, StateConnected, StateDisconnecting:
		return true
	}
	return false
}

// Offline reports whether the worker process has died.
func (s *Session) Offline() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.offline
}

// Connect enters Connecting for the named profile. Legal from Idle and from
// Error (a failed attempt does not block retrying). The caller has already
// resolved the name against the store.
func (s *Session) Connect(profileName string) error {
	s.mutex.Lock()

	if s.offline {
		s.mutex.Unlock()
		return ErrBackendUnavailable
	}
	if s.state != StateIdle && s.state != StateError {
		s.mutex.Unlock()
		return ErrBusy
	}

	s.state = StateConnecting
	s.activeProfile = profileName
	s.message = fmt.Sprintf("Connecting to %q...", profileName)
	s.emitLocked()
	return nil
}

// Disconnect enters Disconnecting. Legal only from Connected; the caller
// then issues the disconnect request to the worker and waits for its
// Disconnected report.
func (s *Session) Disconnect() error {
	s.mutex.Lock()

	if s.offline {
		s.mutex.Unlock()
		return ErrBackendUnavailable
	}
	if s.state != StateConnected {
		s.mutex.Unlock()
		return fmt.Errorf("%w: disconnect while %s", ErrInvalidTransition, s.state)
	}

	s.state = StateDisconnecting
	s.message = "Disconnecting..."
	s.emitLocked()
	return nil
}

// WorkerConnected applies the worker's Connected report.
func (s *Session) WorkerConnected(message string) error {
	s.mutex.Lock()

	if s.state != StateConnecting {
		state := s.state
		s.mutex.Unlock()
		return fmt.Errorf("%w: connected report while %s", ErrInvalidTransition, state)
	}

	s.state = StateConnected
	s.message = message
	s.emitLocked()
	return nil
}

// WorkerDisconnected applies the worker's Disconnected report. Legal while
// Connecting (attempt abandoned), Connected (unsolicited remote drop) and
// Disconnecting (requested teardown completed); always returns to Idle with
// the active profile cleared.
func (s *Session) WorkerDisconnected(message string) error {
	s.mutex.Lock()

	switch s.state {
	case StateConnecting, StateConnected, StateDisconnecting:
	default:
		state := s.state
		s.mutex.Unlock()
		return fmt.Errorf("%w: disconnected report while %s", ErrInvalidTransition, state)
	}

	s.state = StateIdle
	s.activeProfile = ""
	s.message = message
	s.emitLocked()
	return nil
}

// WorkerError applies a worker-reported connection failure. The session
// enters Error with the active profile cleared; a later Connect may retry.
func (s *Session) WorkerError(reason string) error {
	s.mutex.Lock()

	if s.offline {
		s.mutex.Unlock()
		return ErrBackendUnavailable
	}

	s.state = StateError
	s.activeProfile = ""
	s.message = reason
	s.emitLocked()
	return nil
}

// WorkerCrashed records the worker process exiting. From any state the
// session enters Error("backend offline") and becomes permanently Offline:
// every further event is rejected with ErrBackendUnavailable until the
// process restarts.
func (s *Session) WorkerCrashed() {
	s.mutex.Lock()

	if s.offline {
		s.mutex.Unlock()
		return
	}

	logging.LogError("Worker process died while session was %s", s.state)
	s.state = StateError
	s.activeProfile = ""
	s.message = "backend offline"
	s.offline = true
	s.emitLocked()
}

// emitLocked notifies the listener of the committed transition. It releases
// the state mutex before invoking the listener so observers may read the
// session. Delivery is serialized in commit order: when two transitions race,
// a snapshot overtaken by a newer one is dropped rather than delivered late,
// so the last snapshot the listener sees is always the current state.
func (s *Session) emitLocked() {
	listener := s.listener
	snapshot := s.snapshotLocked()
	s.seq++
	seq := s.seq
	s.mutex.Unlock()
	if listener == nil {
		return
	}
	s.emitMutex.Lock()
	defer s.emitMutex.Unlock()
	if seq <= s.delivered {
		// A newer transition already reached the listener.
		return
	}
	s.delivered = seq
	listener(snapshot)
}
