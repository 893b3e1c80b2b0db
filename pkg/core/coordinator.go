// Package core wires the profile store, the session state machine and the
// worker protocol together behind a single façade. The UI submits intents
// here and observes the resulting snapshots; it never talks to the worker or
// the store directly.
package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xlttj/sshfwd/pkg/config"
	"github.com/xlttj/sshfwd/pkg/ipc"
	"github.com/xlttj/sshfwd/pkg/logging"
	"github.com/xlttj/sshfwd/pkg/session"
)

// Transport is the outbound side of the worker protocol. Satisfied by
// *ipc.Client; tests substitute an in-process fake.
type Transport interface {
	Send(ipc.Request) error
}

// NotificationLevel distinguishes success notices from failures in the
// queued notification stream.
type NotificationLevel int

const (
	NoticeInfo NotificationLevel = iota
	NoticeError
)

// Notification is one queued user-facing notice. Rapid event bursts queue
// up here instead of each interrupting the user.
type Notification struct {
	Level   NotificationLevel
	Message string
}

// ProfileEventKind tags the profile-facing snapshot stream.
type ProfileEventKind int

const (
	// ProfileList carries the authoritative profile set.
	ProfileList ProfileEventKind = iota
	// ProfileDetail carries one profile for read-only display.
	ProfileDetail
	// ProfileEditForm carries one profile to populate the edit form;
	// receiving it puts the coordinator in editing mode for that name.
	ProfileEditForm
)

// ProfileEvent is one profile-list or profile-detail snapshot for the UI.
type ProfileEvent struct {
	Kind     ProfileEventKind
	Profiles map[string]config.Profile // ProfileList
	Profile  *config.Profile           // ProfileDetail, ProfileEditForm
}

// subscription channel capacity; sends never block the worker reader, an
// overflowing observer loses the oldest pending item.
const channelDepth = 64

// Coordinator owns all session-scoped state: the store, the state machine,
// the editing cursor and the observer channels. It is constructed at startup
// and lives for the process lifetime.
type Coordinator struct {
	store     *config.ProfileStore
	session   *session.Session
	transport Transport

	editMutex sync.Mutex
	editing   string // profile name open in the edit form, "" when none

	states        chan session.Snapshot
	profiles      chan ProfileEvent
	diagnostics   chan string
	notifications chan Notification
}

// New creates the coordinator and wires the session's busy state into the
// store's mutation gate.
func New(store *config.ProfileStore, sess *session.Session, transport Transport) *Coordinator {
	c := &Coordinator{
		store:         store,
		session:       sess,
		transport:     transport,
		states:        make(chan session.Snapshot, channelDepth),
		profiles:      make(chan ProfileEvent, channelDepth),
		diagnostics:   make(chan string, channelDepth),
		notifications: make(chan Notification, channelDepth),
	}
	store.SetBusyCheck(sess.Busy)
	sess.SetListener(func(snap session.Snapshot) {
		push(c.states, snap, "state snapshot")
	})
	return c
}

// Handlers returns the ipc callbacks that route worker traffic into this
// coordinator.
func (c *Coordinator) Handlers() ipc.Handlers {
	return ipc.Handlers{
		Event:      c.HandleEvent,
		Diagnostic: c.HandleDiagnostic,
		Crashed:    c.HandleCrash,
	}
}

// Observer channels. The UI drains these; it never polls core state.

func (c *Coordinator) States() <-chan session.Snapshot    { return c.states }
func (c *Coordinator) Profiles() <-chan ProfileEvent      { return c.profiles }
func (c *Coordinator) Diagnostics() <-chan string         { return c.diagnostics }
func (c *Coordinator) Notifications() <-chan Notification { return c.notifications }

// Session returns the current session snapshot (for initial render only;
// subsequent state arrives via States).
func (c *Coordinator) Session() session.Snapshot { return c.session.Snapshot() }

// Store exposes read access to the profile store for initial render.
func (c *Coordinator) ListLocal() map[string]config.Profile { return c.store.List() }

// Start announces the local profile set and asks the worker for its list,
// mirroring the front end's initial list request.
func (c *Coordinator) Start() error {
	push(c.profiles, ProfileEvent{Kind: ProfileList, Profiles: c.store.List()}, "profile event")
	return c.RequestList()
}

// --- user intents -----------------------------------------------------

// RequestList asks the worker for its profile set.
func (c *Coordinator) RequestList() error {
	if c.session.Offline() {
		return session.ErrBackendUnavailable
	}
	return c.transport.Send(ipc.Request{Type: ipc.RequestListProfiles})
}

// ShowDetails requests a read-only detail view of one profile.
func (c *Coordinator) ShowDetails(name string) error {
	if c.session.Offline() {
		return session.ErrBackendUnavailable
	}
	return c.transport.Send(ipc.Request{Type: ipc.RequestProfileDetails, ProfileName: name})
}

// BeginEdit requests a profile for editing. Editing mode is entered when the
// worker's profile_details_for_edit answer arrives and names the profile.
func (c *Coordinator) BeginEdit(name string) error {
	if c.session.Offline() {
		return session.ErrBackendUnavailable
	}
	if c.session.Busy() {
		return config.ErrStoreBusy
	}
	return c.transport.Send(ipc.Request{Type: ipc.RequestProfileDetailsEdit, ProfileName: name})
}

// CancelEdit leaves editing mode without saving.
func (c *Coordinator) CancelEdit() {
	c.setEditing("")
}

// Editing returns the name of the profile open in the edit form, or "".
// While set, the profile's name is immutable: rename is delete+create.
func (c *Coordinator) Editing() string {
	c.editMutex.Lock()
	defer c.editMutex.Unlock()
	return c.editing
}

func (c *Coordinator) setEditing(name string) {
	c.editMutex.Lock()
	defer c.editMutex.Unlock()
	c.editing = name
}

// SaveProfile commits the form: create when not editing, update of the
// edited profile otherwise. Validation and store failures return
// synchronously; the worker is told after the local commit so both sides
// converge, and its profile_saved answer refreshes the list.
func (c *Coordinator) SaveProfile(p config.Profile) error {
	if c.session.Offline() {
		return session.ErrBackendUnavailable
	}

	editing := c.Editing()
	reqType := ipc.RequestAddProfile
	var err error
	if editing != "" {
		if p.Name != editing {
			verr := &config.ValidationError{}
			verr.Fields = append(verr.Fields, config.FieldError{Field: "name", Reason: "profile name cannot be changed while editing"})
			return verr
		}
		reqType = ipc.RequestSaveProfile
		err = c.store.Update(editing, p)
	} else {
		err = c.store.Create(p)
	}

	var saveErr *config.SaveError
	if errors.As(err, &saveErr) {
		// In-memory change committed; persistence failed. Report and
		// continue, the running process remains the source of truth.
		c.notify(NoticeError, saveErr.Error())
	} else if err != nil {
		return err
	}

	committed := p.Clone()
	committed.Forwards = committed.CompleteForwards()
	if err := c.transport.Send(ipc.Request{Type: reqType, ProfileName: p.Name, Data: &committed}); err != nil {
		return err
	}
	return nil
}

// DeleteProfile removes a profile locally and tells the worker.
func (c *Coordinator) DeleteProfile(name string) error {
	if c.session.Offline() {
		return session.ErrBackendUnavailable
	}

	err := c.store.Delete(name)
	var saveErr *config.SaveError
	if errors.As(err, &saveErr) {
		c.notify(NoticeError, saveErr.Error())
	} else if err != nil {
		return err
	}

	return c.transport.Send(ipc.Request{Type: ipc.RequestDeleteProfile, ProfileName: name})
}

// Connect starts a connection attempt for the named profile. The session
// enters Connecting immediately; the worker's connection_status reports
// drive it from there.
func (c *Coordinator) Connect(name string) error {
	if c.session.Offline() {
		return session.ErrBackendUnavailable
	}
	if _, err := c.store.Get(name); err != nil {
		return err
	}
	if err := c.session.Connect(name); err != nil {
		return err
	}
	if err := c.transport.Send(ipc.Request{Type: ipc.RequestConnect, ProfileName: name}); err != nil {
		// The request never left; do not stay stuck in Connecting.
		_ = c.session.WorkerError(fmt.Sprintf("failed to reach worker: %v", err))
		return err
	}
	return nil
}

// Disconnect asks the worker to tear the tunnel down. Cooperative: the
// session stays in Disconnecting until the worker reports Disconnected.
func (c *Coordinator) Disconnect() error {
	if c.session.Offline() {
		return session.ErrBackendUnavailable
	}
	if err := c.session.Disconnect(); err != nil {
		return err
	}
	return c.transport.Send(ipc.Request{Type: ipc.RequestDisconnect})
}

// --- inbound routing --------------------------------------------------

// HandleEvent routes one decoded worker message. Called from the client's
// reader goroutine in arrival order; arrival order is decoupled from request
// order, so routing depends only on message kind and current state.
func (c *Coordinator) HandleEvent(ev ipc.Event) {
	switch ev.Type {
	case ipc.EventProfilesList:
		c.store.Replace(ev.Profiles)
		push(c.profiles, ProfileEvent{Kind: ProfileList, Profiles: ev.Profiles}, "profile event")

	case ipc.EventProfileSaved, ipc.EventProfileDeleted:
		c.setEditing("")
		c.notify(NoticeInfo, ev.Message)
		if err := c.RequestList(); err != nil {
			logging.LogError("Failed to refresh profile list: %v", err)
		}

	case ipc.EventConnectionStatus:
		c.applyConnectionStatus(ev.Status, ev.Message)

	case ipc.EventProfileDetails:
		push(c.profiles, ProfileEvent{Kind: ProfileDetail, Profile: ev.Profile}, "profile event")

	case ipc.EventProfileDetailsEdit:
		if ev.Profile != nil {
			c.setEditing(ev.Profile.Name)
			push(c.profiles, ProfileEvent{Kind: ProfileEditForm, Profile: ev.Profile}, "profile event")
		}

	case ipc.EventError:
		// A generic backend error while a connect is in flight is the
		// answer to that connect.
		if c.session.State() == session.StateConnecting {
			if err := c.session.WorkerError(ev.Message); err != nil {
				logging.LogError("Failed to apply connection error: %v", err)
			}
		}
		c.notify(NoticeError, ev.Message)

	default:
		logging.LogDebug("Ignoring unknown worker message type %q", ev.Type)
	}
}

// applyConnectionStatus maps a connection_status report onto the state
// machine. Illegal reports (such as the worker's startup Disconnected while
// already Idle) are logged and dropped, never fatal.
func (c *Coordinator) applyConnectionStatus(status, message string) {
	var err error
	switch {
	case status == ipc.StatusConnected:
		err = c.session.WorkerConnected(message)
	case status == ipc.StatusDisconnected:
		err = c.session.WorkerDisconnected(message)
	case status == ipc.StatusConnecting, status == ipc.StatusDisconnecting:
		// The session already holds these as provisional states; the
		// worker is confirming, not transitioning.
	case ipc.IsErrorStatus(status):
		reason := message
		if reason == "" {
			reason = status
		}
		err = c.session.WorkerError(reason)
		c.notify(NoticeError, reason)
	default:
		logging.LogDebug("Ignoring unknown connection status %q", status)
	}

	if err != nil {
		logging.LogError("Dropped connection_status %q: %v", status, err)
	}
}

// HandleDiagnostic queues one free-text worker stderr line for the UI.
func (c *Coordinator) HandleDiagnostic(line string) {
	push(c.diagnostics, line, "diagnostic")
}

// HandleCrash marks the backend offline. Terminal: every subsequent intent
// fails with ErrBackendUnavailable until the application restarts.
func (c *Coordinator) HandleCrash(err error) {
	logging.LogError("Worker crashed: %v", err)
	c.session.WorkerCrashed()
	c.notify(NoticeError, "The backend process has closed. Please restart the application.")
}

func (c *Coordinator) notify(level NotificationLevel, message string) {
	if message == "" {
		return
	}
	push(c.notifications, Notification{Level: level, Message: message}, "notification")
}

// push queues onto an observer channel without ever blocking the caller;
// when full, the oldest pending item is dropped to make room.
func push[T any](ch chan T, item T, what string) {
	for {
		select {
		case ch <- item:
			return
		default:
			select {
			case <-ch:
				logging.LogDebug("Observer lagging, dropped oldest %s", what)
			default:
			}
		}
	}
}
