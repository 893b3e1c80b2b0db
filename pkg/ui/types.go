package ui

import (
	"github.com/xlttj/sshfwd/pkg/core"
	"github.com/xlttj/sshfwd/pkg/session"
)

// UIState represents the different views/states of the UI
type UIState int

const (
	StateProfiles UIState = iota // Profile table view
	StateForm                    // Add/edit profile form
)

// Bubbletea messages carrying coordinator observer traffic into Update.
// Each wait command re-arms itself after delivering one item.
type (
	stateMsg      session.Snapshot
	profileMsg    core.ProfileEvent
	diagnosticMsg string
	noticeMsg     core.Notification
)

// formField addresses one focusable input in the profile form. Fixed fields
// come first; forward rule inputs follow three per row.
type formField int

const (
	fieldName formField = iota
	fieldHostname
	fieldUsername
	fieldPort
	fieldForwardBase // first forward input; row i field j = base + i*3 + j
)
