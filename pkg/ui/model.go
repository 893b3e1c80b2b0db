package ui

import (
	"fmt"
	"sort"

	"github.com/xlttj/sshfwd/pkg/config"
	"github.com/xlttj/sshfwd/pkg/core"
	"github.com/xlttj/sshfwd/pkg/logging"
	"github.com/xlttj/sshfwd/pkg/session"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// maxQueuedNotices bounds the visible notification queue; older notices are
// dropped once the user is this far behind.
const maxQueuedNotices = 10

// Model represents the state of the UI
type Model struct {
	uiState UIState

	// Core components
	coordinator *core.Coordinator
	width       int
	height      int

	// Central error message
	errorMsg string
	// Status/info message (non-error feedback)
	statusMsg string

	// Profile table and cached list state
	profilesTable table.Model
	profiles      map[string]config.Profile
	names         []string // sorted for stable display
	detail        string   // rendered detail pane for the selected profile

	// Connection state as last reported by the coordinator
	conn session.Snapshot

	// Most recent worker diagnostic line (free text, never parsed)
	lastDiagnostic string

	// Queued notifications; head is shown, rest wait behind it
	notices []core.Notification

	// Armed delete target; a second x on the same profile confirms
	pendingDelete string

	// Profile form state
	formInputs    []textinput.Model // name, hostname, username, port
	forwardInputs [][3]textinput.Model
	focusIndex    formField
	fieldErrors   map[string]string
	formTitle     string
}

// calculateColumnWidths returns column widths based on terminal width
func (m *Model) calculateColumnWidths() []table.Column {
	minWidths := map[string]int{
		ColName:     10,
		ColHostname: 12,
		ColUser:     6,
		ColPort:     5,
		ColForwards: 8,
	}

	availableWidth := m.width - 10
	availableWidth = max(availableWidth, 50)

	totalMinWidth := 0
	for _, width := range minWidths {
		totalMinWidth += width
	}

	extraSpace := max(availableWidth-totalMinWidth, 0)

	// Hostname and name get most of any spare room
	finalWidths := map[string]int{}
	for col, w := range minWidths {
		finalWidths[col] = w
	}
	finalWidths[ColHostname] += extraSpace * 45 / 100
	finalWidths[ColName] += extraSpace * 35 / 100
	finalWidths[ColForwards] += extraSpace * 10 / 100

	return []table.Column{
		{Title: ColName, Width: finalWidths[ColName]},
		{Title: ColHostname, Width: finalWidths[ColHostname]},
		{Title: ColUser, Width: finalWidths[ColUser]},
		{Title: ColPort, Width: finalWidths[ColPort]},
		{Title: ColForwards, Width: finalWidths[ColForwards]},
	}
}

// NewModel builds the UI around an already-started coordinator.
func NewModel(coordinator *core.Coordinator) *Model {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(ColorBorder)).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(ColorSelectedFg)).
		Background(lipgloss.Color(ColorSelectedBg)).
		Bold(false)

	m := &Model{
		uiState:     StateProfiles,
		coordinator: coordinator,
		width:       80, // Default, updated on first WindowSizeMsg
		height:      24,
		profiles:    coordinator.ListLocal(),
		conn:        coordinator.Session(),
		fieldErrors: map[string]string{},
	}

	pfTable := table.New(
		table.WithColumns(m.calculateColumnWidths()),
		table.WithFocused(true),
		table.WithHeight(10),
		table.WithStyles(s),
	)
	m.profilesTable = pfTable
	m.refreshRows()

	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.coordinator.States()),
		waitForProfiles(m.coordinator.Profiles()),
		waitForDiagnostic(m.coordinator.Diagnostics()),
		waitForNotice(m.coordinator.Notifications()),
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		tableHeight := m.height - ProfilesViewOffset
		if tableHeight < MinTableHeight {
			tableHeight = MinTableHeight
		}
		m.profilesTable.SetHeight(tableHeight)
		m.profilesTable.SetColumns(m.calculateColumnWidths())
		return m, nil

	case stateMsg:
		return m.applyStateSnapshot(session.Snapshot(msg))

	case profileMsg:
		return m.applyProfileEvent(core.ProfileEvent(msg))

	case diagnosticMsg:
		m.lastDiagnostic = string(msg)
		return m, waitForDiagnostic(m.coordinator.Diagnostics())

	case noticeMsg:
		m.notices = append(m.notices, core.Notification(msg))
		if len(m.notices) > maxQueuedNotices {
			m.notices = m.notices[len(m.notices)-maxQueuedNotices:]
		}
		return m, waitForNotice(m.coordinator.Notifications())

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", ShortcutExit:
			return m, tea.Quit
		}

		switch m.uiState {
		case StateProfiles:
			return m.updateProfiles(msg)
		case StateForm:
			return m.updateForm(msg)
		}
	}

	return m, nil
}

// applyStateSnapshot renders a new connection state pushed by the core.
func (m *Model) applyStateSnapshot(snap session.Snapshot) (tea.Model, tea.Cmd) {
	m.conn = snap
	if snap.State == session.StateError {
		m.errorMsg = snap.Message
	} else {
		m.errorMsg = ""
	}
	return m, waitForState(m.coordinator.States())
}

// applyProfileEvent renders a profile list/detail snapshot pushed by the core.
func (m *Model) applyProfileEvent(ev core.ProfileEvent) (tea.Model, tea.Cmd) {
	rearm := waitForProfiles(m.coordinator.Profiles())

	switch ev.Kind {
	case core.ProfileList:
		m.profiles = ev.Profiles
		m.refreshRows()
		m.requestSelectedDetails()

	case core.ProfileDetail:
		if ev.Profile != nil {
			m.detail = renderProfileDetails(*ev.Profile)
		}

	case core.ProfileEditForm:
		if ev.Profile != nil {
			m.enterForm(ev.Profile)
		}
	}

	return m, rearm
}

// refreshRows rebuilds the table rows from the cached profile set, sorted by
// name for stable display.
func (m *Model) refreshRows() {
	m.names = make([]string, 0, len(m.profiles))
	for name := range m.profiles {
		m.names = append(m.names, name)
	}
	sort.Strings(m.names)

	rows := make([]table.Row, 0, len(m.names))
	for _, name := range m.names {
		p := m.profiles[name]
		user := p.Username
		if user == "" {
			user = "-"
		}
		rows = append(rows, table.Row{
			name,
			p.Hostname,
			user,
			fmt.Sprintf("%d", p.EffectivePort()),
			fmt.Sprintf("%d", len(p.CompleteForwards())),
		})
	}
	m.profilesTable.SetRows(rows)

	if len(m.names) == 0 {
		m.detail = "No profiles available."
	}
}

// selectedProfileName returns the profile under the cursor, or "".
func (m *Model) selectedProfileName() string {
	cursor := m.profilesTable.Cursor()
	if cursor < 0 || cursor >= len(m.names) {
		return ""
	}
	return m.names[cursor]
}

// requestSelectedDetails asks the worker for the selected profile's details;
// the answer arrives as a ProfileDetail event.
func (m *Model) requestSelectedDetails() {
	name := m.selectedProfileName()
	if name == "" {
		return
	}
	if err := m.coordinator.ShowDetails(name); err != nil {
		logging.LogError("Failed to request details for %q: %v", name, err)
	}
}

// renderProfileDetails formats the read-only detail pane.
func renderProfileDetails(p config.Profile) string {
	user := p.Username
	if user == "" {
		user = "N/A"
	}
	out := fmt.Sprintf("Profile: %s\nHostname: %s\nUsername: %s\nSSH Port: %d\n", p.Name, p.Hostname, user, p.EffectivePort())
	out += "Port Forwards (-L local:remote_host:remote_port):\n"
	forwards := p.CompleteForwards()
	if len(forwards) == 0 {
		return out + "  No port forwards configured.\n"
	}
	for _, fwd := range forwards {
		out += fmt.Sprintf("  - %d:%s:%d\n", fwd.LocalPort, fwd.RemoteHost, fwd.RemotePort)
	}
	return out
}

// Observer wait commands: each delivers one item then re-arms in Update.

func waitForState(ch <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg { return stateMsg(<-ch) }
}

func waitForProfiles(ch <-chan core.ProfileEvent) tea.Cmd {
	return func() tea.Msg { return profileMsg(<-ch) }
}

func waitForDiagnostic(ch <-chan string) tea.Cmd {
	return func() tea.Msg { return diagnosticMsg(<-ch) }
}

func waitForNotice(ch <-chan core.Notification) tea.Cmd {
	return func() tea.Msg { return noticeMsg(<-ch) }
}
