package ui

import (
	"fmt"
	"strings"

	"github.com/xlttj/sshfwd/pkg/core"
	"github.com/xlttj/sshfwd/pkg/session"

	"github.com/charmbracelet/lipgloss"
)

// View renders the current model state
func (m *Model) View() string {
	switch m.uiState {
	case StateProfiles:
		return m.viewProfiles()
	case StateForm:
		return m.viewForm()
	}
	return "Unknown state"
}

// viewProfiles renders the profile list view with the connection status
// line, the detail pane for the selected profile and any pending notices.
func (m *Model) viewProfiles() string {
	var b strings.Builder

	title := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTitle)).Bold(true).Render("SSH Connection Profiles")
	b.WriteString(title)
	b.WriteString("\n")

	b.WriteString(m.renderConnectionLine())
	b.WriteString("\n\n")

	b.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Left, m.profilesTable.View()))
	b.WriteString("\n")

	if m.detail != "" {
		detailStyle := lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 1)
		b.WriteString(detailStyle.Render(m.detail))
		b.WriteString("\n")
	}

	if len(m.notices) > 0 {
		b.WriteString(m.renderNoticeLine())
		b.WriteString("\n")
	}

	if m.lastDiagnostic != "" {
		diagStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp))
		b.WriteString(diagStyle.Render(fmt.Sprintf("worker: %s", m.lastDiagnostic)))
		b.WriteString("\n")
	}

	if msg := m.renderMessage(); msg != "" {
		b.WriteString(msg)
		b.WriteString("\n")
	}

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp))
	b.WriteString(helpStyle.Render(ActionProfilesNav))
	b.WriteString("\n")

	return b.String()
}

// renderConnectionLine renders the colored one-line connection summary.
func (m *Model) renderConnectionLine() string {
	var color, text string
	switch {
	case m.conn.Offline:
		color = ColorError
		text = "Status: Backend offline (restart required)"
	case m.conn.State == session.StateConnected:
		color = ColorOK
		text = fmt.Sprintf("Status: Connected to %s", m.conn.ActiveProfile)
	case m.conn.State == session.StateConnecting:
		color = ColorWarn
		text = fmt.Sprintf("Status: Connecting to %s...", m.conn.ActiveProfile)
	case m.conn.State == session.StateDisconnecting:
		color = ColorWarn
		text = fmt.Sprintf("Status: Disconnecting from %s...", m.conn.ActiveProfile)
	case m.conn.State == session.StateError:
		color = ColorError
		text = fmt.Sprintf("Status: Error: %s", m.conn.Message)
	default:
		color = ColorHelp
		text = "Status: Disconnected"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(text)
}

// renderNoticeLine shows the head of the notice queue with a backlog count.
func (m *Model) renderNoticeLine() string {
	head := m.notices[0]
	color := ColorOK
	if head.Level == core.NoticeError {
		color = ColorError
	}
	text := head.Message
	if len(m.notices) > 1 {
		text = fmt.Sprintf("%s (+%d more, m to dismiss)", text, len(m.notices)-1)
	} else {
		text = fmt.Sprintf("%s (m to dismiss)", text)
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(text)
}

// renderMessage renders the central error or status message if set.
func (m *Model) renderMessage() string {
	if m.errorMsg != "" {
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Bold(true)
		return errorStyle.Render(fmt.Sprintf("ERROR: %s", m.errorMsg))
	}
	if m.statusMsg != "" {
		statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorOK))
		return statusStyle.Render(m.statusMsg)
	}
	return ""
}
