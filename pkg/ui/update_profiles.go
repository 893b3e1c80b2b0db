package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// updateProfiles handles keys for the StateProfiles view.
func (m *Model) updateProfiles(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit

	case "enter", "c":
		m.clearMessages()
		name := m.selectedProfileName()
		if name == "" {
			m.errorMsg = "Please select a profile to connect."
			return m, nil
		}
		if err := m.coordinator.Connect(name); err != nil {
			m.errorMsg = fmt.Sprintf("Cannot connect: %v", err)
		}
		return m, nil

	case "d":
		m.clearMessages()
		if err := m.coordinator.Disconnect(); err != nil {
			m.errorMsg = fmt.Sprintf("Cannot disconnect: %v", err)
		}
		return m, nil

	case "n":
		m.clearMessages()
		if m.conn.Offline {
			m.errorMsg = "Backend offline. Please restart the application."
			return m, nil
		}
		m.coordinator.CancelEdit()
		m.enterForm(nil)
		return m, nil

	case "e":
		m.clearMessages()
		name := m.selectedProfileName()
		if name == "" {
			m.errorMsg = "Please select a profile to edit."
			return m, nil
		}
		// The form opens when the worker answers with the editable record.
		if err := m.coordinator.BeginEdit(name); err != nil {
			m.errorMsg = fmt.Sprintf("Cannot edit: %v", err)
		}
		return m, nil

	case "x":
		m.clearMessages()
		name := m.selectedProfileName()
		if name == "" {
			m.errorMsg = "Please select a profile to delete."
			return m, nil
		}
		if m.pendingDelete != name {
			// First press arms the delete; a second press on the same
			// profile confirms it.
			m.pendingDelete = name
			m.statusMsg = fmt.Sprintf("Press x again to delete profile '%s'.", name)
			return m, nil
		}
		m.pendingDelete = ""
		if err := m.coordinator.DeleteProfile(name); err != nil {
			m.errorMsg = fmt.Sprintf("Cannot delete: %v", err)
		}
		return m, nil

	case "r":
		m.clearMessages()
		if err := m.coordinator.RequestList(); err != nil {
			m.errorMsg = fmt.Sprintf("Cannot refresh: %v", err)
		}
		return m, nil

	case "m":
		// Dismiss the notification at the head of the queue.
		if len(m.notices) > 0 {
			m.notices = m.notices[1:]
		}
		return m, nil
	}

	// Any other key moves the table; a cursor move changes which profile's
	// details are shown.
	prev := m.profilesTable.Cursor()
	var cmd tea.Cmd
	m.profilesTable, cmd = m.profilesTable.Update(msg)
	if m.profilesTable.Cursor() != prev {
		m.pendingDelete = ""
		m.requestSelectedDetails()
	}
	return m, cmd
}

func (m *Model) clearMessages() {
	m.errorMsg = ""
	m.statusMsg = ""
}
