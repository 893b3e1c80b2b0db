package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// viewForm renders the add/edit profile form with validation errors
// attached to the fields they belong to.
func (m *Model) viewForm() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorTitle)).
		Bold(true).
		Padding(0, 1)
	b.WriteString(titleStyle.Render(m.formTitle))
	b.WriteString("\n\n")

	labels := []string{"Name", "Hostname", "Username", "Port"}
	keys := []string{"name", "hostname", "username", "port"}
	for i, label := range labels {
		if formField(i) == fieldName && m.editingName() {
			b.WriteString(fmt.Sprintf("  %-10s %s (cannot be changed)\n", label+":", m.formInputs[i].Value()))
		} else {
			b.WriteString(fmt.Sprintf("  %-10s %s\n", label+":", m.formInputs[i].View()))
		}
		m.writeFieldError(&b, keys[i])
	}

	b.WriteString("\n")
	b.WriteString("  Port Forwards (local:remote_host:remote_port):\n")
	if len(m.forwardInputs) == 0 {
		hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp))
		b.WriteString(hintStyle.Render(fmt.Sprintf("    (none, %s to add)", ShortcutAddForward)))
		b.WriteString("\n")
	}
	for i, row := range m.forwardInputs {
		b.WriteString(fmt.Sprintf("    %s : %s : %s\n", row[0].View(), row[1].View(), row[2].View()))
		m.writeFieldError(&b, fmt.Sprintf("forwards[%d].local_port", i))
		m.writeFieldError(&b, fmt.Sprintf("forwards[%d].remote_host", i))
		m.writeFieldError(&b, fmt.Sprintf("forwards[%d].remote_port", i))
	}

	b.WriteString("\n")
	if msg := m.renderMessage(); msg != "" {
		b.WriteString(msg)
		b.WriteString("\n")
	}

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp))
	b.WriteString(helpStyle.Render(ActionFormNav))
	b.WriteString("\n")

	return b.String()
}

// writeFieldError appends the styled validation message for a field key.
func (m *Model) writeFieldError(b *strings.Builder, key string) {
	reason, ok := m.fieldErrors[key]
	if !ok {
		return
	}
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError))
	b.WriteString(errStyle.Render(fmt.Sprintf("      ^ %s", reason)))
	b.WriteString("\n")
}
