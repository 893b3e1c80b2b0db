package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xlttj/sshfwd/pkg/config"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// enterForm switches to the profile form. A nil profile opens an empty
// "add" form; otherwise the form is populated for editing and the name
// field is locked (rename is not supported).
func (m *Model) enterForm(p *config.Profile) {
	m.uiState = StateForm
	m.fieldErrors = map[string]string{}
	m.clearMessages()

	newInput := func(placeholder string, limit int) textinput.Model {
		ti := textinput.New()
		ti.Placeholder = placeholder
		ti.CharLimit = limit
		ti.Width = 30
		return ti
	}

	m.formInputs = []textinput.Model{
		newInput("Profile Name", 64),
		newInput("Hostname/IP", 255),
		newInput("Username (optional)", 64),
		newInput("Port (default 22)", 5),
	}
	m.forwardInputs = nil

	if p != nil {
		m.formTitle = fmt.Sprintf("Edit Profile: %s", p.Name)
		m.formInputs[fieldName].SetValue(p.Name)
		m.formInputs[fieldHostname].SetValue(p.Hostname)
		m.formInputs[fieldUsername].SetValue(p.Username)
		// An absent port stays absent; the placeholder names the default.
		if p.Port != nil {
			m.formInputs[fieldPort].SetValue(strconv.Itoa(*p.Port))
		}
		for _, fwd := range p.CompleteForwards() {
			m.appendForwardRow(fwd)
		}
		// Name is immutable while editing; start on the first editable field.
		m.focusField(fieldHostname)
	} else {
		m.formTitle = "Add New Profile"
		m.focusField(fieldName)
	}
}

// appendForwardRow adds one forward rule row of three inputs.
func (m *Model) appendForwardRow(fwd config.ForwardRule) {
	row := [3]textinput.Model{}
	placeholders := [3]string{"Local Port", "Remote Host", "Remote Port"}
	widths := [3]int{12, 24, 12}
	for i := range row {
		ti := textinput.New()
		ti.Placeholder = placeholders[i]
		ti.CharLimit = 255
		ti.Width = widths[i]
		row[i] = ti
	}
	if !fwd.IsEmpty() {
		row[0].SetValue(strconv.Itoa(fwd.LocalPort))
		row[1].SetValue(fwd.RemoteHost)
		row[2].SetValue(strconv.Itoa(fwd.RemotePort))
	}
	m.forwardInputs = append(m.forwardInputs, row)
}

// fieldCount is the number of focusable inputs in the current form.
func (m *Model) fieldCount() int {
	return len(m.formInputs) + 3*len(m.forwardInputs)
}

// editingName reports whether the form edits an existing profile.
func (m *Model) editingName() bool {
	return m.coordinator.Editing() != ""
}

// focusField moves focus to the given field index, blurring the rest.
func (m *Model) focusField(target formField) {
	count := m.fieldCount()
	if count == 0 {
		return
	}
	if int(target) >= count {
		target = 0
	}
	if target < 0 {
		target = formField(count - 1)
	}
	// The name field is not focusable while editing an existing profile.
	if m.editingName() && target == fieldName {
		if m.focusIndex == fieldHostname {
			// Moving backward off the first editable field wraps to the end.
			target = formField(count - 1)
		} else {
			target = fieldHostname
		}
	}

	m.focusIndex = target
	for i := range m.formInputs {
		m.formInputs[i].Blur()
	}
	for r := range m.forwardInputs {
		for j := range m.forwardInputs[r] {
			m.forwardInputs[r][j].Blur()
		}
	}
	if input := m.inputAt(target); input != nil {
		input.Focus()
	}
}

// inputAt resolves a field index to its textinput.
func (m *Model) inputAt(f formField) *textinput.Model {
	if int(f) < len(m.formInputs) {
		return &m.formInputs[f]
	}
	offset := int(f) - len(m.formInputs)
	row := offset / 3
	col := offset % 3
	if row >= len(m.forwardInputs) {
		return nil
	}
	return &m.forwardInputs[row][col]
}

// updateForm handles keys for the StateForm view.
func (m *Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.coordinator.CancelEdit()
		m.uiState = StateProfiles
		m.clearMessages()
		return m, nil

	case "tab", "down":
		m.focusField(m.focusIndex + 1)
		return m, nil

	case "shift+tab", "up":
		m.focusField(m.focusIndex - 1)
		return m, nil

	case ShortcutAddForward:
		m.appendForwardRow(config.ForwardRule{})
		m.focusField(fieldForwardBase + formField(3*(len(m.forwardInputs)-1)))
		return m, nil

	case "ctrl+k":
		// Remove the forward row the cursor is on.
		if int(m.focusIndex) >= len(m.formInputs) {
			row := (int(m.focusIndex) - len(m.formInputs)) / 3
			m.forwardInputs = append(m.forwardInputs[:row], m.forwardInputs[row+1:]...)
			m.focusField(fieldHostname)
		}
		return m, nil

	case "enter":
		return m.submitForm()
	}

	var cmd tea.Cmd
	if input := m.inputAt(m.focusIndex); input != nil {
		*input, cmd = input.Update(msg)
	}
	return m, cmd
}

// submitForm collects the form into a Profile and hands it to the
// coordinator. Validation failures keep the form open with the offending
// fields flagged.
func (m *Model) submitForm() (tea.Model, tea.Cmd) {
	m.clearMessages()
	m.fieldErrors = map[string]string{}

	p := config.Profile{
		Name:     strings.TrimSpace(m.formInputs[fieldName].Value()),
		Hostname: strings.TrimSpace(m.formInputs[fieldHostname].Value()),
		Username: strings.TrimSpace(m.formInputs[fieldUsername].Value()),
	}

	// An empty port field means "use the default"; any typed value, "0"
	// included, is submitted as-is and must pass validation.
	portText := strings.TrimSpace(m.formInputs[fieldPort].Value())
	if portText != "" {
		port, err := strconv.Atoi(portText)
		if err != nil {
			m.fieldErrors["port"] = "Invalid port (1-65535)."
		} else {
			p.Port = config.Port(port)
		}
	}

	// rowFor maps each submitted forward back to its form row, so
	// validator errors land under the row the user actually filled in.
	var rowFor []int
	for i, row := range m.forwardInputs {
		local := strings.TrimSpace(row[0].Value())
		host := strings.TrimSpace(row[1].Value())
		remote := strings.TrimSpace(row[2].Value())
		if local == "" && host == "" && remote == "" {
			// Untouched row slot; dropped, never an error.
			continue
		}

		fwd := config.ForwardRule{RemoteHost: host}
		if local != "" {
			n, err := strconv.Atoi(local)
			if err != nil {
				m.fieldErrors[fmt.Sprintf("forwards[%d].local_port", i)] = "Invalid port (1-65535)."
			} else {
				fwd.LocalPort = n
			}
		}
		if remote != "" {
			n, err := strconv.Atoi(remote)
			if err != nil {
				m.fieldErrors[fmt.Sprintf("forwards[%d].remote_port", i)] = "Invalid port (1-65535)."
			} else {
				fwd.RemotePort = n
			}
		}
		p.Forwards = append(p.Forwards, fwd)
		rowFor = append(rowFor, i)
	}

	if len(m.fieldErrors) > 0 {
		m.errorMsg = "Please fix the errors in the form."
		return m, nil
	}

	if err := m.coordinator.SaveProfile(p); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, f := range verr.Fields {
				m.fieldErrors[formErrorKey(f.Field, rowFor)] = f.Reason
			}
			m.errorMsg = "Please fix the errors in the form."
			return m, nil
		}
		m.errorMsg = fmt.Sprintf("Cannot save: %v", err)
		return m, nil
	}

	// Committed locally; the worker's profile_saved notice confirms it.
	m.uiState = StateProfiles
	return m, nil
}

// formErrorKey translates a validator field address into the form's row
// numbering. The submitted profile carries only the filled-in forward rows,
// so the validator's forwards[k] is form row rowFor[k]; other fields pass
// through unchanged.
func formErrorKey(field string, rowFor []int) string {
	var idx int
	var rest string
	if n, _ := fmt.Sscanf(field, "forwards[%d].%s", &idx, &rest); n == 2 {
		if idx >= 0 && idx < len(rowFor) {
			return fmt.Sprintf("forwards[%d].%s", rowFor[idx], rest)
		}
	}
	return field
}
