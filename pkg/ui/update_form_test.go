package ui

import (
	"strings"
	"testing"

	"github.com/xlttj/sshfwd/pkg/config"
	"github.com/xlttj/sshfwd/pkg/core"
	"github.com/xlttj/sshfwd/pkg/ipc"
	"github.com/xlttj/sshfwd/pkg/session"
)

type nullBackend struct{}

func (nullBackend) LoadAll() (map[string]config.Profile, error) { return nil, nil }
func (nullBackend) SaveAll(map[string]config.Profile) error     { return nil }
func (nullBackend) Close() error                                { return nil }

type nullTransport struct{}

func (nullTransport) Send(ipc.Request) error { return nil }

func newFormModel(t *testing.T) (*Model, *config.ProfileStore) {
	t.Helper()
	store, err := config.NewProfileStore(nullBackend{})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	m := NewModel(core.New(store, session.New(), nullTransport{}))
	m.enterForm(nil)
	return m, store
}

func TestSubmitFormRejectsPortZero(t *testing.T) {
	m, store := newFormModel(t)
	m.formInputs[fieldName].SetValue("home")
	m.formInputs[fieldHostname].SetValue("10.0.0.5")

	// A typed zero is a real value, not a request for the default.
	m.formInputs[fieldPort].SetValue("0")
	m.submitForm()
	if m.uiState != StateForm {
		t.Fatal("port 0 should keep the form open")
	}
	if _, ok := m.fieldErrors["port"]; !ok {
		t.Errorf("expected port error, got %v", m.fieldErrors)
	}

	// An empty field means "use the default": saved with no port at all.
	m.formInputs[fieldPort].SetValue("")
	m.submitForm()
	if m.uiState != StateProfiles {
		t.Fatalf("save with empty port failed: %s", m.errorMsg)
	}
	saved, err := store.Get("home")
	if err != nil {
		t.Fatal(err)
	}
	if saved.Port != nil {
		t.Errorf("empty port field became %d", *saved.Port)
	}
	if saved.EffectivePort() != config.DefaultSSHPort {
		t.Errorf("effective port = %d", saved.EffectivePort())
	}
}

func TestSubmitFormErrorsFollowFormRows(t *testing.T) {
	m, _ := newFormModel(t)
	m.formInputs[fieldName].SetValue("home")
	m.formInputs[fieldHostname].SetValue("10.0.0.5")

	// Row 0 stays untouched; row 1 is missing its remote half. The
	// validation errors must land under row 1, not the empty row 0.
	m.appendForwardRow(config.ForwardRule{})
	m.appendForwardRow(config.ForwardRule{})
	m.forwardInputs[1][0].SetValue("8080")

	m.submitForm()

	if m.uiState != StateForm {
		t.Fatal("invalid forward should keep the form open")
	}
	if _, ok := m.fieldErrors["forwards[1].remote_host"]; !ok {
		t.Errorf("expected remote host error under row 1, got %v", m.fieldErrors)
	}
	if _, ok := m.fieldErrors["forwards[1].remote_port"]; !ok {
		t.Errorf("expected remote port error under row 1, got %v", m.fieldErrors)
	}
	for key := range m.fieldErrors {
		if strings.HasPrefix(key, "forwards[0].") {
			t.Errorf("error attached to the empty row: %v", m.fieldErrors)
		}
	}
}
