package worker

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xlttj/sshfwd/pkg/config"
	"github.com/xlttj/sshfwd/pkg/ipc"
)

type memBackend struct {
	profiles map[string]config.Profile
	loadErr  error
	saveErr  error
}

func (b *memBackend) LoadAll() (map[string]config.Profile, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return b.profiles, nil
}

func (b *memBackend) SaveAll(profiles map[string]config.Profile) error {
	if b.saveErr != nil {
		return b.saveErr
	}
	b.profiles = profiles
	return nil
}

func (b *memBackend) Close() error { return nil }

// runWorker feeds request lines to a fresh worker and returns the decoded
// events it produced.
func runWorker(t *testing.T, backend *memBackend, requests ...ipc.Request) []ipc.Event {
	t.Helper()

	var input bytes.Buffer
	for _, req := range requests {
		line, err := ipc.EncodeRequest(req)
		if err != nil {
			t.Fatalf("encode request: %v", err)
		}
		input.Write(line)
	}

	var output bytes.Buffer
	w, err := New(backend, &output)
	if err != nil {
		t.Fatalf("worker setup: %v", err)
	}
	if err := w.Run(&input); err != nil {
		t.Fatalf("worker run: %v", err)
	}

	var events []ipc.Event
	scanner := bufio.NewScanner(&output)
	for scanner.Scan() {
		ev, err := ipc.DecodeEvent(scanner.Bytes())
		if err != nil {
			t.Fatalf("worker wrote unparseable line %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

func TestWorkerAnnouncesStartup(t *testing.T) {
	events := runWorker(t, &memBackend{})
	if len(events) != 1 {
		t.Fatalf("expected only the startup status, got %d events", len(events))
	}
	if events[0].Type != ipc.EventConnectionStatus || events[0].Status != ipc.StatusDisconnected {
		t.Errorf("unexpected startup event: %+v", events[0])
	}
}

func TestWorkerListProfiles(t *testing.T) {
	backend := &memBackend{profiles: map[string]config.Profile{
		"home": {Hostname: "example.com"},
	}}
	events := runWorker(t, backend, ipc.Request{Type: ipc.RequestListProfiles})

	if len(events) != 2 {
		t.Fatalf("expected startup + list, got %d events", len(events))
	}
	list := events[1]
	if list.Type != ipc.EventProfilesList || len(list.Profiles) != 1 {
		t.Fatalf("unexpected list event: %+v", list)
	}
	// The worker fills names from map keys before sending.
	if list.Profiles["home"].Name != "home" {
		t.Errorf("name not filled: %+v", list.Profiles["home"])
	}
}

func TestWorkerAddSaveDelete(t *testing.T) {
	backend := &memBackend{}
	profile := config.Profile{
		Name:     "home",
		Hostname: "example.com",
		Forwards: []config.ForwardRule{{LocalPort: 8080, RemoteHost: "localhost", RemotePort: 80}},
	}

	events := runWorker(t, backend,
		ipc.Request{Type: ipc.RequestAddProfile, ProfileName: "home", Data: &profile},
		ipc.Request{Type: ipc.RequestSaveProfile, ProfileName: "home", Data: &profile},
		ipc.Request{Type: ipc.RequestDeleteProfile, ProfileName: "home"},
	)

	if len(events) != 4 {
		t.Fatalf("expected startup + 3 answers, got %d", len(events))
	}
	if events[1].Type != ipc.EventProfileSaved || !strings.Contains(events[1].Message, "added") {
		t.Errorf("unexpected add answer: %+v", events[1])
	}
	if events[2].Type != ipc.EventProfileSaved || !strings.Contains(events[2].Message, "saved") {
		t.Errorf("unexpected save answer: %+v", events[2])
	}
	if events[3].Type != ipc.EventProfileDeleted {
		t.Errorf("unexpected delete answer: %+v", events[3])
	}
	if len(backend.profiles) != 0 {
		t.Errorf("backend still holds %d profiles after delete", len(backend.profiles))
	}
}

func TestWorkerAddRejectsDuplicateAndInvalid(t *testing.T) {
	backend := &memBackend{profiles: map[string]config.Profile{
		"home": {Hostname: "example.com"},
	}}
	valid := config.Profile{Name: "home", Hostname: "example.com"}
	invalid := config.Profile{Name: "bad"}
	// An explicit port of 0 on the wire is invalid, not a default request.
	zeroPort := config.Profile{Name: "zero", Hostname: "example.com", Port: config.Port(0)}

	events := runWorker(t, backend,
		ipc.Request{Type: ipc.RequestAddProfile, ProfileName: "home", Data: &valid},
		ipc.Request{Type: ipc.RequestAddProfile, ProfileName: "bad", Data: &invalid},
		ipc.Request{Type: ipc.RequestAddProfile, ProfileName: "zero", Data: &zeroPort},
		ipc.Request{Type: ipc.RequestSaveProfile, ProfileName: "ghost", Data: &config.Profile{Name: "ghost", Hostname: "x"}},
	)

	if len(events) != 5 {
		t.Fatalf("expected startup + 4 errors, got %d", len(events))
	}
	for i, ev := range events[1:] {
		if ev.Type != ipc.EventError {
			t.Errorf("answer %d: expected error event, got %+v", i, ev)
		}
	}
}

func TestWorkerDetailRequests(t *testing.T) {
	backend := &memBackend{profiles: map[string]config.Profile{
		"home": {Hostname: "example.com", Port: config.Port(2222)},
	}}

	events := runWorker(t, backend,
		ipc.Request{Type: ipc.RequestProfileDetails, ProfileName: "home"},
		ipc.Request{Type: ipc.RequestProfileDetailsEdit, ProfileName: "home"},
		ipc.Request{Type: ipc.RequestProfileDetails, ProfileName: "nope"},
	)

	if len(events) != 4 {
		t.Fatalf("expected startup + 3 answers, got %d", len(events))
	}
	if events[1].Type != ipc.EventProfileDetails || events[1].ProfileName != "home" {
		t.Errorf("unexpected details answer: %+v", events[1])
	}
	if events[1].Profile == nil || events[1].Profile.EffectivePort() != 2222 {
		t.Errorf("details payload wrong: %+v", events[1].Profile)
	}
	if events[2].Type != ipc.EventProfileDetailsEdit || events[2].Profile == nil || events[2].Profile.Name != "home" {
		t.Errorf("unexpected edit answer: %+v", events[2])
	}
	if events[3].Type != ipc.EventError {
		t.Errorf("missing profile should produce an error event, got %+v", events[3])
	}
}

func TestWorkerProtocolErrors(t *testing.T) {
	var input bytes.Buffer
	input.WriteString("{broken json\n")
	line, _ := ipc.EncodeRequest(ipc.Request{Type: "reticulate_splines"})
	input.Write(line)

	var output bytes.Buffer
	w, err := New(&memBackend{}, &output)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Run(&input); err != nil {
		t.Fatalf("worker run: %v", err)
	}

	var events []ipc.Event
	scanner := bufio.NewScanner(&output)
	for scanner.Scan() {
		ev, err := ipc.DecodeEvent(scanner.Bytes())
		if err != nil {
			t.Fatalf("unparseable worker line: %v", err)
		}
		events = append(events, ev)
	}

	if len(events) != 3 {
		t.Fatalf("expected startup + 2 errors, got %d", len(events))
	}
	if events[1].Type != ipc.EventError || !strings.Contains(events[1].Message, "Invalid JSON") {
		t.Errorf("unexpected answer to broken line: %+v", events[1])
	}
	if events[2].Type != ipc.EventError || !strings.Contains(events[2].Message, "Unknown request type") {
		t.Errorf("unexpected answer to unknown type: %+v", events[2])
	}
}

func TestWorkerConnectMissingProfile(t *testing.T) {
	events := runWorker(t, &memBackend{},
		ipc.Request{Type: ipc.RequestConnect, ProfileName: "ghost"},
		ipc.Request{Type: ipc.RequestConnect},
	)

	if len(events) != 3 {
		t.Fatalf("expected startup + 2 answers, got %d", len(events))
	}
	if events[1].Type != ipc.EventConnectionStatus || !ipc.IsErrorStatus(events[1].Status) {
		t.Errorf("connect to missing profile should report an error status, got %+v", events[1])
	}
	if events[2].Type != ipc.EventError {
		t.Errorf("connect without a name should be a protocol error, got %+v", events[2])
	}
}

func TestWorkerDisconnectWithoutConnection(t *testing.T) {
	events := runWorker(t, &memBackend{}, ipc.Request{Type: ipc.RequestDisconnect})

	if len(events) != 2 {
		t.Fatalf("expected startup + answer, got %d", len(events))
	}
	if events[1].Type != ipc.EventConnectionStatus || events[1].Status != ipc.StatusDisconnected {
		t.Errorf("unexpected answer: %+v", events[1])
	}
}

func TestWorkerStartsEmptyOnLoadFailure(t *testing.T) {
	backend := &memBackend{loadErr: errors.New("corrupt database")}
	events := runWorker(t, backend, ipc.Request{Type: ipc.RequestListProfiles})

	if len(events) != 2 {
		t.Fatalf("expected startup + list, got %d", len(events))
	}
	if len(events[1].Profiles) != 0 {
		t.Errorf("expected empty set after load failure, got %+v", events[1].Profiles)
	}
}
