package ipc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xlttj/sshfwd/pkg/config"
)

func TestEncodeRequestWireShape(t *testing.T) {
	profile := &config.Profile{
		Name:     "home",
		Hostname: "example.com",
		Forwards: []config.ForwardRule{{LocalPort: 8080, RemoteHost: "localhost", RemotePort: 80}},
	}
	line, err := EncodeRequest(Request{Type: RequestAddProfile, ProfileName: "home", Data: profile})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.HasSuffix(string(line), "\n") {
		t.Error("encoded request must be newline-terminated")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		t.Fatalf("not a JSON object: %v", err)
	}
	for _, key := range []string{"type", "profile_name", "data"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing wire field %q in %s", key, line)
		}
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw["data"], &data); err != nil {
		t.Fatalf("data payload not an object: %v", err)
	}
	var fwds []map[string]json.RawMessage
	if err := json.Unmarshal(data["forwards"], &fwds); err != nil {
		t.Fatalf("forwards payload: %v", err)
	}
	for _, key := range []string{"local_port", "remote_host", "remote_port"} {
		if _, ok := fwds[0][key]; !ok {
			t.Errorf("missing forward field %q", key)
		}
	}
}

func TestEncodeRequestOmitsEmptyFields(t *testing.T) {
	line, err := EncodeRequest(Request{Type: RequestListProfiles})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	text := strings.TrimSpace(string(line))
	if text != `{"type":"list_profiles"}` {
		t.Errorf("unexpected wire form: %s", text)
	}
}

func TestDecodeEventProfilesList(t *testing.T) {
	line := `{"type": "profiles_list", "data": {"home": {"name": "stale", "hostname": "h1"}, "work": {"hostname": "h2"}}}`
	ev, err := DecodeEvent([]byte(line))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if ev.Type != EventProfilesList {
		t.Errorf("type = %q", ev.Type)
	}
	if len(ev.Profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(ev.Profiles))
	}
	// Map keys win over embedded names.
	if ev.Profiles["home"].Name != "home" || ev.Profiles["work"].Name != "work" {
		t.Errorf("names not normalized: %+v", ev.Profiles)
	}
}

func TestDecodeEventConnectionStatus(t *testing.T) {
	line := `{"type": "connection_status", "status": "Connected", "message": "Successfully connected to home."}`
	ev, err := DecodeEvent([]byte(line))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if ev.Status != StatusConnected || ev.Message != "Successfully connected to home." {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestDecodeEventProfileDetails(t *testing.T) {
	line := `{"type": "profile_details", "profile_name": "home", "data": {"hostname": "example.com", "port": 22}}`
	ev, err := DecodeEvent([]byte(line))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if ev.Profile == nil || ev.Profile.Hostname != "example.com" {
		t.Fatalf("profile payload missing: %+v", ev)
	}
	// The envelope profile_name fills an absent embedded name.
	if ev.Profile.Name != "home" {
		t.Errorf("name = %q", ev.Profile.Name)
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"not json", "{nope"},
		{"missing type", `{"status": "Connected"}`},
		{"wrong data shape", `{"type": "profile_details", "data": [1, 2]}`},
		{"details without data", `{"type": "profile_details_for_edit"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeEvent([]byte(tc.line)); err == nil {
				t.Errorf("expected decode error for %s", tc.line)
			}
		})
	}
}

func TestDecodeEventUnknownTypeTolerated(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type": "metrics_report", "message": "ignored"}`))
	if err != nil {
		t.Fatalf("unknown type should decode, got %v", err)
	}
	if ev.Type != "metrics_report" {
		t.Errorf("type = %q", ev.Type)
	}
}

func TestEventRoundTrip(t *testing.T) {
	profiles := map[string]config.Profile{
		"home": {
			Name:     "home",
			Hostname: "example.com",
			Forwards: []config.ForwardRule{
				{LocalPort: 8080, RemoteHost: "localhost", RemotePort: 80},
				{LocalPort: 9090, RemoteHost: "db", RemotePort: 5432},
			},
		},
	}
	line, err := EncodeEvent(Event{Type: EventProfilesList, Profiles: profiles})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	ev, err := DecodeEvent(line)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	got := ev.Profiles["home"].Forwards
	if len(got) != 2 || got[0].LocalPort != 8080 || got[1].LocalPort != 9090 {
		t.Errorf("forward order lost in transit: %+v", got)
	}
}

func TestRequestRoundTrip(t *testing.T) {
	line, err := EncodeRequest(Request{Type: RequestConnect, ProfileName: "home"})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	req, err := DecodeRequest(line)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if req.Type != RequestConnect || req.ProfileName != "home" {
		t.Errorf("unexpected request: %+v", req)
	}

	if _, err := DecodeRequest([]byte(`{"profile_name": "home"}`)); err == nil {
		t.Error("request without type should fail")
	}
}

func TestErrorStatusMatching(t *testing.T) {
	if !IsErrorStatus("Error") || !IsErrorStatus("Error: SSH connection failed") {
		t.Error("error statuses not recognized")
	}
	for _, status := range []string{StatusConnecting, StatusConnected, StatusDisconnecting, StatusDisconnected} {
		if IsErrorStatus(status) {
			t.Errorf("%q misclassified as error", status)
		}
	}
	if got := ErrorStatus("exit code 255"); got != "Error: exit code 255" {
		t.Errorf("ErrorStatus = %q", got)
	}
	if got := ErrorStatus(""); got != "Error" {
		t.Errorf("ErrorStatus empty = %q", got)
	}
}
