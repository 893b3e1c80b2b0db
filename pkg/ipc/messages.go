// Package ipc defines the line-oriented JSON protocol spoken between the
// coordinator and the worker process, and the client that drives it.
//
// The wire format is one JSON object per line, newline-terminated, UTF-8, in
// both directions. Every object carries a "type" discriminator plus
// kind-specific fields: "profile_name", "data", "message", "status". There
// are no request/response correlation IDs; responses are matched to requests
// by kind and by current session state only.
package ipc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xlttj/sshfwd/pkg/config"
)

// RequestType enumerates the outbound (coordinator -> worker) message kinds.
type RequestType string

const (
	RequestListProfiles       RequestType = "list_profiles"
	RequestProfileDetails     RequestType = "get_profile_details"
	RequestProfileDetailsEdit RequestType = "get_profile_details_for_edit"
	RequestAddProfile         RequestType = "add_profile"
	RequestSaveProfile        RequestType = "save_profile"
	RequestDeleteProfile      RequestType = "delete_profile"
	RequestConnect            RequestType = "connect"
	RequestDisconnect         RequestType = "disconnect"
)

// Request is an outbound protocol message. ProfileName and Data are present
// only for the kinds that carry them.
type Request struct {
	Type        RequestType     `json:"type"`
	ProfileName string          `json:"profile_name,omitempty"`
	Data        *config.Profile `json:"data,omitempty"`
}

// EventType enumerates the inbound (worker -> coordinator) message kinds.
type EventType string

const (
	EventProfilesList       EventType = "profiles_list"
	EventProfileSaved       EventType = "profile_saved"
	EventProfileDeleted     EventType = "profile_deleted"
	EventConnectionStatus   EventType = "connection_status"
	EventProfileDetails     EventType = "profile_details"
	EventProfileDetailsEdit EventType = "profile_details_for_edit"
	EventError              EventType = "error"
)

// Connection status strings carried by connection_status events. The error
// status is prefix-matched: the worker reports "Error: <detail>" (the
// original backend reported a bare "Error" with the detail in message).
const (
	StatusConnecting    = "Connecting..."
	StatusConnected     = "Connected"
	StatusDisconnecting = "Disconnecting..."
	StatusDisconnected  = "Disconnected"
	statusErrorPrefix   = "Error"
)

// IsErrorStatus reports whether a connection_status status string denotes a
// connection failure.
func IsErrorStatus(status string) bool {
	return strings.HasPrefix(status, statusErrorPrefix)
}

// ErrorStatus formats the error status string for a failure detail.
func ErrorStatus(detail string) string {
	if detail == "" {
		return statusErrorPrefix
	}
	return statusErrorPrefix + ": " + detail
}

// Event is a decoded inbound protocol message. Exactly the fields matching
// the Type are populated:
//
//	profiles_list             Profiles
//	profile_saved/deleted     Message
//	connection_status         Status, Message
//	profile_details           ProfileName, Profile
//	profile_details_for_edit  Profile (name embedded in data)
//	error                     Message
type Event struct {
	Type        EventType
	ProfileName string
	Profiles    map[string]config.Profile
	Profile     *config.Profile
	Status      string
	Message     string
}

// eventEnvelope is the raw wire shape of an inbound line.
type eventEnvelope struct {
	Type        EventType       `json:"type"`
	ProfileName string          `json:"profile_name"`
	Data        json.RawMessage `json:"data"`
	Message     string          `json:"message"`
	Status      string          `json:"status"`
}

// DecodeEvent parses one inbound protocol line. A line that is not a JSON
// object, or whose data payload does not match its kind, is an error the
// reader logs and skips; the stream keeps being read. Unknown types decode
// successfully so the router can log and ignore them (forward-compatible).
func DecodeEvent(line []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Event{}, fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == "" {
		return Event{}, fmt.Errorf("malformed message: missing type discriminator")
	}

	ev := Event{
		Type:        env.Type,
		ProfileName: env.ProfileName,
		Status:      env.Status,
		Message:     env.Message,
	}

	switch env.Type {
	case EventProfilesList:
		profiles := make(map[string]config.Profile)
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &profiles); err != nil {
				return Event{}, fmt.Errorf("malformed profiles_list data: %w", err)
			}
		}
		// Map keys are authoritative for profile names.
		for name, p := range profiles {
			p.Name = name
			profiles[name] = p
		}
		ev.Profiles = profiles

	case EventProfileDetails, EventProfileDetailsEdit:
		if len(env.Data) == 0 {
			return Event{}, fmt.Errorf("malformed %s: missing data", env.Type)
		}
		var p config.Profile
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return Event{}, fmt.Errorf("malformed %s data: %w", env.Type, err)
		}
		if p.Name == "" {
			p.Name = env.ProfileName
		}
		ev.Profile = &p

	case EventProfileSaved, EventProfileDeleted, EventConnectionStatus, EventError:
		// Envelope fields already carry everything.

	default:
		// Unrecognized kind: decoded as-is, router logs and ignores.
	}

	return ev, nil
}

// EncodeRequest serializes an outbound request as one newline-terminated
// JSON line.
func EncodeRequest(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", req.Type, err)
	}
	return append(data, '\n'), nil
}

// The worker side speaks the same wire format in the opposite direction.

// DecodeRequest parses one line read from the worker's stdin.
func DecodeRequest(line []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{}, fmt.Errorf("malformed request: %w", err)
	}
	if req.Type == "" {
		return Request{}, fmt.Errorf("malformed request: missing type discriminator")
	}
	return req, nil
}

// EncodeEvent serializes an inbound-direction message as one
// newline-terminated JSON line, for the worker to write to stdout.
func EncodeEvent(ev Event) ([]byte, error) {
	env := struct {
		Type        EventType   `json:"type"`
		ProfileName string      `json:"profile_name,omitempty"`
		Data        interface{} `json:"data,omitempty"`
		Message     string      `json:"message,omitempty"`
		Status      string      `json:"status,omitempty"`
	}{
		Type:        ev.Type,
		ProfileName: ev.ProfileName,
		Message:     ev.Message,
		Status:      ev.Status,
	}
	switch {
	case ev.Profiles != nil:
		env.Data = ev.Profiles
	case ev.Profile != nil:
		env.Data = ev.Profile
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", ev.Type, err)
	}
	return append(data, '\n'), nil
}
