package config

import (
	"fmt"
	"strings"
)

// FieldError records a single validation violation, addressed by field so the
// UI can highlight the offending input. Forward rule fields are addressed as
// "forwards[i].local_port" etc.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError aggregates every violation found in a candidate profile.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid profile"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Reason)
	}
	return "invalid profile: " + strings.Join(parts, "; ")
}

// Has reports whether the given field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}

// ValidateProfile checks a candidate profile against the structural rules
// applied before create/update. Empty forward slots must already have been
// dropped (see Profile.CompleteForwards); a rule reaching the validator with
// any field populated must be fully populated and valid. Returns nil when the
// profile is acceptable.
func ValidateProfile(p Profile) *ValidationError {
	verr := &ValidationError{}

	if strings.TrimSpace(p.Name) == "" {
		verr.add("name", "profile name is required")
	}
	if strings.TrimSpace(p.Hostname) == "" {
		verr.add("hostname", "hostname is required")
	}
	// An absent port means "use default 22"; any present value, zero
	// included, must be a real port.
	if p.Port != nil && !validPort(*p.Port) {
		verr.add("port", "port must be between 1 and 65535")
	}

	for i, fwd := range p.Forwards {
		if fwd.IsEmpty() {
			// Callers drop empty slots before validating; tolerate them
			// here rather than failing the whole profile.
			continue
		}
		if !validPort(fwd.LocalPort) {
			verr.add(fmt.Sprintf("forwards[%d].local_port", i), "local port must be between 1 and 65535")
		}
		if strings.TrimSpace(fwd.RemoteHost) == "" {
			verr.add(fmt.Sprintf("forwards[%d].remote_host", i), "remote host is required")
		}
		if !validPort(fwd.RemotePort) {
			verr.add(fmt.Sprintf("forwards[%d].remote_port", i), "remote port must be between 1 and 65535")
		}
	}

	if len(verr.Fields) == 0 {
		return nil
	}
	return verr
}
