package config

// ForwardRule is a single local-to-remote tunnel mapping belonging to one
// profile. It corresponds to an OpenSSH "-L local_port:remote_host:remote_port"
// argument. JSON field names are the wire contract with the worker process
// and must not change.
type ForwardRule struct {
	LocalPort  int    `json:"local_port"`
	RemoteHost string `json:"remote_host"`
	RemotePort int    `json:"remote_port"`
}

// IsEmpty reports whether no field of the rule has been populated.
// Empty rule slots come from untouched form rows and are dropped before
// validation rather than treated as errors.
func (f ForwardRule) IsEmpty() bool {
	return f.LocalPort == 0 && f.RemoteHost == "" && f.RemotePort == 0
}

// Profile represents a named SSH connection definition persisted by the store.
// Runtime connection status is managed by the session, not stored here.
//
// Port is a pointer so that a profile with no port (use the default) stays
// distinct from one carrying an explicit value: "port": 0 on the wire is a
// present, invalid port, not a request for the default.
type Profile struct {
	Name     string        `json:"name"`
	Hostname string        `json:"hostname"`
	Username string        `json:"username"`
	Port     *int          `json:"port,omitempty"`
	Forwards []ForwardRule `json:"forwards"`
}

// DefaultSSHPort is applied when a profile leaves the port unset.
const DefaultSSHPort = 22

// Port returns a pointer to v, for populating Profile.Port.
func Port(v int) *int {
	return &v
}

// EffectivePort returns the profile's port, falling back to 22 when unset.
func (p Profile) EffectivePort() int {
	if p.Port == nil {
		return DefaultSSHPort
	}
	return *p.Port
}

// CompleteForwards returns the forwards sequence with empty slots removed,
// order preserved. Partially filled rules are kept; the validator rejects
// those rather than silently dropping them.
func (p Profile) CompleteForwards() []ForwardRule {
	var out []ForwardRule
	for _, fwd := range p.Forwards {
		if !fwd.IsEmpty() {
			out = append(out, fwd)
		}
	}
	return out
}

// Clone returns a deep copy so callers can mutate form state without
// aliasing store-owned data.
func (p Profile) Clone() Profile {
	clone := p
	if p.Port != nil {
		port := *p.Port
		clone.Port = &port
	}
	if p.Forwards != nil {
		clone.Forwards = make([]ForwardRule, len(p.Forwards))
		copy(clone.Forwards, p.Forwards)
	}
	return clone
}
