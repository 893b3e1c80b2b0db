package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xlttj/sshfwd/pkg/logging"
)

// DefaultProfilesFile is the JSON profile file used when the settings select
// the json backend without naming a path.
const DefaultProfilesFile = "~/.sshfwd/ssh_profiles.json"

// JSONBackend persists the profile set as a single JSON object keyed by
// profile name, the format the worker also reads.
type JSONBackend struct {
	filePath string
}

// NewJSONBackend creates a JSON-file backend at the given path (~ expanded).
func NewJSONBackend(path string) (*JSONBackend, error) {
	if path == "" {
		path = DefaultProfilesFile
	}
	expanded, err := expandHomeDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profiles path: %w", err)
	}
	if err := ensureConfigDir(expanded); err != nil {
		return nil, err
	}
	return &JSONBackend{filePath: expanded}, nil
}

// Path returns the resolved profiles file path.
func (b *JSONBackend) Path() string { return b.filePath }

// Close is a no-op; the file is opened per operation.
func (b *JSONBackend) Close() error { return nil }

// LoadAll reads the profile map from disk. A missing, empty or corrupted
// file yields an empty set rather than an error so a bad file never blocks
// startup; corruption is logged.
func (b *JSONBackend) LoadAll() (map[string]Profile, error) {
	data, err := os.ReadFile(b.filePath)
	if os.IsNotExist(err) {
		logging.LogDebug("Profiles file %s does not exist, starting empty", b.filePath)
		return map[string]Profile{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read profiles file %s: %w", b.filePath, err)
	}

	if len(data) == 0 {
		return map[string]Profile{}, nil
	}

	profiles := make(map[string]Profile)
	if err := json.Unmarshal(data, &profiles); err != nil {
		logging.LogError("Could not decode %s, resetting profiles: %v", b.filePath, err)
		return map[string]Profile{}, nil
	}

	// The file keys are authoritative for names; embedded name fields may be
	// stale copies from older writers.
	for name, p := range profiles {
		if p.Name != name {
			p.Name = name
			profiles[name] = p
		}
	}

	logging.LogDebug("Loaded %d profiles from %s", len(profiles), b.filePath)
	return profiles, nil
}

// SaveAll writes the profile map atomically (temp file + rename).
func (b *JSONBackend) SaveAll(profiles map[string]Profile) error {
	data, err := json.MarshalIndent(profiles, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}

	tmp := b.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write profiles file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, b.filePath); err != nil {
		return fmt.Errorf("failed to replace profiles file %s: %w", b.filePath, err)
	}

	logging.LogDebug("Saved %d profiles to %s", len(profiles), b.filePath)
	return nil
}

// expandHomeDir replaces the leading ~ with the user's home directory
func expandHomeDir(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, path[1:]), nil
}

// ensureConfigDir ensures the directory containing path exists
func ensureConfigDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}
