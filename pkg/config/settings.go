package config

import (
	"fmt"
	"os"

	"github.com/xlttj/sshfwd/pkg/logging"

	"gopkg.in/yaml.v3"
)

// SettingsFilePath is the application settings file (not the profile data).
const SettingsFilePath = "~/.sshfwd/config.yaml"

// Store backend names accepted in the settings file.
const (
	StoreSQLite = "sqlite"
	StoreJSON   = "json"
)

// Settings holds application-level configuration. Profile data itself lives
// in the selected Backend, never here.
type Settings struct {
	// Store selects the persistence backend: "sqlite" (default) or "json".
	Store string `yaml:"store"`
	// ProfilesFile overrides the json backend's file location.
	ProfilesFile string `yaml:"profiles_file"`
	// WorkerCommand overrides the worker process invocation. Empty means
	// re-exec this binary with the "worker" subcommand. The command must
	// speak the line-JSON protocol on stdin/stdout.
	WorkerCommand []string `yaml:"worker_command"`
}

// LoadSettings reads the settings file, returning defaults when it does not
// exist. A malformed file is an error: silently ignoring it would mask typos.
func LoadSettings() (Settings, error) {
	return loadSettingsFrom(SettingsFilePath)
}

func loadSettingsFrom(path string) (Settings, error) {
	var settings Settings

	expanded, err := expandHomeDir(path)
	if err != nil {
		return settings, fmt.Errorf("failed to resolve settings path: %w", err)
	}

	data, err := os.ReadFile(expanded)
	if os.IsNotExist(err) {
		logging.LogDebug("Settings file %s does not exist, using defaults", expanded)
		return settings, nil
	} else if err != nil {
		return settings, fmt.Errorf("failed to read settings file %s: %w", expanded, err)
	}

	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("failed to unmarshal settings file %s: %w", expanded, err)
	}

	logging.LogDebug("Loaded settings from %s (store=%s)", expanded, settings.Store)
	return settings, nil
}
