package config

import (
	"os"
	"path/filepath"
	"testing"
)

func backendFixture() map[string]Profile {
	return map[string]Profile{
		"home": {
			Name:     "home",
			Hostname: "home.example.com",
			Username: "pi",
			Port:     Port(22),
			Forwards: []ForwardRule{
				{LocalPort: 8080, RemoteHost: "localhost", RemotePort: 80},
				{LocalPort: 5432, RemoteHost: "db.internal", RemotePort: 5432},
			},
		},
		"work": {
			Name:     "work",
			Hostname: "bastion.corp",
			Port:     Port(2222),
		},
		"lab": {
			Name:     "lab",
			Hostname: "lab.example.com",
		},
	}
}

func checkRoundTrip(t *testing.T, backend Backend) {
	t.Helper()

	if err := backend.SaveAll(backendFixture()); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := backend.LoadAll()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected 3 profiles, got %d", len(loaded))
	}

	home := loaded["home"]
	if home.Hostname != "home.example.com" || home.Username != "pi" {
		t.Errorf("unexpected home profile: %+v", home)
	}
	if len(home.Forwards) != 2 {
		t.Fatalf("expected 2 forwards, got %d", len(home.Forwards))
	}
	// Forward order survives persistence.
	if home.Forwards[0].LocalPort != 8080 || home.Forwards[1].LocalPort != 5432 {
		t.Errorf("forward order lost: %+v", home.Forwards)
	}

	work := loaded["work"]
	if work.EffectivePort() != 2222 || len(work.Forwards) != 0 {
		t.Errorf("unexpected work profile: %+v", work)
	}

	// An absent port stays absent; persistence does not rewrite it to 22.
	if lab := loaded["lab"]; lab.Port != nil {
		t.Errorf("absent port became %d", *lab.Port)
	}
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	backend, err := NewSQLiteBackendAt(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite backend: %v", err)
	}
	defer backend.Close()

	checkRoundTrip(t, backend)

	// SaveAll replaces the previous set entirely.
	if err := backend.SaveAll(map[string]Profile{}); err != nil {
		t.Fatalf("save of empty set failed: %v", err)
	}
	loaded, err := backend.LoadAll()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty set, got %d profiles", len(loaded))
	}
}

func TestJSONBackendRoundTrip(t *testing.T) {
	backend, err := NewJSONBackend(filepath.Join(t.TempDir(), "profiles.json"))
	if err != nil {
		t.Fatalf("failed to create json backend: %v", err)
	}
	defer backend.Close()

	checkRoundTrip(t, backend)
}

func TestJSONBackendMissingFile(t *testing.T) {
	backend, err := NewJSONBackend(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("failed to create json backend: %v", err)
	}
	loaded, err := backend.LoadAll()
	if err != nil {
		t.Fatalf("load of missing file failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty set from missing file, got %d", len(loaded))
	}
}

func TestJSONBackendCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	backend, err := NewJSONBackend(path)
	if err != nil {
		t.Fatalf("failed to create json backend: %v", err)
	}

	// A corrupt file starts the manager with an empty set instead of failing.
	loaded, err := backend.LoadAll()
	if err != nil {
		t.Fatalf("load of corrupt file failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty set from corrupt file, got %d", len(loaded))
	}
}

func TestJSONBackendMapKeysAuthoritative(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	content := `{"renamed": {"name": "stale", "hostname": "example.com"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	backend, err := NewJSONBackend(path)
	if err != nil {
		t.Fatalf("failed to create json backend: %v", err)
	}

	loaded, err := backend.LoadAll()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	p, ok := loaded["renamed"]
	if !ok {
		t.Fatalf("expected profile under map key, got %v", loaded)
	}
	if p.Name != "renamed" {
		t.Errorf("map key should override embedded name, got %q", p.Name)
	}
}

func TestSettingsDefaults(t *testing.T) {
	settings, err := loadSettingsFrom(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("missing settings file should yield defaults: %v", err)
	}
	if settings.Store != "" && settings.Store != StoreSQLite {
		t.Errorf("unexpected default store: %q", settings.Store)
	}

	backend, err := NewBackend(Settings{Store: "carrier-pigeon"})
	if err == nil {
		backend.Close()
		t.Error("expected error for unknown store backend")
	}
}

func TestSettingsParsing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "store: json\nprofiles_file: /tmp/p.json\nworker_command: [/usr/local/bin/sshfwd, worker]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err := loadSettingsFrom(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if settings.Store != StoreJSON {
		t.Errorf("store = %q, want %q", settings.Store, StoreJSON)
	}
	if settings.ProfilesFile != "/tmp/p.json" {
		t.Errorf("profiles_file = %q", settings.ProfilesFile)
	}
	if len(settings.WorkerCommand) != 2 || settings.WorkerCommand[1] != "worker" {
		t.Errorf("worker_command = %v", settings.WorkerCommand)
	}
}
