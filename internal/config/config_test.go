package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Addr: got %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.UI.SearchDebounceMS != DefaultSearchDebounceMS {
		t.Errorf("SearchDebounceMS: got %d, want %d", cfg.UI.SearchDebounceMS, DefaultSearchDebounceMS)
	}
	if cfg.Session.Backend != "memory" {
		t.Errorf("Session.Backend: got %q, want memory", cfg.Session.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate defaults: %v", err)
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Database.Path != DefaultDatabasePath {
		t.Errorf("Database.Path: got %q, want default", cfg.Database.Path)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowdeck.json")
	body := `{
		"server": {"addr": ":9090"},
		"engine": {"url": "https://engine.example.com", "key": "ek_test"},
		"ui": {"page_size": 50},
		"session": {"backend": "sql"}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr: got %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Engine.URL != "https://engine.example.com" || cfg.Engine.Key != "ek_test" {
		t.Errorf("Engine: got %+v", cfg.Engine)
	}
	if cfg.UI.PageSize != 50 {
		t.Errorf("PageSize: got %d, want 50", cfg.UI.PageSize)
	}
	// Unset fields backfill from defaults.
	if cfg.UI.SearchDebounceMS != DefaultSearchDebounceMS {
		t.Errorf("SearchDebounceMS: got %d, want default", cfg.UI.SearchDebounceMS)
	}
	if cfg.Session.Backend != "sql" {
		t.Errorf("Session.Backend: got %q, want sql", cfg.Session.Backend)
	}
}

func TestLoadFromMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowdeck.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom malformed file: expected error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLOWDECK_ADDR", ":7777")
	t.Setenv("FLOWDECK_ENGINE_URL", "https://env.example.com")
	t.Setenv("FLOWDECK_WORKERS", "8")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Errorf("Addr: got %q, want :7777", cfg.Server.Addr)
	}
	if cfg.Engine.URL != "https://env.example.com" {
		t.Errorf("Engine.URL: got %q", cfg.Engine.URL)
	}
	if cfg.Jobs.Workers != 8 {
		t.Errorf("Workers: got %d, want 8", cfg.Jobs.Workers)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Session.Backend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate: expected error for unknown backend")
	}
}
