// Package config loads flowdeck.json and applies environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "flowdeck.json"

	// DefaultAddr is the default listen address.
	DefaultAddr = "localhost:3000"

	// DefaultDatabasePath is the default SQLite database location.
	DefaultDatabasePath = "flowdeck.db"

	// DefaultSearchDebounceMS is the search input debounce interval.
	DefaultSearchDebounceMS = 500

	// DefaultPageSize is the workflow list page size.
	DefaultPageSize = 20

	// DefaultSessionTTLMinutes is the session lifetime.
	DefaultSessionTTLMinutes = 24 * 60

	// DefaultWorkers is the background job worker count.
	DefaultWorkers = 4

	// DefaultQueueSize is the background job queue depth.
	DefaultQueueSize = 64

	// DefaultAIModel is the Gemini model used for text generation.
	DefaultAIModel = "gemini-2.0-flash"
)

// Config is the complete flowdeck.json configuration.
type Config struct {
	Server   ServerConfig   `json:"server,omitempty"`
	Database DatabaseConfig `json:"database,omitempty"`
	Auth     AuthConfig     `json:"auth,omitempty"`
	Session  SessionConfig  `json:"session,omitempty"`
	Engine   EngineConfig   `json:"engine,omitempty"`
	AI       AIConfig       `json:"ai,omitempty"`
	Archive  ArchiveConfig  `json:"archive,omitempty"`
	Jobs     JobsConfig     `json:"jobs,omitempty"`
	UI       UIConfig       `json:"ui,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address, e.g. "localhost:3000" or ":8080".
	Addr string `json:"addr,omitempty"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the SQLite database file.
	Path string `json:"path,omitempty"`
}

// AuthConfig configures the external auth service.
type AuthConfig struct {
	// ServiceURL is the base URL of the auth service.
	ServiceURL string `json:"service_url,omitempty"`

	// SecureCookies marks session cookies Secure. Enable behind TLS.
	SecureCookies bool `json:"secure_cookies,omitempty"`
}

// SessionConfig configures session persistence.
type SessionConfig struct {
	// Backend selects the session store: "memory" (default) or "sql".
	Backend string `json:"backend,omitempty"`

	// TTLMinutes is the session lifetime in minutes.
	TTLMinutes int `json:"ttl_minutes,omitempty"`
}

// EngineConfig configures the external workflow engine.
type EngineConfig struct {
	// URL is the engine's event ingestion base URL.
	URL string `json:"url,omitempty"`

	// Key is the event key appended to the ingestion path.
	Key string `json:"key,omitempty"`
}

// AIConfig configures text generation.
type AIConfig struct {
	// Model is the Gemini model name.
	Model string `json:"model,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	// Default: "GEMINI_API_KEY". The key itself never lives in the file.
	APIKeyEnv string `json:"api_key_env,omitempty"`
}

// ArchiveConfig configures S3 archival of generated text.
// An empty bucket disables archival.
type ArchiveConfig struct {
	Bucket string `json:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	Region string `json:"region,omitempty"`
}

// JobsConfig configures the background job dispatcher.
type JobsConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`
}

// UIConfig configures dashboard behavior.
type UIConfig struct {
	// SearchDebounceMS is the quiet period before a search keystroke
	// commits to the URL, in milliseconds.
	SearchDebounceMS int `json:"search_debounce_ms,omitempty"`

	// PageSize is the workflow list page size.
	PageSize int `json:"page_size,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: DefaultAddr},
		Database: DatabaseConfig{Path: DefaultDatabasePath},
		Session:  SessionConfig{Backend: "memory", TTLMinutes: DefaultSessionTTLMinutes},
		AI:       AIConfig{Model: DefaultAIModel, APIKeyEnv: "GEMINI_API_KEY"},
		Jobs:     JobsConfig{Workers: DefaultWorkers, QueueSize: DefaultQueueSize},
		UI:       UIConfig{SearchDebounceMS: DefaultSearchDebounceMS, PageSize: DefaultPageSize},
	}
}

// Load reads flowdeck.json from the working directory. A missing file is
// not an error; defaults (plus env overrides) apply.
func Load() (*Config, error) {
	return LoadFrom(ConfigFileName)
}

// LoadFrom reads configuration from the given path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.normalize()
	cfg.applyEnv()
	return cfg, nil
}

// normalize backfills zero values the JSON file may have cleared.
func (c *Config) normalize() {
	d := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Database.Path == "" {
		c.Database.Path = d.Database.Path
	}
	if c.Session.Backend == "" {
		c.Session.Backend = d.Session.Backend
	}
	if c.Session.TTLMinutes <= 0 {
		c.Session.TTLMinutes = d.Session.TTLMinutes
	}
	if c.AI.Model == "" {
		c.AI.Model = d.AI.Model
	}
	if c.AI.APIKeyEnv == "" {
		c.AI.APIKeyEnv = d.AI.APIKeyEnv
	}
	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = d.Jobs.Workers
	}
	if c.Jobs.QueueSize <= 0 {
		c.Jobs.QueueSize = d.Jobs.QueueSize
	}
	if c.UI.SearchDebounceMS <= 0 {
		c.UI.SearchDebounceMS = d.UI.SearchDebounceMS
	}
	if c.UI.PageSize <= 0 {
		c.UI.PageSize = d.UI.PageSize
	}
}

// applyEnv overlays FLOWDECK_* environment variables. Env wins over file.
func (c *Config) applyEnv() {
	if v := os.Getenv("FLOWDECK_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("FLOWDECK_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("FLOWDECK_AUTH_URL"); v != "" {
		c.Auth.ServiceURL = v
	}
	if v := os.Getenv("FLOWDECK_ENGINE_URL"); v != "" {
		c.Engine.URL = v
	}
	if v := os.Getenv("FLOWDECK_ENGINE_KEY"); v != "" {
		c.Engine.Key = v
	}
	if v := os.Getenv("FLOWDECK_AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv("FLOWDECK_ARCHIVE_BUCKET"); v != "" {
		c.Archive.Bucket = v
	}
	if v := os.Getenv("FLOWDECK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Jobs.Workers = n
		}
	}
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Session.Backend != "memory" && c.Session.Backend != "sql" {
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}
	return nil
}
