package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore is a SQL-backed session store. It works with any database/sql
// compatible driver; flowdeck runs it on SQLite. Schema:
//
//	CREATE TABLE flowdeck_sessions (
//	    id         TEXT PRIMARY KEY,
//	    data       BLOB NOT NULL,
//	    expires_at TIMESTAMP NOT NULL
//	);
//	CREATE INDEX idx_flowdeck_sessions_expires ON flowdeck_sessions(expires_at);
type SQLStore struct {
	db        *sql.DB
	tableName string
	done      chan struct{}
	closed    bool
}

// SQLStoreOption configures a SQLStore.
type SQLStoreOption func(*sqlStoreConfig)

type sqlStoreConfig struct {
	tableName       string
	cleanupInterval time.Duration
}

// WithTableName sets the session table name. Default: "flowdeck_sessions".
func WithTableName(name string) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.tableName = name
	}
}

// WithCleanupInterval sets how often expired rows are purged.
// Default: 5 minutes. Zero disables the background cleanup.
func WithCleanupInterval(d time.Duration) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.cleanupInterval = d
	}
}

// NewSQLStore creates a SQL-backed session store on an open database handle.
// The store does not own the handle; Close stops the cleanup goroutine but
// leaves the database open.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	cfg := sqlStoreConfig{
		tableName:       "flowdeck_sessions",
		cleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &SQLStore{
		db:        db,
		tableName: cfg.tableName,
		done:      make(chan struct{}),
	}
	if cfg.cleanupInterval > 0 {
		go s.cleanup(cfg.cleanupInterval)
	}
	return s
}

// Migrate creates the session table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`, s.tableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at)`,
			s.tableName, s.tableName),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sessions: %w", err)
		}
	}
	return nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, data, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at`,
		s.tableName)
	if _, err := s.db.ExecContext(ctx, query, sessionID, data, expiresAt.UTC()); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = ? AND expires_at > ?`, s.tableName)
	var data []byte
	err := s.db.QueryRowContext(ctx, query, sessionID, time.Now().UTC()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return data, nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Touch implements Store.
func (s *SQLStore) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET expires_at = ? WHERE id = ?`, s.tableName)
	if _, err := s.db.ExecContext(ctx, query, expiresAt.UTC(), sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// Close implements Store. Stops the cleanup goroutine; idempotent.
func (s *SQLStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

// cleanup purges expired rows until the store closes.
func (s *SQLStore) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= ?`, s.tableName)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, _ = s.db.ExecContext(ctx, query, time.Now().UTC())
			cancel()
		}
	}
}
