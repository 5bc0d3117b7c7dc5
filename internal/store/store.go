// Package store persists workflows in SQLite through database/sql.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a workflow ID does not exist.
var ErrNotFound = errors.New("workflow not found")

// Status is a workflow's lifecycle state.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusArchived:
		return true
	}
	return false
}

// Workflow is a row in the workflows table.
type Workflow struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Status        Status    `json:"status"`
	GeneratedText string    `json:"generated_text,omitempty"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ListOptions controls pagination and filtering for List.
type ListOptions struct {
	// Query filters by substring match over name and description.
	Query string

	// Page is 1-based. Values below 1 clamp to 1.
	Page int

	// PageSize defaults to 20 and caps at 100.
	PageSize int
}

// ListResult is one page of workflows with the total match count.
type ListResult struct {
	Items    []Workflow `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// DB is the workflow repository.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path.
// Foreign keys and WAL are enabled; the pool is capped at one writer
// because SQLite serializes writes anyway.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &DB{db: db}, nil
}

// Handle exposes the underlying database for collaborators that share the
// file (the SQL session store).
func (d *DB) Handle() *sql.DB {
	return d.db
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the schema if it does not exist.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			status         TEXT NOT NULL DEFAULT 'draft',
			generated_text TEXT NOT NULL DEFAULT '',
			created_by     TEXT NOT NULL,
			created_at     TIMESTAMP NOT NULL,
			updated_at     TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_updated ON workflows(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_workflows_name ON workflows(name)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate workflows: %w", err)
		}
	}
	return nil
}

// Create inserts a new workflow and returns it with ID and timestamps set.
func (d *DB) Create(ctx context.Context, name, description, createdBy string) (Workflow, error) {
	if strings.TrimSpace(name) == "" {
		return Workflow{}, fmt.Errorf("create workflow: name is required")
	}

	now := time.Now().UTC()
	w := Workflow{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Status:      StatusDraft,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, status, generated_text, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', ?, ?, ?)`,
		w.ID, w.Name, w.Description, w.Status, w.CreatedBy, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return Workflow{}, fmt.Errorf("create workflow: %w", err)
	}
	return w, nil
}

// Get returns the workflow with the given ID.
func (d *DB) Get(ctx context.Context, id string) (Workflow, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT id, name, description, status, generated_text, created_by, created_at, updated_at
		 FROM workflows WHERE id = ?`, id)
	return scanWorkflow(row)
}

// Update replaces a workflow's name, description and status.
func (d *DB) Update(ctx context.Context, id, name, description string, status Status) (Workflow, error) {
	if strings.TrimSpace(name) == "" {
		return Workflow{}, fmt.Errorf("update workflow: name is required")
	}
	if !status.Valid() {
		return Workflow{}, fmt.Errorf("update workflow: invalid status %q", status)
	}

	res, err := d.db.ExecContext(ctx,
		`UPDATE workflows SET name = ?, description = ?, status = ?, updated_at = ? WHERE id = ?`,
		name, description, status, time.Now().UTC(), id)
	if err != nil {
		return Workflow{}, fmt.Errorf("update workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Workflow{}, ErrNotFound
	}
	return d.Get(ctx, id)
}

// Delete removes a workflow.
func (d *DB) Delete(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetGeneratedText stores the AI-generated text for a workflow.
func (d *DB) SetGeneratedText(ctx context.Context, id, text string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE workflows SET generated_text = ?, updated_at = ? WHERE id = ?`,
		text, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set generated text: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of workflows, newest first, with the total count
// of rows matching the query.
func (d *DB) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.PageSize > 100 {
		opts.PageSize = 100
	}

	where := ""
	var args []any
	if opts.Query != "" {
		where = `WHERE name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\'`
		pattern := "%" + escapeLike(opts.Query) + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM workflows ` + where
	if err := d.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count workflows: %w", err)
	}

	listQuery := `SELECT id, name, description, status, generated_text, created_by, created_at, updated_at
		FROM workflows ` + where + ` ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`
	listArgs := append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)

	rows, err := d.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	result := ListResult{
		Items:    []Workflow{},
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.PageSize,
	}
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return ListResult{}, err
		}
		result.Items = append(result.Items, w)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("list workflows: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (Workflow, error) {
	var w Workflow
	err := row.Scan(&w.ID, &w.Name, &w.Description, &w.Status, &w.GeneratedText,
		&w.CreatedBy, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return Workflow{}, ErrNotFound
	}
	if err != nil {
		return Workflow{}, fmt.Errorf("scan workflow: %w", err)
	}
	return w, nil
}

// escapeLike escapes LIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
