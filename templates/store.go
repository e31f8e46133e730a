// Package templates stores prompt templates in SQLite. Names are unique among
// live templates; identity is a UUID assigned on creation.
package templates

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/PTX/db"
	"github.com/teranos/PTX/errors"
)

// Template is a named prompt template
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Meta is the listing view of a template
type Meta struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Update carries optional changes; nil fields are left as they are
type Update struct {
	Name    *string `json:"name"`
	Content *string `json:"content"`
}

// Store handles persistence of templates
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a template store over a migrated database
func NewStore(conn *sql.DB) *Store {
	return &Store{db: conn, now: time.Now}
}

// ValidateName rejects empty names and names containing path separators
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewInvalidInputf("template name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return errors.NewInvalidInputf("template name cannot contain slashes")
	}
	return nil
}

// Create stores a new template under a fresh id
func (s *Store) Create(ctx context.Context, name, content string) (*Template, error) {
	t := &Template{ID: uuid.NewString(), Name: name, Content: content}
	if err := s.Put(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Put inserts t, or replaces the name and content of the template with t.ID.
func (s *Store) Put(ctx context.Context, t *Template) error {
	if err := ValidateName(t.Name); err != nil {
		return err
	}
	now := s.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (id, name, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			content = excluded.content,
			updated_at = excluded.updated_at`,
		t.ID, t.Name, t.Content, t.CreatedAt, t.UpdatedAt)
	return s.writeErr(err, t.ID, t.Name)
}

// Get returns the template with id
func (s *Store) Get(ctx context.Context, id string) (*Template, error) {
	var t Template
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, content, created_at, updated_at FROM templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Content, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrTemplateNotFound, "template %s", id)
	}
	if err != nil {
		return nil, errors.WithDetail(errors.StorageIO(err, "failed to read template"), "Template ID: "+id)
	}
	return &t, nil
}

// Content returns only the template source text
func (s *Store) Content(ctx context.Context, id string) (string, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return t.Content, nil
}

// Update applies the non-nil fields of u and returns the updated template
func (s *Store) Update(ctx context.Context, id string, u Update) (*Template, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Content != nil {
		t.Content = *u.Content
	}
	if err := s.Put(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Rename changes a template's name
func (s *Store) Rename(ctx context.Context, id, newName string) error {
	_, err := s.Update(ctx, id, Update{Name: &newName})
	return err
}

// Delete removes a template. Deleting a missing template is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	return errors.StorageIO(err, "failed to delete template")
}

// List returns all templates ordered by name
func (s *Store) List(ctx context.Context) ([]Meta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM templates ORDER BY name, id`)
	if err != nil {
		return nil, errors.StorageIO(err, "failed to list templates")
	}
	defer rows.Close()

	metas := []Meta{}
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, errors.StorageIO(err, "failed to scan template")
		}
		metas = append(metas, m)
	}
	return metas, errors.StorageIO(rows.Err(), "failed to list templates")
}

// FindByName returns the template called name
func (s *Store) FindByName(ctx context.Context, name string) (*Template, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM templates WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrTemplateNotFound, "template named %q", name)
	}
	if err != nil {
		return nil, errors.StorageIO(err, "failed to look up template")
	}
	return s.Get(ctx, id)
}

func (s *Store) writeErr(err error, id, name string) error {
	if err == nil {
		return nil
	}
	if db.IsUniqueViolation(err) {
		return errors.WithDetail(
			errors.Mark(errors.Newf("a template with name '%s' already exists", name), errors.ErrNameCollision),
			"Template ID: "+id)
	}
	return errors.WithDetail(errors.StorageIO(err, "failed to write template"), "Template ID: "+id)
}
