// Package datasets stores uploaded datasets in SQLite and splits them into
// index-addressable records.
package datasets

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/PTX/db"
	"github.com/teranos/PTX/errors"
)

// Meta is the listing view of a dataset
type Meta struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Format     Format    `json:"file_format"`
	NumRecords *int      `json:"num_records,omitempty"`
	SourceURL  string    `json:"source_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Dataset is a stored dataset with its parsed records
type Dataset struct {
	Meta
	Records []Record `json:"-"`
}

// ErrRecordNotFound is returned by GetRecord for an index outside the dataset.
// It carries the InvalidRowIndex kind.
var ErrRecordNotFound = errors.Mark(errors.New("record not found at that index"), errors.ErrInvalidRowIndex)

const recordCacheSize = 32

// Store handles persistence of datasets. Datasets are immutable once written,
// so parsed records are cached by id. Cached records are shared and must not
// be modified by callers.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu    sync.Mutex
	cache map[string][]Record
}

// NewStore creates a dataset store over a migrated database
func NewStore(conn *sql.DB) *Store {
	return &Store{db: conn, now: time.Now, cache: make(map[string][]Record)}
}

// ValidateName rejects empty names and names containing path separators
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewInvalidInputf("dataset name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return errors.NewInvalidInputf("dataset name cannot contain slashes")
	}
	return nil
}

// Put parses data as format, stores it under name and returns its metadata
func (s *Store) Put(ctx context.Context, data []byte, name string, format Format) (*Meta, error) {
	return s.put(ctx, data, name, format, "")
}

func (s *Store) put(ctx context.Context, data []byte, name string, format Format, sourceURL string) (*Meta, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	records, err := ParseRecords(format, data)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to parse %s dataset", format), errors.ErrInvalidInput)
	}

	n := len(records)
	meta := &Meta{
		ID:         uuid.NewString(),
		Name:       name,
		Format:     format,
		NumRecords: &n,
		SourceURL:  sourceURL,
		CreatedAt:  s.now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO datasets (id, name, format, content, num_records, source_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Name, string(meta.Format), data, n,
		sql.NullString{String: sourceURL, Valid: sourceURL != ""}, meta.CreatedAt)
	if db.IsUniqueViolation(err) {
		return nil, errors.Mark(errors.Newf("a dataset with name '%s' already exists", name), errors.ErrNameCollision)
	}
	if err != nil {
		return nil, errors.WithDetail(errors.StorageIO(err, "failed to write dataset"), "Dataset name: "+name)
	}

	s.remember(meta.ID, records)
	return meta, nil
}

// Get returns a dataset with its parsed records
func (s *Store) Get(ctx context.Context, id string) (*Dataset, error) {
	var (
		ds      Dataset
		format  string
		content []byte
		n       int
		source  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, format, content, num_records, source_url, created_at
		FROM datasets WHERE id = ?`, id,
	).Scan(&ds.ID, &ds.Name, &format, &content, &n, &source, &ds.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrDatasetNotFound, "dataset %s", id)
	}
	if err != nil {
		return nil, errors.WithDetail(errors.StorageIO(err, "failed to read dataset"), "Dataset ID: "+id)
	}
	ds.Format = Format(format)
	ds.SourceURL = source.String

	if cached, ok := s.cached(id); ok {
		ds.Records = cached
	} else {
		records, err := ParseRecords(ds.Format, content)
		if err != nil {
			return nil, errors.WithDetail(errors.StorageIO(err, "stored dataset is unreadable"), "Dataset ID: "+id)
		}
		s.remember(id, records)
		ds.Records = records
	}
	n = len(ds.Records)
	ds.NumRecords = &n
	return &ds, nil
}

// Records returns the ordered records of a dataset
func (s *Store) Records(ctx context.Context, id string) ([]Record, error) {
	if cached, ok := s.cached(id); ok {
		return cached, nil
	}
	ds, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return ds.Records, nil
}

// GetRecord returns the record at index
func (s *Store) GetRecord(ctx context.Context, id string, index int) (Record, error) {
	records, err := s.Records(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(records) {
		return nil, errors.WithDetailf(errors.Wrapf(ErrRecordNotFound, "dataset %s index %d", id, index),
			"Dataset has %d records", len(records))
	}
	return records[index], nil
}

// Delete removes a dataset. Deleting a missing dataset is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id); err != nil {
		return errors.StorageIO(err, "failed to delete dataset")
	}
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
	return nil
}

// List returns all datasets ordered by name. Record counts come from the
// value stored at upload time.
func (s *Store) List(ctx context.Context) ([]Meta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, format, num_records, source_url, created_at
		FROM datasets ORDER BY name, id`)
	if err != nil {
		return nil, errors.StorageIO(err, "failed to list datasets")
	}
	defer rows.Close()

	metas := []Meta{}
	for rows.Next() {
		var (
			m      Meta
			format string
			n      int
			source sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Name, &format, &n, &source, &m.CreatedAt); err != nil {
			return nil, errors.StorageIO(err, "failed to scan dataset")
		}
		m.Format = Format(format)
		m.NumRecords = &n
		m.SourceURL = source.String
		metas = append(metas, m)
	}
	return metas, errors.StorageIO(rows.Err(), "failed to list datasets")
}

func (s *Store) cached(id string) ([]Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.cache[id]
	return records, ok
}

func (s *Store) remember(id string, records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cache) >= recordCacheSize {
		for k := range s.cache {
			delete(s.cache, k)
			break
		}
	}
	s.cache[id] = records
}
