// Package bind assembles a template render context from dataset bindings.
package bind

import (
	"context"
	"encoding/json"

	"github.com/teranos/PTX/errors"
)

// Scope controls whether a binding follows the batch iteration
type Scope string

const (
	// ScopeRecord bindings take the current record of the batch
	ScopeRecord Scope = "record"
	// ScopeGlobal bindings always resolve to a fixed row of their dataset
	ScopeGlobal Scope = "global"
)

// Binding links a context key to a dataset
type Binding struct {
	SourceID   string `json:"source_id"`
	ContextKey string `json:"context_key"`
	Scope      Scope  `json:"scope"`
	Row        *int   `json:"row,omitempty"` // global scope only, default 0
}

// UnmarshalJSON rejects scopes other than record and global
func (b *Binding) UnmarshalJSON(data []byte) error {
	type plain Binding
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.Scope {
	case ScopeRecord, ScopeGlobal:
	default:
		return errors.NewInvalidInputf("binding scope must be %q or %q, got %q", ScopeRecord, ScopeGlobal, p.Scope)
	}
	*b = Binding(p)
	return nil
}

// DatasetSource returns the ordered records of a dataset. It fails with a
// DatasetNotFound error for unknown ids.
type DatasetSource interface {
	Records(ctx context.Context, id string) ([]any, error)
}

// FirstRecordBinding returns the first record-scoped binding, which drives
// a batch.
func FirstRecordBinding(bindings []Binding) (Binding, bool) {
	for _, b := range bindings {
		if b.Scope == ScopeRecord {
			return b, true
		}
	}
	return Binding{}, false
}

// Binder resolves bindings against a dataset source
type Binder struct {
	source DatasetSource
}

// New creates a Binder
func New(source DatasetSource) *Binder {
	return &Binder{source: source}
}

// Resolve applies bindings left to right. Later bindings win on key
// collisions. current is the batch record for record-scoped bindings; when
// nil they fall back to the dataset's first record, and an empty dataset
// contributes nothing.
func (b *Binder) Resolve(ctx context.Context, bindings []Binding, current any) (map[string]any, error) {
	out := make(map[string]any)

	for i, binding := range bindings {
		// Every binding must name an existing dataset, even a record-scoped
		// one that will use the current record.
		records, err := b.source.Records(ctx, binding.SourceID)
		if err != nil {
			return nil, errors.WithDetailf(err, "binding %d (context key %q)", i, binding.ContextKey)
		}

		var (
			value any
			found bool
		)
		switch binding.Scope {
		case ScopeGlobal:
			row := 0
			if binding.Row != nil {
				row = *binding.Row
			}
			if row < 0 || row >= len(records) {
				return nil, errors.Wrapf(errors.ErrInvalidRowIndex,
					"row %d out of range for dataset %s with %d records", row, binding.SourceID, len(records))
			}
			value, found = records[row], true

		case ScopeRecord:
			if current != nil {
				value, found = current, true
			} else if len(records) > 0 {
				value, found = records[0], true
			}

		default:
			return nil, errors.NewInvalidInputf("binding %d has unknown scope %q", i, binding.Scope)
		}

		if !found {
			continue
		}
		merge(out, binding.ContextKey, value)
	}
	return out, nil
}

func merge(ctx map[string]any, key string, value any) {
	if m, ok := value.(map[string]any); ok && key == "" {
		for k, v := range m {
			ctx[k] = v
		}
		return
	}
	ctx[key] = value
}
