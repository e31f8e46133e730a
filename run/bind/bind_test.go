package bind

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/internal/util"
)

type memSource map[string][]any

func (m memSource) Records(_ context.Context, id string) ([]any, error) {
	records, ok := m[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrDatasetNotFound, "dataset %s", id)
	}
	return records, nil
}

var source = memSource{
	"people": {
		map[string]any{"name": "Ada", "role": "engineer"},
		map[string]any{"name": "Grace", "role": "admiral"},
	},
	"style": {
		map[string]any{"tone": "formal", "name": "Style Guide"},
	},
	"notes": {"free text"},
	"empty": {},
}

func TestResolve_SpliceVersusNest(t *testing.T) {
	binder := New(source)
	ctx := context.Background()

	spliced, err := binder.Resolve(ctx, []Binding{{SourceID: "style", Scope: ScopeGlobal}}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"tone": "formal", "name": "Style Guide"}, spliced)

	nested, err := binder.Resolve(ctx, []Binding{{SourceID: "style", ContextKey: "style", Scope: ScopeGlobal}}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"style": map[string]any{"tone": "formal", "name": "Style Guide"}}, nested)
}

func TestResolve_LaterBindingsWin(t *testing.T) {
	binder := New(source)

	got, err := binder.Resolve(context.Background(), []Binding{
		{SourceID: "style", Scope: ScopeGlobal},
		{SourceID: "people", Scope: ScopeRecord},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got["name"])
	assert.Equal(t, "formal", got["tone"])

	got, err = binder.Resolve(context.Background(), []Binding{
		{SourceID: "people", Scope: ScopeRecord},
		{SourceID: "style", Scope: ScopeGlobal},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Style Guide", got["name"])
}

func TestResolve_GlobalRow(t *testing.T) {
	binder := New(source)
	ctx := context.Background()

	got, err := binder.Resolve(ctx, []Binding{{SourceID: "people", ContextKey: "p", Scope: ScopeGlobal, Row: util.Ptr(1)}},
		map[string]any{"name": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "Grace", got["p"].(map[string]any)["name"])

	for _, row := range []int{-1, 2, 100} {
		_, err := binder.Resolve(ctx, []Binding{{SourceID: "people", Scope: ScopeGlobal, Row: util.Ptr(row)}}, nil)
		require.Error(t, err)
		assert.Equal(t, errors.KindInvalidRowIndex, errors.KindOf(err), "row %d", row)
	}

	_, err = binder.Resolve(ctx, []Binding{{SourceID: "empty", Scope: ScopeGlobal}}, nil)
	assert.Equal(t, errors.KindInvalidRowIndex, errors.KindOf(err))
}

func TestResolve_RecordScope(t *testing.T) {
	binder := New(source)
	ctx := context.Background()

	current := map[string]any{"name": "Linus"}
	got, err := binder.Resolve(ctx, []Binding{{SourceID: "people", Scope: ScopeRecord}}, current)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Linus"}, got)

	// Solo run: first record
	got, err = binder.Resolve(ctx, []Binding{{SourceID: "people", ContextKey: "person", Scope: ScopeRecord}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got["person"].(map[string]any)["name"])

	// Empty dataset contributes nothing and does not fail
	got, err = binder.Resolve(ctx, []Binding{{SourceID: "empty", ContextKey: "x", Scope: ScopeRecord}}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolve_TextRecordWithEmptyKey(t *testing.T) {
	got, err := New(source).Resolve(context.Background(), []Binding{{SourceID: "notes", Scope: ScopeRecord}}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"": "free text"}, got)
}

func TestResolve_DatasetNotFound(t *testing.T) {
	_, err := New(source).Resolve(context.Background(), []Binding{
		{SourceID: "people", Scope: ScopeRecord},
		{SourceID: "missing", Scope: ScopeRecord},
	}, map[string]any{"a": 1})
	require.Error(t, err)
	assert.Equal(t, errors.KindDatasetNotFound, errors.KindOf(err))
}

func TestResolve_Deterministic(t *testing.T) {
	binder := New(source)
	bindings := []Binding{
		{SourceID: "people", Scope: ScopeRecord},
		{SourceID: "style", ContextKey: "style", Scope: ScopeGlobal},
		{SourceID: "notes", ContextKey: "name", Scope: ScopeGlobal},
	}

	first, err := binder.Resolve(context.Background(), bindings, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := binder.Resolve(context.Background(), bindings, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "free text", first["name"])
}

func TestBinding_UnmarshalJSON(t *testing.T) {
	var b Binding
	require.NoError(t, json.Unmarshal([]byte(`{"source_id": "d", "context_key": "", "scope": "global", "row": 2}`), &b))
	assert.Equal(t, Binding{SourceID: "d", Scope: ScopeGlobal, Row: util.Ptr(2)}, b)

	err := json.Unmarshal([]byte(`{"source_id": "d", "scope": "sometimes"}`), &b)
	assert.ErrorContains(t, err, "binding scope must be")
}

func TestFirstRecordBinding(t *testing.T) {
	_, ok := FirstRecordBinding([]Binding{{SourceID: "a", Scope: ScopeGlobal}})
	assert.False(t, ok)

	b, ok := FirstRecordBinding([]Binding{
		{SourceID: "a", Scope: ScopeGlobal},
		{SourceID: "b", Scope: ScopeRecord},
		{SourceID: "c", Scope: ScopeRecord},
	})
	assert.True(t, ok)
	assert.Equal(t, "b", b.SourceID)
}
