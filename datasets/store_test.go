package datasets

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/PTX/errors"
	ptxtest "github.com/teranos/PTX/internal/testing"
)

func TestStore_PutGetRecords(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ptxtest.CreateTestDB(t))

	meta, err := store.Put(ctx, []byte("{\"x\": 1}\n{\"x\": 2}\n"), "numbers", FormatJSONL)
	require.NoError(t, err)
	require.NotNil(t, meta.NumRecords)
	assert.Equal(t, 2, *meta.NumRecords)

	ds, err := store.Get(ctx, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, "numbers", ds.Name)
	assert.Equal(t, FormatJSONL, ds.Format)
	assert.Len(t, ds.Records, 2)

	rec, err := store.GetRecord(ctx, meta.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": int64(2)}, rec)
}

func TestStore_RecordsSurviveCacheMiss(t *testing.T) {
	ctx := context.Background()
	conn := ptxtest.CreateTestDB(t)

	meta, err := NewStore(conn).Put(ctx, []byte(`[{"a": "b"}]`), "one", FormatJSON)
	require.NoError(t, err)

	// A fresh store has an empty cache and must parse the stored bytes
	records, err := NewStore(conn).Records(ctx, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, []Record{map[string]any{"a": "b"}}, records)
}

func TestStore_GetRecordOutOfRange(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ptxtest.CreateTestDB(t))

	meta, err := store.Put(ctx, []byte(`[{"a": 1}]`), "single", FormatJSON)
	require.NoError(t, err)

	for _, idx := range []int{-1, 1, 99} {
		_, err := store.GetRecord(ctx, meta.ID, idx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrRecordNotFound))
		assert.Equal(t, errors.KindInvalidRowIndex, errors.KindOf(err))
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ptxtest.CreateTestDB(t))

	_, err := store.Get(ctx, "missing")
	assert.Equal(t, errors.KindDatasetNotFound, errors.KindOf(err))

	_, err = store.Records(ctx, "missing")
	assert.Equal(t, errors.KindDatasetNotFound, errors.KindOf(err))
}

func TestStore_NameCollisionAndInvalidContent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ptxtest.CreateTestDB(t))

	_, err := store.Put(ctx, []byte("hello"), "notes", FormatTXT)
	require.NoError(t, err)

	_, err = store.Put(ctx, []byte("again"), "notes", FormatTXT)
	assert.Equal(t, errors.KindNameCollision, errors.KindOf(err))

	_, err = store.Put(ctx, []byte("{not json"), "broken", FormatJSON)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestStore_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ptxtest.CreateTestDB(t))

	b, err := store.Put(ctx, []byte(`[1, 2, 3]`), "beta", FormatJSON)
	require.NoError(t, err)
	_, err = store.Put(ctx, []byte("text"), "alpha", FormatTXT)
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, 3, *list[1].NumRecords)

	require.NoError(t, store.Delete(ctx, b.ID))
	require.NoError(t, store.Delete(ctx, b.ID))

	_, err = store.Records(ctx, b.ID)
	assert.Equal(t, errors.KindDatasetNotFound, errors.KindOf(err))
}

func TestStore_ListStorageError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT id, name, format").WillReturnError(assert.AnError)

	_, err = NewStore(conn).List(context.Background())
	assert.Equal(t, errors.KindStorageIOError, errors.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
