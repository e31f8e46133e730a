package templates

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/PTX/errors"
	ptxtest "github.com/teranos/PTX/internal/testing"
	"github.com/teranos/PTX/internal/util"
)

func TestStore_CreateGetList(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ptxtest.CreateTestDB(t))

	b, err := store.Create(ctx, "summarize", "Summarize {{ text }}")
	require.NoError(t, err)
	a, err := store.Create(ctx, "classify", "Classify {{ text }}")
	require.NoError(t, err)

	got, err := store.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "summarize", got.Name)
	assert.Equal(t, "Summarize {{ text }}", got.Content)
	assert.False(t, got.CreatedAt.IsZero())

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Meta{{ID: a.ID, Name: "classify"}, {ID: b.ID, Name: "summarize"}}, list)
}

func TestStore_NameCollision(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ptxtest.CreateTestDB(t))

	_, err := store.Create(ctx, "greeting", "hi")
	require.NoError(t, err)

	_, err = store.Create(ctx, "greeting", "hello")
	require.Error(t, err)
	assert.Equal(t, errors.KindNameCollision, errors.KindOf(err))
	assert.Contains(t, err.Error(), "a template with name 'greeting' already exists")
}

func TestStore_RejectsSlashes(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ptxtest.CreateTestDB(t))

	for _, name := range []string{"a/b", `a\b`, "  "} {
		_, err := store.Create(ctx, name, "x")
		require.Error(t, err, name)
		assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
	}
}

func TestStore_UpdateAndRename(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ptxtest.CreateTestDB(t))

	tpl, err := store.Create(ctx, "draft", "v1")
	require.NoError(t, err)
	other, err := store.Create(ctx, "taken", "x")
	require.NoError(t, err)

	updated, err := store.Update(ctx, tpl.ID, Update{Content: util.Ptr("v2")})
	require.NoError(t, err)
	assert.Equal(t, "draft", updated.Name)
	assert.Equal(t, "v2", updated.Content)

	require.NoError(t, store.Rename(ctx, tpl.ID, "final"))
	got, err := store.Get(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Name)
	assert.Equal(t, "v2", got.Content)

	err = store.Rename(ctx, tpl.ID, other.Name)
	assert.Equal(t, errors.KindNameCollision, errors.KindOf(err))

	err = store.Rename(ctx, "missing", "whatever")
	assert.Equal(t, errors.KindTemplateNotFound, errors.KindOf(err))
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ptxtest.CreateTestDB(t))

	tpl, err := store.Create(ctx, "tmp", "x")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, tpl.ID))
	require.NoError(t, store.Delete(ctx, tpl.ID))

	_, err = store.Get(ctx, tpl.ID)
	assert.Equal(t, errors.KindTemplateNotFound, errors.KindOf(err))
}

func TestStore_FindByName(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ptxtest.CreateTestDB(t))

	tpl, err := store.Create(ctx, "lookup", "x")
	require.NoError(t, err)

	got, err := store.FindByName(ctx, "lookup")
	require.NoError(t, err)
	assert.Equal(t, tpl.ID, got.ID)

	_, err = store.FindByName(ctx, "nope")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStore_StorageErrors(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	store := NewStore(conn)
	store.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	mock.ExpectQuery("SELECT id, name, content").WithArgs("t1").
		WillReturnError(errors.New("disk I/O error"))
	_, err = store.Get(context.Background(), "t1")
	assert.Equal(t, errors.KindStorageIOError, errors.KindOf(err))

	mock.ExpectExec("INSERT INTO templates").
		WillReturnError(errors.New("database or disk is full"))
	_, err = store.Create(context.Background(), "x", "y")
	assert.Equal(t, errors.KindStorageIOError, errors.KindOf(err))

	mock.ExpectQuery("SELECT id, name FROM templates").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("a", "alpha"))
	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}
