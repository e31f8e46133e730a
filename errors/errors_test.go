package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	original := New("disk full")
	wrapped := Wrapf(original, "write dataset %s", "abc")

	assert.Equal(t, "write dataset abc: disk full", wrapped.Error())
	assert.True(t, Is(wrapped, original))
}

func TestHintsAndDetails(t *testing.T) {
	err := New("job failed")
	err = WithDetail(err, "Job ID: 123")
	err = WithHint(err, "check the dataset exists")
	err = Wrap(err, "batch")

	require.Len(t, GetAllDetails(err), 1)
	assert.Equal(t, "Job ID: 123", GetAllDetails(err)[0])
	assert.Contains(t, GetAllHints(err), "check the dataset exists")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, StorageIO(nil, "read"))
	assert.Equal(t, KindNone, KindOf(nil))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"wrapped sentinel", Wrapf(ErrDatasetNotFound, "dataset %s", "d1"), KindDatasetNotFound},
		{"marked foreign error", Mark(Wrap(io.ErrUnexpectedEOF, "render"), ErrTemplateRender), KindTemplateRenderError},
		{"storage helper", StorageIO(io.EOF, "read template"), KindStorageIOError},
		{"double wrapped", Wrap(Wrap(ErrJobNotComplete, "result"), "http"), KindJobNotComplete},
		{"invalid input", NewInvalidInputf("name %q contains a slash", "a/b"), KindInvalidInput},
		{"plain error", New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKindOfPrefersSpecificOverStorage(t *testing.T) {
	err := Mark(StorageIO(io.EOF, "load"), ErrTemplateNotFound)
	assert.Equal(t, KindTemplateNotFound, KindOf(err))
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(Wrap(ErrTemplateNotFound, "t1")))
	assert.True(t, IsNotFoundError(ErrJobNotFound))
	assert.False(t, IsNotFoundError(ErrJobNotComplete))
	assert.False(t, IsNotFoundError(nil))
}

func ExampleKindOf() {
	err := Wrapf(ErrTemplateNotFound, "template %s", "t-42")
	fmt.Println(KindOf(err))
	fmt.Println(err)
	// Output:
	// TemplateNotFound
	// template t-42: template not found
}

func TestSentinelForRoundTrips(t *testing.T) {
	for _, k := range kindOrder {
		err := Mark(Newf("remote failure"), SentinelFor(k.kind))
		assert.Equal(t, k.kind, KindOf(err))
	}
	assert.Nil(t, SentinelFor(KindUnknown))
	assert.Nil(t, SentinelFor(KindNone))
}
