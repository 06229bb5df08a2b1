package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawKey(t *testing.T) {
	runDate := time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, "raw_stock_data/ticker=AAPL/date=2024-03-05/data.json", RawKey("aapl", runDate))
}

func TestLocalSink_Put(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalSink(dir)
	require.NoError(t, err)

	key := RawKey("MSFT", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	body := []byte(`{"ticker":"MSFT","results":[]}`)
	require.NoError(t, s.Put(context.Background(), key, ContentTypeJSON, body))

	got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, body, got)

	// Same key on the same run date overwrites.
	require.NoError(t, s.Put(context.Background(), key, ContentTypeJSON, []byte(`{}`)))
	got, _ = os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	assert.Equal(t, `{}`, string(got))
}

func TestLocalSink_RejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalSink(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../outside.json", "/etc/passwd", ""} {
		err := s.Put(context.Background(), key, ContentTypeJSON, []byte("x"))
		var we *WriteError
		assert.True(t, errors.As(err, &we), "key %q should be rejected", key)
	}
}

func TestLocalSink_CancelledContext(t *testing.T) {
	s, err := NewLocalSink(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Put(ctx, "a/b.json", ContentTypeJSON, []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLocalSink_EmptyDir(t *testing.T) {
	_, err := NewLocalSink("")
	assert.Error(t, err)
}

func TestNewGCSSink_EmptyBucket(t *testing.T) {
	_, err := NewGCSSink(context.Background(), "")
	assert.Error(t, err)
}
