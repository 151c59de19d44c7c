package submissioncache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	ctx := context.Background()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Load(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Save(ctx, Entry{SubID: 42, FileRef: "file-ref-1"}))

	entry, ok, err := c.Load(ctx, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "file-ref-1", entry.FileRef)
}

func TestSaveReplacesExistingEntry(t *testing.T) {
	ctx := context.Background()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Save(ctx, Entry{SubID: 1, FileRef: "first"}))
	require.NoError(t, c.Save(ctx, Entry{SubID: 1, FileRef: "second"}))

	entry, ok, err := c.Load(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", entry.FileRef)
}
