package cursor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.json")
	store := NewAt(path)

	store.Save("C", 0xdeadbeef, 12345)

	record, ok := store.Load("C")
	require.True(t, ok)
	assert.Equal(t, "C", record.Volume)
	assert.Equal(t, int64(12345), record.NextUSN)

	id, err := ParseJournalID(record.JournalID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xdeadbeef), id)
}

func TestLoad_MissingFileReturnsFalseNotError(t *testing.T) {
	store := NewAt(filepath.Join(t.TempDir(), "does-not-exist.json"))

	record, ok := store.Load("C")
	assert.False(t, ok)
	assert.Nil(t, record)
}

func TestLoad_VolumeMismatchReturnsFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.json")
	store := NewAt(path)
	store.Save("C", 1, 1)

	_, ok := store.Load("D")
	assert.False(t, ok)
}

func TestLoad_CorruptFileReturnsFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewAt(path)
	_, ok := store.Load("C")
	assert.False(t, ok)
}
