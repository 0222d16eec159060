package storage

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	store := NewFileStore(path)

	require.NoError(t, store.Save(&testRecord{Name: "alpha", Count: 3}))

	var got testRecord
	require.NoError(t, store.Load(&got))
	assert.Equal(t, "alpha", got.Name)
	assert.Equal(t, 3, got.Count)
}

func TestFileStoreMissingFileIsNotFound(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "never-written.json"))

	var got testRecord
	err := store.Load(&got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "record.json")
	store := NewFileStore(path)

	require.NoError(t, store.Save(&testRecord{Name: "beta"}))

	var got testRecord
	require.NoError(t, store.Load(&got))
	assert.Equal(t, "beta", got.Name)
}

func TestFileStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}

	dir := filepath.Join(t.TempDir(), "secure")
	path := filepath.Join(dir, "record.json")
	require.NoError(t, NewFileStore(path).Save(&testRecord{Name: "gamma"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestFileStoreWritesPrettyJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, NewFileStore(path).Save(&testRecord{Name: "delta", Count: 7}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "\n  \"name\""))
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	var got testRecord
	err := NewFileStore(path).Load(&got)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
