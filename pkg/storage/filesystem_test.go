package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportDirSaveStaysInside(t *testing.T) {
	dir, err := NewExportDir(t.TempDir())
	require.NoError(t, err)

	path, err := dir.Save("../../etc/access-records.csv", []byte("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir.Dir(), "access-records.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	_, err = dir.Save("..", nil)
	assert.Error(t, err)
}

func TestExportDirPrune(t *testing.T) {
	dir, err := NewExportDir(t.TempDir())
	require.NoError(t, err)

	oldPath, err := dir.Save("old.csv", []byte("x"))
	require.NoError(t, err)
	_, err = dir.Save("new.csv", []byte("y"))
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, os.Chtimes(oldPath, now.Add(-48*time.Hour), now.Add(-48*time.Hour)))

	removed, err := dir.Prune(24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.csv"}, removed)
	_, err = os.Stat(filepath.Join(dir.Dir(), "new.csv"))
	assert.NoError(t, err)
}
