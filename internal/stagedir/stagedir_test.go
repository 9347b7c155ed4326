package stagedir

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyReportsTrueAfterEntryIsCreated(t *testing.T) {
	root := t.TempDir()
	w, err := New(root)
	require.NoError(t, err)
	defer w.Close()

	target := filepath.Join(root, "job-1")
	assert.False(t, w.Ready(target))

	require.NoError(t, os.Mkdir(target, 0o755))

	require.Eventually(t, func() bool {
		return w.Ready(target)
	}, time.Second, 10*time.Millisecond)
}

func TestReadyReportsTrueForPreexistingEntry(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "already-here")
	require.NoError(t, os.Mkdir(target, 0o755))

	w, err := New(root)
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.Ready(target))
}

func TestReadyReportsFalseForUnrelatedName(t *testing.T) {
	root := t.TempDir()
	w, err := New(root)
	require.NoError(t, err)
	defer w.Close()

	assert.False(t, w.Ready(filepath.Join(root, "never-created")))
}
