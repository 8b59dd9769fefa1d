package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wytcherly/foreman/internal/database"
	"github.com/wytcherly/foreman/internal/logging"
	"github.com/wytcherly/foreman/internal/model"
	"github.com/wytcherly/foreman/pkg/core"
)

func newTestBackend(t *testing.T, interval time.Duration) (*Backend, string) {
	t.Helper()
	dir := t.TempDir()
	dump := filepath.Join(dir, "dumps", "foreman.db")
	b, err := New(Config{
		DumpInterval: interval,
		DumpPath:     dump,
		DSN:          filepath.Join(dir, "live.db"),
	}, logging.NewSlogManager())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b, dump
}

func TestEndSession_WritesDump(t *testing.T) {
	b, dump := newTestBackend(t, 0)

	require.NoError(t, b.StartSession(&core.Session{Name: "dock"}))
	require.NoError(t, b.RecordAssignment(&core.AssignmentEvent{ForemanID: "f1", WorkerID: "w1"}))
	require.NoError(t, b.EndSession())

	restored, err := database.GetSqliteDB(dump)
	require.NoError(t, err)
	var n int64
	require.NoError(t, restored.Model(&model.Assignment{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestDumpLoop_Periodic(t *testing.T) {
	_, dump := newTestBackend(t, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dump)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDump_NoPathIsNoop(t *testing.T) {
	b, err := New(Config{DSN: filepath.Join(t.TempDir(), "x.db")}, logging.NewSlogManager())
	require.NoError(t, err)
	assert.NoError(t, b.Dump())
	assert.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}
