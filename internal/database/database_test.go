package database

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorm.io/datatypes"

	"github.com/wytcherly/foreman/internal/model"
)

func TestMigrate_SeedsInfoOnce(t *testing.T) {
	db, err := GetSqliteDB(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))

	var infos []model.Info
	require.NoError(t, db.Find(&infos).Error)
	require.Len(t, infos, 1)
	assert.Equal(t, uint(SchemaVersion), infos[0].SchemaVersion)

	for _, m := range model.DatabaseModels {
		assert.True(t, db.Migrator().HasTable(m), "%T not migrated", m)
	}
}

func TestTimesReadBackFromSqlite(t *testing.T) {
	db, err := GetSqliteDB(filepath.Join(t.TempDir(), "times.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	start := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	sess := model.Session{
		UUID:      "s-1",
		Name:      "dock",
		StartTime: start,
		EndTime:   sql.NullTime{Time: start.Add(time.Hour), Valid: true},
	}
	require.NoError(t, db.Create(&sess).Error)
	require.NoError(t, db.Create(&model.CapabilityChange{
		Time:         start.Add(time.Minute),
		SessionID:    sess.ID,
		AndroidID:    "a1",
		Capabilities: datatypes.JSON(`["Capability.Hauling"]`),
		Readiness:    "Degraded",
	}).Error)

	var got model.Session
	require.NoError(t, db.First(&got, sess.ID).Error)
	assert.True(t, start.Equal(got.StartTime), "start %v", got.StartTime)
	require.True(t, got.EndTime.Valid)
	assert.True(t, start.Add(time.Hour).Equal(got.EndTime.Time))

	var changes []model.CapabilityChange
	require.NoError(t, db.Where("session_id = ?", sess.ID).Find(&changes).Error)
	require.Len(t, changes, 1)
	assert.True(t, start.Add(time.Minute).Equal(changes[0].Time))
	assert.JSONEq(t, `["Capability.Hauling"]`, string(changes[0].Capabilities))
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	dir := t.TempDir()
	db, err := GetSqliteDB(filepath.Join(dir, "live.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	require.NoError(t, db.Create(&model.Session{UUID: "s-1", Name: "dump"}).Error)

	out := filepath.Join(dir, "backup", "dump.db")
	require.NoError(t, DumpMemoryDBToDisk(db, out))
	// A second dump replaces the first.
	require.NoError(t, DumpMemoryDBToDisk(db, out))

	restored, err := GetSqliteDB(out)
	require.NoError(t, err)
	var count int64
	require.NoError(t, restored.Model(&model.Session{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	assert.Error(t, DumpMemoryDBToDisk(db, ""))
}

func TestGetBackupDBPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.db", "b.db", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.db"), 0755))

	paths, err := GetBackupDBPaths(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.db"), filepath.Join(dir, "b.db")}, paths)

	_, err = GetBackupDBPaths(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
