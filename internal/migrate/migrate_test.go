package migrate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigration(t *testing.T, dir, filename, sql string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(sql), 0644))
}

func TestLoadMigrationFilesSortsByVersion(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "002_add_index.sql", "CREATE INDEX x ON y (z);")
	writeMigration(t, dir, "001_init.sql", "CREATE TABLE y (z INT);")
	writeMigration(t, dir, "readme.txt", "not a migration")

	migrations, err := loadMigrationFiles(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].version)
	assert.Equal(t, "init", migrations[0].name)
	assert.Equal(t, 2, migrations[1].version)
}

func TestLoadMigrationFilesChecksumIsStableForSameContent(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_init.sql", "CREATE TABLE y (z INT);")

	a, err := loadMigrationFiles(dir)
	require.NoError(t, err)
	b, err := loadMigrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, a[0].checksum, b[0].checksum)
	assert.NotEmpty(t, a[0].checksum)
}

func TestLoadMigrationFilesChecksumDiffersWhenContentChanges(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_init.sql", "CREATE TABLE y (z INT);")
	before, err := loadMigrationFiles(dir)
	require.NoError(t, err)

	writeMigration(t, dir, "001_init.sql", "CREATE TABLE y (z INT, w TEXT);")
	after, err := loadMigrationFiles(dir)
	require.NoError(t, err)

	assert.NotEqual(t, before[0].checksum, after[0].checksum)
}

func TestChecksumMismatchErrorMessage(t *testing.T) {
	err := &ChecksumMismatchError{
		Version:          3,
		Filename:         "003_evpn.sql",
		RecordedChecksum: "aaaa",
		FileChecksum:     "bbbb",
	}
	assert.Contains(t, err.Error(), "migration_checksum_mismatch")
	assert.Contains(t, err.Error(), "003_evpn.sql")
}
