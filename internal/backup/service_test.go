package backup

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/riskd/sentinel-risk-daemon/internal/database"
)

func TestServiceSnapshotProducesValidDatabase(t *testing.T) {
	dataDir := t.TempDir()

	db, err := database.New(database.Config{Path: filepath.Join(dataDir, "riskd.db"), Profile: database.ProfileLedger, Name: "riskd"})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Conn().Exec("CREATE TABLE daily_pnl (account_id INTEGER, date TEXT, realized_pnl REAL)")
	require.NoError(t, err)
	_, err = db.Conn().Exec("INSERT INTO daily_pnl VALUES (1, '2026-07-31', -150.0)")
	require.NoError(t, err)

	svc := New(db, nil, dataDir, zerolog.Nop())

	snapshotPath := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, svc.snapshot(snapshotPath))

	_, err = os.Stat(snapshotPath)
	require.NoError(t, err)
}

func TestServiceCreateAndUploadSkipsWithoutClient(t *testing.T) {
	dataDir := t.TempDir()
	db, err := database.New(database.Config{Path: filepath.Join(dataDir, "riskd.db"), Profile: database.ProfileLedger, Name: "riskd"})
	require.NoError(t, err)
	defer db.Close()

	svc := New(db, nil, dataDir, zerolog.Nop())
	require.NoError(t, svc.CreateAndUpload(nil)) //nolint:staticcheck // ctx unused on the skip path
}

func TestArchiveSnapshotContainsDBAndChecksum(t *testing.T) {
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "riskd.db")
	require.NoError(t, os.WriteFile(snapshotPath, []byte("fake sqlite contents"), 0644))

	archivePath := filepath.Join(dir, "archive.tar.gz")
	require.NoError(t, archiveSnapshot(archivePath, snapshotPath, "sha256:deadbeef"))

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, hdr.Name)
	}
	assert.ElementsMatch(t, []string{"riskd.db", "riskd.db.sha256"}, names)
}

func TestParseArchiveTimestamp(t *testing.T) {
	ts, ok := parseArchiveTimestamp("riskd-backup-riskd-2026-07-31-120000.tar.gz")
	require.True(t, ok)
	assert.Equal(t, 2026, ts.Year())

	_, ok = parseArchiveTimestamp("not-a-backup.txt")
	assert.False(t, ok)
}
