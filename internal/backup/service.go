// Package backup performs periodic snapshot-and-upload of the daemon's
// SQLite database to Cloudflare R2, adapted from the teacher's tiered
// backup services down to the daemon's single database.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskd/sentinel-risk-daemon/internal/database"
)

const objectPrefix = "riskd-backup-"
const minBackupsToKeep = 3

// Service snapshots the daemon's database with VACUUM INTO, archives it
// alongside a metadata file, and uploads the archive to R2.
type Service struct {
	db      *database.DB
	client  *R2Client
	dataDir string
	log     zerolog.Logger
}

// New builds a Service. client may be nil to disable backups, e.g. in
// environments without R2 credentials configured; CreateAndUpload then
// returns without taking a local snapshot either.
func New(db *database.DB, client *R2Client, dataDir string, log zerolog.Logger) *Service {
	return &Service{
		db:      db,
		client:  client,
		dataDir: dataDir,
		log:     log.With().Str("component", "backup").Logger(),
	}
}

// Info describes one backup archive stored in R2.
type Info struct {
	Filename  string
	Timestamp time.Time
	SizeBytes int64
	AgeHours  int64
}

// CreateAndUpload snapshots the database, archives it with a checksum
// manifest, and uploads the archive to R2. Returns early with a nil error
// if no R2 client is configured.
func (s *Service) CreateAndUpload(ctx context.Context) error {
	if s.client == nil {
		s.log.Debug().Msg("no r2 client configured, skipping upload")
		return nil
	}

	s.log.Info().Msg("starting backup")
	start := time.Now()

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	snapshotPath := filepath.Join(stagingDir, "riskd.db")
	if err := s.snapshot(snapshotPath); err != nil {
		return fmt.Errorf("snapshotting database: %w", err)
	}

	checksum, err := checksumFile(snapshotPath)
	if err != nil {
		return fmt.Errorf("checksumming snapshot: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02-150405")
	archiveName := fmt.Sprintf("%sriskd-%s.tar.gz", objectPrefix, timestamp)
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := archiveSnapshot(archivePath, snapshotPath, checksum); err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}

	archiveInfo, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archiveFile.Close()

	if err := s.client.Upload(ctx, archiveName, archiveFile, archiveInfo.Size()); err != nil {
		return fmt.Errorf("uploading archive: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(start)).
		Str("archive", archiveName).
		Int64("size_kb", archiveInfo.Size()/1024).
		Msg("backup completed")
	return nil
}

// List returns every backup archive stored in R2, newest first.
func (s *Service) List(ctx context.Context) ([]Info, error) {
	if s.client == nil {
		return nil, nil
	}
	objects, err := s.client.List(ctx, objectPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	now := time.Now()
	out := make([]Info, 0, len(objects))
	for _, obj := range objects {
		ts, ok := parseArchiveTimestamp(obj.Key)
		if !ok {
			continue
		}
		out = append(out, Info{
			Filename:  obj.Key,
			Timestamp: ts,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// Rotate deletes backups older than retentionDays, always keeping the
// newest minBackupsToKeep regardless of age. retentionDays == 0 keeps
// everything beyond the minimum.
func (s *Service) Rotate(ctx context.Context, retentionDays int) error {
	if s.client == nil {
		return nil
	}
	backups, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}

	var cutoff time.Time
	if retentionDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -retentionDays)
	}

	deleted := 0
	for i, b := range backups {
		if i < minBackupsToKeep || retentionDays == 0 {
			continue
		}
		if !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.client.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("failed to delete old backup")
			continue
		}
		deleted++
	}
	s.log.Info().Int("deleted", deleted).Int("remaining", len(backups)-deleted).Msg("rotation completed")
	return nil
}

// snapshot uses SQLite's VACUUM INTO for an atomic, WAL-free copy of the
// live database.
func (s *Service) snapshot(destPath string) error {
	_, err := s.db.Conn().Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath))
	if err != nil {
		return fmt.Errorf("vacuum into: %w", err)
	}
	if err := verifySnapshot(destPath); err != nil {
		os.Remove(destPath)
		return err
	}
	return nil
}

func verifySnapshot(path string) error {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer conn.Close()

	var result string
	if err := conn.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func archiveSnapshot(archivePath, snapshotPath, checksum string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer archiveFile.Close()

	gz := gzip.NewWriter(archiveFile)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	if err := addFileToArchive(tw, snapshotPath, "riskd.db"); err != nil {
		return err
	}
	return addChecksumToArchive(tw, checksum)
}

func addFileToArchive(tw *tar.Writer, filePath, nameInArchive string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	if err := tw.WriteHeader(&tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

func addChecksumToArchive(tw *tar.Writer, checksum string) error {
	content := []byte(checksum + "\n")
	if err := tw.WriteHeader(&tar.Header{
		Name: "riskd.db.sha256",
		Size: int64(len(content)),
		Mode: 0644,
	}); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

func parseArchiveTimestamp(filename string) (time.Time, bool) {
	if !strings.HasPrefix(filename, objectPrefix+"riskd-") || !strings.HasSuffix(filename, ".tar.gz") {
		return time.Time{}, false
	}
	raw := strings.TrimPrefix(filename, objectPrefix+"riskd-")
	raw = strings.TrimSuffix(raw, ".tar.gz")
	ts, err := time.Parse("2006-01-02-150405", raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
