package maintenance

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskd/sentinel-risk-daemon/internal/backup"
	"github.com/riskd/sentinel-risk-daemon/internal/persistence"
	"github.com/riskd/sentinel-risk-daemon/internal/utils"
)

// DailyJob runs integrity verification, a WAL checkpoint, a disk space
// check, and a backup-and-rotate cycle, adapted from the teacher's
// DailyMaintenanceJob down to the daemon's single database.
type DailyJob struct {
	store     *persistence.Store
	backup    *backup.Service
	dataDir   string
	retention int
	log       zerolog.Logger
}

// NewDailyJob builds the daily maintenance job. retentionDays is passed
// through to backup.Service.Rotate.
func NewDailyJob(store *persistence.Store, backupSvc *backup.Service, dataDir string, retentionDays int, log zerolog.Logger) *DailyJob {
	return &DailyJob{
		store:     store,
		backup:    backupSvc,
		dataDir:   dataDir,
		retention: retentionDays,
		log:       log.With().Str("job", "daily_maintenance").Logger(),
	}
}

func (j *DailyJob) Name() string { return "daily_maintenance" }

func (j *DailyJob) Run() error {
	timer := utils.NewTimer("daily_maintenance", j.log)
	j.log.Info().Msg("starting daily maintenance")

	if err := j.store.HealthCheck(context.Background()); err != nil {
		return fmt.Errorf("CRITICAL: database health check failed: %w", err)
	}

	if err := j.store.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("wal checkpoint failed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := j.backup.CreateAndUpload(ctx); err != nil {
		j.log.Error().Err(err).Msg("backup failed")
	} else if err := j.backup.Rotate(ctx, j.retention); err != nil {
		j.log.Error().Err(err).Msg("backup rotation failed")
	}

	stats, err := j.store.Stats()
	if err != nil {
		j.log.Error().Err(err).Msg("failed to read database stats")
	} else {
		j.log.Info().
			Int64("size_bytes", stats.SizeBytes).
			Int64("wal_size_bytes", stats.WALSizeBytes).
			Msg("database metrics")
	}

	timer.Stop()
	return nil
}

// checkDiskSpace halts the job if free space drops below 500MB, matching
// the teacher's critical threshold.
func (j *DailyJob) checkDiskSpace() error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		return fmt.Errorf("stat filesystem: %w", err)
	}

	availableGB := float64(stat.Bavail*uint64(stat.Bsize)) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("disk space check")

	if availableGB < 0.5 {
		return fmt.Errorf("CRITICAL: only %.2f GB free", availableGB)
	}
	if availableGB < 5.0 {
		j.log.Error().Float64("available_gb", availableGB).Msg("low disk space")
	} else if availableGB < 10.0 {
		j.log.Warn().Float64("available_gb", availableGB).Msg("disk space running low")
	}
	return nil
}

// WeeklyJob reclaims space with a full VACUUM, appropriate for the
// enforcement log once its audit window has rolled off, adapted from the
// teacher's WeeklyMaintenanceJob.
type WeeklyJob struct {
	store *persistence.Store
	log   zerolog.Logger
}

// NewWeeklyJob builds the weekly maintenance job.
func NewWeeklyJob(store *persistence.Store, log zerolog.Logger) *WeeklyJob {
	return &WeeklyJob{store: store, log: log.With().Str("job", "weekly_maintenance").Logger()}
}

func (j *WeeklyJob) Name() string { return "weekly_maintenance" }

func (j *WeeklyJob) Run() error {
	timer := utils.NewTimer("weekly_maintenance", j.log)
	j.log.Info().Msg("starting weekly maintenance")

	statsBefore, err := j.store.Stats()
	if err != nil {
		return fmt.Errorf("reading stats before vacuum: %w", err)
	}

	if err := j.store.Vacuum(); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}

	statsAfter, err := j.store.Stats()
	if err != nil {
		j.log.Error().Err(err).Msg("failed to read stats after vacuum")
	} else {
		j.log.Info().
			Int64("size_before_bytes", statsBefore.SizeBytes).
			Int64("size_after_bytes", statsAfter.SizeBytes).
			Msg("vacuum completed")
	}

	timer.Stop()
	return nil
}
