package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"venuebook/internal/config"

	"github.com/rs/zerolog"
)

const backupPrefix = "backup_"

// PrepareFunc runs before a copy. The returned release, when not nil, runs once
// the files are copied.
type PrepareFunc func(ctx context.Context) (release func(), err error)

// BackupService copies the data files of the active backend into timestamped directories.
type BackupService struct {
	files   []string
	config  config.BackupConfig
	logger  *zerolog.Logger
	prepare PrepareFunc
	now     func() time.Time
}

// NewBackupService backs up files according to cfg. prepare, when set, runs before
// each copy; callers use it to take the data lock and checkpoint the WAL.
func NewBackupService(files []string, cfg config.BackupConfig, prepare PrepareFunc, logger *zerolog.Logger) *BackupService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BackupService{
		files:   files,
		config:  cfg,
		logger:  logger,
		prepare: prepare,
		now:     time.Now,
	}
}

func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}

	interval := s.config.Interval()
	s.logger.Info().Dur("interval", interval).Msg("Backup service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.PerformBackup(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Initial backup failed")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PerformBackup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Scheduled backup failed")
			}
			s.CleanupOldBackups()
		}
	}
}

// PerformBackup copies every existing data file and returns the backup directory.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if s.prepare != nil {
		release, err := s.prepare(ctx)
		if err != nil {
			return "", fmt.Errorf("prepare backup: %w", err)
		}
		if release != nil {
			defer release()
		}
	}

	dir := filepath.Join(s.config.Path, backupPrefix+s.now().Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	s.logger.Info().Str("path", dir).Msg("Performing backup")

	copied := 0
	for _, src := range s.files {
		if _, err := os.Stat(src); os.IsNotExist(err) {
			s.logger.Warn().Str("file", src).Msg("Data file missing, skipped")
			continue
		}
		if err := copyFile(src, filepath.Join(dir, filepath.Base(src))); err != nil {
			return dir, fmt.Errorf("copy %s: %w", src, err)
		}
		copied++
	}

	s.logger.Info().Int("files", copied).Msg("Backup completed successfully")
	return dir, nil
}

func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return err
	}
	return destination.Close()
}

// CleanupOldBackups removes backup directories older than the retention period.
func (s *BackupService) CleanupOldBackups() {
	if s.config.RetentionDays <= 0 {
		return
	}

	entries, err := os.ReadDir(s.config.Path)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), backupPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("backup", entry.Name()).Msg("Deleting old backup")
			if err := os.RemoveAll(filepath.Join(s.config.Path, entry.Name())); err != nil {
				s.logger.Error().Err(err).Str("backup", entry.Name()).Msg("Failed to delete old backup")
			}
		}
	}
}
