// Package updater self-updates the running binary from GitHub releases,
// with a local backup for rollback.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/tiagocoutinho/linuxgo/internal/logging"
	"github.com/tiagocoutinho/linuxgo/internal/version"
)

// State tracks where the update process is.
type State string

const (
	StateIdle        State = "idle"
	StateChecking    State = "checking"
	StateAvailable   State = "available"
	StateDownloading State = "downloading"
	StateApplying    State = "applying"
	StateRestarting  State = "restarting"
	StateError       State = "error"
	StateRolledBack  State = "rolled_back"
)

// UpdateInfo describes the latest published release relative to this build.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	UpdateAvailable bool      `json:"update_available"`
}

// Status is the updater's current state snapshot.
type Status struct {
	State           State      `json:"state"`
	CurrentVersion  string     `json:"current_version"`
	TargetVersion   string     `json:"target_version,omitempty"`
	Error           string     `json:"error,omitempty"`
	LastChecked     *time.Time `json:"last_checked,omitempty"`
	BackupAvailable bool       `json:"backup_available"`
	BackupVersion   string     `json:"backup_version,omitempty"`
}

// Options configures the updater.
type Options struct {
	// Repository is the GitHub slug, e.g. "tiagocoutinho/linuxgo".
	Repository string
	// Prerelease includes prereleases in the update check.
	Prerelease bool
}

// Service checks for, applies and rolls back binary updates.
type Service struct {
	repository selfupdate.Repository
	updater    *selfupdate.Updater
	backup     *backupManager

	mu            sync.RWMutex
	state         State
	latestRelease *selfupdate.Release
	lastChecked   *time.Time
	lastError     error

	enabled        bool
	disabledReason string

	logger *slog.Logger
}

// NewService builds the updater. If the binary's directory is not writable
// the service comes up disabled rather than failing.
func NewService(opts *Options) (*Service, error) {
	logger := logging.GetLogger("updater")

	if ok, reason := checkWritePermission(); !ok {
		logger.Warn("Update service disabled", "reason", reason)
		return &Service{
			state:          StateIdle,
			disabledReason: reason,
			logger:         logger,
		}, nil
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("create GitHub source: %w", err)
	}
	up, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}

	backup, err := newBackupManager(logger)
	if err != nil {
		logger.Warn("Backup manager unavailable", "error", err)
	}

	return &Service{
		repository: selfupdate.ParseSlug(opts.Repository),
		updater:    up,
		backup:     backup,
		state:      StateIdle,
		enabled:    true,
		logger:     logger,
	}, nil
}

func checkWritePermission() (bool, string) {
	exe, err := os.Executable()
	if err != nil {
		return false, fmt.Sprintf("executable path: %v", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return false, fmt.Sprintf("resolve symlinks: %v", err)
	}
	dir := filepath.Dir(exe)
	tmp := filepath.Join(dir, ".linuxgo.update.test")
	f, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Sprintf("no write permission to %s: %v", dir, err)
	}
	f.Close()
	os.Remove(tmp)
	return true, ""
}

// IsEnabled reports whether update operations are available.
func (s *Service) IsEnabled() bool { return s.enabled }

// DisabledReason explains a disabled service; empty when enabled.
func (s *Service) DisabledReason() string { return s.disabledReason }

// CheckForUpdate queries the repository for the latest release and compares
// it against the running version without downloading anything.
func (s *Service) CheckForUpdate(ctx context.Context) (*UpdateInfo, error) {
	if !s.enabled {
		return nil, newError(ErrCodeDisabled, s.disabledReason, nil)
	}
	if !s.transitionTo(StateChecking, StateIdle, StateAvailable, StateError) {
		return nil, newError(ErrCodeInvalidState,
			fmt.Sprintf("cannot check for updates in state %s", s.getState()), nil)
	}

	current := version.Version
	release, found, err := s.updater.DetectLatest(ctx, s.repository)
	if err != nil {
		s.setError(err)
		return nil, newError(ErrCodeCheckFailed, "update check failed", err)
	}

	now := time.Now()
	s.mu.Lock()
	s.lastChecked = &now
	s.mu.Unlock()

	if !found {
		s.setError(fmt.Errorf("repository has no releases"))
		return nil, newError(ErrCodeNotFound, "repository has no releases", nil)
	}

	// A dev build is always behind the latest release.
	newer := current == "dev" || release.GreaterThan(current)
	if !newer {
		s.transitionTo(StateIdle)
		return &UpdateInfo{
			CurrentVersion: current,
			LatestVersion:  release.Version(),
		}, nil
	}

	s.mu.Lock()
	s.latestRelease = release
	s.mu.Unlock()
	s.transitionTo(StateAvailable)

	return &UpdateInfo{
		CurrentVersion:  current,
		LatestVersion:   release.Version(),
		ReleaseNotes:    release.ReleaseNotes,
		ReleaseURL:      release.URL,
		PublishedAt:     release.PublishedAt,
		UpdateAvailable: true,
	}, nil
}

// ApplyUpdate backs up the current binary, downloads the latest release over
// it, and signals the process to restart.
func (s *Service) ApplyUpdate(ctx context.Context) error {
	if !s.enabled {
		return newError(ErrCodeDisabled, s.disabledReason, nil)
	}

	if s.getState() == StateIdle {
		info, err := s.CheckForUpdate(ctx)
		if err != nil {
			return err
		}
		if !info.UpdateAvailable {
			return newError(ErrCodeNoUpdate, "no update available", nil)
		}
	}
	if !s.transitionTo(StateDownloading, StateAvailable) {
		return newError(ErrCodeInvalidState,
			fmt.Sprintf("cannot apply update in state %s", s.getState()), nil)
	}

	if s.backup != nil {
		if err := s.backup.create(); err != nil {
			s.setError(err)
			return newError(ErrCodeBackupFailed, "backup failed", err)
		}
	}

	s.transitionTo(StateApplying)

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		s.setError(err)
		s.attemptRollback()
		return newError(ErrCodeApplyFailed, "executable path", err)
	}

	s.mu.RLock()
	release := s.latestRelease
	s.mu.RUnlock()

	if err := s.updater.UpdateTo(ctx, release, exe); err != nil {
		s.setError(err)
		s.attemptRollback()
		return newError(ErrCodeApplyFailed, "update failed", err)
	}

	s.transitionTo(StateRestarting)
	s.logger.Info("Update applied, triggering restart", "version", release.Version())
	s.restartSoon()
	return nil
}

// Rollback restores the backed-up binary and signals a restart.
func (s *Service) Rollback(_ context.Context) error {
	if !s.enabled {
		return newError(ErrCodeDisabled, s.disabledReason, nil)
	}
	if s.backup == nil || !s.backup.hasBackup() {
		return newError(ErrCodeNoBackup, "no backup available", nil)
	}
	if err := s.backup.restore(); err != nil {
		return newError(ErrCodeRollbackFailed, "restore failed", err)
	}
	s.transitionTo(StateRolledBack)
	s.logger.Info("Rollback completed, triggering restart")
	s.restartSoon()
	return nil
}

// GetStatus snapshots the updater state.
func (s *Service) GetStatus(_ context.Context) *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &Status{
		State:          s.state,
		CurrentVersion: version.Version,
		LastChecked:    s.lastChecked,
	}
	if s.latestRelease != nil {
		st.TargetVersion = s.latestRelease.Version()
	}
	if s.lastError != nil {
		st.Error = s.lastError.Error()
	}
	if s.backup != nil {
		st.BackupAvailable = s.backup.hasBackup()
		st.BackupVersion = s.backup.backupVersion()
	}
	return st
}

func (s *Service) transitionTo(next State, validFrom ...State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(validFrom) > 0 && !slices.Contains(validFrom, s.state) {
		return false
	}
	s.logger.Debug("State transition", "from", s.state, "to", next)
	s.state = next
	s.lastError = nil
	return true
}

func (s *Service) getState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) setError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.state = StateError
	s.mu.Unlock()
}

func (s *Service) attemptRollback() {
	if s.backup == nil || !s.backup.hasBackup() {
		s.logger.Error("No backup for automatic rollback")
		return
	}
	if err := s.backup.restore(); err != nil {
		s.logger.Error("Automatic rollback failed", "error", err)
		return
	}
	s.transitionTo(StateRolledBack)
	s.logger.Info("Automatic rollback completed")
}

// restartSoon sends SIGTERM to our own process after a short delay so the
// HTTP response for the triggering request can still go out. The process
// supervisor is expected to start the new binary.
func (s *Service) restartSoon() {
	go func() {
		time.Sleep(500 * time.Millisecond)
		proc, err := os.FindProcess(os.Getpid())
		if err != nil {
			s.logger.Error("Find own process", "error", err)
			return
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			s.logger.Error("Send SIGTERM", "error", err)
		}
	}()
}
