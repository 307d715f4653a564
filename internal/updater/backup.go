package updater

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/tiagocoutinho/linuxgo/internal/version"
)

const (
	backupFilename     = "linuxgo.backup"
	backupInfoFilename = "backup.json"
)

type backupInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	ExecPath  string    `json:"exec_path"`
}

// backupManager keeps one copy of the previous binary under
// ~/.cache/linuxgo/backup so a failed update can be undone.
type backupManager struct {
	mu     sync.RWMutex
	dir    string
	info   *backupInfo
	logger *slog.Logger
}

func newBackupManager(logger *slog.Logger) (*backupManager, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("home directory: %w", err)
	}
	dir := filepath.Join(home, ".cache", "linuxgo", "backup")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	m := &backupManager{dir: dir, logger: logger}
	m.loadInfo()
	return m, nil
}

func (m *backupManager) loadInfo() {
	data, err := os.ReadFile(filepath.Join(m.dir, backupInfoFilename))
	if err != nil {
		return
	}
	var info backupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		m.logger.Warn("Failed to parse backup info", "error", err)
		return
	}
	if _, err := os.Stat(filepath.Join(m.dir, backupFilename)); err != nil {
		m.logger.Warn("Backup file missing", "dir", m.dir)
		return
	}
	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()
	m.logger.Info("Loaded backup info", "version", info.Version)
}

func (m *backupManager) create() error {
	execPath, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("executable path: %w", err)
	}
	if err := copyFile(execPath, filepath.Join(m.dir, backupFilename)); err != nil {
		return fmt.Errorf("copy executable: %w", err)
	}

	info := backupInfo{
		Version:   version.Version,
		CreatedAt: time.Now(),
		ExecPath:  execPath,
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal backup info: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, backupInfoFilename), data, 0o644); err != nil {
		return fmt.Errorf("write backup info: %w", err)
	}

	m.mu.Lock()
	m.info = &info
	m.mu.Unlock()
	m.logger.Info("Backup created", "version", info.Version)
	return nil
}

func (m *backupManager) restore() error {
	m.mu.RLock()
	info := m.info
	m.mu.RUnlock()
	if info == nil {
		return fmt.Errorf("no backup available")
	}
	if err := copyFile(filepath.Join(m.dir, backupFilename), info.ExecPath); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}
	m.logger.Info("Backup restored", "version", info.Version)
	return nil
}

func (m *backupManager) hasBackup() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info != nil
}

func (m *backupManager) backupVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.info == nil {
		return ""
	}
	return m.info.Version
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}
