// Package pidfile guards against concurrent daemon instances.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile represents the daemon's PID file
type PIDFile struct {
	path string
	pid  int
}

// New creates a PIDFile for the current process
func New(path string) *PIDFile {
	return &PIDFile{
		path: path,
		pid:  os.Getpid(),
	}
}

// Create writes the PID file, refusing when a live instance already holds it.
// Stale files left by dead processes are replaced.
func (p *PIDFile) Create() error {
	if existing, err := p.readExisting(); err == nil {
		if processAlive(existing) {
			return fmt.Errorf("daemon already running with PID %d", existing)
		}
		if err := os.Remove(p.path); err != nil {
			return fmt.Errorf("failed to remove stale PID file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read existing PID file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	if err := os.WriteFile(p.path, []byte(fmt.Sprintf("%d\n", p.pid)), 0o644); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	return nil
}

// Remove deletes the PID file if it still belongs to this process
func (p *PIDFile) Remove() error {
	existing, err := p.readExisting()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return os.Remove(p.path)
	}

	if existing != p.pid {
		return fmt.Errorf("PID file holds %d, not our %d, refusing to remove", existing, p.pid)
	}
	return os.Remove(p.path)
}

// CheckRunning reports whether another instance holds the PID file
func (p *PIDFile) CheckRunning() (bool, int, error) {
	existing, err := p.readExisting()
	if errors.Is(err, os.ErrNotExist) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	return processAlive(existing), existing, nil
}

// Path returns the PID file location
func (p *PIDFile) Path() string {
	return p.path
}

func (p *PIDFile) readExisting() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %s", pidStr)
	}
	return pid, nil
}

// processAlive probes the PID with signal 0. EPERM still means the process
// exists, it just belongs to someone else.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
