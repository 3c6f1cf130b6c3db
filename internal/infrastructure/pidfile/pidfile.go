// Package pidfile keeps a second dispatcher off the same store. Two engines
// sharing one database would each arm offer timers for the same pickups.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile is a filesystem lock recording the owning process id.
type PIDFile struct {
	path string
}

func New(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Acquire claims the file for this process. A file naming a live process
// refuses the claim; a stale or garbled file is replaced.
func (p *PIDFile) Acquire() error {
	if data, err := os.ReadFile(p.path); err == nil {
		pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if convErr == nil && processAlive(pid) {
			return fmt.Errorf("another dispatcher holds %s (PID %d)", p.path, pid)
		}
		_ = os.Remove(p.path)
	}

	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// Release removes the file; already gone is fine.
func (p *PIDFile) Release() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pid file: %w", err)
	}
	return nil
}

// processAlive probes the pid with signal 0. EPERM means the process exists
// under another user, which still counts as running.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}
