package daemon

import (
	"fmt"
	"os"
	"syscall"
)

// WritePidFile records the current process ID for single-instance checks
func WritePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	return os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// RemovePidFile removes the PID file on shutdown
func RemovePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsRunning checks whether a daemon recorded in pidFile is still alive
func IsRunning(pidFile string) (bool, int, error) {
	if pidFile == "" {
		return false, 0, nil
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return false, 0, fmt.Errorf("invalid PID file contents: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, pid, nil
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false, pid, nil
	}
	return true, pid, nil
}
