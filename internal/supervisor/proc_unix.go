//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
	"time"
)

// terminateProcess signals the worker's whole process group so anything the
// worker started goes down with it. The grace period ends early once exited
// is closed.
func terminateProcess(cmd *exec.Cmd, grace time.Duration, exited <-chan struct{}) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if pid <= 0 {
		return
	}
	pgid, err := syscall.Getpgid(pid)
	if err != nil || pgid <= 0 {
		_ = cmd.Process.Kill()
		return
	}
	if grace > 0 {
		_ = syscall.Kill(-pgid, syscall.SIGTERM)
		timer := time.NewTimer(grace)
		select {
		case <-exited:
		case <-timer.C:
		}
		timer.Stop()
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}
