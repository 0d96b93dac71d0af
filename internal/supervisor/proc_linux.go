//go:build linux

package supervisor

import (
	"os/exec"
	"syscall"
)

// Pdeathsig takes the worker down even when the launcher is SIGKILLed and
// never gets to run its cleanup.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
}
