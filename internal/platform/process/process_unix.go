//go:build !windows

package process

import (
	"fmt"
	"os/exec"
	"syscall"
)

// configureProcAttr puts the managed server in its own process group so
// the whole group (parent + children) can be signaled together.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killProcessGroup sends a signal to an entire process group to terminate parent and all children
func killProcessGroup(pid int, sig syscall.Signal) error {
	// Kill the process group (negative PID kills the entire process group)
	if err := syscall.Kill(-pid, sig); err != nil {
		// If process group kill fails, try to kill the individual process
		if err2 := syscall.Kill(pid, sig); err2 != nil {
			return fmt.Errorf("failed to kill process group -%d: %v, also failed to kill process %d: %v", pid, err, pid, err2)
		}
	}
	return nil
}
