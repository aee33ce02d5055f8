//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

const createNewProcessGroup = 0x00000200

// setSysProcAttr creates a new process group so termination does not leak to
// the supervisor's own console group.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}

// Windows has no SIGTERM delivery for console-less children; terminate and
// kill both resolve to TerminateProcess via os.Process.Kill.
func (c *Child) terminate() {
	_ = c.cmd.Process.Kill()
}

func (c *Child) kill() {
	_ = c.cmd.Process.Kill()
}
