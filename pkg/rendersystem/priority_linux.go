//go:build linux

package rendersystem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// renderNice is the niceness requested for the render thread. Lowering it
// needs CAP_SYS_NICE, so failure is expected for unprivileged processes.
const renderNice = -10

// raiseThreadPriority raises the priority of the calling OS thread.
// The caller must have locked its goroutine to the thread.
func raiseThreadPriority() error {
	if err := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), renderNice); err != nil {
		return fmt.Errorf("setpriority: %w", err)
	}
	return nil
}
