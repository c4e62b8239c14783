// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package ptysession

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/groupsio/harnessd/internal/protocol"
)

// resolveSignal maps a wire pty.signal name (spec §4.4 "Signals") to the
// unix signal the supervisor delivers to the child process. eof does not
// map to a signal; the caller closes stdin instead.
func resolveSignal(sig protocol.PTYSignal) (syscall.Signal, bool) {
	switch sig {
	case protocol.SignalInterrupt:
		return syscall.Signal(unix.SIGINT), true
	case protocol.SignalTerminate:
		return syscall.Signal(unix.SIGTERM), true
	default:
		return 0, false
	}
}

// signalName formats the symbolic name for an exit signal (spec §6
// "exit.signal is the symbolic signal name").
func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(unix.Signal(sig)); name != "" {
		return name
	}
	return fmt.Sprintf("SIG%d", int(sig))
}
