//go:build linux

// File: internal/socket/sockopt_linux.go
// Author: momentics <momentics@gmail.com>
//
// SO_REUSEADDR tuning on the listening socket's underlying file descriptor,
// grounded on the teacher's affinity_linux.go pattern of a Linux-only
// syscall path behind a build tag, with a no-op stub for other platforms.
package socket

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/momentics/stateline/internal/applog"
)

func tuneListener(ln net.Listener) {
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return
	}
	raw, err := tcpLn.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			applog.With("socket").Debug("SO_REUSEADDR unavailable", "err", err)
		}
	})
}
