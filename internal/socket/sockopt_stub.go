//go:build !linux

// File: internal/socket/sockopt_stub.go
// Author: momentics <momentics@gmail.com>
package socket

import "net"

func tuneListener(ln net.Listener) {}
