//go:build unix

package dialer

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// control sets the options that must be in place before connect.
func (o *SocketOptions) control(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		if o.ReuseAddr {
			if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); serr != nil {
				return
			}
		}
		if o.RecvBuffer > 0 {
			if serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, o.RecvBuffer); serr != nil {
				return
			}
		}
		if o.SendBuffer > 0 {
			serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, o.SendBuffer)
		}
	})
	if err != nil {
		return err
	}
	return serr
}
