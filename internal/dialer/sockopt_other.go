//go:build !unix

package dialer

import "syscall"

// control is a no-op where the raw socket options are not supported.
func (o *SocketOptions) control(network, address string, c syscall.RawConn) error {
	return nil
}
