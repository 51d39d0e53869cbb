package dialer

import (
	"net"
	"time"
)

// SocketOptions tune the TCP connection of a request. Passed as a
// request's transport options they override [CoreDialer.Socket].
type SocketOptions struct {
	DisableNoDelay bool          `yaml:"disable_nodelay"`
	KeepAlive      time.Duration `yaml:"keepalive"` // negative disables keep-alive probes
	ReuseAddr      bool          `yaml:"reuse_addr"`
	RecvBuffer     int           `yaml:"recv_buffer" validate:"gte=0"`
	SendBuffer     int           `yaml:"send_buffer" validate:"gte=0"`
	LocalAddr      string        `yaml:"local_addr" validate:"omitempty,hostname_port|ip"`
}

func (o *SocketOptions) Clone() *SocketOptions {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

// netDialer returns a [net.Dialer] applying o, which may be nil.
func (o *SocketOptions) netDialer() (*net.Dialer, error) {
	d := &net.Dialer{}
	if o == nil {
		return d, nil
	}
	d.KeepAlive = o.KeepAlive
	if o.LocalAddr != "" {
		addr := o.LocalAddr
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, "0")
		}
		local, err := net.ResolveTCPAddr("tcp", addr)
		if err != nil {
			return nil, err
		}
		d.LocalAddr = local
	}
	d.Control = o.control
	return d, nil
}

// afterDial applies the options only settable on a connected socket.
func (o *SocketOptions) afterDial(conn net.Conn) error {
	if o == nil || !o.DisableNoDelay {
		return nil
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		return tc.SetNoDelay(false)
	}
	return nil
}
