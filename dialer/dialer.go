// package dialer exposes the connection dialers of a [fetch.Client].
//
// A Dialer turns a prepared request into a raw stream: a TCP connection,
// a TLS session over it, or a tunnel through a proxy. Dialers keep no
// connection state of their own, so one can be replaced on a live client
// or handed to a single request through its transport options.
package dialer

import (
	"github.com/frankli0324/go-fetch/internal/dialer"
)

type Dialer = dialer.Dialer

// CoreDialer is what a zero value [fetch.Client] dials with.
type CoreDialer = dialer.CoreDialer

type (
	ProxyFunc   = dialer.ProxyFunc
	ProxyConfig = dialer.ProxyConfig
	ProxyError  = dialer.ProxyError
)

// ResolveConfig pins hostnames to addresses, restricts the IP family or
// sends lookups to a specific DNS server instead of the system resolver.
type ResolveConfig = dialer.ResolveConfig

// SocketOptions tune the TCP socket. Passed as a request's transport
// options they override [CoreDialer.Socket] for that request.
type SocketOptions = dialer.SocketOptions

var ErrUnsupportedProxy = dialer.ErrUnsupportedProxy

var (
	StaticProxy      = dialer.StaticProxy
	EnvironmentProxy = dialer.EnvironmentProxy
)
