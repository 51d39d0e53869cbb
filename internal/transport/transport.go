package transport

import (
	"context"
	"io"

	"github.com/frankli0324/go-fetch/internal/headers"
	"github.com/frankli0324/go-fetch/internal/http"
)

type EventKind uint8

const (
	EventSocket EventKind = iota
	EventHeaders
	EventData
	EventEnd
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventSocket:
		return "socket"
	case EventHeaders:
		return "headers"
	case EventData:
		return "data"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	}
	return "unknown"
}

type Event struct {
	Kind EventKind
	Head *Head  // EventHeaders
	Data []byte // EventData, owned by the receiver
	Err  error  // EventError
}

// Head is the status line and header section of a response.
type Head struct {
	Proto      string
	Status     int
	StatusText string
	Header     *headers.Headers
}

// Exchange is a single request/response on its own connection.
//
// The request payload is written through Write and terminated by Close.
// Events are delivered in order, and nothing is delivered after
// EventEnd, EventError or Abort. The channel is closed once the exchange
// is over, which may happen without a terminal event when the context
// passed to Open ends.
type Exchange interface {
	Events() <-chan Event
	io.WriteCloser
	// Abort tears the connection down. It is safe to call more than once
	// and from any goroutine.
	Abort()
}

type Transport interface {
	Open(ctx context.Context, r *http.PreparedRequest) Exchange
}

// DialFunc opens the stream an exchange is carried over.
type DialFunc func(ctx context.Context, r *http.PreparedRequest) (io.ReadWriteCloser, error)
