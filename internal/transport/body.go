package transport

import (
	"io"
	"sync"
)

// Body adapts the events left on ex after EventHeaders into a stream.
// Closing it aborts the exchange.
func Body(ex Exchange) io.ReadCloser {
	return &eventReader{ex: ex, closed: make(chan struct{})}
}

type eventReader struct {
	ex     Exchange
	buf    []byte
	err    error
	closed chan struct{}
	once   sync.Once
}

func (r *eventReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		select {
		case <-r.closed:
			r.err = ErrAborted
			continue
		default:
		}
		select {
		case ev, ok := <-r.ex.Events():
			if !ok {
				// the exchange ended without a terminal event
				r.err = ErrAborted
				continue
			}
			switch ev.Kind {
			case EventData:
				r.buf = ev.Data
			case EventEnd:
				r.err = io.EOF
			case EventError:
				r.err = ev.Err
				select {
				case <-r.closed:
					// caused by our own abort
					r.err = ErrAborted
				default:
				}
			}
		case <-r.closed:
			r.err = ErrAborted
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// Close aborts the exchange and unblocks a pending Read.
func (r *eventReader) Close() error {
	r.once.Do(func() {
		close(r.closed)
		r.ex.Abort()
	})
	return nil
}
