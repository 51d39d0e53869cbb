package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
	"sync"

	"github.com/frankli0324/go-fetch/internal/headers"
	"github.com/frankli0324/go-fetch/internal/http"
	"github.com/frankli0324/go-fetch/internal/transport/chunked"
)

var (
	ErrAborted   = errors.New("exchange aborted")
	ErrNoDialer  = errors.New("no dialer configured")
	errMalformed = errors.New("malformed HTTP response")
)

// HTTP1 carries every exchange over a fresh connection obtained from
// Dial, or from the [http.Dialer] passed as the request's transport
// options.
type HTTP1 struct {
	Dial DialFunc
}

func (t *HTTP1) Open(ctx context.Context, r *http.PreparedRequest) Exchange {
	ctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()
	x := &exchange{
		// one slot, so the terminal event of a bodiless response never
		// waits for a reader
		events: make(chan Event, 1),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		pr:     pr, pw: pw,
	}
	// the context bounds the whole exchange, a blocked read included
	context.AfterFunc(ctx, x.Abort)
	go x.run(ctx, t, r)
	return x
}

func (t *HTTP1) dial(ctx context.Context, r *http.PreparedRequest) (io.ReadWriteCloser, error) {
	if d, ok := r.TransportOptions().(http.Dialer); ok {
		return d.Dial(ctx, r)
	}
	if t.Dial == nil {
		return nil, ErrNoDialer
	}
	return t.Dial(ctx, r)
}

type exchange struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc

	// request payload, written by the caller
	pr *io.PipeReader
	pw *io.PipeWriter

	mu      sync.Mutex
	conn    io.Closer
	aborted bool
}

func (x *exchange) Events() <-chan Event        { return x.events }
func (x *exchange) Write(p []byte) (int, error) { return x.pw.Write(p) }
func (x *exchange) Close() error                { return x.pw.Close() }

func (x *exchange) Abort() {
	x.once.Do(func() {
		close(x.done)
		x.cancel()
		x.pr.CloseWithError(ErrAborted)
		x.mu.Lock()
		x.aborted = true
		if x.conn != nil {
			x.conn.Close()
		}
		x.mu.Unlock()
	})
}

// setConn hands conn over to Abort. It reports false, closing conn, when
// the exchange was aborted while dialing.
func (x *exchange) setConn(conn io.Closer) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.aborted {
		conn.Close()
		return false
	}
	x.conn = conn
	return true
}

// emit delivers ev. It gives up once the exchange is aborted or its
// context ends, so an abandoned response never pins the goroutine.
func (x *exchange) emit(ev Event) bool {
	// Abort closes done before the connection, so failures it causes are
	// never delivered
	select {
	case <-x.done:
		return false
	default:
	}
	select {
	case x.events <- ev:
		return true
	case <-x.done:
		return false
	case <-x.ctx.Done():
		return false
	}
}

func (x *exchange) fail(err error) {
	x.emit(Event{Kind: EventError, Err: err})
}

// run owns x.events and closes it on return, after the connection.
func (x *exchange) run(ctx context.Context, t *HTTP1, r *http.PreparedRequest) {
	defer close(x.events)
	defer x.cancel()
	defer x.pr.CloseWithError(io.ErrClosedPipe)

	conn, err := t.dial(ctx, r)
	if err != nil {
		x.fail(err)
		return
	}
	if !x.setConn(conn) {
		return
	}
	defer conn.Close()
	if !x.emit(Event{Kind: EventSocket}) {
		return
	}

	if err := x.writeRequest(conn, r); err != nil {
		x.fail(err)
		return
	}
	br := bufio.NewReader(conn)
	head, err := ReadResponseHead(br)
	if err != nil {
		x.fail(err)
		return
	}
	payload, err := readTransfer(br, r.Method(), head)
	if err != nil {
		x.fail(err)
		return
	}
	if !x.emit(Event{Kind: EventHeaders, Head: head}) {
		return
	}
	x.pump(payload, conn)
}

func (x *exchange) writeRequest(w io.Writer, r *http.PreparedRequest) error {
	bw := bufio.NewWriter(w) // default bufsize is 4096
	hasBody := !r.Payload.IsNone()
	rh := RequestHead{
		Method:        r.Method(),
		Target:        r.RequestURI(),
		Host:          r.HeaderHost,
		ContentLength: r.ContentLength,
		Chunked:       hasBody && r.ContentLength < 0,
		Header:        r.Header,
	}
	if err := WriteHead(bw, rh); err != nil {
		return err
	}
	if hasBody {
		if rh.Chunked {
			cw := chunked.NewWriter(bw)
			if _, err := io.Copy(cw, x.pr); err != nil {
				return err
			}
			if err := cw.CloseWithTrailer(nil); err != nil {
				return err
			}
		} else if _, err := io.Copy(bw, x.pr); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// pump forwards payload as data events. The connection is released as
// soon as the payload ends, before EventEnd is handed over.
func (x *exchange) pump(payload io.Reader, conn io.Closer) {
	if _, ok := payload.(eofReader); ok {
		conn.Close()
		x.emit(Event{Kind: EventEnd})
		return
	}
	for {
		buf := make([]byte, 32*1024)
		n, err := payload.Read(buf)
		if n > 0 && !x.emit(Event{Kind: EventData, Data: buf[:n]}) {
			return
		}
		if err == io.EOF {
			conn.Close()
			x.emit(Event{Kind: EventEnd})
			return
		}
		if err != nil {
			x.fail(err)
			return
		}
	}
}

// RequestHead is the request line and header section of a request.
type RequestHead struct {
	Method        string
	Target        string
	Host          string
	ContentLength int64 // omitted when negative
	Chunked       bool
	Header        *headers.Headers
}

// WriteHead writes the request line and header part of an http 1.1
// request, e.g.:
//
//	GET / HTTP/1.1\r\n
//	Host: www.google.com\r\n
//	X-Xx-Yy: cccccc\r\n
//	\r\n
func WriteHead(w io.Writer, rh RequestHead) error {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}
	bw.WriteString(rh.Method)
	bw.WriteByte(' ')
	bw.WriteString(rh.Target)
	bw.WriteString(" HTTP/1.1\r\n")

	bw.WriteString("Host: ")
	bw.WriteString(rh.Host)
	bw.WriteString("\r\n")
	if rh.Chunked {
		bw.WriteString("Transfer-Encoding: chunked\r\n")
	} else if rh.ContentLength >= 0 {
		bw.WriteString("Content-Length: ")
		bw.WriteString(strconv.FormatInt(rh.ContentLength, 10))
		bw.WriteString("\r\n")
	}
	if rh.Header != nil {
		if err := rh.Header.Write(bw); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadResponseHead reads the status line and headers of the final
// response, skipping interim 1xx responses other than 101.
func ReadResponseHead(br *bufio.Reader) (*Head, error) {
	for {
		head, err := ReadHead(br)
		if err != nil {
			return nil, err
		}
		if head.Status >= 200 || head.Status == 101 {
			return head, nil
		}
	}
}

// ReadHead reads a single status line and header section. Header lines
// that are not valid fields are dropped rather than failing the read.
func ReadHead(br *bufio.Reader) (*Head, error) {
	tp := textproto.NewReader(br)

	line, err := tp.ReadLine()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	proto, status, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return nil, errMalformed
	}
	head := &Head{Proto: proto, Header: headers.New()}
	status = strings.TrimLeft(status, " ")
	code, text, _ := strings.Cut(status, " ")
	if len(code) != 3 {
		return nil, fmt.Errorf("malformed HTTP status code %q", code)
	}
	head.Status, err = strconv.Atoi(code)
	if err != nil || head.Status < 100 {
		return nil, fmt.Errorf("malformed HTTP status code %q", code)
	}
	head.StatusText = strings.TrimSpace(text)

	for {
		line, err := tp.ReadContinuedLine()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if line == "" {
			return head, nil
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		head.Header.Append(name, value) // invalid fields are skipped
	}
}

// readTransfer frames the payload following head.
func readTransfer(br *bufio.Reader, method string, head *Head) (io.Reader, error) {
	if method == "HEAD" || head.Status < 200 || head.Status == 204 || head.Status == 304 {
		return eofReader{}, nil
	}

	if te, ok := head.Header.Get("transfer-encoding"); ok {
		codings := strings.Split(te, ",")
		if strings.EqualFold(strings.TrimSpace(codings[len(codings)-1]), "chunked") {
			return chunked.NewReader(br), nil
		}
		// not chunked as the final coding: the body runs until close
		return br, nil
	}

	contentLens := head.Header.All("content-length")
	// Hardening against HTTP request smuggling, taken from standard library
	if len(contentLens) > 1 {
		// Per RFC 9110 Section 8.6
		first := textproto.TrimString(contentLens[0])
		for _, cl := range contentLens[1:] {
			if first != textproto.TrimString(cl) {
				return nil, fmt.Errorf("message cannot contain multiple Content-Length headers; got %q", contentLens)
			}
		}
		head.Header.Set("content-length", first)
	}
	if len(contentLens) > 0 {
		n, err := strconv.ParseUint(textproto.TrimString(contentLens[0]), 10, 63)
		if err != nil {
			return nil, fmt.Errorf("bad Content-Length %q", contentLens[0])
		}
		return &exactReader{br, int64(n)}, nil
	}
	return br, nil
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

// exactReader reads exactly n bytes; an early EOF is an error.
type exactReader struct {
	r io.Reader
	n int64
}

func (e *exactReader) Read(p []byte) (int, error) {
	if e.n <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > e.n {
		p = p[:e.n]
	}
	n, err := e.r.Read(p)
	e.n -= int64(n)
	if err == io.EOF && e.n > 0 {
		err = io.ErrUnexpectedEOF
	} else if err == io.EOF {
		err = nil
	}
	return n, err
}
