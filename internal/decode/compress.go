// package decode undoes content codings of response payloads and converts
// legacy charsets to UTF-8.
//
// both stages are lenient on purpose: browsers accept truncated gzip
// streams, zlib-less deflate from old IIS and Apache servers, and
// mislabeled Chinese charsets, so we do too.
package decode

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

var ErrUnsupportedEncoding = errors.New("given content-encoding not supported")

// ShouldDecode reports whether a response payload has to go through
// [Decode]. Decoding is skipped when compression was not requested, for
// HEAD requests, for bodiless 204/304 responses, and when the response
// carries no Content-Encoding at all.
func ShouldDecode(compress bool, method string, status int, hasEncoding bool) bool {
	return compress &&
		method != "HEAD" &&
		status != 204 && status != 304 &&
		hasEncoding
}

// Decode wraps rc with the decoder for coding. The coding is resolved on
// the first Read, so nothing blocks here. For codings other than
// gzip/deflate (and their x- aliases) rc is returned unchanged together
// with [ErrUnsupportedEncoding].
func Decode(rc io.ReadCloser, coding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(coding)) {
	case "gzip", "x-gzip":
		return newLazy(rc, openGzip), nil
	case "deflate", "x-deflate":
		return newLazy(rc, openDeflate), nil
	}
	return rc, ErrUnsupportedEncoding
}

func openGzip(br *bufio.Reader) (io.Reader, string, error) {
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, "", err
	}
	return zr, "gzip", nil
}

// openDeflate peeks at the first byte to tell zlib framing (CMF with
// CM=8) apart from a raw deflate stream.
func openDeflate(br *bufio.Reader) (io.Reader, string, error) {
	head, err := br.Peek(1)
	if err != nil {
		return nil, "", err
	}
	if head[0]&0x0F == 0x08 {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, "", err
		}
		return zr, "zlib", nil
	}
	return flate.NewReader(br), "raw", nil
}

type lazyDecoder struct {
	src     io.ReadCloser
	wire    *watched
	br      *bufio.Reader
	open    func(*bufio.Reader) (io.Reader, string, error)
	r       io.Reader
	framing string
	err     error
}

func newLazy(rc io.ReadCloser, open func(*bufio.Reader) (io.Reader, string, error)) *lazyDecoder {
	w := &watched{r: rc}
	return &lazyDecoder{src: rc, wire: w, br: bufio.NewReader(w), open: open}
}

func (d *lazyDecoder) Read(p []byte) (int, error) {
	if d.r == nil && d.err == nil {
		d.r, d.framing, d.err = d.open(d.br)
		d.err = d.lenient(d.err)
	}
	if d.err != nil {
		return 0, d.err
	}
	n, err := d.r.Read(p)
	return n, d.lenient(err)
}

// Close releases the underlying source. It is safe to call concurrently
// with a pending Read; the decompressor itself holds nothing to release.
func (d *lazyDecoder) Close() error {
	return d.src.Close()
}

// lenient treats a compressed stream that stops early (no final block, no
// trailer) as complete, the way curl does with Z_SYNC_FLUSH. That only
// holds when the payload itself ended cleanly: a failing source, such as
// a connection closed short of its Content-Length, is reported as is.
func (d *lazyDecoder) lenient(err error) error {
	if err == nil || err == io.EOF {
		return err
	}
	if d.wire.err != nil {
		return d.wire.err
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return err
}

// watched records the first failure of the payload source other than a
// clean end.
type watched struct {
	r   io.Reader
	err error
}

func (w *watched) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	if err != nil && err != io.EOF && w.err == nil {
		w.err = err
	}
	return n, err
}
