package chunked

import (
	"io"
	"strconv"

	"github.com/frankli0324/go-fetch/internal/headers"
)

// Writer frames each Write as one chunk on the underlying writer. The body
// ends with [Writer.CloseWithTrailer]; the underlying writer stays open.
type Writer struct {
	w      io.Writer
	head   []byte
	closed bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, head: make([]byte, 0, 18)}
}

func (cw *Writer) Write(data []byte) (int, error) {
	if cw.closed {
		return 0, io.ErrClosedPipe
	}
	// a zero sized chunk would end the body
	if len(data) == 0 {
		return 0, nil
	}
	cw.head = append(strconv.AppendUint(cw.head[:0], uint64(len(data)), 16), '\r', '\n')
	if _, err := cw.w.Write(cw.head); err != nil {
		return 0, err
	}
	n, err := cw.w.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return n, err
	}
	if _, err := io.WriteString(cw.w, "\r\n"); err != nil {
		return n, err
	}
	return n, nil
}

// CloseWithTrailer writes the last chunk and trailer, which may be nil.
func (cw *Writer) CloseWithTrailer(trailer *headers.Headers) error {
	if cw.closed {
		return nil
	}
	cw.closed = true
	if _, err := io.WriteString(cw.w, "0\r\n"); err != nil {
		return err
	}
	if trailer != nil {
		if err := trailer.Write(cw.w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(cw.w, "\r\n")
	return err
}
