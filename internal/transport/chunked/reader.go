// package chunked implements the chunked transfer coding of RFC 9112
// section 7.1.
package chunked

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

var (
	ErrMalformed    = errors.New("malformed chunked encoding")
	ErrInvalidByte  = errors.New("invalid byte in chunk length")
	ErrSizeTooLarge = errors.New("http chunk length too large")
)

// NewReader decodes the chunked body read from r. Chunk extensions are
// ignored and the trailer section is consumed and dropped, so that r is
// left right after the message.
func NewReader(r io.Reader) io.Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &chunkedReader{r: br}
}

type chunkedReader struct {
	r    *bufio.Reader
	left int64 // bytes left in the current chunk
	open bool  // inside a chunk, its trailing CRLF not yet read
	err  error
}

func (c *chunkedReader) readLine() ([]byte, error) {
	line, err := c.r.ReadSlice('\n')
	if err == bufio.ErrBufferFull {
		return nil, ErrSizeTooLarge
	}
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

func (c *chunkedReader) readChunkHeader() (int64, error) {
	line, err := c.readLine()
	if err != nil {
		return 0, err
	}
	if i := bytes.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return 0, ErrMalformed
	}
	if len(line) > 15 {
		return 0, ErrSizeTooLarge
	}
	var n int64
	for _, b := range line {
		switch {
		case '0' <= b && b <= '9':
			b = b - '0'
		case 'a' <= b && b <= 'f':
			b = b - 'a' + 10
		case 'A' <= b && b <= 'F':
			b = b - 'A' + 10
		default:
			return 0, ErrInvalidByte
		}
		n = n<<4 | int64(b)
	}
	return n, nil
}

// skipTrailer drops trailer fields up to the empty line ending the body.
func (c *chunkedReader) skipTrailer() error {
	for {
		line, err := c.readLine()
		if err != nil {
			return err
		}
		if len(line) == 0 {
			return nil
		}
	}
}

func (c *chunkedReader) Read(p []byte) (n int, err error) {
	for c.err == nil {
		if c.left > 0 {
			if int64(len(p)) > c.left {
				p = p[:c.left]
			}
			n, err = c.r.Read(p)
			c.left -= int64(n)
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			c.err = err
			return n, err
		}
		if c.open {
			var crlf [2]byte
			if _, err := io.ReadFull(c.r, crlf[:]); err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				c.err = err
				break
			}
			if crlf[0] != '\r' || crlf[1] != '\n' {
				c.err = ErrMalformed
				break
			}
			c.open = false
		}
		size, err := c.readChunkHeader()
		if err != nil {
			c.err = err
			break
		}
		if size == 0 {
			if c.err = c.skipTrailer(); c.err == nil {
				c.err = io.EOF
			}
			break
		}
		c.left, c.open = size, true
	}
	return 0, c.err
}
