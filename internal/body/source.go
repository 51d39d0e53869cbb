// package body models request and response payloads and the one-shot
// pipeline that reads them into memory.
//
// a payload is a [Source], a tagged union resolved once by [Normalize].
// everything downstream switches on [Source.Kind] instead of probing types.
package body

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

type Kind uint8

const (
	None Kind = iota
	Bytes
	Text
	Blob
	Stream
	Multipart
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Bytes:
		return "bytes"
	case Text:
		return "text"
	case Blob:
		return "blob"
	case Stream:
		return "stream"
	case Multipart:
		return "multipart"
	}
	return "unknown"
}

// BlobData is an opaque sized payload with an optional media type.
type BlobData interface {
	Size() int64
	Type() string
	Bytes() ([]byte, error)
}

// MultipartData is a boundary-delimited stream produced elsewhere, e.g. by
// a [mime/multipart.Writer].
type MultipartData interface {
	io.Reader
	Boundary() string
	// KnownLength reports the total encoded size when it is known up front.
	KnownLength() (int64, bool)
}

type Source struct {
	kind   Kind
	bytes  []byte
	text   string
	blob   BlobData
	stream io.ReadCloser
	form   MultipartData
}

var NoSource = Source{}

func FromBytes(b []byte) Source  { return Source{kind: Bytes, bytes: b} }
func FromString(s string) Source { return Source{kind: Text, text: s} }

func FromBlob(b BlobData) Source { return Source{kind: Blob, blob: b} }

func FromStream(r io.Reader) Source {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	return Source{kind: Stream, stream: rc}
}

func FromMultipart(m MultipartData) Source { return Source{kind: Multipart, form: m} }

// Normalize resolves an arbitrary body value. Values that are none of the
// supported shapes are coerced to their string form.
func Normalize(v interface{}) Source {
	switch b := v.(type) {
	case nil:
		return NoSource
	case Source:
		return b
	case string:
		return FromString(b)
	case []byte:
		if b == nil {
			return NoSource
		}
		return FromBytes(b)
	case MultipartData:
		return FromMultipart(b)
	case BlobData:
		return FromBlob(b)
	case io.Reader:
		return FromStream(b)
	default:
		return FromString(fmt.Sprint(b))
	}
}

func (s Source) Kind() Kind     { return s.kind }
func (s Source) IsNone() bool   { return s.kind == None }
func (s Source) String() string { return "body." + s.kind.String() }

// ContentType derives the media type implied by the payload shape.
func (s Source) ContentType() (string, bool) {
	switch s.kind {
	case Text:
		return "text/plain;charset=UTF-8", true
	case Blob:
		if t := s.blob.Type(); t != "" {
			return t, true
		}
	case Multipart:
		return "multipart/form-data;boundary=" + s.form.Boundary(), true
	}
	return "", false
}

// TotalBytes reports the encoded length when it is known without reading.
func (s Source) TotalBytes() (int64, bool) {
	switch s.kind {
	case None:
		return 0, true
	case Text:
		return int64(len(s.text)), true
	case Bytes:
		return int64(len(s.bytes)), true
	case Blob:
		return s.blob.Size(), true
	case Multipart:
		return s.form.KnownLength()
	}
	return -1, false
}

// Reader opens the payload for transmission. For streams this hands out
// the single underlying reader, so it may only be called once per source.
func (s Source) Reader() (io.ReadCloser, error) {
	switch s.kind {
	case None:
		return io.NopCloser(bytes.NewReader(nil)), nil
	case Text:
		return io.NopCloser(strings.NewReader(s.text)), nil
	case Bytes:
		return io.NopCloser(bytes.NewReader(s.bytes)), nil
	case Blob:
		b, err := s.blob.Bytes()
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(b)), nil
	case Stream:
		return s.stream, nil
	case Multipart:
		if rc, ok := s.form.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(s.form), nil
	}
	return nil, fmt.Errorf("unknown body kind %d", s.kind)
}

// Close releases a live source without reading it.
func (s Source) Close() error {
	switch s.kind {
	case Stream:
		return s.stream.Close()
	case Multipart:
		if c, ok := s.form.(io.Closer); ok {
			return c.Close()
		}
	}
	return nil
}

// fork splits s into two independently readable sources. Only live
// sources are actually forked, the rest are plain value copies.
func (s Source) fork() (Source, Source) {
	switch s.kind {
	case Stream:
		a, b := tee(s.stream)
		return Source{kind: Stream, stream: a}, Source{kind: Stream, stream: b}
	case Multipart:
		r, _ := s.Reader()
		a, b := tee(r)
		return Source{kind: Multipart, form: forkedForm{a, s.form}},
			Source{kind: Multipart, form: forkedForm{b, s.form}}
	case Bytes:
		c := append([]byte(nil), s.bytes...)
		return s, Source{kind: Bytes, bytes: c}
	}
	return s, s
}

type forkedForm struct {
	io.ReadCloser
	meta MultipartData
}

func (f forkedForm) Boundary() string           { return f.meta.Boundary() }
func (f forkedForm) KnownLength() (int64, bool) { return f.meta.KnownLength() }
