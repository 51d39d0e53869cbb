package body

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/frankli0324/go-fetch/internal/decode"
	"github.com/frankli0324/go-fetch/internal/fetcherr"
)

// Body is embedded by requests and responses. It owns the payload source
// and guards it so that it is read at most once.
type Body struct {
	mu     sync.Mutex
	src    Source
	used   bool
	limits Limits
	ctype  func() string
}

// Init attaches src to the owner. ctype lazily reports the owner's
// Content-Type header, used by [Body.Blob] and [Body.TextConverted].
func (b *Body) Init(src Source, lim Limits, ctype func() string) {
	b.src, b.limits, b.ctype = src, lim, ctype
}

// MarkUsed flips the used guard without reading, for owners seeded from
// an already consumed one.
func (b *Body) MarkUsed() {
	b.mu.Lock()
	b.used = true
	b.mu.Unlock()
}

func (b *Body) BodyUsed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Source returns the current payload source without consuming it.
func (b *Body) Source() Source {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.src
}

// take flips the used guard. The guard flips even if the read that
// follows fails.
func (b *Body) take() (Source, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used {
		return NoSource, fetcherr.New(fetcherr.KindBodyReused, "body used already for: %s", b.limits.URL)
	}
	b.used = true
	return b.src, nil
}

// Take claims the source for transmission. It counts as a read.
func (b *Body) Take() (Source, error) {
	return b.take()
}

// Close releases a payload that is not going to be read. For a fetched
// response this tears down the connection behind it. It counts as a read,
// and closing a body that was already read does nothing.
func (b *Body) Close() error {
	b.mu.Lock()
	if b.used {
		b.mu.Unlock()
		return nil
	}
	b.used = true
	src := b.src
	b.mu.Unlock()
	return src.Close()
}

func (b *Body) consume(ctx context.Context) ([]byte, error) {
	src, err := b.take()
	if err != nil {
		return nil, err
	}
	return Consume(ctx, src, b.limits)
}

// Bytes reads the whole payload.
func (b *Body) Bytes(ctx context.Context) ([]byte, error) {
	return b.consume(ctx)
}

// Text reads the whole payload as UTF-8 text.
func (b *Body) Text(ctx context.Context) (string, error) {
	buf, err := b.consume(ctx)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// JSON reads the whole payload and decodes it into v.
func (b *Body) JSON(ctx context.Context, v interface{}) error {
	buf, err := b.consume(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("invalid json response body at %s: %w", b.limits.URL, err)
	}
	return nil
}

// TextConverted reads the whole payload and decodes it from the charset
// declared by the Content-Type header or sniffed from the payload itself.
func (b *Body) TextConverted(ctx context.Context) (string, error) {
	buf, err := b.consume(ctx)
	if err != nil {
		return "", err
	}
	return decode.Text(b.contentType(), buf)
}

// Blob reads the whole payload into an in-memory blob typed after the
// owner's Content-Type header.
func (b *Body) Blob(ctx context.Context) (*MemBlob, error) {
	buf, err := b.consume(ctx)
	if err != nil {
		return nil, err
	}
	return NewMemBlob(buf, b.contentType()), nil
}

func (b *Body) contentType() string {
	if b.ctype == nil {
		return ""
	}
	return b.ctype()
}

// CloneSource forks the payload so that the owner and a clone can each
// read it once. The owner keeps one half of a forked stream, the other is
// returned.
func (b *Body) CloneSource() (Source, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used {
		return NoSource, fetcherr.New(fetcherr.KindBodyReused, "cannot clone body after it is used: %s", b.limits.URL)
	}
	mine, theirs := b.src.fork()
	b.src = mine
	return theirs, nil
}
