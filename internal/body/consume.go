package body

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/frankli0324/go-fetch/internal/fetcherr"
)

// Limits bound a single read of a live source. Zero values disable the
// corresponding bound.
type Limits struct {
	MaxSize int64
	Timeout time.Duration
	URL     string // only used in error messages
}

// Consume reads src into a single buffer. Sources that are already in
// memory resolve immediately; live sources are accumulated chunk by chunk
// under lim. Exactly one outcome is produced: partial data read before a
// failure is discarded.
func Consume(ctx context.Context, src Source, lim Limits) ([]byte, error) {
	switch src.kind {
	case None:
		return []byte{}, nil
	case Text:
		return []byte(src.text), nil
	case Bytes:
		return src.bytes, nil
	case Blob:
		b, err := src.blob.Bytes()
		if err != nil {
			return nil, fetcherr.Wrap(fetcherr.KindSystem, err, "invalid blob body at %s: %v", lim.URL, err)
		}
		return b, nil
	}
	rc, err := src.Reader()
	if err != nil {
		return nil, fetcherr.Wrap(fetcherr.KindSystem, err, "invalid body at %s: %v", lim.URL, err)
	}
	return consumeStream(ctx, rc, lim)
}

const chunkSize = 32 * 1024

func consumeStream(ctx context.Context, rc io.ReadCloser, lim Limits) ([]byte, error) {
	chunks := make(chan []byte)
	done := make(chan error, 1)
	stop := make(chan struct{})

	go func() {
		for {
			buf := make([]byte, chunkSize)
			n, err := rc.Read(buf)
			if n > 0 {
				select {
				case chunks <- buf[:n]:
				case <-stop:
					return
				}
			}
			if err != nil {
				done <- err
				return
			}
		}
	}()

	var timeout <-chan time.Time
	if lim.Timeout > 0 {
		timer := time.NewTimer(lim.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	// abort stops accepting chunks and tears down the source, which in
	// turn unblocks the pending Read of the pump.
	abort := func() {
		close(stop)
		rc.Close()
	}

	var accum [][]byte
	var accumBytes int64
	for {
		select {
		case chunk := <-chunks:
			if lim.MaxSize > 0 && accumBytes+int64(len(chunk)) > lim.MaxSize {
				abort()
				return nil, fetcherr.New(fetcherr.KindMaxSize, "content size at %s over limit: %d", lim.URL, lim.MaxSize)
			}
			accumBytes += int64(len(chunk))
			accum = append(accum, chunk)
		case err := <-done:
			rc.Close()
			if errors.Is(err, io.EOF) {
				return bytes.Join(accum, nil), nil
			}
			return nil, fetcherr.Wrap(fetcherr.KindSystem, err, "invalid response body while trying to fetch %s: %v", lim.URL, err)
		case <-timeout:
			abort()
			return nil, fetcherr.New(fetcherr.KindBodyTimeout, "response timeout while trying to fetch %s (over %dms)", lim.URL, lim.Timeout.Milliseconds())
		case <-ctx.Done():
			abort()
			return nil, fetcherr.Wrap(fetcherr.KindSystem, ctx.Err(), "reading body of %s: %v", lim.URL, ctx.Err())
		}
	}
}
