package body

import (
	"io"
	"sync"
)

// replay is shared by the two halves of a forked stream. Chunks pulled
// from src are kept until both halves have read past them.
type replay struct {
	readMu sync.Mutex
	mu     sync.Mutex
	src    io.ReadCloser
	buf    []byte
	base   int // absolute offset of buf[0]
	err    error
	cursor [2]int
	closed [2]bool
}

type replayReader struct {
	r   *replay
	idx int
}

// tee forks src into two readers that each observe the full content of
// src. Reads from either half pull from src on demand; src is closed once
// both halves are closed.
func tee(src io.ReadCloser) (io.ReadCloser, io.ReadCloser) {
	r := &replay{src: src}
	return &replayReader{r, 0}, &replayReader{r, 1}
}

func (rr *replayReader) Read(p []byte) (int, error) {
	r := rr.r
	for {
		r.mu.Lock()
		if r.closed[rr.idx] {
			r.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		end := r.base + len(r.buf)
		if r.cursor[rr.idx] < end {
			n := copy(p, r.buf[r.cursor[rr.idx]-r.base:])
			r.cursor[rr.idx] += n
			r.compact()
			r.mu.Unlock()
			return n, nil
		}
		if err := r.err; err != nil {
			r.mu.Unlock()
			return 0, err
		}
		r.mu.Unlock()
		r.pull(end)
	}
}

// pull reads the next chunk from src unless the other half already did
// so since end was observed. src is read without holding mu so a Close
// from the other half is never stuck behind a blocked Read.
func (r *replay) pull(end int) {
	r.readMu.Lock()
	defer r.readMu.Unlock()

	r.mu.Lock()
	stale := r.base+len(r.buf) != end || r.err != nil
	r.mu.Unlock()
	if stale {
		return
	}

	chunk := make([]byte, 32*1024)
	n, err := r.src.Read(chunk)

	r.mu.Lock()
	r.buf = append(r.buf, chunk[:n]...)
	if err != nil {
		r.err = err
	}
	r.mu.Unlock()
}

// compact drops the prefix already consumed by every open half.
func (r *replay) compact() {
	low := -1
	for i := range r.cursor {
		if r.closed[i] {
			continue
		}
		if low == -1 || r.cursor[i] < low {
			low = r.cursor[i]
		}
	}
	if low == -1 {
		r.buf, r.base = nil, r.base+len(r.buf)
		return
	}
	if drop := low - r.base; drop > 0 {
		r.buf = append(r.buf[:0:0], r.buf[drop:]...)
		r.base = low
	}
}

func (rr *replayReader) Close() error {
	r := rr.r
	r.mu.Lock()
	if r.closed[rr.idx] {
		r.mu.Unlock()
		return nil
	}
	r.closed[rr.idx] = true
	r.compact()
	both := r.closed[0] && r.closed[1]
	r.mu.Unlock()
	if both {
		return r.src.Close()
	}
	return nil
}
