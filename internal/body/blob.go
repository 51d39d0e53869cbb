package body

// MemBlob is a [BlobData] backed by a byte slice.
type MemBlob struct {
	buf   []byte
	ctype string
}

func NewMemBlob(buf []byte, ctype string) *MemBlob {
	return &MemBlob{buf, ctype}
}

func (m *MemBlob) Size() int64            { return int64(len(m.buf)) }
func (m *MemBlob) Type() string           { return m.ctype }
func (m *MemBlob) Bytes() ([]byte, error) { return m.buf, nil }

// Slice returns the bytes in [start, end), clamped to the blob bounds.
// Negative offsets count from the end.
func (m *MemBlob) Slice(start, end int) []byte {
	size := len(m.buf)
	clamp := func(i int) int {
		if i < 0 {
			i += size
		}
		if i < 0 {
			return 0
		}
		if i > size {
			return size
		}
		return i
	}
	start, end = clamp(start), clamp(end)
	if start >= end {
		return []byte{}
	}
	return m.buf[start:end]
}
