// package headers implements the case-insensitive header multimap shared
// by requests and responses.
//
// unlike [net/http.Header], names are stored lowercase, iteration follows
// the sorted order of names instead of insertion order, and every value is
// validated on the way in.
package headers

import (
	"io"
	"iter"
	"sort"
	"strings"
)

type Headers struct {
	m map[string][]string
}

func New() *Headers {
	return &Headers{m: map[string][]string{}}
}

// From builds a multimap from init, see [Headers.Fill] for accepted shapes.
func From(init interface{}) (*Headers, error) {
	h := New()
	if err := h.Fill(init); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Headers) Set(name, value string) error {
	n, v, err := sanitize(name, value)
	if err != nil {
		return err
	}
	h.m[n] = []string{v}
	return nil
}

func (h *Headers) Append(name, value string) error {
	n, v, err := sanitize(name, value)
	if err != nil {
		return err
	}
	h.m[n] = append(h.m[n], v)
	return nil
}

// Get returns every value of name joined by ",". ok is false when the
// header is absent.
func (h *Headers) Get(name string) (value string, ok bool) {
	n, err := sanitizeName(name)
	if err != nil {
		return "", false
	}
	vs, ok := h.m[n]
	if !ok {
		return "", false
	}
	return strings.Join(vs, ","), true
}

// All returns a copy of the values stored under name.
func (h *Headers) All(name string) []string {
	n, err := sanitizeName(name)
	if err != nil {
		return nil
	}
	return append([]string(nil), h.m[n]...)
}

func (h *Headers) Has(name string) bool {
	n, err := sanitizeName(name)
	if err != nil {
		return false
	}
	_, ok := h.m[n]
	return ok
}

func (h *Headers) Delete(name string) {
	if n, err := sanitizeName(name); err == nil {
		delete(h.m, n)
	}
}

func (h *Headers) Len() int {
	return len(h.m)
}

func (h *Headers) names() []string {
	names := make([]string, 0, len(h.m))
	for k := range h.m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Entries yields (name, joined values) pairs in sorted name order. Every
// range over the returned sequence starts a fresh traversal.
func (h *Headers) Entries() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, name := range h.names() {
			vs, ok := h.m[name]
			if !ok { // deleted during traversal
				continue
			}
			if !yield(name, strings.Join(vs, ",")) {
				return
			}
		}
	}
}

func (h *Headers) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for name := range h.Entries() {
			if !yield(name) {
				return
			}
		}
	}
}

func (h *Headers) Values() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, value := range h.Entries() {
			if !yield(value) {
				return
			}
		}
	}
}

func (h *Headers) ForEach(fn func(value, name string)) {
	for name, value := range h.Entries() {
		fn(value, name)
	}
}

// Raw exposes a copy of the underlying store, one slice per name. Multi
// valued headers like set-cookie survive a Raw round trip unjoined.
func (h *Headers) Raw() map[string][]string {
	raw := make(map[string][]string, len(h.m))
	for k, v := range h.m {
		raw[k] = append([]string(nil), v...)
	}
	return raw
}

func (h *Headers) Clone() *Headers {
	return &Headers{m: h.Raw()}
}

// Write serializes the multimap as HTTP/1.1 header lines, one line per
// stored value.
func (h *Headers) Write(w io.Writer) error {
	sw, ok := w.(io.StringWriter)
	if !ok {
		sw = stringWriter{w}
	}
	for _, name := range h.names() {
		for _, v := range h.m[name] {
			for _, s := range [...]string{name, ": ", v, "\r\n"} {
				if _, err := sw.WriteString(s); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type stringWriter struct {
	w io.Writer
}

func (s stringWriter) WriteString(str string) (int, error) {
	return s.w.Write([]byte(str))
}
