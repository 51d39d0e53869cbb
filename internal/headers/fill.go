package headers

import (
	"fmt"
	"iter"
	"net/http"
	"sort"

	"github.com/frankli0324/go-fetch/internal/fetcherr"
)

// Fill appends every pair of init to h. Accepted shapes are:
//
//	nil
//	*Headers                  // raw store, each stored value appended on its own
//	map[string]string
//	map[string][]string, http.Header
//	map[string]interface{}    // string, []string or anything fmt can print
//	[][2]string
//	[][]string                // each pair must have exactly two items
//	[]interface{}             // of []string, [2]string or []interface{} pairs
//	iter.Seq2[string, string]
//
// map shaped initializers are applied in sorted key order. Failures are
// construction errors prefixed with "headers: ".
func (h *Headers) Fill(init interface{}) error {
	if err := h.fill(init); err != nil {
		return fetcherr.Construct("headers", err)
	}
	return nil
}

func (h *Headers) fill(init interface{}) error {
	switch in := init.(type) {
	case nil:
		return nil
	case *Headers:
		if in == nil {
			return nil
		}
		return h.appendMulti(in.Raw())
	case map[string][]string:
		return h.appendMulti(in)
	case http.Header:
		return h.appendMulti(in)
	case map[string]string:
		for _, k := range sortedKeys(in) {
			if err := h.Append(k, in[k]); err != nil {
				return err
			}
		}
		return nil
	case map[string]interface{}:
		for _, k := range sortedKeys(in) {
			if err := h.appendAny(k, in[k]); err != nil {
				return err
			}
		}
		return nil
	case [][2]string:
		for _, p := range in {
			if err := h.Append(p[0], p[1]); err != nil {
				return err
			}
		}
		return nil
	case [][]string:
		for _, p := range in {
			if err := h.appendPair(p); err != nil {
				return err
			}
		}
		return nil
	case []interface{}:
		for _, item := range in {
			var err error
			switch p := item.(type) {
			case []string:
				err = h.appendPair(p)
			case [2]string:
				err = h.Append(p[0], p[1])
			case []interface{}:
				if len(p) != 2 {
					return fetcherr.ErrBadPairLength
				}
				err = h.appendAny(fmt.Sprint(p[0]), p[1])
			default:
				return fetcherr.ErrBadPairType
			}
			if err != nil {
				return err
			}
		}
		return nil
	case iter.Seq2[string, string]:
		return h.appendSeq(in)
	case func(yield func(string, string) bool):
		return h.appendSeq(in)
	default:
		return fetcherr.ErrBadType
	}
}

func (h *Headers) appendMulti(m map[string][]string) error {
	for _, k := range sortedKeys(m) {
		for _, v := range m[k] {
			if err := h.Append(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *Headers) appendPair(p []string) error {
	if len(p) != 2 {
		return fetcherr.ErrBadPairLength
	}
	return h.Append(p[0], p[1])
}

func (h *Headers) appendAny(name string, v interface{}) error {
	switch v := v.(type) {
	case string:
		return h.Append(name, v)
	case []string:
		for _, s := range v {
			if err := h.Append(name, s); err != nil {
				return err
			}
		}
		return nil
	default:
		return h.Append(name, fmt.Sprint(v))
	}
}

func (h *Headers) appendSeq(seq iter.Seq2[string, string]) (err error) {
	for k, v := range seq {
		if err = h.Append(k, v); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
