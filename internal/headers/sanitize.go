package headers

import (
	"fmt"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/frankli0324/go-fetch/internal/fetcherr"
)

func sanitizeName(name string) (string, error) {
	if !httpguts.ValidHeaderFieldName(name) {
		return "", fmt.Errorf("%w %q", fetcherr.ErrBadName, name)
	}
	return strings.ToLower(name), nil
}

func sanitizeValue(value string) (string, error) {
	value = strings.TrimSpace(value)
	if !httpguts.ValidHeaderFieldValue(value) {
		return "", fmt.Errorf("%w %q", fetcherr.ErrBadValue, value)
	}
	return value, nil
}

func sanitize(name, value string) (string, string, error) {
	n, err := sanitizeName(name)
	if err != nil {
		return "", "", err
	}
	v, err := sanitizeValue(value)
	if err != nil {
		return "", "", err
	}
	return n, v, nil
}
