// package http contains the request and response types, which are meant
// to be exported through aliases in package fetch.
//
// both types are immutable once built. the only state that changes is
// the body's used flag, flipped by whoever reads it first.
package http

import (
	"github.com/frankli0324/go-fetch/internal/body"
	"github.com/frankli0324/go-fetch/internal/headers"
)

type Headers = headers.Headers

var NoBody = body.NoSource

type RedirectMode string

const (
	RedirectFollow RedirectMode = "follow"
	RedirectError  RedirectMode = "error"
	RedirectManual RedirectMode = "manual"
)
