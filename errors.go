package fetch

import "github.com/frankli0324/go-fetch/internal/fetcherr"

// Error is the concrete type of every classified failure. Match it by
// kind with errors.Is against the Err* values below.
type Error = fetcherr.Error
type ErrorKind = fetcherr.Kind

var (
	ErrRequestTimeout    = fetcherr.ErrRequestTimeout
	ErrBodyTimeout       = fetcherr.ErrBodyTimeout
	ErrMaxSize           = fetcherr.ErrMaxSize
	ErrSystem            = fetcherr.ErrSystem
	ErrNoRedirect        = fetcherr.ErrNoRedirect
	ErrMaxRedirect       = fetcherr.ErrMaxRedirect
	ErrInvalidRedirect   = fetcherr.ErrInvalidRedirect
	ErrConstruction      = fetcherr.ErrConstruction
	ErrBodyReused        = fetcherr.ErrBodyReused
	ErrUnsupportedScheme = fetcherr.ErrUnsupportedScheme
)

// KindOf returns the kind of err, or "" for errors not raised by fetch.
func KindOf(err error) ErrorKind {
	return fetcherr.KindOf(err)
}
