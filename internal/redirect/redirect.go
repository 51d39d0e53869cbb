// package redirect decides whether and how a redirect response is
// followed.
package redirect

import (
	"net/url"

	"github.com/frankli0324/go-fetch/internal/fetcherr"
	"github.com/frankli0324/go-fetch/internal/http"
)

// IsRedirect reports the statuses a Location header is honored for.
func IsRedirect(status int) bool {
	switch status {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// mustUseGET: any request with a 303 response, or a POST with a 301/302
// response, is followed with a bodiless GET.
func mustUseGET(req *http.Request, status int) bool {
	return status == 303 || ((status == 301 || status == 302) && req.Method() == "POST")
}

// Decide builds the request for the next hop after resp, or fails with
// the reason it cannot be followed. It does not look at the status, see
// [IsRedirect].
func Decide(req *http.Request, resp *http.Response) (*http.Request, error) {
	switch {
	case req.Redirect() == http.RedirectError:
		return nil, fetcherr.New(fetcherr.KindNoRedirect, "redirect mode is set to error: %s", req.URL())
	case req.HopCount() >= req.Follow():
		return nil, fetcherr.New(fetcherr.KindMaxRedirect, "maximum redirect reached at: %s", req.URL())
	}
	loc, ok := resp.Headers().Get("location")
	if !ok {
		return nil, fetcherr.New(fetcherr.KindInvalidRedirect, "redirect location header missing at: %s", req.URL())
	}
	next, err := ResolveLocation(req.URL(), loc)
	if err != nil {
		return nil, fetcherr.Wrap(fetcherr.KindInvalidRedirect, err, "invalid redirect location %q at: %s", loc, req.URL())
	}

	opts := []http.RequestOption{
		http.WithURL(next),
		http.WithHopCount(req.HopCount() + 1),
	}
	if mustUseGET(req, resp.Status()) {
		h := req.Headers().Clone()
		h.Delete("content-length")
		opts = append(opts, http.WithMethod("GET"), http.WithBody(nil), http.WithHeaders(h))
	}
	return http.NewRequest(req, opts...)
}

// ResolveLocation resolves loc against base the way a browser would.
func ResolveLocation(base, loc string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	l, err := url.Parse(loc)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(l).String(), nil
}
