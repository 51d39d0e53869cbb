package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/frankli0324/go-fetch/internal/fetcherr"
	"github.com/frankli0324/go-fetch/internal/http"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// Throttle returns a middleware holding every hop until the token bucket
// limiter lets it through. logFn lazily resolves the logger at request
// time, so option ordering does not matter.
func Throttle(rps, burst int, logFn func() *slog.Logger) (Middleware, error) {
	if rps <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, ErrMustNotBeZero)
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next Handler) Handler {
		return func(ctx context.Context, req *http.PreparedRequest) (*http.Response, error) {
			if err := ctx.Err(); err != nil {
				return nil, throttleError(ErrContextEnded, "early", err)
			}

			start := time.Now()
			if err := limiter.Wait(ctx); err != nil {
				return nil, throttleError(ErrWaitingFailed, "", err)
			}
			if waited := time.Since(start); waited > time.Millisecond {
				if logger := logFn(); logger != nil {
					logger.Info("throttle wait complete", "waited", waited.String(), "rate", rps, "burst", burst, "host", req.U.Host)
				}
			}

			if err := ctx.Err(); err != nil { // Check context hasn't expired again.
				return nil, throttleError(ErrContextEnded, "post-wait", err)
			}
			return next(ctx, req)
		}
	}, nil
}

// throttleError classifies a throttle failure as a system error. Both
// sentinel and err stay matchable with [errors.Is].
func throttleError(sentinel error, stage string, err error) error {
	cause := fmt.Errorf("%w: %w", sentinel, err)
	if stage != "" {
		cause = fmt.Errorf("%w %s: %w", sentinel, stage, err)
	}
	return fetcherr.Wrap(fetcherr.KindSystem, cause, "%v", cause)
}
