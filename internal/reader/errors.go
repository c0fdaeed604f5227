package reader

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors shared across subsystems.
var (
	// ErrNoJob means a blocking dequeue timed out with nothing to do.
	ErrNoJob = errors.New("no job available")
	// ErrFeedNotFound means the feed was deleted between schedule and fetch.
	ErrFeedNotFound = errors.New("feed not found")
	// ErrMalformedFeed wraps parse failures on a 2xx response body.
	ErrMalformedFeed = errors.New("malformed feed")
)

// ErrorKind buckets fetch failures for diagnostics.
type ErrorKind string

// Error kinds recorded alongside error outcomes.
const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindNetwork   ErrorKind = "network"
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindHTTP      ErrorKind = "http"
	ErrorKindMalformed ErrorKind = "malformed"
)

// ClassifyFetchError maps a fetch error to its diagnostic kind.
func ClassifyFetchError(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	if errors.Is(err, ErrMalformedFeed) {
		return ErrorKindMalformed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorKindTimeout
		}
		return ErrorKindNetwork
	}
	return ErrorKindNetwork
}
