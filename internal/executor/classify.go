// internal/executor/classify.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/lib/pq"
)

// ErrorKind classifies an execution failure for retries and reporting.
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindTimeout     ErrorKind = "timeout"
	KindTransient   ErrorKind = "transient"
	KindPermanent   ErrorKind = "permanent"
	KindCircuitOpen ErrorKind = "circuit_open"
)

// Retryable reports whether a failure of this kind is worth another attempt.
func (k ErrorKind) Retryable() bool {
	return k == KindTimeout || k == KindTransient
}

// httpStatusError is returned by the HTTP and ES drivers for non-2xx
// responses so classification can see the status code.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.status, e.body)
}

// Classify maps a driver error to its kind. Timeouts and connection-level
// failures are worth retrying; everything else is permanent, a bad query
// does not get better with repetition.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if statusErr.status >= 500 || statusErr.status == http.StatusTooManyRequests {
			return KindTransient
		}
		return KindPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgres(pqErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransient
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindTransient
	}

	return KindPermanent
}

// classifyPostgres keys off the SQLSTATE class. Connection exceptions (08),
// insufficient resources (53) and operator intervention (57, admin shutdown
// and friends) are connection-level and transient; everything else, like
// syntax or constraint errors, is permanent.
func classifyPostgres(pqErr *pq.Error) ErrorKind {
	code := string(pqErr.Code)
	switch {
	case strings.HasPrefix(code, "08"),
		strings.HasPrefix(code, "53"),
		strings.HasPrefix(code, "57"):
		return KindTransient
	default:
		return KindPermanent
	}
}
