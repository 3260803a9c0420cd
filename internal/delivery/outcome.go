package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"syscall"

	"github.com/sony/gobreaker"
)

// Outcome is the closed set of results a single Send can end in.
type Outcome string

const (
	OutcomePass             Outcome = "PASS"
	OutcomeFail             Outcome = "FAIL" // 2xx without a hub event id
	OutcomeFailTransient    Outcome = "FAIL_TRANSIENT"
	OutcomeFailPermanent    Outcome = "FAIL_PERMANENT"
	OutcomeTimeout          Outcome = "TIMEOUT"
	OutcomeBlockedByCircuit Outcome = "BLOCKED_BY_CIRCUIT"
	OutcomeInterrupted      Outcome = "INTERRUPTED"
	OutcomeFailUnknown      Outcome = "FAIL_UNKNOWN"
)

func (o Outcome) Success() bool {
	return o == OutcomePass
}

// Retryable reports whether another attempt may help.
func (o Outcome) Retryable() bool {
	return o == OutcomeFailTransient || o == OutcomeTimeout
}

const (
	noResponseCode = "N/A"
	maxReasonLen   = 32
)

// Classification is what gets written to the audit log for a failed send.
type Classification struct {
	Outcome      Outcome
	Reason       string
	ResponseCode string
}

// HTTPStatusError is returned by transports for non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("hub responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("hub responded with status %d: %s", e.StatusCode, e.Body)
}

// Classify maps a delivery error to its outcome. It is pure and total: every
// error, including nil, lands in exactly one outcome.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Outcome: OutcomeFailUnknown, Reason: "UNKNOWN", ResponseCode: noResponseCode}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		outcome := OutcomeFailPermanent
		if code == 429 || (code >= 500 && code < 600) {
			outcome = OutcomeFailTransient
		}
		return Classification{
			Outcome:      outcome,
			Reason:       shortReason(err, "HTTP_"+strconv.Itoa(code)),
			ResponseCode: strconv.Itoa(code),
		}
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Classification{Outcome: OutcomeBlockedByCircuit, Reason: "BLOCKED_BY_CIRCUIT", ResponseCode: noResponseCode}
	case errors.Is(err, context.Canceled):
		return Classification{Outcome: OutcomeInterrupted, Reason: "INTERRUPTED", ResponseCode: noResponseCode}
	case isTimeout(err):
		return Classification{Outcome: OutcomeTimeout, Reason: shortReason(err, "TIMEOUT"), ResponseCode: noResponseCode}
	case isNetwork(err):
		return Classification{Outcome: OutcomeFailTransient, Reason: shortReason(err, "IO_ERROR"), ResponseCode: noResponseCode}
	default:
		return Classification{Outcome: OutcomeFailUnknown, Reason: shortReason(err, "UNKNOWN"), ResponseCode: noResponseCode}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetwork(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
		urlErr *url.Error
		netErr net.Error
	)
	return errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &urlErr) || errors.As(err, &netErr)
}

// plainWrappers only carry a message, so they never name a failure.
var plainWrappers = map[string]struct{}{
	"fmt.wrapError":      {},
	"fmt.wrapErrors":     {},
	"errors.errorString": {},
	"errors.joinError":   {},
}

// shortReason is the type name of the outermost error in the chain that is not
// a plain message wrapper, without the pointer marker and clipped to 32 chars.
func shortReason(err error, fallback string) string {
	for e := err; e != nil; e = errors.Unwrap(e) {
		name := strings.TrimPrefix(fmt.Sprintf("%T", e), "*")
		if _, plain := plainWrappers[name]; plain || name == "" {
			continue
		}
		if len(name) > maxReasonLen {
			name = name[:maxReasonLen]
		}
		return name
	}
	return fallback
}
