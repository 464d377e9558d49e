package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
)

type FailureKind int

const (
	// FailureTransport covers network errors, timeouts, cancellation and
	// provider overload (429 / 5xx): the request may work if retried later.
	FailureTransport FailureKind = iota + 1
	// FailureProvider covers failures the provider reported about this
	// request: blocked by its safety filters, rejected or malformed.
	FailureProvider
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureProvider:
		return "provider"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

type ProviderError struct {
	Kind  FailureKind
	Model string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("gemini %s failure (model %s): %s", e.Kind, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a transport-level ProviderError.
func IsTransport(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.Kind == FailureTransport
}

func classify(err error, model string) *ProviderError {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr
	}
	return &ProviderError{Kind: failureKind(err), Model: model, Err: err}
}

func failureKind(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransport
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return FailureProvider
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return FailureTransport
		}
		return FailureProvider
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransport
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return FailureTransport
	}
	return FailureProvider
}
