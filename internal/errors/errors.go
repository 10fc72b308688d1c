// Package errors builds gofulmen error envelopes for the relay and renders
// them as HTTP responses.
package errors

import (
	"context"
	"maps"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"

	"github.com/tgfiles/tgfiles/internal/server/middleware"
)

// Error codes
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeUpstream           = "UPSTREAM_UNAVAILABLE"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeConfigMissing      = "CONFIG_MISSING"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Detail keys understood by RespondRelayError.
const (
	DetailHint                = "hint"
	DetailRetryAfter          = "retry_after"
	DetailAlternativeChannels = "alternative_channels"
)

// contextWrappedError holds the underlying error text. Context entries are
// logged but never sent to clients.
const contextWrappedError = "wrapped_error"

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInvalidInput, message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

func NewPayloadTooLargeError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodePayloadTooLarge, message)
}

// NewRateLimitedError builds a throttling envelope carrying the retry delay in seconds.
func NewRateLimitedError(retryAfter int) *errors.ErrorEnvelope {
	env, _ := errors.NewErrorEnvelope(CodeRateLimited, "Too many requests").WithSeverity(errors.SeverityMedium)
	return WithDetail(env, DetailRetryAfter, retryAfter)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeInternal, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

// NewConfigMissingError reports a required setting that was never provided.
func NewConfigMissingError(message, hint string) *errors.ErrorEnvelope {
	env, _ := errors.NewErrorEnvelope(CodeConfigMissing, message).WithSeverity(errors.SeverityHigh)
	if hint == "" {
		return env
	}
	return WithDetail(env, DetailHint, hint)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeServiceUnavailable, message)
}

// The Wrap functions take the request context for the correlation ID.

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInternal, err, message)
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeConfigInvalid, err, message)
}

// WrapUpstream reports a failed call to the bot API. Timeouts map to 504,
// everything else to 502.
func WrapUpstream(ctx context.Context, err error, message, hint string, timeout bool) *errors.ErrorEnvelope {
	code := CodeUpstream
	if timeout {
		code = CodeTimeout
	}
	env := wrap(ctx, code, err, message)
	env, _ = env.WithSeverity(errors.SeverityMedium)
	if hint != "" {
		env = WithDetail(env, DetailHint, hint)
	}
	return env
}

// WithDetail sets one detail entry, keeping the entries already present.
func WithDetail(envelope *errors.ErrorEnvelope, key string, value any) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}
	details := maps.Clone(envelope.Details)
	if details == nil {
		details = make(map[string]any, 1)
	}
	details[key] = value
	return envelope.WithDetails(details)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	id := requestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	// No tracing backend; the trace ID mirrors the correlation ID.
	env := errors.NewErrorEnvelope(code, message).WithCorrelationID(id).WithTraceID(id)
	return withWrappedError(env, err)
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return middleware.GetRequestID(ctx)
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}
	updated, updateErr := envelope.WithContext(map[string]any{contextWrappedError: err.Error()})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env, _ := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error").WithSeverity(errors.SeverityCritical)
		return env
	}
	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		return envelope
	}
	env, _ := errors.NewErrorEnvelope(CodeInternal, "unexpected error").WithSeverity(errors.SeverityHigh)
	return withWrappedError(env, err)
}

// EnsureCorrelationID attaches the request ID, or a generated fallback, when
// the envelope has no correlation ID yet.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil || envelope.CorrelationID != "" {
		return envelope
	}
	id := requestID(ctx)
	if id == "" {
		id = "fallback-" + errors.GenerateCorrelationID()
	}
	return envelope.WithCorrelationID(id)
}
