package errors

import (
	"encoding/json"
	"maps"
	"net/http"
	"strconv"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tgfiles/tgfiles/internal/metrics"
	"github.com/tgfiles/tgfiles/internal/observability"
)

var codeStatus = map[string]int{
	CodeInvalidInput:       http.StatusBadRequest,
	"VALIDATION_FAILED":    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
	CodePayloadTooLarge:    http.StatusRequestEntityTooLarge,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeTimeout:            http.StatusGatewayTimeout,
	CodeUpstream:           http.StatusBadGateway,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
	CodeConfigMissing:      http.StatusServiceUnavailable,
}

// HTTPStatusFromCode maps an error code to its HTTP status. Unknown codes are 500.
func HTTPStatusFromCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HTTPStatusFromEnvelope maps an envelope to its HTTP status.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// ResponseDetails returns the client-facing details of an envelope. Context
// entries stay in the logs.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]any {
	if envelope == nil || len(envelope.Details) == 0 {
		return nil
	}
	return maps.Clone(envelope.Details)
}

// HTTPErrorDetail captures the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RelayErrorResponse is the flat failure body served by the relay API routes.
type RelayErrorResponse struct {
	Success             bool     `json:"success"`
	Error               string   `json:"error"`
	Hint                string   `json:"hint,omitempty"`
	RetryAfter          *int     `json:"retryAfter,omitempty"`
	Code                string   `json:"code,omitempty"`
	AlternativeChannels []string `json:"alternative_channels,omitempty"`
	RequestID           string   `json:"request_id,omitempty"`
}

// RespondWithError normalizes err and writes the standard error body.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope logs the envelope, records error metrics and writes
// {error:{code,message,details,request_id}}.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}
	envelope, status := finalize(r, envelope)
	writeJSON(w, status, HTTPErrorResponse{Error: HTTPErrorDetail{
		Code:      envelope.Code,
		Message:   envelope.Message,
		Details:   ResponseDetails(envelope),
		RequestID: envelope.CorrelationID,
	}})
}

// RespondRelayError renders an envelope in the relay shape
// {success:false, error, hint}. Throttling adds retryAfter and the
// Retry-After header.
func RespondRelayError(w http.ResponseWriter, r *http.Request, err error) {
	if w == nil {
		return
	}
	envelope, status := finalize(r, EnsureEnvelope(err))

	body := RelayErrorResponse{
		Error:     envelope.Message,
		Code:      envelope.Code,
		RequestID: envelope.CorrelationID,
	}
	body.Hint, _ = envelope.Details[DetailHint].(string)
	body.AlternativeChannels, _ = envelope.Details[DetailAlternativeChannels].([]string)
	if retryAfter, ok := envelope.Details[DetailRetryAfter].(int); ok {
		body.RetryAfter = &retryAfter
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}

	writeJSON(w, status, body)
}

func finalize(r *http.Request, envelope *errors.ErrorEnvelope) (*errors.ErrorEnvelope, int) {
	if envelope == nil {
		envelope = EnsureEnvelope(nil)
	}
	var route string
	if r != nil {
		envelope = EnsureCorrelationID(envelope, r.Context())
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
	} else {
		envelope = EnsureCorrelationID(envelope, nil)
	}

	status := HTTPStatusFromEnvelope(envelope)
	logHTTPError(envelope, status)

	metrics.RecordError(envelope.Code, status)
	if r != nil {
		metrics.RecordErrorByEndpoint(route, envelope.Code)
	}
	return envelope, status
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func logHTTPError(envelope *errors.ErrorEnvelope, status int) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := make([]zap.Field, 0, len(envelope.Context)+4)
	fields = append(fields,
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", status),
		zap.String("request_id", envelope.CorrelationID))
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		logger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		logger.Warn(envelope.Message, fields...)
	default:
		logger.Info(envelope.Message, fields...)
	}
}
