package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tgfiles/tgfiles/internal/core"
	"github.com/tgfiles/tgfiles/internal/telegram"
)

// ErrConfigMissing means the bot token is absent. It is not retryable.
var ErrConfigMissing = errors.New("bot token not configured")

// ErrFileRefRequired is returned for a quiz request without a file reference.
var ErrFileRefRequired = errors.New("file reference is required")

// ConfigHint tells operators how to supply the token.
const ConfigHint = "Set TGFILES_TELEGRAM_TOKEN (or TELEGRAM_BOT_TOKEN) and restart"

const probeHint = "Check: 1) Bot is admin 2) Channel exists 3) Channel is public"

// ThrottledError is returned when the caller exhausted its quota.
type ThrottledError struct {
	Route    string
	Decision core.Decision
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s; retry after %ds", e.Route, e.Decision.RetryAfter)
}

// UpstreamError is a failed or timed out Bot API call. It is never retried
// inside a request.
type UpstreamError struct {
	Message             string
	Hint                string
	Timeout             bool
	AlternativeChannels []string
	Err                 error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// TooLargeError is returned when quiz input exceeds the configured cap.
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("quiz document exceeds %d bytes", e.Limit)
}

// classifyUpstream maps a Bot API failure to a message and operator hint.
func classifyUpstream(err error, channel string, alternatives []string) *UpstreamError {
	text := strings.ToLower(err.Error())
	upstream := &UpstreamError{Err: err}

	var apiErr *telegram.APIError
	switch {
	case strings.Contains(text, "chat not found"):
		label := channel
		if label == "" {
			label = "channel"
		}
		upstream.Message = fmt.Sprintf("Channel %s not found", label)
		upstream.Hint = "Check channel username"
		upstream.AlternativeChannels = alternatives
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(text, "timeout"):
		upstream.Message = "Request timeout"
		upstream.Hint = "Telegram API is slow, please try again"
		upstream.Timeout = true
	case errors.As(err, &apiErr) && apiErr.Code == 409:
		upstream.Message = "Telegram API error - updates unavailable"
		upstream.Hint = "Remove the bot webhook; getUpdates is disabled while one is set"
	case strings.Contains(text, "not found"):
		upstream.Message = "Telegram API error - Bot may not have access"
		upstream.Hint = "Ensure bot is admin in the channel"
	default:
		upstream.Message = "Telegram API unavailable"
		upstream.Hint = "Try again later"
	}
	return upstream
}
