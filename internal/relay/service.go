// Package relay orchestrates one request through rate limiting, the
// upstream poll, normalization and response assembly.
package relay

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tgfiles/tgfiles/internal/core"
	"github.com/tgfiles/tgfiles/internal/core/normalize"
	"github.com/tgfiles/tgfiles/internal/core/ratelimit"
	"github.com/tgfiles/tgfiles/internal/metrics"
	"github.com/tgfiles/tgfiles/internal/observability"
)

const (
	RouteFiles = "files"
	RouteQuiz  = "quiz"

	// EmptyMessage accompanies a successful poll that produced no files.
	EmptyMessage = "no files in this window"

	DefaultPollLimit   = 30
	DefaultPollTimeout = 10 * time.Second
)

// Feed is the upstream recent-updates window.
type Feed interface {
	RecentUpdates(ctx context.Context, limit int) ([]core.RawUpdate, error)
	CheckChannel(ctx context.Context, channel string) error
}

// Service serves file catalog requests.
type Service struct {
	// Feed is nil when no bot token is configured.
	Feed           Feed
	Normalizer     *normalize.Normalizer
	Limiter        *ratelimit.Limiter
	DefaultChannel string
	// Channels are suggested to callers when a channel is not found.
	Channels     []string
	PollLimit    int
	PollTimeout  time.Duration
	ProbeChannel bool
	Clock        func() time.Time
}

// FetchRequest is one catalog request.
type FetchRequest struct {
	ClientKey string
	Channel   string
	// Order is asc/oldest or desc/newest; empty keeps the configured order.
	Order string
}

// FetchResult is a successful catalog response. Files may be empty.
type FetchResult struct {
	Channel   string
	Files     []core.FileRecord
	Total     int
	Skipped   int
	Decision  core.Decision
	Timestamp time.Time
}

// Empty reports whether the poll succeeded without producing files.
func (r *FetchResult) Empty() bool {
	return r == nil || len(r.Files) == 0
}

// Message is the human-readable status for an empty result.
func (r *FetchResult) Message() string {
	if r.Empty() {
		return EmptyMessage
	}
	return ""
}

// Configured reports whether an upstream feed is available.
func (s *Service) Configured() bool {
	return s != nil && s.Feed != nil
}

// FetchFiles runs RateCheck, Poll, Normalize and returns the catalog.
func (s *Service) FetchFiles(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	if !s.Configured() {
		return nil, ErrConfigMissing
	}

	decision := s.Limiter.Allow(ctx, req.ClientKey, RouteFiles)
	if !decision.Allowed {
		return nil, &ThrottledError{Route: RouteFiles, Decision: decision}
	}

	channel := NormalizeChannel(req.Channel)
	if channel == "" {
		channel = NormalizeChannel(s.DefaultChannel)
	}

	if channel != "" && s.ProbeChannel {
		if err := s.probe(ctx, channel); err != nil {
			return nil, err
		}
	}

	started := s.now()
	pollCtx, cancel := context.WithTimeout(ctx, s.pollTimeout())
	updates, err := s.Feed.RecentUpdates(pollCtx, s.pollLimit())
	cancel()
	if err != nil {
		metrics.RecordPoll("error", s.now().Sub(started))
		upstream := classifyUpstream(err, channel, s.Channels)
		observability.Warn("upstream poll failed",
			zap.String("channel", channel),
			zap.Bool("timeout", upstream.Timeout),
			zap.Error(err))
		return nil, upstream
	}

	if channel != "" {
		updates = filterChannel(updates, channel)
	}

	normalizer := s.Normalizer
	if normalizer == nil {
		normalizer = &normalize.Normalizer{}
	}
	if ascending, ok := parseOrder(req.Order); ok {
		normalizer = normalizer.WithOrder(ascending)
	}
	result := normalizer.Normalize(ctx, updates)

	outcome := "ok"
	if result.Empty() {
		outcome = "empty"
	}
	metrics.RecordPoll(outcome, s.now().Sub(started))
	metrics.RecordFilesEmitted(len(result.Files))

	return &FetchResult{
		Channel:   channel,
		Files:     result.Files,
		Total:     len(result.Files),
		Skipped:   len(result.Skipped),
		Decision:  decision,
		Timestamp: s.now(),
	}, nil
}

func (s *Service) probe(ctx context.Context, channel string) error {
	probeCtx, cancel := context.WithTimeout(ctx, s.pollTimeout())
	defer cancel()

	if err := s.Feed.CheckChannel(probeCtx, channel); err != nil {
		observability.Warn("channel access check failed", zap.String("channel", channel), zap.Error(err))
		upstream := classifyUpstream(err, channel, s.Channels)
		if !upstream.Timeout {
			upstream.Message = fmt.Sprintf("Cannot access channel %s", channel)
			upstream.Hint = probeHint
			upstream.AlternativeChannels = s.Channels
		}
		return upstream
	}
	return nil
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,}$`)

// NormalizeChannel prefixes bare usernames with "@". Numeric chat ids and
// empty values are returned unchanged.
func NormalizeChannel(channel string) string {
	channel = strings.TrimSpace(channel)
	if channel == "" || strings.HasPrefix(channel, "@") {
		return channel
	}
	if _, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return channel
	}
	if usernamePattern.MatchString(channel) {
		return "@" + channel
	}
	return channel
}

func filterChannel(updates []core.RawUpdate, channel string) []core.RawUpdate {
	kept := make([]core.RawUpdate, 0, len(updates))
	for _, u := range updates {
		if matchesChannel(u.Chat, channel) {
			kept = append(kept, u)
		}
	}
	return kept
}

func matchesChannel(chat core.ChatRef, channel string) bool {
	if username, ok := strings.CutPrefix(channel, "@"); ok {
		return chat.Username != "" && strings.EqualFold(chat.Username, username)
	}
	id, err := strconv.ParseInt(channel, 10, 64)
	return err == nil && chat.ID == id
}

func parseOrder(order string) (ascending bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "asc", "oldest":
		return true, true
	case "desc", "newest":
		return false, true
	default:
		return false, false
	}
}

func (s *Service) pollLimit() int {
	if s.PollLimit > 0 {
		return s.PollLimit
	}
	return DefaultPollLimit
}

func (s *Service) pollTimeout() time.Duration {
	if s.PollTimeout > 0 {
		return s.PollTimeout
	}
	return DefaultPollTimeout
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}
