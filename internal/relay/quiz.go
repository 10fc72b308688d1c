package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tgfiles/tgfiles/internal/core"
	"github.com/tgfiles/tgfiles/internal/core/quiz"
	"github.com/tgfiles/tgfiles/internal/core/ratelimit"
	"github.com/tgfiles/tgfiles/internal/metrics"
	"github.com/tgfiles/tgfiles/internal/observability"
	"github.com/tgfiles/tgfiles/internal/telegram"
)

const (
	DefaultQuizMaxBytes     = 1 << 20
	DefaultQuizFetchTimeout = 15 * time.Second
)

// Fetcher downloads a text document by file reference.
type Fetcher interface {
	FetchText(ctx context.Context, fileRef string, maxBytes int64) (string, error)
}

// QuizService parses quiz documents, either uploaded or fetched from the bot.
type QuizService struct {
	// Fetcher is nil when no bot token is configured.
	Fetcher      Fetcher
	Limiter      *ratelimit.Limiter
	MaxBytes     int64
	FetchTimeout time.Duration
}

// QuizRequest asks for the document behind FileRef.
type QuizRequest struct {
	ClientKey string
	FileRef   string
}

// QuizResult is a successful parse. Questions may be empty.
type QuizResult struct {
	Questions []core.QuizQuestion
	Total     int
	Decision  core.Decision
}

// ParseFile fetches the referenced document and parses it.
func (s *QuizService) ParseFile(ctx context.Context, req QuizRequest) (*QuizResult, error) {
	if s == nil || s.Fetcher == nil {
		return nil, ErrConfigMissing
	}

	decision := s.Limiter.Allow(ctx, req.ClientKey, RouteQuiz)
	if !decision.Allowed {
		return nil, &ThrottledError{Route: RouteQuiz, Decision: decision}
	}

	fileRef := strings.TrimSpace(req.FileRef)
	if fileRef == "" {
		return nil, ErrFileRefRequired
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout())
	defer cancel()

	text, err := s.Fetcher.FetchText(fetchCtx, fileRef, s.maxBytes())
	if err != nil {
		if errors.Is(err, telegram.ErrTooLarge) {
			return nil, &TooLargeError{Limit: s.maxBytes()}
		}
		observability.Warn("quiz document fetch failed", zap.Error(err))
		return nil, classifyUpstream(err, "", nil)
	}

	return s.parse(text, "remote", decision), nil
}

// ParseText parses an uploaded document.
func (s *QuizService) ParseText(ctx context.Context, clientKey, text string) (*QuizResult, error) {
	if s == nil {
		s = &QuizService{}
	}
	decision := s.Limiter.Allow(ctx, clientKey, RouteQuiz)
	if !decision.Allowed {
		return nil, &ThrottledError{Route: RouteQuiz, Decision: decision}
	}
	if int64(len(text)) > s.maxBytes() {
		return nil, &TooLargeError{Limit: s.maxBytes()}
	}
	return s.parse(text, "text", decision), nil
}

func (s *QuizService) parse(text, source string, decision core.Decision) *QuizResult {
	questions := quiz.Parse(text)
	metrics.RecordQuizParsed(source, len(questions))
	return &QuizResult{Questions: questions, Total: len(questions), Decision: decision}
}

func (s *QuizService) maxBytes() int64 {
	if s != nil && s.MaxBytes > 0 {
		return s.MaxBytes
	}
	return DefaultQuizMaxBytes
}

func (s *QuizService) fetchTimeout() time.Duration {
	if s.FetchTimeout > 0 {
		return s.FetchTimeout
	}
	return DefaultQuizFetchTimeout
}
