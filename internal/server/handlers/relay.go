package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tgfiles/tgfiles/internal/core"
	apperrors "github.com/tgfiles/tgfiles/internal/errors"
	"github.com/tgfiles/tgfiles/internal/relay"
)

// Rate limit response headers.
const (
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
)

// DefaultFilesPath is where the catalog route is mounted unless configured.
const DefaultFilesPath = "/api/files"

// RelayAPI serves the catalog and quiz routes.
type RelayAPI struct {
	Catalog     *relay.Service
	Quiz        *relay.QuizService
	ServiceName string
	FilesPath   string
}

// FilesResponse is the catalog success body.
type FilesResponse struct {
	Success    bool              `json:"success"`
	Channel    string            `json:"channel,omitempty"`
	Files      []core.FileRecord `json:"files"`
	TotalFiles int               `json:"total_files"`
	Timestamp  string            `json:"timestamp"`
	Message    string            `json:"message,omitempty"`
}

// QuizResponse is the quiz success body.
type QuizResponse struct {
	Success   bool                `json:"success"`
	Questions []core.QuizQuestion `json:"questions"`
	Total     int                 `json:"total"`
}

// StatusResponse describes the relay for /api/test.
type StatusResponse struct {
	Status            string            `json:"status"`
	Service           string            `json:"service"`
	Configured        bool              `json:"configured"`
	DefaultChannel    string            `json:"default_channel,omitempty"`
	SupportedChannels []string          `json:"supported_channels,omitempty"`
	Endpoints         map[string]string `json:"endpoints"`
	Timestamp         string            `json:"timestamp"`
}

// Files handles GET /api/files.
func (a *RelayAPI) Files(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result, err := a.Catalog.FetchFiles(r.Context(), relay.FetchRequest{
		ClientKey: ClientKey(r),
		Channel:   query.Get("channel"),
		Order:     query.Get("order"),
	})
	if err != nil {
		respondRelay(w, r, err)
		return
	}

	setRateHeaders(w, result.Decision)
	files := result.Files
	if files == nil {
		files = []core.FileRecord{}
	}
	writeJSON(w, http.StatusOK, FilesResponse{
		Success:    true,
		Channel:    result.Channel,
		Files:      files,
		TotalFiles: result.Total,
		Timestamp:  result.Timestamp.UTC().Format(time.RFC3339),
		Message:    result.Message(),
	})
}

// QuizFile handles GET /api/quiz/{fileRef}.
func (a *RelayAPI) QuizFile(w http.ResponseWriter, r *http.Request) {
	result, err := a.Quiz.ParseFile(r.Context(), relay.QuizRequest{
		ClientKey: ClientKey(r),
		FileRef:   chi.URLParam(r, "fileRef"),
	})
	if err != nil {
		respondRelay(w, r, err)
		return
	}
	writeQuiz(w, result)
}

// QuizParse handles POST /api/quiz/parse with a plain text body.
func (a *RelayAPI) QuizParse(w http.ResponseWriter, r *http.Request) {
	limit := a.quizMaxBytes()
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		respondRelay(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Unable to read request body"))
		return
	}
	if int64(len(body)) > limit {
		respondRelay(w, r, &relay.TooLargeError{Limit: limit})
		return
	}

	result, err := a.Quiz.ParseText(r.Context(), ClientKey(r), string(body))
	if err != nil {
		respondRelay(w, r, err)
		return
	}
	writeQuiz(w, result)
}

// Status handles GET /api/test.
func (a *RelayAPI) Status(w http.ResponseWriter, _ *http.Request) {
	name := a.ServiceName
	if name == "" {
		name = "Telegram Files API"
	}

	status := "active"
	if !a.Catalog.Configured() {
		status = "unconfigured"
	}

	resp := StatusResponse{
		Status:     status,
		Service:    name,
		Configured: a.Catalog.Configured(),
		Endpoints: map[string]string{
			"test":       "/api/test",
			"files":      a.filesPath() + "?channel=@username",
			"shortcut":   "/api/test/{channel}",
			"quiz":       "/api/quiz/{fileRef}",
			"quiz_parse": "/api/quiz/parse",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if a.Catalog != nil {
		resp.DefaultChannel = relay.NormalizeChannel(a.Catalog.DefaultChannel)
		resp.SupportedChannels = a.Catalog.Channels
	}
	writeJSON(w, http.StatusOK, resp)
}

// ChannelShortcut handles GET /api/test/{channel} by redirecting to the
// catalog route for one of the configured channels.
func (a *RelayAPI) ChannelShortcut(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "channel"))

	if a.Catalog != nil && name != "" {
		known := append([]string{a.Catalog.DefaultChannel}, a.Catalog.Channels...)
		for _, ch := range known {
			ch = relay.NormalizeChannel(ch)
			if ch == "" {
				continue
			}
			if strings.EqualFold(ch, name) || strings.EqualFold(ch, "@"+name) {
				target := a.filesPath() + "?" + url.Values{"channel": {ch}}.Encode()
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
		}
	}

	apperrors.RespondWithError(w, r,
		apperrors.NewNotFoundError(fmt.Sprintf("No configured channel matches %q", name)))
}

func (a *RelayAPI) filesPath() string {
	if a.FilesPath != "" {
		return a.FilesPath
	}
	return DefaultFilesPath
}

func (a *RelayAPI) quizMaxBytes() int64 {
	if a.Quiz != nil && a.Quiz.MaxBytes > 0 {
		return a.Quiz.MaxBytes
	}
	return relay.DefaultQuizMaxBytes
}

// ClientKey identifies the caller by remote IP. chi's RealIP middleware has
// already applied X-Forwarded-For and X-Real-IP.
func ClientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func writeQuiz(w http.ResponseWriter, result *relay.QuizResult) {
	setRateHeaders(w, result.Decision)
	questions := result.Questions
	if questions == nil {
		questions = []core.QuizQuestion{}
	}
	writeJSON(w, http.StatusOK, QuizResponse{Success: true, Questions: questions, Total: result.Total})
}

func setRateHeaders(w http.ResponseWriter, d core.Decision) {
	if d.Limit <= 0 {
		return
	}
	w.Header().Set(HeaderRateLimit, strconv.Itoa(d.Limit))
	w.Header().Set(HeaderRateRemaining, strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		w.Header().Set(HeaderRateReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondRelay maps relay failures onto error envelopes and renders them in
// the relay body shape.
func respondRelay(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var (
		throttled *relay.ThrottledError
		upstream  *relay.UpstreamError
		tooLarge  *relay.TooLargeError
	)

	switch {
	case errors.As(err, &throttled):
		setRateHeaders(w, throttled.Decision)
		apperrors.RespondRelayError(w, r, apperrors.NewRateLimitedError(throttled.Decision.RetryAfter))
	case errors.Is(err, relay.ErrConfigMissing):
		apperrors.RespondRelayError(w, r, apperrors.NewConfigMissingError("Bot token not configured", relay.ConfigHint))
	case errors.Is(err, relay.ErrFileRefRequired):
		apperrors.RespondRelayError(w, r, apperrors.NewInvalidInputError("File reference is required"))
	case errors.As(err, &tooLarge):
		apperrors.RespondRelayError(w, r, apperrors.NewPayloadTooLargeError(
			fmt.Sprintf("Quiz document exceeds %d bytes", tooLarge.Limit)))
	case errors.As(err, &upstream):
		env := apperrors.WrapUpstream(ctx, upstream.Err, upstream.Message, upstream.Hint, upstream.Timeout)
		if len(upstream.AlternativeChannels) > 0 {
			env = apperrors.WithDetail(env, apperrors.DetailAlternativeChannels, upstream.AlternativeChannels)
		}
		apperrors.RespondRelayError(w, r, env)
	default:
		apperrors.RespondRelayError(w, r, err)
	}
}
