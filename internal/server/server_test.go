package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgfiles/tgfiles/internal/core"
	"github.com/tgfiles/tgfiles/internal/core/normalize"
	"github.com/tgfiles/tgfiles/internal/core/ratelimit"
	apperrors "github.com/tgfiles/tgfiles/internal/errors"
	"github.com/tgfiles/tgfiles/internal/relay"
	"github.com/tgfiles/tgfiles/internal/server/handlers"
)

type stubFeed struct {
	updates []core.RawUpdate
	err     error
}

func (f *stubFeed) RecentUpdates(context.Context, int) ([]core.RawUpdate, error) {
	return f.updates, f.err
}

func (f *stubFeed) CheckChannel(context.Context, string) error { return nil }

type stubResolver struct{}

func (stubResolver) ResolveFile(_ context.Context, fileID string) (normalize.ResolvedFile, error) {
	return normalize.ResolvedFile{URL: "https://files.example/" + fileID}, nil
}

type stubFetcher struct {
	text string
}

func (f stubFetcher) FetchText(context.Context, string, int64) (string, error) {
	return f.text, nil
}

type relayBody struct {
	Success             bool     `json:"success"`
	Error               string   `json:"error"`
	Hint                string   `json:"hint"`
	Code                string   `json:"code"`
	RetryAfter          *int     `json:"retryAfter"`
	AlternativeChannels []string `json:"alternative_channels"`
}

func newLimiter(limit int) *ratelimit.Limiter {
	policy := ratelimit.RoutePolicy{Limit: limit, Window: time.Minute}
	return ratelimit.NewLimiter(ratelimit.NewMemoryStore(), map[string]ratelimit.RoutePolicy{
		relay.RouteFiles: policy,
		relay.RouteQuiz:  policy,
	})
}

func newTestServer(feed relay.Feed, limit int, opts ...Option) *Server {
	limiter := newLimiter(limit)
	files := &relay.Service{
		Feed:           feed,
		Normalizer:     &normalize.Normalizer{Resolver: stubResolver{}, Location: time.UTC},
		Limiter:        limiter,
		DefaultChannel: "catalog",
		Channels:       []string{"@catalog"},
	}
	quiz := &relay.QuizService{
		Fetcher:  stubFetcher{text: "Q: One?\nA: yes\nB: no\nANS: A\n"},
		Limiter:  limiter,
		MaxBytes: 64,
	}
	opts = append([]Option{WithFileService(files), WithQuizService(quiz), WithServiceName("test relay")}, opts...)
	return New("127.0.0.1", 0, opts...)
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeRelay(t *testing.T, rec *httptest.ResponseRecorder) relayBody {
	t.Helper()
	var body relayBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var body apperrors.HTTPErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if body.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected error code NOT_FOUND, got %s", body.Error.Code)
	}
}

func TestFilesRouteWithoutToken(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeRelay(t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, "Bot token not configured", body.Error)
	assert.Equal(t, relay.ConfigHint, body.Hint)
	assert.Equal(t, apperrors.CodeConfigMissing, body.Code)
}

func TestFilesRouteSuccess(t *testing.T) {
	feed := &stubFeed{updates: []core.RawUpdate{
		{MessageID: 7, Timestamp: 1704067200, Chat: core.ChatRef{Username: "catalog"},
			Document: &core.FileMeta{FileID: "doc-7", FileName: "notes.pdf", FileSize: 42}},
		{MessageID: 9, Timestamp: 1704067300, Chat: core.ChatRef{Username: "catalog"},
			Photo: []core.FileMeta{{FileID: "small"}, {FileID: "big"}}},
	}}
	srv := newTestServer(feed, 5)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get(handlers.HeaderRateLimit))
	assert.Equal(t, "4", rec.Header().Get(handlers.HeaderRateRemaining))
	assert.NotEmpty(t, rec.Header().Get(handlers.HeaderRateReset))

	var body handlers.FilesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "@catalog", body.Channel)
	assert.Equal(t, 2, body.TotalFiles)
	require.Len(t, body.Files, 2)
	assert.Equal(t, int64(9), body.Files[0].ID)
	assert.Equal(t, core.FileTypeImage, body.Files[0].Type)
	assert.Equal(t, "https://files.example/big", body.Files[0].DownloadURL)
	assert.Equal(t, "notes.pdf", body.Files[1].Name)
	assert.Empty(t, body.Message)
	_, err := time.Parse(time.RFC3339, body.Timestamp)
	assert.NoError(t, err)
}

func TestFilesRouteEmptyWindow(t *testing.T) {
	srv := newTestServer(&stubFeed{}, 5)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/files?channel=@catalog", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.FilesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.NotNil(t, body.Files)
	assert.Empty(t, body.Files)
	assert.Equal(t, relay.EmptyMessage, body.Message)
}

func TestFilesRouteThrottled(t *testing.T) {
	srv := newTestServer(&stubFeed{}, 1)

	first := serve(srv, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	require.Equal(t, http.StatusOK, first.Code)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get(handlers.HeaderRateRemaining))

	body := decodeRelay(t, rec)
	assert.False(t, body.Success)
	assert.Equal(t, "Too many requests", body.Error)
	require.NotNil(t, body.RetryAfter)
	assert.Positive(t, *body.RetryAfter)

	other := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	other.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, http.StatusOK, serve(srv, other).Code, "clients are limited independently")
}

func TestFilesRouteUpstreamFailures(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		srv := newTestServer(&stubFeed{err: errors.New("bad request, Bad Request: chat not found")}, 5)

		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/files?channel=missing_one", nil))
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		body := decodeRelay(t, rec)
		assert.Equal(t, "Channel @missing_one not found", body.Error)
		assert.Equal(t, "Check channel username", body.Hint)
		assert.Equal(t, apperrors.CodeUpstream, body.Code)
		assert.Equal(t, []string{"@catalog"}, body.AlternativeChannels)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := newTestServer(&stubFeed{err: context.DeadlineExceeded}, 5)

		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/files", nil))
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

		body := decodeRelay(t, rec)
		assert.Equal(t, "Request timeout", body.Error)
		assert.Equal(t, apperrors.CodeTimeout, body.Code)
	})
}

func TestQuizRoutes(t *testing.T) {
	srv := newTestServer(&stubFeed{}, 5)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/quiz/BQACAgQ", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.QuizResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Questions, 1)
	assert.Equal(t, "A", body.Questions[0].Answer)

	rec = serve(srv, httptest.NewRequest(http.MethodPost, "/api/quiz/parse", strings.NewReader("no quiz")))
	require.Equal(t, http.StatusOK, rec.Code)
	body = handlers.QuizResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.NotNil(t, body.Questions)
	assert.Zero(t, body.Total)

	rec = serve(srv, httptest.NewRequest(http.MethodPost, "/api/quiz/parse", strings.NewReader(strings.Repeat("Q: x\n", 20))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, apperrors.CodePayloadTooLarge, decodeRelay(t, rec).Code)
}

func TestStatusRoute(t *testing.T) {
	srv := newTestServer(&stubFeed{}, 5)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "active", body.Status)
	assert.Equal(t, "test relay", body.Service)
	assert.True(t, body.Configured)
	assert.Equal(t, "@catalog", body.DefaultChannel)
	assert.Equal(t, "/api/files?channel=@username", body.Endpoints["files"])
}

func TestFilesRouteConfiguredPath(t *testing.T) {
	feed := &stubFeed{updates: []core.RawUpdate{
		{MessageID: 3, Timestamp: 1704067200, Chat: core.ChatRef{Username: "catalog"},
			Document: &core.FileMeta{FileID: "doc-3", FileName: "syllabus.pdf"}},
	}}
	srv := newTestServer(feed, 5, WithFilesPath("/v2/catalog"))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/v2/catalog", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body handlers.FilesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 1, body.TotalFiles)

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "default path is not mounted")

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/api/test", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var status handlers.StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "/v2/catalog?channel=@username", status.Endpoints["files"])
}

func TestChannelShortcutRedirects(t *testing.T) {
	srv := newTestServer(&stubFeed{}, 5, WithFilesPath("/v2/catalog"))

	for _, name := range []string{"catalog", "@Catalog"} {
		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/test/"+name, nil))
		require.Equal(t, http.StatusFound, rec.Code, name)
		assert.Equal(t, "/v2/catalog?channel=%40catalog", rec.Header().Get("Location"))
	}

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/test/unknown_channel", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apperrors.CodeNotFound, body.Error.Code)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.5:52311"
	assert.Equal(t, "203.0.113.5", handlers.ClientKey(req))

	req.RemoteAddr = "203.0.113.6"
	assert.Equal(t, "203.0.113.6", handlers.ClientKey(req))
}

func TestAdminSignalRequiresToken(t *testing.T) {
	rec := serve(New("127.0.0.1", 0), httptest.NewRequest(http.MethodPost, "/admin/signal", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "not mounted without a token")

	srv := New("127.0.0.1", 0, WithAdminToken("s3cret"))
	rec = serve(srv, httptest.NewRequest(http.MethodPost, "/admin/signal", strings.NewReader(`{"signal":"reload"}`)))
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
	assert.NotEqual(t, http.StatusOK, rec.Code, "missing bearer token is rejected")
}
