// Package telegram adapts the Telegram Bot API to the relay: the recent
// updates window, channel access probes, file resolution and text downloads.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/tgfiles/tgfiles/internal/config"
	"github.com/tgfiles/tgfiles/internal/core"
	"github.com/tgfiles/tgfiles/internal/core/normalize"
)

const (
	// MaxPollLimit is the Bot API cap for getUpdates.
	MaxPollLimit = 100

	defaultBaseURL = "https://api.telegram.org"
)

var (
	// ErrMissingToken is returned when no bot token is configured.
	ErrMissingToken = errors.New("telegram bot token is not configured")

	// ErrTooLarge is returned when a downloaded file exceeds the caller's cap.
	ErrTooLarge = errors.New("file exceeds size limit")
)

// APIError is a Bot API call that returned ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Client talks to one bot.
type Client struct {
	bot     *bot.Bot
	token   string
	baseURL string
	http    *http.Client
}

// New builds a client from config. The token is never logged.
func New(cfg config.TelegramConfig, httpClient *http.Client) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, ErrMissingToken
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	b, err := bot.New(token,
		bot.WithServerURL(baseURL),
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(time.Minute, httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Client{bot: b, token: token, baseURL: baseURL, http: httpClient}, nil
}

// RecentUpdates returns up to limit of the most recent pending updates in
// arrival order. A negative offset asks the Bot API for the tail of the
// queue without confirming (and so dropping) earlier updates.
func (c *Client) RecentUpdates(ctx context.Context, limit int) ([]core.RawUpdate, error) {
	if limit <= 0 || limit > MaxPollLimit {
		limit = MaxPollLimit
	}

	query := url.Values{}
	query.Set("offset", strconv.Itoa(-limit))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("timeout", "0")

	var updates []models.Update
	if err := c.call(ctx, "getUpdates", query, &updates); err != nil {
		return nil, err
	}

	raw := make([]core.RawUpdate, 0, len(updates))
	for i := range updates {
		if u, ok := FromUpdate(&updates[i]); ok {
			raw = append(raw, u)
		}
	}
	return raw, nil
}

// CheckChannel verifies that the bot can see channel.
func (c *Client) CheckChannel(ctx context.Context, channel string) error {
	_, err := c.bot.GetChat(ctx, &bot.GetChatParams{ChatID: ChatID(channel)})
	if err != nil {
		return fmt.Errorf("get chat %s: %w", channel, c.redact(err))
	}
	return nil
}

// ResolveFile implements normalize.FileResolver.
func (c *Client) ResolveFile(ctx context.Context, fileID string) (normalize.ResolvedFile, error) {
	if strings.TrimSpace(fileID) == "" {
		return normalize.ResolvedFile{}, errors.New("file id is required")
	}

	file, err := c.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return normalize.ResolvedFile{}, fmt.Errorf("get file: %w", c.redact(err))
	}
	if file == nil || file.FilePath == "" {
		return normalize.ResolvedFile{}, errors.New("empty file path returned from Telegram")
	}

	return normalize.ResolvedFile{
		URL:      c.downloadURL(file.FilePath),
		FilePath: file.FilePath,
		Size:     int64(file.FileSize),
	}, nil
}

// FetchText resolves fileRef and downloads it, refusing anything larger
// than maxBytes.
func (c *Client) FetchText(ctx context.Context, fileRef string, maxBytes int64) (string, error) {
	resolved, err := c.ResolveFile(ctx, fileRef)
	if err != nil {
		return "", err
	}
	if maxBytes > 0 && resolved.Size > maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, resolved.Size)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved.URL, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download file: %w", c.redact(err))
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download file: unexpected status %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return string(data), nil
}

// ChatID converts a channel reference to what the Bot API expects: numeric
// ids as integers, everything else as a string.
func ChatID(channel string) any {
	channel = strings.TrimSpace(channel)
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return id
	}
	return channel
}

func (c *Client) downloadURL(filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, strings.TrimLeft(filePath, "/"))
}

// redactedError hides the bot token, which request URLs carry, while
// keeping the wrapped chain for errors.Is.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func (c *Client) redact(err error) error {
	if err == nil || !strings.Contains(err.Error(), c.token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), c.token, "<redacted>"), err: err}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

func (c *Client) call(ctx context.Context, method string, query url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s?%s", c.baseURL, c.token, method, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, c.redact(err))
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !payload.OK {
		code := payload.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: payload.Description}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
