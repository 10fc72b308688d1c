// Package normalize turns raw upstream updates into a deduplicated, ordered
// file catalog with resolved download links.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tgfiles/tgfiles/internal/core"
	"github.com/tgfiles/tgfiles/internal/metrics"
	"github.com/tgfiles/tgfiles/internal/observability"
)

const (
	DefaultResolveTimeout = 5 * time.Second
	DefaultConcurrency    = 4
	DefaultDateLayout     = "2/1/2006, 3:04:05 pm"
)

// ResolvedFile is the download location of one file reference.
type ResolvedFile struct {
	URL string
	// FilePath is the upstream storage path, used to infer a MIME type.
	FilePath string
	Size     int64
}

// FileResolver turns an opaque file reference into a download location.
type FileResolver interface {
	ResolveFile(ctx context.Context, fileID string) (ResolvedFile, error)
}

// SkipReason explains why an update produced no record.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipNoPayload        SkipReason = "no_payload"
	SkipSuperseded       SkipReason = "superseded"
	SkipResolutionFailed SkipReason = "resolution_failed"
)

// ItemResult is the outcome for one input update. Exactly one of Record and
// Skip is set.
type ItemResult struct {
	ChatID    int64
	MessageID int64
	Record    *core.FileRecord
	Skip      SkipReason
	Err       error
}

// Result is the outcome of one normalization pass.
type Result struct {
	Files   []core.FileRecord
	Skipped []ItemResult
}

// Empty reports whether the pass produced no files.
func (r Result) Empty() bool {
	return len(r.Files) == 0
}

// Normalizer holds immutable presentation and resolution settings, so the
// same input always yields the same output.
type Normalizer struct {
	Resolver       FileResolver
	ResolveTimeout time.Duration
	Concurrency    int
	DateLayout     string
	Location       *time.Location
	// Ascending orders records oldest first; the default is newest first.
	Ascending bool
}

// WithOrder returns a copy of n with the given ordering.
func (n *Normalizer) WithOrder(ascending bool) *Normalizer {
	copied := *n
	copied.Ascending = ascending
	return &copied
}

// Normalize classifies, deduplicates, resolves and orders updates. Per-item
// failures are recorded in Result.Skipped and never abort the pass.
func (n *Normalizer) Normalize(ctx context.Context, updates []core.RawUpdate) Result {
	items := make([]ItemResult, len(updates))

	// Message ids are only unique within a chat.
	type messageKey struct{ chat, message int64 }
	lastIndex := make(map[messageKey]int, len(updates))
	for i, u := range updates {
		lastIndex[messageKey{u.Chat.ID, u.MessageID}] = i
	}

	type job struct {
		slot    int
		update  core.RawUpdate
		payload Payload
	}
	var jobs []job
	for i, u := range updates {
		items[i].ChatID = u.Chat.ID
		items[i].MessageID = u.MessageID
		if lastIndex[messageKey{u.Chat.ID, u.MessageID}] != i {
			items[i].Skip = SkipSuperseded
			continue
		}
		payload := Classify(u)
		if payload.Kind == KindNone {
			items[i].Skip = SkipNoPayload
			continue
		}
		jobs = append(jobs, job{slot: i, update: u, payload: payload})
	}

	var g errgroup.Group
	g.SetLimit(n.concurrency())
	for _, j := range jobs {
		g.Go(func() error {
			record, err := n.resolve(ctx, j.update, j.payload)
			if err != nil {
				items[j.slot].Skip = SkipResolutionFailed
				items[j.slot].Err = err
				return nil
			}
			items[j.slot].Record = record
			return nil
		})
	}
	_ = g.Wait()

	var resolved []ItemResult
	result := Result{Files: []core.FileRecord{}}
	for _, item := range items {
		if item.Record != nil {
			resolved = append(resolved, item)
			continue
		}
		result.Skipped = append(result.Skipped, item)
		metrics.RecordItemSkipped(string(item.Skip))
		if item.Skip == SkipResolutionFailed {
			observability.Warn("file resolution failed; skipping item",
				zap.Int64("chat_id", item.ChatID),
				zap.Int64("message_id", item.MessageID),
				zap.Error(item.Err))
		}
	}

	sort.SliceStable(resolved, func(a, b int) bool {
		x, y := resolved[a], resolved[b]
		if n.Ascending {
			x, y = y, x
		}
		if x.MessageID != y.MessageID {
			return x.MessageID > y.MessageID
		}
		return x.ChatID > y.ChatID
	})
	for _, item := range resolved {
		result.Files = append(result.Files, *item.Record)
	}

	return result
}

func (n *Normalizer) resolve(ctx context.Context, u core.RawUpdate, p Payload) (*core.FileRecord, error) {
	if n.Resolver == nil {
		return nil, errors.New("no file resolver configured")
	}

	resolveCtx, cancel := context.WithTimeout(ctx, n.resolveTimeout())
	defer cancel()

	resolved, err := n.Resolver.ResolveFile(resolveCtx, p.File.FileID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s %d: %w", p.Kind, u.MessageID, err)
	}
	if strings.TrimSpace(resolved.URL) == "" {
		return nil, fmt.Errorf("resolve %s %d: empty download url", p.Kind, u.MessageID)
	}

	fileType := p.Kind.FileType()
	mimeType := p.File.MimeType
	if mimeType == "" && resolved.FilePath != "" {
		mimeType = mime.TypeByExtension(path.Ext(resolved.FilePath))
	}

	captured := time.Unix(u.Timestamp, 0).In(n.location())
	record := &core.FileRecord{
		ID:          u.MessageID,
		Date:        captured.Format(n.dateLayout()),
		CapturedAt:  captured,
		Caption:     u.Caption,
		Type:        fileType,
		Name:        FileName(p.File.FileName, fileType, u.MessageID, mimeType),
		MimeType:    mimeType,
		DownloadURL: resolved.URL,
		Channel:     ChannelLabel(u.Chat),
	}

	switch {
	case p.File.FileSize > 0:
		size := p.File.FileSize
		record.SizeBytes = &size
	case resolved.Size > 0:
		size := resolved.Size
		record.SizeBytes = &size
	}

	return record, nil
}

// FileName picks the display name for a file: the upstream name when
// present, otherwise "{type}_{messageID}", with an extension taken from the
// MIME subtype when the name has none.
func FileName(upstream string, fileType core.FileType, messageID int64, mimeType string) string {
	name := strings.TrimSpace(upstream)
	if name == "" {
		name = string(fileType) + "_" + strconv.FormatInt(messageID, 10)
	}
	if path.Ext(name) != "" {
		return name
	}
	if ext := mimeSubtype(mimeType); ext != "" {
		name += "." + ext
	}
	return name
}

// mimeSubtype returns the bare subtype: "svg" for "image/svg+xml" and "plain"
// for "text/plain; charset=utf-8".
func mimeSubtype(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ""
	}
	_, subtype, ok := strings.Cut(mediaType, "/")
	if !ok {
		return ""
	}
	if base, _, found := strings.Cut(subtype, "+"); found {
		subtype = base
	}
	return strings.TrimSpace(subtype)
}

// ChannelLabel renders a chat as "@username", or its numeric id when it has
// no public username.
func ChannelLabel(chat core.ChatRef) string {
	if chat.Username != "" {
		return "@" + chat.Username
	}
	if chat.ID != 0 {
		return strconv.FormatInt(chat.ID, 10)
	}
	return ""
}

func (n *Normalizer) concurrency() int {
	if n.Concurrency > 0 {
		return n.Concurrency
	}
	return DefaultConcurrency
}

func (n *Normalizer) resolveTimeout() time.Duration {
	if n.ResolveTimeout > 0 {
		return n.ResolveTimeout
	}
	return DefaultResolveTimeout
}

func (n *Normalizer) dateLayout() string {
	if n.DateLayout != "" {
		return n.DateLayout
	}
	return DefaultDateLayout
}

func (n *Normalizer) location() *time.Location {
	if n.Location != nil {
		return n.Location
	}
	return time.UTC
}
