package normalize

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgfiles/tgfiles/internal/core"
)

type fakeResolver struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	block map[string]bool
}

func (f *fakeResolver) ResolveFile(ctx context.Context, fileID string) (ResolvedFile, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fileID)
	err := f.fail[fileID]
	block := f.block[fileID]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ResolvedFile{}, ctx.Err()
	}
	if err != nil {
		return ResolvedFile{}, err
	}
	return ResolvedFile{
		URL:      "https://files.example/" + fileID,
		FilePath: "documents/" + fileID + ".pdf",
	}, nil
}

func docUpdate(messageID int64, fileID, caption string) core.RawUpdate {
	return core.RawUpdate{
		MessageID: messageID,
		Timestamp: 1700000000 + messageID,
		Caption:   caption,
		Chat:      core.ChatRef{ID: -100123, Username: "files"},
		Document:  &core.FileMeta{FileID: fileID, FileName: fileID + ".pdf", MimeType: "application/pdf", FileSize: 2048},
	}
}

func newNormalizer(r FileResolver) *Normalizer {
	return &Normalizer{Resolver: r, Location: time.UTC, DateLayout: time.RFC3339}
}

func TestClassifyPriority(t *testing.T) {
	doc := &core.FileMeta{FileID: "doc"}
	video := &core.FileMeta{FileID: "video"}
	audio := &core.FileMeta{FileID: "audio"}
	voice := &core.FileMeta{FileID: "voice"}
	note := &core.FileMeta{FileID: "note"}
	photos := []core.FileMeta{{FileID: "small"}, {FileID: "large"}}

	tests := []struct {
		name   string
		update core.RawUpdate
		kind   Kind
		fileID string
	}{
		{"document wins", core.RawUpdate{Document: doc, Video: video, Photo: photos}, KindDocument, "doc"},
		{"video before audio", core.RawUpdate{Video: video, Audio: audio}, KindVideo, "video"},
		{"audio before voice", core.RawUpdate{Audio: audio, Voice: voice}, KindAudio, "audio"},
		{"voice before video note", core.RawUpdate{Voice: voice, VideoNote: note}, KindVoice, "voice"},
		{"video note before photo", core.RawUpdate{VideoNote: note, Photo: photos}, KindVideoNote, "note"},
		{"photo uses last size", core.RawUpdate{Photo: photos}, KindPhoto, "large"},
		{"text only", core.RawUpdate{Caption: "hello"}, KindNone, ""},
		{"empty file id ignored", core.RawUpdate{Document: &core.FileMeta{}}, KindNone, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Classify(tt.update)
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.fileID, p.File.FileID)
		})
	}
}

func TestKindFileType(t *testing.T) {
	assert.Equal(t, core.FileTypeDocument, KindDocument.FileType())
	assert.Equal(t, core.FileTypeImage, KindPhoto.FileType())
	assert.Equal(t, core.FileTypeVideo, KindVideo.FileType())
	assert.Equal(t, core.FileTypeVideo, KindVideoNote.FileType())
	assert.Equal(t, core.FileTypeAudio, KindAudio.FileType())
	assert.Equal(t, core.FileTypeAudio, KindVoice.FileType())
	assert.Equal(t, "video_note", KindVideoNote.String())
}

func TestNormalizeRecord(t *testing.T) {
	n := &Normalizer{Resolver: &fakeResolver{}, Location: time.UTC}
	update := docUpdate(7, "abc", "weekly notes")
	update.Timestamp = 1704067200 // 2024-01-01T00:00:00Z

	result := n.Normalize(context.Background(), []core.RawUpdate{update})
	require.Len(t, result.Files, 1)
	require.False(t, result.Empty())

	record := result.Files[0]
	assert.Equal(t, int64(7), record.ID)
	assert.Equal(t, "1/1/2024, 12:00:00 am", record.Date)
	assert.True(t, time.Unix(1704067200, 0).Equal(record.CapturedAt))
	assert.Equal(t, "weekly notes", record.Caption)
	assert.Equal(t, core.FileTypeDocument, record.Type)
	assert.Equal(t, "abc.pdf", record.Name)
	require.NotNil(t, record.SizeBytes)
	assert.Equal(t, int64(2048), *record.SizeBytes)
	assert.Equal(t, "application/pdf", record.MimeType)
	assert.Equal(t, "https://files.example/abc", record.DownloadURL)
	assert.Equal(t, "@files", record.Channel)
}

func TestNormalizeDedupKeepsLastArrival(t *testing.T) {
	n := newNormalizer(&fakeResolver{})
	updates := []core.RawUpdate{
		docUpdate(5, "first", "original caption"),
		docUpdate(6, "other", "unrelated"),
		docUpdate(5, "second", "edited caption"),
	}

	result := n.Normalize(context.Background(), updates)
	require.Len(t, result.Files, 2)

	assert.Equal(t, int64(6), result.Files[0].ID)
	assert.Equal(t, int64(5), result.Files[1].ID)
	assert.Equal(t, "edited caption", result.Files[1].Caption)
	assert.Equal(t, "second.pdf", result.Files[1].Name)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, SkipSuperseded, result.Skipped[0].Skip)
	assert.Equal(t, int64(5), result.Skipped[0].MessageID)
}

func inChat(u core.RawUpdate, chatID int64, username string) core.RawUpdate {
	u.Chat = core.ChatRef{ID: chatID, Username: username}
	return u
}

func TestNormalizeDedupIsPerChat(t *testing.T) {
	n := newNormalizer(&fakeResolver{})
	updates := []core.RawUpdate{
		inChat(docUpdate(7, "alpha", ""), -100123, "files"),
		inChat(docUpdate(7, "beta", ""), -100999, "archive"),
		inChat(docUpdate(7, "gamma", ""), -100123, "files"),
	}

	result := n.Normalize(context.Background(), updates)
	require.Len(t, result.Files, 2)
	assert.Equal(t, "gamma.pdf", result.Files[0].Name)
	assert.Equal(t, "@files", result.Files[0].Channel)
	assert.Equal(t, "beta.pdf", result.Files[1].Name)
	assert.Equal(t, "@archive", result.Files[1].Channel)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, SkipSuperseded, result.Skipped[0].Skip)
	assert.Equal(t, int64(-100123), result.Skipped[0].ChatID)

	ascending := n.WithOrder(true).Normalize(context.Background(), updates)
	require.Len(t, ascending.Files, 2)
	assert.Equal(t, "beta.pdf", ascending.Files[0].Name)
	assert.Equal(t, "gamma.pdf", ascending.Files[1].Name)
}

func TestNormalizePartialFailureIsolation(t *testing.T) {
	resolver := &fakeResolver{fail: map[string]error{"two": errors.New("upstream 400")}}
	n := newNormalizer(resolver)
	updates := []core.RawUpdate{
		docUpdate(1, "one", ""),
		docUpdate(2, "two", ""),
		docUpdate(3, "three", ""),
	}

	result := n.Normalize(context.Background(), updates)
	require.Len(t, result.Files, 2)
	assert.Equal(t, int64(3), result.Files[0].ID)
	assert.Equal(t, int64(1), result.Files[1].ID)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, SkipResolutionFailed, result.Skipped[0].Skip)
	assert.Equal(t, int64(2), result.Skipped[0].MessageID)
	assert.ErrorContains(t, result.Skipped[0].Err, "upstream 400")
}

func TestNormalizeTimeoutDoesNotBlockSiblings(t *testing.T) {
	resolver := &fakeResolver{block: map[string]bool{"slow": true}}
	n := newNormalizer(resolver)
	n.ResolveTimeout = 20 * time.Millisecond
	n.Concurrency = 1

	updates := []core.RawUpdate{
		docUpdate(1, "slow", ""),
		docUpdate(2, "fast", ""),
		docUpdate(3, "faster", ""),
	}

	result := n.Normalize(context.Background(), updates)
	require.Len(t, result.Files, 2)
	require.Len(t, result.Skipped, 1)
	assert.ErrorIs(t, result.Skipped[0].Err, context.DeadlineExceeded)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := newNormalizer(&fakeResolver{})
	updates := []core.RawUpdate{
		docUpdate(3, "c", "x"),
		docUpdate(1, "a", "y"),
		{MessageID: 9, Caption: "text only"},
		docUpdate(2, "b", "z"),
	}

	first := n.Normalize(context.Background(), updates)
	second := n.Normalize(context.Background(), updates)
	assert.Equal(t, first.Files, second.Files)
	assert.Equal(t, first.Skipped, second.Skipped)
}

func TestNormalizeOrdering(t *testing.T) {
	n := newNormalizer(&fakeResolver{})
	updates := []core.RawUpdate{docUpdate(2, "b", ""), docUpdate(9, "i", ""), docUpdate(4, "d", "")}

	ids := func(r Result) []int64 {
		out := make([]int64, 0, len(r.Files))
		for _, f := range r.Files {
			out = append(out, f.ID)
		}
		return out
	}

	assert.Equal(t, []int64{9, 4, 2}, ids(n.Normalize(context.Background(), updates)))
	assert.Equal(t, []int64{2, 4, 9}, ids(n.WithOrder(true).Normalize(context.Background(), updates)))
	assert.False(t, n.Ascending, "WithOrder must not mutate the receiver")
}

func TestNormalizeEmpty(t *testing.T) {
	n := newNormalizer(&fakeResolver{})

	result := n.Normalize(context.Background(), nil)
	assert.True(t, result.Empty())
	assert.NotNil(t, result.Files)

	result = n.Normalize(context.Background(), []core.RawUpdate{{MessageID: 1, Caption: "just text"}})
	assert.True(t, result.Empty())
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, SkipNoPayload, result.Skipped[0].Skip)
}

func TestNormalizeWithoutResolver(t *testing.T) {
	n := &Normalizer{}
	result := n.Normalize(context.Background(), []core.RawUpdate{docUpdate(1, "a", "")})
	assert.True(t, result.Empty())
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, SkipResolutionFailed, result.Skipped[0].Skip)
}

func TestNormalizeSynthesizedNames(t *testing.T) {
	n := newNormalizer(&fakeResolver{})
	photo := core.RawUpdate{
		MessageID: 11,
		Photo:     []core.FileMeta{{FileID: "p-small"}, {FileID: "p-large", FileSize: 900}},
	}
	voice := core.RawUpdate{
		MessageID: 12,
		Voice:     &core.FileMeta{FileID: "v", MimeType: "audio/ogg"},
	}

	result := n.Normalize(context.Background(), []core.RawUpdate{photo, voice})
	require.Len(t, result.Files, 2)

	assert.Equal(t, "audio_12.ogg", result.Files[0].Name)
	assert.Equal(t, core.FileTypeAudio, result.Files[0].Type)

	// Photo MIME comes from the resolved path extension.
	assert.Equal(t, "image_11.pdf", result.Files[1].Name)
	assert.Equal(t, "application/pdf", result.Files[1].MimeType)
	assert.Equal(t, core.FileTypeImage, result.Files[1].Type)
	assert.Empty(t, result.Files[1].Channel)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		upstream string
		fileType core.FileType
		id       int64
		mime     string
		want     string
	}{
		{"report.pdf", core.FileTypeDocument, 1, "application/pdf", "report.pdf"},
		{"README", core.FileTypeDocument, 1, "text/plain; charset=utf-8", "README.plain"},
		{"", core.FileTypeImage, 42, "image/jpeg", "image_42.jpeg"},
		{"", core.FileTypeImage, 43, "image/svg+xml", "image_43.svg"},
		{"", core.FileTypeVideo, 44, "", "video_44"},
		{"", core.FileTypeAudio, 45, "not a mime", "audio_45"},
		{"  ", core.FileTypeDocument, 46, "", "document_46"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FileName(tt.upstream, tt.fileType, tt.id, tt.mime))
	}
}

func TestChannelLabel(t *testing.T) {
	assert.Equal(t, "@news", ChannelLabel(core.ChatRef{ID: -1001, Username: "news"}))
	assert.Equal(t, "-1001", ChannelLabel(core.ChatRef{ID: -1001}))
	assert.Empty(t, ChannelLabel(core.ChatRef{}))
}
