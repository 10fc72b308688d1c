package core

import "time"

// FileType is the catalog category of a normalized file.
type FileType string

const (
	FileTypeDocument FileType = "document"
	FileTypeImage    FileType = "image"
	FileTypeVideo    FileType = "video"
	FileTypeAudio    FileType = "audio"
)

// FileMeta is the upstream description of one attachment.
// A FileSize of 0 means the upstream did not report a size.
type FileMeta struct {
	FileID       string
	FileUniqueID string
	FileName     string
	MimeType     string
	FileSize     int64
}

// ChatRef identifies the chat an update was posted to.
type ChatRef struct {
	ID       int64
	Username string
	Title    string
	Type     string
}

// RawUpdate is one message-like object from the upstream feed, flattened so
// the normalizer does not depend on the bot API client types.
type RawUpdate struct {
	UpdateID  int64
	MessageID int64
	// Timestamp is unix seconds.
	Timestamp int64
	Caption   string
	Chat      ChatRef
	Edited    bool

	Document  *FileMeta
	Video     *FileMeta
	Audio     *FileMeta
	Voice     *FileMeta
	VideoNote *FileMeta
	// Photo holds every size of one photo, smallest first.
	Photo []FileMeta
}

// FileRecord is a normalized, downloadable catalog entry.
type FileRecord struct {
	ID          int64     `json:"id" yaml:"id"`
	Date        string    `json:"date" yaml:"date"`
	CapturedAt  time.Time `json:"captured_at" yaml:"captured_at"`
	Caption     string    `json:"caption" yaml:"caption"`
	Type        FileType  `json:"type" yaml:"type"`
	Name        string    `json:"name" yaml:"name"`
	SizeBytes   *int64    `json:"size,omitempty" yaml:"size,omitempty"`
	MimeType    string    `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
	DownloadURL string    `json:"download_url" yaml:"download_url"`
	Channel     string    `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// QuizOption is one lettered answer choice.
type QuizOption struct {
	Letter string `json:"letter" yaml:"letter"`
	Text   string `json:"text" yaml:"text"`
}

// QuizQuestion is one parsed question block.
type QuizQuestion struct {
	ID          int          `json:"id" yaml:"id"`
	Text        string       `json:"text" yaml:"text"`
	Options     []QuizOption `json:"options" yaml:"options"`
	Answer      string       `json:"answer,omitempty" yaml:"answer,omitempty"`
	Explanation string       `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}
