package normalize

import "github.com/tgfiles/tgfiles/internal/core"

// Kind tags which attachment an update carries.
type Kind int

const (
	KindNone Kind = iota
	KindDocument
	KindPhoto
	KindVideo
	KindAudio
	KindVoice
	KindVideoNote
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindVoice:
		return "voice"
	case KindVideoNote:
		return "video_note"
	default:
		return "none"
	}
}

// FileType maps the attachment kind to its catalog category.
func (k Kind) FileType() core.FileType {
	switch k {
	case KindPhoto:
		return core.FileTypeImage
	case KindVideo, KindVideoNote:
		return core.FileTypeVideo
	case KindAudio, KindVoice:
		return core.FileTypeAudio
	default:
		return core.FileTypeDocument
	}
}

// Payload is the single attachment selected from an update.
type Payload struct {
	Kind Kind
	File core.FileMeta
}

// Classify selects the attachment of u in priority order: document, video,
// audio, voice, video note, then the largest photo size.
func Classify(u core.RawUpdate) Payload {
	candidates := []struct {
		kind Kind
		file *core.FileMeta
	}{
		{KindDocument, u.Document},
		{KindVideo, u.Video},
		{KindAudio, u.Audio},
		{KindVoice, u.Voice},
		{KindVideoNote, u.VideoNote},
	}
	for _, c := range candidates {
		if c.file != nil && c.file.FileID != "" {
			return Payload{Kind: c.kind, File: *c.file}
		}
	}

	if n := len(u.Photo); n > 0 && u.Photo[n-1].FileID != "" {
		return Payload{Kind: KindPhoto, File: u.Photo[n-1]}
	}

	return Payload{Kind: KindNone}
}
