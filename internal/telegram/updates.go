package telegram

import (
	"github.com/go-telegram/bot/models"

	"github.com/tgfiles/tgfiles/internal/core"
)

// FromUpdate flattens a Bot API update into a RawUpdate. Updates without a
// message-like payload (callbacks, polls, member changes) report false.
func FromUpdate(u *models.Update) (core.RawUpdate, bool) {
	if u == nil {
		return core.RawUpdate{}, false
	}

	msg, edited := u.Message, false
	switch {
	case msg != nil:
	case u.ChannelPost != nil:
		msg = u.ChannelPost
	case u.EditedMessage != nil:
		msg, edited = u.EditedMessage, true
	case u.EditedChannelPost != nil:
		msg, edited = u.EditedChannelPost, true
	default:
		return core.RawUpdate{}, false
	}

	raw := core.RawUpdate{
		UpdateID:  u.ID,
		MessageID: int64(msg.ID),
		Timestamp: int64(msg.Date),
		Caption:   msg.Caption,
		Edited:    edited,
		Chat: core.ChatRef{
			ID:       msg.Chat.ID,
			Username: msg.Chat.Username,
			Title:    msg.Chat.Title,
			Type:     string(msg.Chat.Type),
		},
	}

	if d := msg.Document; d != nil {
		raw.Document = &core.FileMeta{
			FileID:       d.FileID,
			FileUniqueID: d.FileUniqueID,
			FileName:     d.FileName,
			MimeType:     d.MimeType,
			FileSize:     int64(d.FileSize),
		}
	}
	if v := msg.Video; v != nil {
		raw.Video = &core.FileMeta{
			FileID:       v.FileID,
			FileUniqueID: v.FileUniqueID,
			FileName:     v.FileName,
			MimeType:     v.MimeType,
			FileSize:     int64(v.FileSize),
		}
	}
	if a := msg.Audio; a != nil {
		raw.Audio = &core.FileMeta{
			FileID:       a.FileID,
			FileUniqueID: a.FileUniqueID,
			FileName:     a.FileName,
			MimeType:     a.MimeType,
			FileSize:     int64(a.FileSize),
		}
	}
	if v := msg.Voice; v != nil {
		raw.Voice = &core.FileMeta{
			FileID:       v.FileID,
			FileUniqueID: v.FileUniqueID,
			MimeType:     v.MimeType,
			FileSize:     int64(v.FileSize),
		}
	}
	if n := msg.VideoNote; n != nil {
		raw.VideoNote = &core.FileMeta{
			FileID:       n.FileID,
			FileUniqueID: n.FileUniqueID,
			FileSize:     int64(n.FileSize),
		}
	}
	for _, p := range msg.Photo {
		raw.Photo = append(raw.Photo, core.FileMeta{
			FileID:       p.FileID,
			FileUniqueID: p.FileUniqueID,
			FileSize:     int64(p.FileSize),
		})
	}

	return raw, true
}
