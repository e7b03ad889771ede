package discord

import (
	"path/filepath"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/transcribot/internal/chat"
)

// voiceMessageName is the file name Discord gives recorded voice messages.
const voiceMessageName = "voice-message.ogg"

// DetectKind classifies an attachment by content type, falling back to the
// file extension. Anything unrecognised is a document, which the handler
// sniffs before accepting.
func DetectKind(filename, contentType string) chat.MediaKind {
	switch {
	case filename == voiceMessageName:
		return chat.MediaVoice
	case strings.HasPrefix(contentType, "audio/"):
		return chat.MediaAudio
	case strings.HasPrefix(contentType, "video/"):
		return chat.MediaVideo
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3", ".m4a", ".ogg", ".oga", ".opus", ".wav", ".flac", ".aac":
		return chat.MediaAudio
	case ".mp4", ".mkv", ".webm", ".mov":
		return chat.MediaVideo
	default:
		return chat.MediaDocument
	}
}

func mediaFromAttachment(a *discordgo.MessageAttachment) *chat.Media {
	kind := DetectKind(a.Filename, a.ContentType)
	m := &chat.Media{
		Kind:     kind,
		FileID:   a.ID,
		FileName: a.Filename,
		MimeType: a.ContentType,
		Size:     int64(a.Size),
		URL:      a.URL,
	}
	if kind == chat.MediaVoice {
		m.FileName = ""
	}
	return m
}
