package telegram

import (
	"strings"

	"github.com/gotd/td/tg"

	"github.com/chatvault/chatvault/internal/models"
)

// channelIDOffset converts raw channel ids into the conventional negative
// form so channel chat ids never collide with user or group ids.
const channelIDOffset int64 = 1_000_000_000_000

func groupChatID(id int64) int64   { return -id }
func channelChatID(id int64) int64 { return -(channelIDOffset + id) }

// peerChatID maps a Telegram peer to the chat id convention used across the
// archive: users positive, basic groups negated, channels offset-negated.
func peerChatID(p tg.PeerClass) int64 {
	switch v := p.(type) {
	case *tg.PeerUser:
		return v.UserID
	case *tg.PeerChat:
		return groupChatID(v.ChatID)
	case *tg.PeerChannel:
		return channelChatID(v.ChannelID)
	}
	return 0
}

func displayName(u *tg.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

// classifyMedia maps Telegram media to a message type and media descriptor.
// Link previews stay plain text.
func classifyMedia(media tg.MessageMediaClass) (models.MessageType, *models.MediaInfo) {
	switch md := media.(type) {
	case *tg.MessageMediaWebPage:
		return models.MessageTypeText, nil
	case *tg.MessageMediaPhoto:
		return models.MessageTypePhoto, &models.MediaInfo{Type: "photo"}
	case *tg.MessageMediaDocument:
		doc, ok := md.Document.(*tg.Document)
		if !ok {
			return models.MessageTypeDocument, &models.MediaInfo{Type: "document"}
		}
		info := &models.MediaInfo{
			Type:     "document",
			MimeType: doc.MimeType,
			FileSize: doc.Size,
		}
		typ := models.MessageTypeDocument
		for _, attr := range doc.Attributes {
			switch a := attr.(type) {
			case *tg.DocumentAttributeFilename:
				info.FileName = a.FileName
			case *tg.DocumentAttributeImageSize:
				info.Width, info.Height = a.W, a.H
			case *tg.DocumentAttributeVideo:
				typ = models.MessageTypeVideo
				info.Type = "video"
				info.Width, info.Height = a.W, a.H
				info.Duration = int(a.Duration)
			case *tg.DocumentAttributeSticker:
				typ = models.MessageTypeSticker
				info.Type = "sticker"
			}
		}
		return typ, info
	default:
		return models.MessageTypeOther, &models.MediaInfo{Type: "other"}
	}
}

// extractHistory flattens a MessagesGetHistory response into raw messages.
func extractHistory(resp tg.MessagesMessagesClass) []tg.MessageClass {
	switch h := resp.(type) {
	case *tg.MessagesMessages:
		return h.Messages
	case *tg.MessagesMessagesSlice:
		return h.Messages
	case *tg.MessagesChannelMessages:
		return h.Messages
	}
	return nil
}
