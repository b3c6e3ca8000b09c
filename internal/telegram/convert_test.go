package telegram

import (
	"errors"
	"testing"

	"github.com/gotd/td/tg"

	"github.com/chatvault/chatvault/internal/models"
)

func TestPeerChatID(t *testing.T) {
	tests := []struct {
		name string
		peer tg.PeerClass
		want int64
	}{
		{"user", &tg.PeerUser{UserID: 777}, 777},
		{"group", &tg.PeerChat{ChatID: 4242}, -4242},
		{"channel", &tg.PeerChannel{ChannelID: 123456}, -(channelIDOffset + 123456)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := peerChatID(tt.peer); got != tt.want {
				t.Errorf("peerChatID() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClassifyMedia(t *testing.T) {
	t.Run("photo", func(t *testing.T) {
		typ, info := classifyMedia(&tg.MessageMediaPhoto{})
		if typ != models.MessageTypePhoto {
			t.Errorf("type = %s, want photo", typ)
		}
		if info == nil || info.Type != "photo" {
			t.Errorf("unexpected media info: %+v", info)
		}
	})

	t.Run("web page stays text", func(t *testing.T) {
		typ, info := classifyMedia(&tg.MessageMediaWebPage{})
		if typ != models.MessageTypeText {
			t.Errorf("type = %s, want text", typ)
		}
		if info != nil {
			t.Errorf("expected nil media info, got %+v", info)
		}
	})

	t.Run("video document", func(t *testing.T) {
		doc := &tg.Document{
			MimeType: "video/mp4",
			Size:     2048,
			Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeFilename{FileName: "clip.mp4"},
				&tg.DocumentAttributeVideo{Duration: 12.5, W: 640, H: 480},
			},
		}
		typ, info := classifyMedia(&tg.MessageMediaDocument{Document: doc})
		if typ != models.MessageTypeVideo {
			t.Errorf("type = %s, want video", typ)
		}
		if info.FileName != "clip.mp4" || info.Duration != 12 || info.Width != 640 {
			t.Errorf("unexpected media info: %+v", info)
		}
	})

	t.Run("sticker", func(t *testing.T) {
		doc := &tg.Document{
			Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeSticker{}},
		}
		typ, _ := classifyMedia(&tg.MessageMediaDocument{Document: doc})
		if typ != models.MessageTypeSticker {
			t.Errorf("type = %s, want sticker", typ)
		}
	})

	t.Run("unknown media", func(t *testing.T) {
		typ, info := classifyMedia(&tg.MessageMediaGeo{})
		if typ != models.MessageTypeOther {
			t.Errorf("type = %s, want other", typ)
		}
		if info == nil || info.Type != "other" {
			t.Errorf("unexpected media info: %+v", info)
		}
	})
}

func TestCheckFloodWait(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, 0},
		{"plain error", errors.New("connection reset"), 0},
		{"flood wait", errors.New("rpc error code 420: FLOOD_WAIT_15"), 15},
		{"flood wait with suffix", errors.New("FLOOD_WAIT_42 (caused by messages.GetHistory)"), 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkFloodWait(tt.err); got != tt.want {
				t.Errorf("checkFloodWait() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConvertMessage(t *testing.T) {
	s := NewSource(nil, nil)
	s.names[777] = "Alice Smith"

	raw := &tg.Message{
		ID:      100,
		Date:    1700000000,
		Message: "hello there",
	}
	raw.SetFromID(&tg.PeerUser{UserID: 777})
	raw.SetViews(12)

	msg := s.convertMessage(555, raw)

	if msg.ID != 100 || msg.ChatID != 555 {
		t.Errorf("identity = (%d, %d), want (100, 555)", msg.ChatID, msg.ID)
	}
	if msg.Type != models.MessageTypeText {
		t.Errorf("type = %s, want text", msg.Type)
	}
	if msg.Text() != "hello there" {
		t.Errorf("content = %q", msg.Text())
	}
	if msg.FromID == nil || *msg.FromID != 777 {
		t.Errorf("from id = %v, want 777", msg.FromID)
	}
	if msg.FromName == nil || *msg.FromName != "Alice Smith" {
		t.Errorf("from name = %v, want Alice Smith", msg.FromName)
	}
	if msg.Views == nil || *msg.Views != 12 {
		t.Errorf("views = %v, want 12", msg.Views)
	}
	if msg.Embedding != nil {
		t.Error("embedding must start nil")
	}
}

func TestExtractHistory(t *testing.T) {
	msgs := []tg.MessageClass{&tg.Message{ID: 1}, &tg.MessageEmpty{ID: 2}}

	if got := extractHistory(&tg.MessagesChannelMessages{Messages: msgs}); len(got) != 2 {
		t.Errorf("channel messages: got %d, want 2", len(got))
	}
	if got := extractHistory(&tg.MessagesMessagesSlice{Messages: msgs}); len(got) != 2 {
		t.Errorf("slice: got %d, want 2", len(got))
	}
	if got := extractHistory(&tg.MessagesMessagesNotModified{}); got != nil {
		t.Errorf("not modified: got %v, want nil", got)
	}
}
