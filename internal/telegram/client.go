// Package telegram implements the Telegram MTProto chat source.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/dispatcher/handlers"
	"github.com/celestix/gotgproto/dispatcher/handlers/filters"
	"github.com/celestix/gotgproto/ext"
	"github.com/google/uuid"
	"github.com/gotd/td/tg"
	"gorm.io/gorm"

	"github.com/chatvault/chatvault/internal/apperr"
	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/logger"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/source"
)

const (
	dialogPageLimit = 100
	// telegram api caps history pages at 100
	maxHistoryPage = 100
)

// Source pulls chats, folders and message history over MTProto.
// It implements source.ChatSource.
type Source struct {
	cfg         *config.Config
	db          *gorm.DB
	rateLimiter *RateLimiter
	log         *logger.Logger

	clientFactory ClientFactory

	mu       sync.RWMutex
	client   *gotgproto.Client
	peers    map[int64]tg.InputPeerClass
	names    map[int64]string
	handlers []source.MessageHandler
}

// NewSource creates a Telegram source. Connect must be called before use.
func NewSource(cfg *config.Config, db *gorm.DB) *Source {
	return &Source{
		cfg:           cfg,
		db:            db,
		rateLimiter:   DefaultRateLimiter(),
		log:           logger.Get(),
		clientFactory: NewPersistentClient,
		peers:         make(map[int64]tg.InputPeerClass),
		names:         make(map[int64]string),
	}
}

// SetClientFactory allows overriding the client creation logic (e.g. for testing).
func (s *Source) SetClientFactory(f ClientFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientFactory = f
}

// Connect authorizes the underlying client and wires the live-update handler.
func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	factory := s.clientFactory
	s.mu.Unlock()

	client, err := factory(s.cfg, s.db)
	if err != nil {
		return apperr.Wrap(apperr.KindSource, "connect telegram", err)
	}

	client.Dispatcher.AddHandler(handlers.NewMessage(filters.Message.All, s.handleUpdate))

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	s.log.Info().Str("user", client.Self.Username).Msg("telegram: client is ready")
	return nil
}

// Disconnect stops the underlying client.
func (s *Source) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Stop()
		s.client = nil
	}
	return nil
}

// OnMessage registers a live-push handler.
func (s *Source) OnMessage(handler source.MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// GetChats lists every dialog the account participates in, newest activity
// first as Telegram returns them. Peer access hashes observed along the way
// are cached for later history pulls.
func (s *Source) GetChats(ctx context.Context) ([]models.Chat, error) {
	req := &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      dialogPageLimit,
	}

	var out []models.Chat
	seen := make(map[int64]bool)
	for {
		if err := s.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		api, err := s.api()
		if err != nil {
			return nil, err
		}

		s.log.Debug().Int("offset_id", req.OffsetID).Msg("telegram: fetching dialogs page")
		resp, err := api.MessagesGetDialogs(ctx, req)
		if err != nil {
			if wait := checkFloodWait(err); wait > 0 {
				s.log.Warn().Int("wait_seconds", wait).Msg("telegram: FLOOD_WAIT detected, updating rate limiter")
				s.rateLimiter.SetFloodWait(wait)
			}
			return nil, apperr.Wrap(apperr.KindSource, "get dialogs", err)
		}

		var (
			dialogs []tg.DialogClass
			msgs    []tg.MessageClass
			last    bool
		)
		switch d := resp.(type) {
		case *tg.MessagesDialogs:
			s.indexPeers(d.Chats, d.Users)
			out = append(out, s.chatsFromDialogs(d.Dialogs, d.Chats, d.Users, seen)...)
			last = true
		case *tg.MessagesDialogsSlice:
			s.indexPeers(d.Chats, d.Users)
			out = append(out, s.chatsFromDialogs(d.Dialogs, d.Chats, d.Users, seen)...)
			dialogs, msgs = d.Dialogs, d.Messages
		case *tg.MessagesDialogsNotModified:
			last = true
		}

		if last || len(dialogs) < dialogPageLimit {
			break
		}

		offsetDate, offsetID, offsetPeer, ok := s.nextDialogOffset(dialogs, msgs)
		if !ok {
			break
		}
		req.OffsetDate, req.OffsetID, req.OffsetPeer = offsetDate, offsetID, offsetPeer
	}

	s.log.Info().Int("count", len(out)).Msg("telegram: dialogs fetched")
	return out, nil
}

// GetFolders lists the account's dialog filters plus the implicit folder 0.
func (s *Source) GetFolders(ctx context.Context) ([]models.Folder, error) {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	api, err := s.api()
	if err != nil {
		return nil, err
	}

	res, err := api.MessagesGetDialogFilters(ctx)
	if err != nil {
		if wait := checkFloodWait(err); wait > 0 {
			s.rateLimiter.SetFloodWait(wait)
		}
		return nil, apperr.Wrap(apperr.KindSource, "get dialog filters", err)
	}

	folders := []models.Folder{{ID: models.AllChatsFolderID, Title: "All Chats"}}
	for _, fc := range res.Filters {
		switch f := fc.(type) {
		case *tg.DialogFilter:
			folders = append(folders, models.Folder{
				ID:    int64(f.ID),
				Title: f.Title.Text,
				Emoji: f.Emoticon,
			})
		case *tg.DialogFilterChatlist:
			folders = append(folders, models.Folder{
				ID:    int64(f.ID),
				Title: f.Title.Text,
				Emoji: f.Emoticon,
			})
		}
	}
	return folders, nil
}

// NextMessages pulls one page of history at the cursor, newest to oldest.
func (s *Source) NextMessages(ctx context.Context, chatID int64, cursor source.Cursor, limit int, filter source.MessageFilter) (*source.MessagePage, error) {
	if limit <= 0 || limit > maxHistoryPage {
		limit = maxHistoryPage
	}

	peer, err := s.inputPeer(ctx, chatID)
	if err != nil {
		return nil, err
	}

	s.log.Debug().Int64("chat_id", chatID).Int64("offset_id", cursor.OffsetID).Int("limit", limit).Msg("telegram: waiting for rate limiter before GetHistory")
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	api, err := s.api()
	if err != nil {
		return nil, err
	}

	history, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     peer,
		OffsetID: int(cursor.OffsetID),
		Limit:    limit,
	})
	if err != nil {
		if wait := checkFloodWait(err); wait > 0 {
			s.log.Warn().Int("wait_seconds", wait).Msg("telegram: FLOOD_WAIT detected in GetHistory, updating rate limiter")
			s.rateLimiter.SetFloodWait(wait)
		}
		return nil, apperr.Wrap(apperr.KindSource, "get history", err)
	}

	raw := extractHistory(history)
	page := &source.MessagePage{}
	for _, mc := range raw {
		m, ok := mc.(*tg.Message)
		if !ok {
			// service messages carry no archivable content
			continue
		}
		msg := s.convertMessage(chatID, m)
		if filter.Match(&msg) {
			page.Messages = append(page.Messages, msg)
		}
	}
	if len(raw) > 0 {
		page.Next = source.Cursor{OffsetID: int64(raw[len(raw)-1].GetID())}
	}
	page.Done = len(raw) < limit
	return page, nil
}

// handleUpdate forwards live messages to registered handlers.
func (s *Source) handleUpdate(ctx *ext.Context, u *ext.Update) error {
	var mc tg.MessageClass
	switch up := u.UpdateClass.(type) {
	case *tg.UpdateNewMessage:
		mc = up.Message
	case *tg.UpdateNewChannelMessage:
		mc = up.Message
	default:
		return nil
	}
	m, ok := mc.(*tg.Message)
	if !ok {
		return nil
	}

	msg := s.convertMessage(peerChatID(m.PeerID), m)

	s.mu.RLock()
	hs := make([]source.MessageHandler, len(s.handlers))
	copy(hs, s.handlers)
	s.mu.RUnlock()

	for _, h := range hs {
		h(ctx, msg)
	}
	return nil
}

// api returns the raw tg.Client for direct API calls.
func (s *Source) api() (*tg.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, apperr.New(apperr.KindSource, "telegram client not connected")
	}
	return s.client.API(), nil
}

func (s *Source) selfID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil || s.client.Self == nil {
		return 0
	}
	return s.client.Self.ID
}

// inputPeer resolves a chat id to a cached input peer, refreshing the dialog
// cache once on a miss.
func (s *Source) inputPeer(ctx context.Context, chatID int64) (tg.InputPeerClass, error) {
	s.mu.RLock()
	peer, ok := s.peers[chatID]
	s.mu.RUnlock()
	if ok {
		return peer, nil
	}

	if _, err := s.GetChats(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	peer, ok = s.peers[chatID]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "chat %d not found in dialogs", chatID)
	}
	return peer, nil
}

// indexPeers caches input peers and display names seen in an API response.
func (s *Source) indexPeers(chats []tg.ChatClass, users []tg.UserClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uc := range users {
		u, ok := uc.(*tg.User)
		if !ok {
			continue
		}
		s.peers[u.ID] = &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}
		s.names[u.ID] = displayName(u)
	}
	for _, cc := range chats {
		switch c := cc.(type) {
		case *tg.Chat:
			s.peers[groupChatID(c.ID)] = &tg.InputPeerChat{ChatID: c.ID}
			s.names[groupChatID(c.ID)] = c.Title
		case *tg.Channel:
			s.peers[channelChatID(c.ID)] = &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: c.AccessHash}
			s.names[channelChatID(c.ID)] = c.Title
		}
	}
}

// chatsFromDialogs resolves dialog peers against the response's chat and user
// lists. Dialogs whose peer is missing or forbidden are skipped.
func (s *Source) chatsFromDialogs(dialogs []tg.DialogClass, chats []tg.ChatClass, users []tg.UserClass, seen map[int64]bool) []models.Chat {
	userByID := make(map[int64]*tg.User)
	for _, uc := range users {
		if u, ok := uc.(*tg.User); ok {
			userByID[u.ID] = u
		}
	}
	chatByID := make(map[int64]*tg.Chat)
	channelByID := make(map[int64]*tg.Channel)
	for _, cc := range chats {
		switch c := cc.(type) {
		case *tg.Chat:
			chatByID[c.ID] = c
		case *tg.Channel:
			channelByID[c.ID] = c
		}
	}

	self := s.selfID()

	var out []models.Chat
	for _, dc := range dialogs {
		d, ok := dc.(*tg.Dialog)
		if !ok {
			continue
		}

		var chat models.Chat
		switch p := d.Peer.(type) {
		case *tg.PeerUser:
			u, ok := userByID[p.UserID]
			if !ok {
				continue
			}
			chat = models.Chat{
				ID:    u.ID,
				Type:  models.ChatTypeUser,
				Title: displayName(u),
			}
			if u.ID == self {
				chat.Type = models.ChatTypeSaved
				chat.Title = "Saved Messages"
			}
			if username, ok := u.GetUsername(); ok {
				chat.Username = &username
			}
		case *tg.PeerChat:
			c, ok := chatByID[p.ChatID]
			if !ok {
				continue
			}
			chat = models.Chat{
				ID:    groupChatID(c.ID),
				Type:  models.ChatTypeGroup,
				Title: c.Title,
			}
		case *tg.PeerChannel:
			c, ok := channelByID[p.ChannelID]
			if !ok {
				continue
			}
			chat = models.Chat{
				ID:    channelChatID(c.ID),
				Type:  models.ChatTypeGroup,
				Title: c.Title,
			}
			if c.Broadcast {
				chat.Type = models.ChatTypeChannel
			}
			if username, ok := c.GetUsername(); ok {
				chat.Username = &username
			}
		default:
			continue
		}

		if seen[chat.ID] {
			continue
		}
		seen[chat.ID] = true
		chat.FolderID = models.AllChatsFolderID
		out = append(out, chat)
	}
	return out
}

// nextDialogOffset derives the offset triple for the next dialogs page from
// the last dialog's top message.
func (s *Source) nextDialogOffset(dialogs []tg.DialogClass, msgs []tg.MessageClass) (int, int, tg.InputPeerClass, bool) {
	for i := len(dialogs) - 1; i >= 0; i-- {
		d, ok := dialogs[i].(*tg.Dialog)
		if !ok {
			continue
		}

		s.mu.RLock()
		peer, cached := s.peers[peerChatID(d.Peer)]
		s.mu.RUnlock()
		if !cached {
			continue
		}

		date := 0
		for _, mc := range msgs {
			m, ok := mc.(*tg.Message)
			if !ok || m.ID != d.TopMessage {
				continue
			}
			if peerChatID(m.PeerID) == peerChatID(d.Peer) {
				date = m.Date
				break
			}
		}
		return date, d.TopMessage, peer, true
	}
	return 0, 0, nil, false
}

// convertMessage maps a raw Telegram message into the archive model.
func (s *Source) convertMessage(chatID int64, m *tg.Message) models.Message {
	msg := models.Message{
		UUID:      uuid.New(),
		ID:        int64(m.ID),
		ChatID:    chatID,
		Type:      models.MessageTypeText,
		CreatedAt: time.Unix(int64(m.Date), 0),
	}

	if m.Message != "" {
		content := m.Message
		msg.Content = &content
	}

	if media, ok := m.GetMedia(); ok {
		msg.Type, msg.MediaInfo = classifyMedia(media)
	}

	if p, ok := m.GetFromID(); ok {
		fromID := peerChatID(p)
		msg.FromID = &fromID
		s.mu.RLock()
		name, known := s.names[fromID]
		s.mu.RUnlock()
		if known && name != "" {
			msg.FromName = &name
		}
	}

	if r, ok := m.GetReplyTo(); ok {
		if header, ok := r.(*tg.MessageReplyHeader); ok {
			if id, ok := header.GetReplyToMsgID(); ok {
				replyTo := int64(id)
				msg.ReplyToID = &replyTo
			}
		}
	}

	if fwd, ok := m.GetFwdFrom(); ok {
		if p, ok := fwd.GetFromID(); ok {
			fwdChat := peerChatID(p)
			msg.ForwardFromChatID = &fwdChat
			s.mu.RLock()
			name, known := s.names[fwdChat]
			s.mu.RUnlock()
			if known && name != "" {
				msg.ForwardFromChatName = &name
			}
		}
		if name, ok := fwd.GetFromName(); ok {
			msg.ForwardFromChatName = &name
		}
		if post, ok := fwd.GetChannelPost(); ok {
			fwdMsg := int64(post)
			msg.ForwardFromMessageID = &fwdMsg
		}
	}

	if v, ok := m.GetViews(); ok {
		views := v
		msg.Views = &views
	}
	if f, ok := m.GetForwards(); ok {
		forwards := f
		msg.Forwards = &forwards
	}

	return msg
}

// checkFloodWait checks if err is a FLOOD_WAIT error and returns wait seconds.
func checkFloodWait(err error) int {
	if err == nil {
		return 0
	}

	// gotd wraps rpc errors, matching the string is the most reliable way
	// without deep coupling to the protocol error types
	str := err.Error()
	if strings.Contains(str, "FLOOD_WAIT_") {
		var seconds int
		parts := strings.Split(str, "FLOOD_WAIT_")
		if len(parts) > 1 {
			numStr := strings.TrimSpace(parts[1])
			_, _ = fmt.Sscanf(numStr, "%d", &seconds)
			return seconds
		}
	}
	return 0
}
