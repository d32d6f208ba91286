package messaging

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/TruongKhoiNguyen/Agora-api/internal/ids"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/TruongKhoiNguyen/Agora-api/internal/security"
)

// scanBatch is the page size used when projecting a whole history.
const scanBatch = 200

var linkPattern = regexp.MustCompile(`https?://\S+`)

// SendMessage appends a chat message from a current member.
func (s *Service) SendMessage(ctx context.Context, sender, conversationID, content string, images []string) (*model.MessageView, error) {
	c, err := s.conversation(ctx, conversationID, sender, registrystore.AccessMember)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	images = slices.DeleteFunc(slices.Clone(images), func(u string) bool { return strings.TrimSpace(u) == "" })
	if content == "" && len(images) == 0 {
		return nil, &registrystore.ValidationError{Field: "content", Message: "content or images is required"}
	}
	return s.appendMessage(ctx, c, sender, content, images, model.MessageTypeText)
}

// appendMessage persists a message, bumps the conversation and fans out to
// the conversation channel and every member in c.
func (s *Service) appendMessage(ctx context.Context, c *model.Conversation, sender, content string, images []string, t model.MessageType) (*model.MessageView, error) {
	if images == nil {
		images = []string{}
	}
	m := model.Message{
		ID:             ids.New(),
		ConversationID: c.ID,
		Sender:         sender,
		Content:        content,
		Images:         images,
		Type:           t,
		SeenUsers:      []string{},
		CreatedAt:      s.now(),
	}
	if err := s.store.InsertMessage(ctx, &m); err != nil {
		return nil, err
	}
	if err := s.store.RecordMessage(ctx, c.ID, m.ID, m.CreatedAt); err != nil {
		return nil, err
	}
	security.CountMessage(string(t))
	log.Debug("Message appended", "conversationId", c.ID, "messageId", m.ID, "type", t)

	view, err := s.messageView(ctx, m)
	if err != nil {
		return nil, err
	}
	s.events.Publish(c.ID, model.EventMessageNew, view)
	s.notifyMembers(c.Members, c.ID, model.TagNewMessage, model.LastMessageData{LastMessage: view})
	return &view, nil
}

// systemMessage narrates a committed change. The change stands even when
// the narration cannot be stored.
func (s *Service) systemMessage(ctx context.Context, c *model.Conversation, actor string, t model.MessageType, content string) {
	if _, err := s.appendMessage(ctx, c, actor, content, nil, t); err != nil {
		log.Error("System message failed", "conversationId", c.ID, "type", t, "err", err)
	}
}

func (s *Service) pageSize(limit int) int {
	if limit <= 0 {
		return s.opts.MessagePageSize
	}
	return min(limit, s.opts.MessageMaxPageSize)
}

func (s *Service) aroundRange(rng int) int {
	if rng <= 0 {
		return s.opts.AroundRange
	}
	return min(rng, s.opts.MessageMaxPageSize)
}

func parseCursor(cursor string) (string, error) {
	if strings.TrimSpace(cursor) == "" {
		return "", nil
	}
	return ids.Parse("cursor", cursor)
}

// GetMessages returns one page of history, newest first. nextCursor is set
// when older messages exist.
func (s *Service) GetMessages(ctx context.Context, userID, conversationID, cursor string, limit int) (*model.MessagePage, error) {
	before, err := parseCursor(cursor)
	if err != nil {
		return nil, err
	}
	c, err := s.conversation(ctx, conversationID, userID, registrystore.AccessMember)
	if err != nil {
		return nil, err
	}
	limit = s.pageSize(limit)
	msgs, err := s.store.ListMessages(ctx, registrystore.MessageQuery{ConversationID: c.ID, Before: before, Limit: limit + 1})
	if err != nil {
		return nil, err
	}
	page := &model.MessagePage{}
	if len(msgs) > limit {
		msgs = msgs[:limit]
		next := msgs[len(msgs)-1].ID
		page.NextCursor = &next
	}
	if page.Messages, err = s.messageViews(ctx, msgs); err != nil {
		return nil, err
	}
	return page, nil
}

// GetMessagesAroundID returns up to rng messages older than the target,
// followed by the target and up to rng newer ones, oldest first.
func (s *Service) GetMessagesAroundID(ctx context.Context, userID, conversationID, targetID string, rng int) ([]model.MessageView, error) {
	target, err := ids.Parse("messageId", targetID)
	if err != nil {
		return nil, err
	}
	c, err := s.conversation(ctx, conversationID, userID, registrystore.AccessMember)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetMessage(ctx, c.ID, target); err != nil {
		var nf *registrystore.NotFoundError
		if errors.As(err, &nf) {
			return nil, &registrystore.ValidationError{Field: "messageId", Message: "message not found in conversation"}
		}
		return nil, err
	}
	msgs, err := s.window(ctx, c.ID, target, s.aroundRange(rng))
	if err != nil {
		return nil, err
	}
	return s.messageViews(ctx, msgs)
}

func (s *Service) window(ctx context.Context, conversationID, target string, rng int) ([]model.Message, error) {
	older, err := s.store.ListMessages(ctx, registrystore.MessageQuery{ConversationID: conversationID, Before: target, Limit: rng})
	if err != nil {
		return nil, err
	}
	newer, err := s.store.ListMessages(ctx, registrystore.MessageQuery{ConversationID: conversationID, AtOrAfter: target, Ascending: true, Limit: rng + 1})
	if err != nil {
		return nil, err
	}
	slices.Reverse(older)
	return append(older, newer...), nil
}

// SearchMessages finds messages whose content contains query, newest
// first, and the window around the newest match.
func (s *Service) SearchMessages(ctx context.Context, userID, conversationID, query, cursor string, rng int) (*model.MessageSearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &registrystore.ValidationError{Field: "q", Message: "query is required"}
	}
	before, err := parseCursor(cursor)
	if err != nil {
		return nil, err
	}
	c, err := s.conversation(ctx, conversationID, userID, registrystore.AccessMember)
	if err != nil {
		return nil, err
	}
	pageSize := s.opts.SearchPageSize
	matches, err := s.store.ListMessages(ctx, registrystore.MessageQuery{
		ConversationID: c.ID,
		Before:         before,
		Contains:       query,
		Limit:          pageSize,
	})
	if err != nil {
		return nil, err
	}

	result := &model.MessageSearchResult{Count: len(matches), Window: []model.MessageView{}}
	if result.Matches, err = s.messageViews(ctx, matches); err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return result, nil
	}
	if len(matches) == pageSize {
		next := matches[len(matches)-1].ID
		result.NextCursor = &next
	}
	window, err := s.window(ctx, c.ID, matches[0].ID, s.aroundRange(rng))
	if err != nil {
		return nil, err
	}
	if result.Window, err = s.messageViews(ctx, window); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkSeen records that userID has seen the latest message.
func (s *Service) MarkSeen(ctx context.Context, userID, conversationID string) error {
	c, err := s.conversation(ctx, conversationID, userID, registrystore.AccessMember)
	if err != nil {
		return err
	}
	latest, err := s.store.LatestMessage(ctx, c.ID)
	if err != nil {
		return err
	}
	if latest == nil || latest.Sender == userID || latest.HasSeen(userID) {
		return nil
	}
	updated, changed, err := s.store.AddSeenUser(ctx, c.ID, latest.ID, userID)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	view, err := s.messageView(ctx, *updated)
	if err != nil {
		return err
	}
	s.events.Publish(userID, model.EventConversationUpdate, model.ConversationUpdate{
		Tag:            model.TagSeen,
		ConversationID: c.ID,
		Data:           model.LastMessageData{LastMessage: view},
	})
	s.events.Publish(c.ID, model.EventMessageUpdate, model.MessageUpdateData{Message: view})
	return nil
}

// NotifyTyping tells the conversation channel that userID is typing.
func (s *Service) NotifyTyping(ctx context.Context, userID, conversationID string) error {
	c, err := s.conversation(ctx, conversationID, userID, registrystore.AccessMember)
	if err != nil {
		return err
	}
	s.events.Publish(c.ID, model.EventMessageTyping, model.TypingData{ConversationID: c.ID, UserID: userID})
	return nil
}

// ListImages returns every image URL posted in the conversation, oldest first.
func (s *Service) ListImages(ctx context.Context, userID, conversationID string) ([]model.MediaItem, error) {
	return s.project(ctx, userID, conversationID, func(m model.Message) []string { return m.Images })
}

// ListLinks returns every http(s) link found in message content, oldest first.
func (s *Service) ListLinks(ctx context.Context, userID, conversationID string) ([]model.MediaItem, error) {
	return s.project(ctx, userID, conversationID, func(m model.Message) []string {
		if m.Type.IsSystem() {
			return nil
		}
		return linkPattern.FindAllString(m.Content, -1)
	})
}

func (s *Service) project(ctx context.Context, userID, conversationID string, urls func(model.Message) []string) ([]model.MediaItem, error) {
	c, err := s.conversation(ctx, conversationID, userID, registrystore.AccessMember)
	if err != nil {
		return nil, err
	}
	out := []model.MediaItem{}
	after := ""
	for {
		batch, err := s.store.ListMessages(ctx, registrystore.MessageQuery{
			ConversationID: c.ID,
			AtOrAfter:      after,
			Ascending:      true,
			Limit:          scanBatch,
		})
		if err != nil {
			return nil, err
		}
		for _, m := range batch {
			if m.ID == after {
				continue
			}
			for _, u := range urls(m) {
				out = append(out, model.MediaItem{MessageID: m.ID, Sender: m.Sender, URL: u, CreatedAt: m.CreatedAt})
			}
		}
		if len(batch) < scanBatch {
			return out, nil
		}
		after = batch[len(batch)-1].ID
	}
}
