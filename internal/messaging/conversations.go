package messaging

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/TruongKhoiNguyen/Agora-api/internal/ids"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
)

// CreateConversationInput describes a new conversation. Members excludes
// the creator; including them anyway is tolerated.
type CreateConversationInput struct {
	IsGroup bool     `json:"isGroup"`
	Members []string `json:"members"`
	Name    string   `json:"name"`
}

// ListOptions controls ListConversations.
type ListOptions struct {
	IncludeMessages bool
}

// normalizeName trims name and enforces the length bound. Empty names are
// accepted only when required is false.
func normalizeName(name string, required bool) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n == 0 && required {
		return "", &registrystore.ValidationError{Field: "name", Message: "name is required"}
	}
	if n > model.MaxConversationNameLength {
		return "", &registrystore.ValidationError{Field: "name", Message: "name must be at most 50 characters"}
	}
	return name, nil
}

// peers validates ids, drops duplicates and the creator, and keeps order.
func peers(creator string, members []string) ([]string, error) {
	parsed, err := ids.ParseUsers("members", members)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{creator: {}}
	out := make([]string, 0, len(parsed))
	for _, id := range parsed {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// CreateConversation creates a group or direct conversation and announces
// it to every member.
func (s *Service) CreateConversation(ctx context.Context, creator string, in CreateConversationInput) (*model.ConversationView, error) {
	others, err := peers(creator, in.Members)
	if err != nil {
		return nil, err
	}
	now := s.now()
	c := &model.Conversation{
		ID:            ids.New(),
		IsGroup:       in.IsGroup,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if in.IsGroup {
		if len(others) < 2 {
			return nil, &registrystore.ValidationError{Field: "members", Message: "a group needs at least two other members"}
		}
		if c.Name, err = normalizeName(in.Name, true); err != nil {
			return nil, err
		}
		c.Members = append(others, creator)
		c.Admins = []string{creator}
	} else {
		if len(others) != 1 {
			return nil, &registrystore.ValidationError{Field: "members", Message: "a direct conversation needs exactly one other member"}
		}
		if c.Name, err = normalizeName(in.Name, false); err != nil {
			return nil, err
		}
		peer := others[0]
		existing, err := s.store.FindDirectConversation(ctx, creator, peer)
		if err == nil && existing != nil {
			return nil, &registrystore.ConflictError{Message: "conversation already exists", Code: "duplicate_direct"}
		}
		var nf *registrystore.NotFoundError
		if err != nil && !errors.As(err, &nf) {
			return nil, err
		}
		key := model.DirectKey(creator, peer)
		c.DirectKey = &key
		c.Members = []string{creator, peer}
		c.Admins = []string{creator, peer}
	}

	if err := s.store.CreateConversation(ctx, c); err != nil {
		return nil, err
	}
	log.Info("Conversation created", "conversationId", c.ID, "group", c.IsGroup, "members", len(c.Members))

	view, err := s.conversationView(ctx, c, false)
	if err != nil {
		return nil, err
	}
	for _, member := range c.Members {
		s.events.Publish(member, model.EventConversationNew, view)
	}
	return view, nil
}

// ListConversations returns the user's conversations, most recently active first.
func (s *Service) ListConversations(ctx context.Context, userID string, opts ListOptions) ([]model.ConversationView, error) {
	convs, err := s.store.ListConversations(ctx, userID, registrystore.ListConversationsQuery{})
	if err != nil {
		return nil, err
	}
	return s.conversationViews(ctx, convs, opts.IncludeMessages)
}

// SearchConversations matches keyword literally and case-insensitively
// against the names of the user's conversations.
func (s *Service) SearchConversations(ctx context.Context, userID, keyword string, limit int) ([]model.ConversationView, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, &registrystore.ValidationError{Field: "q", Message: "keyword is required"}
	}
	convs, err := s.store.ListConversations(ctx, userID, registrystore.ListConversationsQuery{NameContains: keyword, Limit: limit})
	if err != nil {
		return nil, err
	}
	return s.conversationViews(ctx, convs, false)
}

func (s *Service) conversationViews(ctx context.Context, convs []model.Conversation, withHistory bool) ([]model.ConversationView, error) {
	out := make([]model.ConversationView, 0, len(convs))
	for i := range convs {
		view, err := s.conversationView(ctx, &convs[i], withHistory)
		if err != nil {
			return nil, err
		}
		out = append(out, *view)
	}
	return out, nil
}

// GetConversation returns a conversation the user is a member of.
func (s *Service) GetConversation(ctx context.Context, userID, conversationID string) (*model.ConversationView, error) {
	c, err := s.conversation(ctx, conversationID, userID, registrystore.AccessMember)
	if err != nil {
		return nil, err
	}
	return s.conversationView(ctx, c, false)
}

// Channels returns the fanout channels a user listens on: their own and
// one per current conversation.
func (s *Service) Channels(ctx context.Context, userID string) ([]string, error) {
	convs, err := s.store.ListConversations(ctx, userID, registrystore.ListConversationsQuery{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(convs)+1)
	out = append(out, userID)
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out, nil
}
