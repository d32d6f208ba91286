// Package messaging implements conversations, membership, message history,
// seen-state and the events each mutation fans out.
package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/ids"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrydirectory "github.com/TruongKhoiNguyen/Agora-api/internal/registry/directory"
	registrymedia "github.com/TruongKhoiNguyen/Agora-api/internal/registry/media"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
)

// Publisher delivers events without reporting failures to the caller.
type Publisher interface {
	Publish(channel, event string, payload any)
}

// Options holds the paging defaults.
type Options struct {
	MessagePageSize    int
	MessageMaxPageSize int
	AroundRange        int
	SearchPageSize     int
}

// DefaultOptions returns the paging defaults.
func DefaultOptions() Options {
	return Options{MessagePageSize: 10, MessageMaxPageSize: 100, AroundRange: 10, SearchPageSize: 20}
}

// OptionsFromConfig reads paging settings, keeping defaults for unset values.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	if cfg.MessagePageSize > 0 {
		opts.MessagePageSize = cfg.MessagePageSize
	}
	if cfg.MessageMaxPageSize > 0 {
		opts.MessageMaxPageSize = cfg.MessageMaxPageSize
	}
	if cfg.AroundRange > 0 {
		opts.AroundRange = cfg.AroundRange
	}
	if cfg.SearchPageSize > 0 {
		opts.SearchPageSize = cfg.SearchPageSize
	}
	return opts
}

// Service is the conversation and messaging engine.
type Service struct {
	store     registrystore.Store
	directory registrydirectory.Directory
	media     registrymedia.Store
	events    Publisher
	opts      Options
	now       func() time.Time
}

func New(store registrystore.Store, directory registrydirectory.Directory, media registrymedia.Store, events Publisher, opts Options) *Service {
	return &Service{
		store:     store,
		directory: directory,
		media:     media,
		events:    events,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Options returns the paging settings in effect.
func (s *Service) Options() Options { return s.opts }

var errForbidden = &registrystore.ForbiddenError{}

// conversation loads a conversation the user can access. A malformed id,
// a missing conversation and a missing right are all reported as forbidden.
func (s *Service) conversation(ctx context.Context, conversationID, userID string, access registrystore.Access) (*model.Conversation, error) {
	id, err := ids.Parse("conversationId", conversationID)
	if err != nil {
		return nil, errForbidden
	}
	c, err := s.store.GetConversation(ctx, id, userID, access)
	if err != nil {
		var nf *registrystore.NotFoundError
		if errors.As(err, &nf) {
			return nil, errForbidden
		}
		return nil, err
	}
	return c, nil
}

// mutate applies m and maps a lost precondition to forbidden.
func (s *Service) mutate(ctx context.Context, conversationID string, m registrystore.Mutation) (*model.Conversation, *model.Conversation, error) {
	before, after, err := s.store.MutateConversation(ctx, conversationID, m)
	if errors.Is(err, registrystore.ErrNoMatch) {
		return nil, nil, errForbidden
	}
	return before, after, err
}

func (s *Service) profiles(ctx context.Context, userIDs ...string) (map[string]model.Profile, error) {
	return registrydirectory.Resolve(ctx, s.directory, userIDs...)
}

func (s *Service) profile(ctx context.Context, userID string) (model.Profile, error) {
	found, err := s.profiles(ctx, userID)
	if err != nil {
		return model.Profile{}, err
	}
	return found[userID], nil
}

// messageViews resolves senders for msgs with one directory lookup.
func (s *Service) messageViews(ctx context.Context, msgs []model.Message) ([]model.MessageView, error) {
	out := make([]model.MessageView, 0, len(msgs))
	if len(msgs) == 0 {
		return out, nil
	}
	senders := make([]string, 0, len(msgs))
	for _, m := range msgs {
		senders = append(senders, m.Sender)
	}
	found, err := s.profiles(ctx, senders...)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		p := found[m.Sender]
		out = append(out, model.MessageView{Message: m, SenderProfile: &p})
	}
	return out, nil
}

func (s *Service) messageView(ctx context.Context, m model.Message) (model.MessageView, error) {
	views, err := s.messageViews(ctx, []model.Message{m})
	if err != nil {
		return model.MessageView{}, err
	}
	return views[0], nil
}

// conversationView resolves member profiles and the last message.
func (s *Service) conversationView(ctx context.Context, c *model.Conversation, withHistory bool) (*model.ConversationView, error) {
	found, err := s.profiles(ctx, c.Members...)
	if err != nil {
		return nil, err
	}
	view := &model.ConversationView{Conversation: *c, Profiles: make([]model.Profile, 0, len(c.Members))}
	for _, id := range c.Members {
		view.Profiles = append(view.Profiles, found[id])
	}

	if withHistory {
		history, err := s.store.ListMessages(ctx, registrystore.MessageQuery{ConversationID: c.ID, Ascending: true})
		if err != nil {
			return nil, err
		}
		view.Messages, err = s.messageViews(ctx, history)
		if err != nil {
			return nil, err
		}
		if n := len(view.Messages); n > 0 {
			last := view.Messages[n-1]
			view.LastMessage = &last
		}
		return view, nil
	}

	last, err := s.store.LatestMessage(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		lv, err := s.messageView(ctx, *last)
		if err != nil {
			return nil, err
		}
		view.LastMessage = &lv
	}
	return view, nil
}

// notifyMembers sends one conversation:update to every listed member.
func (s *Service) notifyMembers(members []string, conversationID string, tag model.ConversationTag, data any) {
	update := model.ConversationUpdate{Tag: tag, ConversationID: conversationID, Data: data}
	for _, member := range members {
		s.events.Publish(member, model.EventConversationUpdate, update)
	}
}
