// Package memory is a process-local Store. Each conditional update runs
// under one store-wide mutex, which gives the same atomicity as the
// document databases' single-document updates.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.Store, error) {
			return New(), nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Store keeps conversations and messages in maps.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	direct        map[string]string
	messages      map[string][]*model.Message
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		conversations: map[string]*model.Conversation{},
		direct:        map[string]string{},
		messages:      map[string][]*model.Message{},
	}
}

func (s *Store) CreateConversation(_ context.Context, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[c.ID]; exists {
		return &registrystore.ConflictError{Message: "conversation already exists", Code: "duplicate_id"}
	}
	if c.DirectKey != nil {
		if _, exists := s.direct[*c.DirectKey]; exists {
			return &registrystore.ConflictError{Message: "conversation already exists", Code: "duplicate_direct"}
		}
		s.direct[*c.DirectKey] = c.ID
	}
	s.conversations[c.ID] = cloneConversation(c)
	return nil
}

func (s *Store) FindDirectConversation(_ context.Context, a, b string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.direct[model.DirectKey(a, b)]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: model.DirectKey(a, b)}
	}
	return cloneConversation(s.conversations[id]), nil
}

func (s *Store) GetConversation(_ context.Context, conversationID, userID string, access registrystore.Access) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok || !hasAccess(c, userID, access) {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return cloneConversation(c), nil
}

func hasAccess(c *model.Conversation, userID string, access registrystore.Access) bool {
	if access == registrystore.AccessAdmin {
		return c.HasAdmin(userID)
	}
	return c.HasMember(userID)
}

func (s *Store) ListConversations(_ context.Context, userID string, query registrystore.ListConversationsQuery) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	needle := strings.ToLower(query.NameContains)
	var out []model.Conversation
	for _, c := range s.conversations {
		if !c.HasMember(userID) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(c.Name), needle) {
			continue
		}
		out = append(out, *cloneConversation(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ID > out[j].ID
	})
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (s *Store) MutateConversation(_ context.Context, conversationID string, m registrystore.Mutation) (*model.Conversation, *model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok || !m.Matches(c) {
		return nil, nil, registrystore.ErrNoMatch
	}
	before := cloneConversation(c)
	after := m.Apply(*before)
	after.UpdatedAt = time.Now().UTC()
	s.conversations[conversationID] = cloneConversation(&after)
	return before, cloneConversation(&after), nil
}

func (s *Store) RecordMessage(_ context.Context, conversationID, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	if messageID > c.LastMessageID {
		c.LastMessageID = messageID
	}
	if at.After(c.LastMessageAt) {
		c.LastMessageAt = at
	}
	c.MessageCount++
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) InsertMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[m.ConversationID]
	idx := sort.Search(len(list), func(i int) bool { return list[i].ID >= m.ID })
	if idx < len(list) && list[idx].ID == m.ID {
		return &registrystore.ConflictError{Message: "message already exists", Code: "duplicate_id"}
	}
	list = slices.Insert(list, idx, cloneMessage(m))
	s.messages[m.ConversationID] = list
	return nil
}

func (s *Store) GetMessage(_ context.Context, conversationID, messageID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.find(conversationID, messageID); m != nil {
		return cloneMessage(m), nil
	}
	return nil, &registrystore.NotFoundError{Resource: "message", ID: messageID}
}

func (s *Store) find(conversationID, messageID string) *model.Message {
	list := s.messages[conversationID]
	idx := sort.Search(len(list), func(i int) bool { return list[i].ID >= messageID })
	if idx < len(list) && list[idx].ID == messageID {
		return list[idx]
	}
	return nil
}

func (s *Store) LatestMessage(_ context.Context, conversationID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[conversationID]
	if len(list) == 0 {
		return nil, nil
	}
	return cloneMessage(list[len(list)-1]), nil
}

func (s *Store) ListMessages(_ context.Context, q registrystore.MessageQuery) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	needle := strings.ToLower(q.Contains)
	list := s.messages[q.ConversationID]
	var out []model.Message
	visit := func(m *model.Message) bool {
		if q.Before != "" && m.ID >= q.Before {
			return true
		}
		if q.AtOrAfter != "" && m.ID < q.AtOrAfter {
			return true
		}
		if needle != "" && !strings.Contains(strings.ToLower(m.Content), needle) {
			return true
		}
		out = append(out, *cloneMessage(m))
		return q.Limit <= 0 || len(out) < q.Limit
	}
	if q.Ascending {
		for _, m := range list {
			if !visit(m) {
				break
			}
		}
	} else {
		for i := len(list) - 1; i >= 0; i-- {
			if !visit(list[i]) {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) AddSeenUser(_ context.Context, conversationID, messageID, userID string) (*model.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.find(conversationID, messageID)
	if m == nil {
		return nil, false, &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	if m.Sender == userID || m.HasSeen(userID) {
		return cloneMessage(m), false, nil
	}
	m.SeenUsers = append(m.SeenUsers, userID)
	return cloneMessage(m), true, nil
}

func (s *Store) Close(context.Context) error { return nil }

func cloneConversation(c *model.Conversation) *model.Conversation {
	out := *c
	out.Members = slices.Clone(c.Members)
	out.Admins = slices.Clone(c.Admins)
	if c.DirectKey != nil {
		key := *c.DirectKey
		out.DirectKey = &key
	}
	return &out
}

func cloneMessage(m *model.Message) *model.Message {
	out := *m
	out.Images = slices.Clone(m.Images)
	out.SeenUsers = slices.Clone(m.SeenUsers)
	if out.SeenUsers == nil {
		out.SeenUsers = []string{}
	}
	return &out
}

var _ registrystore.Store = (*Store)(nil)
