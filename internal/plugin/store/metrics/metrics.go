package metrics

import (
	"context"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	"github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/TruongKhoiNguyen/Agora-api/internal/security"
)

// Wrap returns a Store that records StoreLatency for every operation.
func Wrap(inner store.Store) store.Store {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.Store
}

func observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	defer observe("create_conversation", time.Now())
	return m.inner.CreateConversation(ctx, c)
}

func (m *metricsStore) FindDirectConversation(ctx context.Context, a, b string) (*model.Conversation, error) {
	defer observe("find_direct_conversation", time.Now())
	return m.inner.FindDirectConversation(ctx, a, b)
}

func (m *metricsStore) GetConversation(ctx context.Context, conversationID, userID string, access store.Access) (*model.Conversation, error) {
	defer observe("get_conversation", time.Now())
	return m.inner.GetConversation(ctx, conversationID, userID, access)
}

func (m *metricsStore) ListConversations(ctx context.Context, userID string, query store.ListConversationsQuery) ([]model.Conversation, error) {
	defer observe("list_conversations", time.Now())
	return m.inner.ListConversations(ctx, userID, query)
}

func (m *metricsStore) MutateConversation(ctx context.Context, conversationID string, mutation store.Mutation) (*model.Conversation, *model.Conversation, error) {
	defer observe("mutate_conversation", time.Now())
	return m.inner.MutateConversation(ctx, conversationID, mutation)
}

func (m *metricsStore) RecordMessage(ctx context.Context, conversationID, messageID string, at time.Time) error {
	defer observe("record_message", time.Now())
	return m.inner.RecordMessage(ctx, conversationID, messageID, at)
}

func (m *metricsStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	defer observe("insert_message", time.Now())
	return m.inner.InsertMessage(ctx, msg)
}

func (m *metricsStore) GetMessage(ctx context.Context, conversationID, messageID string) (*model.Message, error) {
	defer observe("get_message", time.Now())
	return m.inner.GetMessage(ctx, conversationID, messageID)
}

func (m *metricsStore) LatestMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	defer observe("latest_message", time.Now())
	return m.inner.LatestMessage(ctx, conversationID)
}

func (m *metricsStore) ListMessages(ctx context.Context, query store.MessageQuery) ([]model.Message, error) {
	defer observe("list_messages", time.Now())
	return m.inner.ListMessages(ctx, query)
}

func (m *metricsStore) AddSeenUser(ctx context.Context, conversationID, messageID, userID string) (*model.Message, bool, error) {
	defer observe("add_seen_user", time.Now())
	return m.inner.AddSeenUser(ctx, conversationID, messageID, userID)
}

func (m *metricsStore) Close(ctx context.Context) error {
	return m.inner.Close(ctx)
}
