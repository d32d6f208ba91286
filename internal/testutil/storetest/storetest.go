// Package storetest is a behavioural suite shared by every Store plugin.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/ids"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) (registrystore.Store, context.Context)

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGetConversation", func(t *testing.T) { testCreateAndGet(t, newStore) })
	t.Run("DirectConversationIsSingleton", func(t *testing.T) { testDirectSingleton(t, newStore) })
	t.Run("ListConversationsOrderAndFilter", func(t *testing.T) { testListConversations(t, newStore) })
	t.Run("MutateConversationPreconditions", func(t *testing.T) { testMutate(t, newStore) })
	t.Run("MessageWindows", func(t *testing.T) { testMessageWindows(t, newStore) })
	t.Run("AddSeenUser", func(t *testing.T) { testAddSeenUser(t, newStore) })
	t.Run("RecordMessage", func(t *testing.T) { testRecordMessage(t, newStore) })
}

// NewGroup builds an unsaved group conversation.
func NewGroup(name, admin string, members ...string) *model.Conversation {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &model.Conversation{
		ID:            ids.New(),
		Name:          name,
		IsGroup:       true,
		Members:       append([]string{admin}, members...),
		Admins:        []string{admin},
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewDirect builds an unsaved direct conversation.
func NewDirect(a, b string) *model.Conversation {
	now := time.Now().UTC().Truncate(time.Millisecond)
	key := model.DirectKey(a, b)
	return &model.Conversation{
		ID:            ids.New(),
		Members:       []string{a, b},
		Admins:        []string{a, b},
		DirectKey:     &key,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewMessage builds an unsaved text message.
func NewMessage(conversationID, sender, content string) *model.Message {
	return &model.Message{
		ID:             ids.New(),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		Type:           model.MessageTypeText,
		SeenUsers:      []string{},
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testCreateAndGet(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	c := NewGroup("Team", "u1", "u2", "u3")
	require.NoError(t, s.CreateConversation(ctx, c))

	got, err := s.GetConversation(ctx, c.ID, "u2", registrystore.AccessMember)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, "Team", got.Name)
	assert.True(t, got.IsGroup)
	assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, got.Members)
	assert.Equal(t, []string{"u1"}, got.Admins)
	assert.WithinDuration(t, c.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = s.GetConversation(ctx, c.ID, "u2", registrystore.AccessAdmin)
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf))

	_, err = s.GetConversation(ctx, c.ID, "stranger", registrystore.AccessMember)
	require.True(t, errors.As(err, &nf))

	_, err = s.GetConversation(ctx, ids.New(), "u1", registrystore.AccessMember)
	require.True(t, errors.As(err, &nf))
}

func testDirectSingleton(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	_, err := s.FindDirectConversation(ctx, "u1", "u2")
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf))

	first := NewDirect("u1", "u2")
	require.NoError(t, s.CreateConversation(ctx, first))

	got, err := s.FindDirectConversation(ctx, "u2", "u1")
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	require.False(t, got.IsGroup)

	err = s.CreateConversation(ctx, NewDirect("u2", "u1"))
	var conflict *registrystore.ConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)

	// Groups carry no direct key and never collide.
	require.NoError(t, s.CreateConversation(ctx, NewGroup("a", "u1", "u2", "u3")))
	require.NoError(t, s.CreateConversation(ctx, NewGroup("b", "u1", "u2", "u3")))
}

func testListConversations(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	oldest := NewGroup("Alpha team", "u1", "u2", "u3")
	middle := NewGroup("beta", "u1", "u2", "u3")
	newest := NewGroup("a.b", "u2", "u1", "u3")
	oldest.LastMessageAt = oldest.LastMessageAt.Add(-2 * time.Hour)
	middle.LastMessageAt = middle.LastMessageAt.Add(-time.Hour)
	other := NewGroup("Alpha others", "u9", "u8", "u7")
	for _, c := range []*model.Conversation{oldest, middle, newest, other} {
		require.NoError(t, s.CreateConversation(ctx, c))
	}

	list, err := s.ListConversations(ctx, "u1", registrystore.ListConversationsQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{newest.ID, middle.ID, oldest.ID}, conversationIDs(list))

	require.NoError(t, s.RecordMessage(ctx, oldest.ID, ids.New(), time.Now().UTC().Add(time.Minute)))
	list, err = s.ListConversations(ctx, "u1", registrystore.ListConversationsQuery{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{oldest.ID, newest.ID}, conversationIDs(list))

	list, err = s.ListConversations(ctx, "u1", registrystore.ListConversationsQuery{NameContains: "ALPHA"})
	require.NoError(t, err)
	require.Equal(t, []string{oldest.ID}, conversationIDs(list))

	// The filter is literal, not a pattern.
	list, err = s.ListConversations(ctx, "u1", registrystore.ListConversationsQuery{NameContains: "a."})
	require.NoError(t, err)
	require.Equal(t, []string{newest.ID}, conversationIDs(list))
	list, err = s.ListConversations(ctx, "u1", registrystore.ListConversationsQuery{NameContains: "%"})
	require.NoError(t, err)
	require.Empty(t, list)
}

func testMutate(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	c := NewGroup("Team", "u1", "u2", "u3")
	require.NoError(t, s.CreateConversation(ctx, c))

	before, after, err := s.MutateConversation(ctx, c.ID, registrystore.Mutation{
		RequireGroup: true,
		AdminIs:      "u1",
		AddMembers:   []string{"u2", "u4", "u4"},
	})
	require.NoError(t, err)
	require.Len(t, before.Members, 3)
	require.ElementsMatch(t, []string{"u1", "u2", "u3", "u4"}, after.Members)

	_, _, err = s.MutateConversation(ctx, c.ID, registrystore.Mutation{AdminIs: "u2", AddMembers: []string{"u5"}})
	require.ErrorIs(t, err, registrystore.ErrNoMatch)

	_, after, err = s.MutateConversation(ctx, c.ID, registrystore.Mutation{
		AdminIs:   "u1",
		MemberIs:  "u3",
		NotAdmin:  "u3",
		AddAdmins: []string{"u3"},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"u1", "u3"}, after.Admins)

	// A second promotion of the same user no longer matches.
	_, _, err = s.MutateConversation(ctx, c.ID, registrystore.Mutation{AdminIs: "u1", NotAdmin: "u3", AddAdmins: []string{"u3"}})
	require.ErrorIs(t, err, registrystore.ErrNoMatch)

	_, after, err = s.MutateConversation(ctx, c.ID, registrystore.Mutation{
		RequireGroup:  true,
		MemberIs:      "u3",
		NotSoleAdmin:  "u3",
		RemoveMembers: []string{"u3"},
		RemoveAdmins:  []string{"u3"},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"u1", "u2", "u4"}, after.Members)
	require.Equal(t, []string{"u1"}, after.Admins)

	_, _, err = s.MutateConversation(ctx, c.ID, registrystore.Mutation{MemberIs: "u1", NotSoleAdmin: "u1", RemoveMembers: []string{"u1"}})
	require.ErrorIs(t, err, registrystore.ErrNoMatch)

	thumb, name := "https://cdn.example/t.jpg", "Renamed"
	before, after, err = s.MutateConversation(ctx, c.ID, registrystore.Mutation{AdminIs: "u1", SetThumb: &thumb, SetName: &name})
	require.NoError(t, err)
	require.Empty(t, before.Thumb)
	require.Equal(t, thumb, after.Thumb)
	require.Equal(t, name, after.Name)

	got, err := s.GetConversation(ctx, c.ID, "u1", registrystore.AccessAdmin)
	require.NoError(t, err)
	require.Equal(t, thumb, got.Thumb)
	require.Equal(t, name, got.Name)

	direct := NewDirect("u1", "u2")
	require.NoError(t, s.CreateConversation(ctx, direct))
	_, _, err = s.MutateConversation(ctx, direct.ID, registrystore.Mutation{RequireGroup: true, AdminIs: "u1", SetName: &name})
	require.ErrorIs(t, err, registrystore.ErrNoMatch)

	_, _, err = s.MutateConversation(ctx, ids.New(), registrystore.Mutation{SetName: &name})
	require.ErrorIs(t, err, registrystore.ErrNoMatch)
}

func testMessageWindows(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	c := NewGroup("Team", "u1", "u2", "u3")
	require.NoError(t, s.CreateConversation(ctx, c))
	other := NewGroup("Other", "u1", "u2", "u3")
	require.NoError(t, s.CreateConversation(ctx, other))

	latest, err := s.LatestMessage(ctx, c.ID)
	require.NoError(t, err)
	require.Nil(t, latest)

	var sent []string
	for i := 0; i < 15; i++ {
		content := fmt.Sprintf("message %d", i)
		if i%5 == 0 {
			content = fmt.Sprintf("Hello World %d", i)
		}
		m := NewMessage(c.ID, "u1", content)
		require.NoError(t, s.InsertMessage(ctx, m))
		sent = append(sent, m.ID)
	}
	require.NoError(t, s.InsertMessage(ctx, NewMessage(other.ID, "u1", "hello world elsewhere")))

	latest, err = s.LatestMessage(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, sent[14], latest.ID)

	page, err := s.ListMessages(ctx, registrystore.MessageQuery{ConversationID: c.ID, Limit: 4})
	require.NoError(t, err)
	require.Equal(t, []string{sent[14], sent[13], sent[12], sent[11]}, messageIDs(page))

	page, err = s.ListMessages(ctx, registrystore.MessageQuery{ConversationID: c.ID, Before: sent[11], Limit: 4})
	require.NoError(t, err)
	require.Equal(t, []string{sent[10], sent[9], sent[8], sent[7]}, messageIDs(page))

	page, err = s.ListMessages(ctx, registrystore.MessageQuery{ConversationID: c.ID, AtOrAfter: sent[5], Ascending: true, Limit: 3})
	require.NoError(t, err)
	require.Equal(t, []string{sent[5], sent[6], sent[7]}, messageIDs(page))

	page, err = s.ListMessages(ctx, registrystore.MessageQuery{ConversationID: c.ID, Contains: "hello WORLD"})
	require.NoError(t, err)
	require.Equal(t, []string{sent[10], sent[5], sent[0]}, messageIDs(page))

	page, err = s.ListMessages(ctx, registrystore.MessageQuery{ConversationID: c.ID, Contains: "hello world", Before: sent[10]})
	require.NoError(t, err)
	require.Equal(t, []string{sent[5], sent[0]}, messageIDs(page))

	page, err = s.ListMessages(ctx, registrystore.MessageQuery{ConversationID: c.ID, Contains: "."})
	require.NoError(t, err)
	require.Empty(t, page)

	got, err := s.GetMessage(ctx, c.ID, sent[3])
	require.NoError(t, err)
	require.Equal(t, "message 3", got.Content)
	require.Equal(t, model.MessageTypeText, got.Type)

	_, err = s.GetMessage(ctx, other.ID, sent[3])
	var nf *registrystore.NotFoundError
	require.True(t, errors.As(err, &nf))
}

func testAddSeenUser(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	c := NewGroup("Team", "u1", "u2", "u3")
	require.NoError(t, s.CreateConversation(ctx, c))
	m := NewMessage(c.ID, "u1", "hi")
	m.Images = []string{"https://cdn.example/a.png"}
	require.NoError(t, s.InsertMessage(ctx, m))

	got, changed, err := s.AddSeenUser(ctx, c.ID, m.ID, "u1")
	require.NoError(t, err)
	require.False(t, changed)
	require.Empty(t, got.SeenUsers)

	got, changed, err = s.AddSeenUser(ctx, c.ID, m.ID, "u2")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, []string{"u2"}, got.SeenUsers)
	require.Equal(t, []string{"https://cdn.example/a.png"}, got.Images)

	got, changed, err = s.AddSeenUser(ctx, c.ID, m.ID, "u2")
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, []string{"u2"}, got.SeenUsers)

	_, changed, err = s.AddSeenUser(ctx, c.ID, m.ID, "u3")
	require.NoError(t, err)
	require.True(t, changed)

	stored, err := s.GetMessage(ctx, c.ID, m.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"u2", "u3"}, stored.SeenUsers)
}

func testRecordMessage(t *testing.T, newStore Factory) {
	s, ctx := newStore(t)
	c := NewGroup("Team", "u1", "u2", "u3")
	require.NoError(t, s.CreateConversation(ctx, c))

	m := NewMessage(c.ID, "u1", "hi")
	require.NoError(t, s.InsertMessage(ctx, m))
	at := time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)
	require.NoError(t, s.RecordMessage(ctx, c.ID, m.ID, at))

	got, err := s.GetConversation(ctx, c.ID, "u1", registrystore.AccessMember)
	require.NoError(t, err)
	require.Equal(t, m.ID, got.LastMessageID)
	require.Equal(t, int64(1), got.MessageCount)
	require.WithinDuration(t, at, got.LastMessageAt, time.Millisecond)
}

func conversationIDs(list []model.Conversation) []string {
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.ID
	}
	return out
}

func messageIDs(list []model.Message) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.ID
	}
	return out
}
