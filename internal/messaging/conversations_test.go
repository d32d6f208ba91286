package messaging_test

import (
	"context"
	"strings"
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/messaging"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGroupConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateConversation(ctx, "u1", messaging.CreateConversationInput{
		IsGroup: true,
		Members: []string{"u2", "u3", "u2", "u1"},
		Name:    "  team  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "team", c.Name)
	assert.Equal(t, []string{"u2", "u3", "u1"}, c.Members)
	assert.Equal(t, []string{"u1"}, c.Admins)
	require.Len(t, c.Profiles, 3)
	assert.Equal(t, "Alan Turing", c.Profiles[0].DisplayName())
	assert.Nil(t, c.LastMessage)
	requireAdminsSubset(t, &c.Conversation)

	news := eventsNamed(f.events.Events(), model.EventConversationNew)
	require.Len(t, news, 3)
	for i, member := range c.Members {
		assert.Equal(t, member, news[i].Channel)
	}
}

func TestCreateGroupValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    messaging.CreateConversationInput
		field string
	}{
		{"one peer", messaging.CreateConversationInput{IsGroup: true, Members: []string{"u2", "u1"}, Name: "x"}, "members"},
		{"missing name", messaging.CreateConversationInput{IsGroup: true, Members: []string{"u2", "u3"}, Name: "  "}, "name"},
		{"long name", messaging.CreateConversationInput{IsGroup: true, Members: []string{"u2", "u3"}, Name: strings.Repeat("é", 51)}, "name"},
		{"bad id", messaging.CreateConversationInput{IsGroup: true, Members: []string{"u2", "not valid"}, Name: "x"}, "members"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateConversation(ctx, "u1", tc.in)
			ve := requireKind[*registrystore.ValidationError](t, err)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	_, err := f.svc.CreateConversation(ctx, "u1", messaging.CreateConversationInput{IsGroup: true, Members: []string{"u2", "u3"}, Name: strings.Repeat("é", 50)})
	require.NoError(t, err)
}

func TestDuplicateDirectConversationConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateConversation(ctx, "u1", messaging.CreateConversationInput{Members: []string{"u2"}})
	require.NoError(t, err)
	assert.False(t, c.IsGroup)
	assert.ElementsMatch(t, []string{"u1", "u2"}, c.Members)

	_, err = f.svc.CreateConversation(ctx, "u2", messaging.CreateConversationInput{Members: []string{"u1"}})
	requireKind[*registrystore.ConflictError](t, err)

	_, err = f.svc.CreateConversation(ctx, "u1", messaging.CreateConversationInput{Members: []string{"u1"}})
	requireKind[*registrystore.ValidationError](t, err)
}

func TestGetConversationHidesMissingAndForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.group(t, "u1", "u2", "u3")

	_, err := f.svc.GetConversation(ctx, "u4", c.ID)
	requireKind[*registrystore.ForbiddenError](t, err)
	_, err = f.svc.GetConversation(ctx, "u1", "not-an-id")
	requireKind[*registrystore.ForbiddenError](t, err)
	_, err = f.svc.GetConversation(ctx, "u1", "0123456789abcdef01234567")
	requireKind[*registrystore.ForbiddenError](t, err)

	got, err := f.svc.GetConversation(ctx, "u2", c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestListConversationsOrdersByActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.group(t, "u1", "u2", "u3")
	second := f.group(t, "u1", "u2", "u4")

	f.send(t, "u2", first.ID, "bump")

	list, err := f.svc.ListConversations(ctx, "u1", messaging.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "bump", list[0].LastMessage.Content)
	assert.Empty(t, list[0].Messages)

	list, err = f.svc.ListConversations(ctx, "u1", messaging.ListOptions{IncludeMessages: true})
	require.NoError(t, err)
	require.Len(t, list[0].Messages, 1)

	list, err = f.svc.ListConversations(ctx, "u3", messaging.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestSearchConversationsIsLiteral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateConversation(ctx, "u1", messaging.CreateConversationInput{IsGroup: true, Members: []string{"u2", "u3"}, Name: "Ops (prod)"})
	require.NoError(t, err)
	_, err = f.svc.CreateConversation(ctx, "u1", messaging.CreateConversationInput{IsGroup: true, Members: []string{"u2", "u3"}, Name: "Ops prod"})
	require.NoError(t, err)

	found, err := f.svc.SearchConversations(ctx, "u1", "(PROD", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Ops (prod)", found[0].Name)

	_, err = f.svc.SearchConversations(ctx, "u1", " ", 0)
	requireKind[*registrystore.ValidationError](t, err)
}

func TestChannelsIncludeUserAndConversations(t *testing.T) {
	f := newFixture(t)
	c := f.group(t, "u1", "u2", "u3")

	got, err := f.svc.Channels(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", c.ID}, got)
}
