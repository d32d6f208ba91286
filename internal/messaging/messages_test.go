package messaging_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageFansOut(t *testing.T) {
	f := newFixture(t)
	c := f.group(t, "u1", "u2", "u3")

	m := f.send(t, "u2", c.ID, "  hello  ")
	assert.Equal(t, "hello", m.Content)
	assert.Equal(t, model.MessageTypeText, m.Type)
	require.NotNil(t, m.SenderProfile)
	assert.Equal(t, "Alan Turing", m.SenderProfile.DisplayName())

	onConv := f.events.To(c.ID)
	require.Len(t, onConv, 1)
	assert.Equal(t, model.EventMessageNew, onConv[0].Event)

	for _, member := range c.Members {
		got := f.events.To(member)
		require.Len(t, got, 1, member)
		u := got[0].Payload.(model.ConversationUpdate)
		assert.Equal(t, model.TagNewMessage, u.Tag)
		assert.Equal(t, m.ID, u.Data.(model.LastMessageData).LastMessage.ID)
	}

	stored := f.stored(t, c.ID)
	assert.Equal(t, m.ID, stored.LastMessageID)
	assert.EqualValues(t, 1, stored.MessageCount)
	assert.Equal(t, m.CreatedAt, stored.LastMessageAt)
}

func TestSendMessageRequiresContentAndMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.group(t, "u1", "u2", "u3")

	_, err := f.svc.SendMessage(ctx, "u1", c.ID, "   ", []string{" "})
	ve := requireKind[*registrystore.ValidationError](t, err)
	assert.Equal(t, "content", ve.Field)

	_, err = f.svc.SendMessage(ctx, "u4", c.ID, "hi", nil)
	requireKind[*registrystore.ForbiddenError](t, err)

	m, err := f.svc.SendMessage(ctx, "u1", c.ID, "", []string{"https://media.test/chats/1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://media.test/chats/1"}, m.Images)
}

func TestFanoutFailureDoesNotFailSend(t *testing.T) {
	f := newFixture(t)
	c := f.group(t, "u1", "u2", "u3")
	f.events.FailWith(errors.New("bridge down"))

	m := f.send(t, "u1", c.ID, "still stored")
	got, err := f.store.GetMessage(context.Background(), c.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "still stored", got.Content)
}

func TestGetMessagesPagesWithoutGaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.group(t, "u1", "u2", "u3")

	var sent []string
	for i := range 25 {
		sent = append(sent, f.send(t, "u1", c.ID, fmt.Sprintf("m%d", i)).ID)
	}

	var seen []string
	cursor := ""
	pages := 0
	for {
		page, err := f.svc.GetMessages(ctx, "u2", c.ID, cursor, 10)
		require.NoError(t, err)
		pages++
		for i := 1; i < len(page.Messages); i++ {
			require.Greater(t, page.Messages[i-1].ID, page.Messages[i].ID)
		}
		for _, m := range page.Messages {
			seen = append(seen, m.ID)
		}
		if page.NextCursor == nil {
			break
		}
		assert.Equal(t, page.Messages[len(page.Messages)-1].ID, *page.NextCursor)
		cursor = *page.NextCursor
	}
	assert.Equal(t, 3, pages)
	require.Len(t, seen, len(sent))
	for i, id := range seen {
		assert.Equal(t, sent[len(sent)-1-i], id)
	}
}

func TestGetMessagesLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.group(t, "u1", "u2", "u3")
	for i := range 12 {
		f.send(t, "u1", c.ID, fmt.Sprintf("m%d", i))
	}

	page, err := f.svc.GetMessages(ctx, "u1", c.ID, "", 0)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 10)
	assert.NotNil(t, page.NextCursor)

	page, err = f.svc.GetMessages(ctx, "u1", c.ID, "", 1000)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 12)
	assert.Nil(t, page.NextCursor)

	_, err = f.svc.GetMessages(ctx, "u1", c.ID, "bogus", 10)
	ve := requireKind[*registrystore.ValidationError](t, err)
	assert.Equal(t, "cursor", ve.Field)
}

func TestGetMessagesAroundID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.group(t, "u1", "u2", "u3")
	var sent []string
	for i := range 30 {
		sent = append(sent, f.send(t, "u1", c.ID, fmt.Sprintf("m%d", i)).ID)
	}

	target := sent[15]
	window, err := f.svc.GetMessagesAroundID(ctx, "u2", c.ID, target, 5)
	require.NoError(t, err)
	require.Len(t, window, 11)
	for i := 1; i < len(window); i++ {
		require.Less(t, window[i-1].ID, window[i].ID)
	}
	assert.Equal(t, sent[10], window[0].ID)
	assert.Equal(t, target, window[5].ID)
	assert.Equal(t, sent[20], window[10].ID)

	edge, err := f.svc.GetMessagesAroundID(ctx, "u2", c.ID, sent[1], 5)
	require.NoError(t, err)
	require.Len(t, edge, 7)
	assert.Equal(t, sent[0], edge[0].ID)

	other := f.group(t, "u1", "u2", "u4")
	foreign := f.send(t, "u1", other.ID, "elsewhere")
	_, err = f.svc.GetMessagesAroundID(ctx, "u2", c.ID, foreign.ID, 5)
	ve := requireKind[*registrystore.ValidationError](t, err)
	assert.Equal(t, "messageId", ve.Field)
}

func TestSearchMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.group(t, "u1", "u2", "u3")
	var hits []string
	for i := range 30 {
		content := fmt.Sprintf("plain %d", i)
		if i%10 == 3 {
			content = fmt.Sprintf("Deploy [prod].* %d", i)
		}
		m := f.send(t, "u1", c.ID, content)
		if i%10 == 3 {
			hits = append(hits, m.ID)
		}
	}

	res, err := f.svc.SearchMessages(ctx, "u2", c.ID, "deploy [PROD].*", "", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	require.Len(t, res.Matches, 3)
	assert.Equal(t, hits[2], res.Matches[0].ID)
	assert.Equal(t, hits[0], res.Matches[2].ID)
	assert.Nil(t, res.NextCursor)
	require.Len(t, res.Window, 5)
	assert.Equal(t, hits[2], res.Window[2].ID)

	res, err = f.svc.SearchMessages(ctx, "u2", c.ID, "deploy", hits[2], 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)

	res, err = f.svc.SearchMessages(ctx, "u2", c.ID, "missing", "", 2)
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Empty(t, res.Window)

	_, err = f.svc.SearchMessages(ctx, "u2", c.ID, "  ", "", 2)
	requireKind[*registrystore.ValidationError](t, err)
}

func TestSearchMessagesReportsNextCursorOnFullPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.group(t, "u1", "u2", "u3")
	for i := range 25 {
		f.send(t, "u1", c.ID, fmt.Sprintf("match %d", i))
	}

	res, err := f.svc.SearchMessages(ctx, "u1", c.ID, "match", "", 0)
	require.NoError(t, err)
	require.Equal(t, 20, res.Count)
	require.NotNil(t, res.NextCursor)
	assert.Equal(t, res.Matches[19].ID, *res.NextCursor)
}

func TestMarkSeenOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.group(t, "u1", "u2", "u3")
	m := f.send(t, "u1", c.ID, "read me")
	f.events.Reset()

	require.NoError(t, f.svc.MarkSeen(ctx, "u2", c.ID))
	require.NoError(t, f.svc.MarkSeen(ctx, "u2", c.ID))

	got, err := f.store.GetMessage(ctx, c.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, got.SeenUsers)

	toCaller := f.events.To("u2")
	require.Len(t, toCaller, 1)
	u := toCaller[0].Payload.(model.ConversationUpdate)
	assert.Equal(t, model.TagSeen, u.Tag)
	assert.Equal(t, []string{"u2"}, u.Data.(model.LastMessageData).LastMessage.SeenUsers)

	onConv := f.events.To(c.ID)
	require.Len(t, onConv, 1)
	assert.Equal(t, model.EventMessageUpdate, onConv[0].Event)
	assert.Equal(t, m.ID, onConv[0].Payload.(model.MessageUpdateData).Message.ID)
}

func TestMarkSeenExemptsSenderAndEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.group(t, "u1", "u2", "u3")

	require.NoError(t, f.svc.MarkSeen(ctx, "u2", c.ID))
	assert.Empty(t, f.events.Events())

	m := f.send(t, "u1", c.ID, "mine")
	f.events.Reset()
	require.NoError(t, f.svc.MarkSeen(ctx, "u1", c.ID))
	assert.Empty(t, f.events.Events())

	got, err := f.store.GetMessage(ctx, c.ID, m.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SeenUsers)

	err = f.svc.MarkSeen(ctx, "u4", c.ID)
	requireKind[*registrystore.ForbiddenError](t, err)
}

func TestNotifyTyping(t *testing.T) {
	f := newFixture(t)
	c := f.group(t, "u1", "u2", "u3")

	require.NoError(t, f.svc.NotifyTyping(context.Background(), "u3", c.ID))
	got := f.events.To(c.ID)
	require.Len(t, got, 1)
	assert.Equal(t, model.EventMessageTyping, got[0].Event)
	assert.Equal(t, model.TypingData{ConversationID: c.ID, UserID: "u3"}, got[0].Payload)

	page, err := f.svc.GetMessages(context.Background(), "u3", c.ID, "", 0)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
}

func TestListImagesAndLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.group(t, "u1", "u2", "u3")

	first, err := f.svc.SendMessage(ctx, "u1", c.ID, "see https://a.example/x and http://b.example", []string{"https://media.test/chats/1", "https://media.test/chats/2"})
	require.NoError(t, err)
	for i := range 250 {
		f.send(t, "u2", c.ID, fmt.Sprintf("filler %d", i))
	}
	last, err := f.svc.SendMessage(ctx, "u3", c.ID, "", []string{"https://media.test/chats/3"})
	require.NoError(t, err)

	images, err := f.svc.ListImages(ctx, "u2", c.ID)
	require.NoError(t, err)
	require.Len(t, images, 3)
	assert.Equal(t, first.ID, images[0].MessageID)
	assert.Equal(t, "https://media.test/chats/2", images[1].URL)
	assert.Equal(t, last.ID, images[2].MessageID)
	assert.Equal(t, "u3", images[2].Sender)

	links, err := f.svc.ListLinks(ctx, "u2", c.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "https://a.example/x", links[0].URL)
	assert.Equal(t, "http://b.example", links[1].URL)

	_, err = f.svc.ListLinks(ctx, "u4", c.ID)
	requireKind[*registrystore.ForbiddenError](t, err)
}
