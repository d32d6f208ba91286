package messaging_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registrymedia "github.com/TruongKhoiNguyen/Agora-api/internal/registry/media"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func image(name string) registrymedia.File {
	return registrymedia.File{Name: name, ContentType: "image/png", Size: 4, Data: strings.NewReader("data")}
}

func TestUpdateThumbReplacesOldObject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.group(t, "u1", "u2", "u3")

	first, err := f.svc.UpdateThumb(ctx, "u1", c.ID, image("a.png"))
	require.NoError(t, err)
	require.True(t, f.media.Has(first.Thumb))
	assert.Empty(t, f.media.Destroyed())

	second, err := f.svc.UpdateThumb(ctx, "u1", c.ID, image("b.png"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Thumb, second.Thumb)
	assert.Equal(t, []string{first.Thumb}, f.media.Destroyed())
	assert.Equal(t, "Changed conversation thumb", second.LastMessage.Content)
	assert.Equal(t, model.MessageTypeThumb, second.LastMessage.Type)

	last := f.events.To("u2")
	assert.Equal(t, model.ThumbData{Thumb: second.Thumb}, last[len(last)-1].Payload.(model.ConversationUpdate).Data)
}

func TestUpdateThumbFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.group(t, "u1", "u2", "u3")

	_, err := f.svc.UpdateThumb(ctx, "u2", c.ID, image("a.png"))
	requireKind[*registrystore.ForbiddenError](t, err)

	f.media.FailUploads(errors.New("quota"))
	_, err = f.svc.UpdateThumb(ctx, "u1", c.ID, image("a.png"))
	requireKind[*registrystore.UpstreamError](t, err)
	assert.Empty(t, f.stored(t, c.ID).Thumb)
	assert.Empty(t, f.events.Events())
	f.media.FailUploads(nil)

	first, err := f.svc.UpdateThumb(ctx, "u1", c.ID, image("a.png"))
	require.NoError(t, err)
	f.media.FailDestroys(errors.New("gone"))
	second, err := f.svc.UpdateThumb(ctx, "u1", c.ID, image("b.png"))
	require.NoError(t, err)
	assert.True(t, f.media.Has(first.Thumb))
	assert.Equal(t, second.Thumb, f.stored(t, c.ID).Thumb)
}

func TestSendMessageWithImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.group(t, "u1", "u2", "u3")

	m, err := f.svc.SendMessageWithImages(ctx, "u2", c.ID, "look", []registrymedia.File{image("a.png"), image("b.png")})
	require.NoError(t, err)
	require.Len(t, m.Images, 2)
	for _, u := range m.Images {
		assert.True(t, f.media.Has(u))
		assert.Contains(t, u, "/chats/")
	}

	too := make([]registrymedia.File, 6)
	for i := range too {
		too[i] = image("x.png")
	}
	_, err = f.svc.SendMessageWithImages(ctx, "u2", c.ID, "", too)
	requireKind[*registrystore.ValidationError](t, err)

	_, err = f.svc.SendMessageWithImages(ctx, "u4", c.ID, "", []registrymedia.File{image("a.png")})
	requireKind[*registrystore.ForbiddenError](t, err)
	assert.Len(t, f.media.Destroyed(), 0)

	f.media.FailUploads(errors.New("down"))
	_, err = f.svc.SendMessageWithImages(ctx, "u2", c.ID, "", []registrymedia.File{image("a.png")})
	requireKind[*registrystore.UpstreamError](t, err)

	page, err := f.svc.GetMessages(ctx, "u2", c.ID, "", 0)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
}
