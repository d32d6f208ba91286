package messaging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/messaging"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	"github.com/TruongKhoiNguyen/Agora-api/internal/plugin/directory/static"
	"github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/memory"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/TruongKhoiNguyen/Agora-api/internal/service"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/fanouttest"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/mediatest"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc    *messaging.Service
	store  *memory.Store
	events *fanouttest.Recorder
	media  *mediatest.Store
	dir    *static.Directory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New(),
		events: fanouttest.NewRecorder(),
		media:  mediatest.New(),
		dir: static.New(
			model.Profile{ID: "u1", FirstName: "Ada", LastName: "Lovelace"},
			model.Profile{ID: "u2", FirstName: "Alan", LastName: "Turing"},
			model.Profile{ID: "u3", FirstName: "Grace", LastName: "Hopper"},
			model.Profile{ID: "u4", Email: "u4@example.com"},
		),
	}
	f.svc = messaging.New(f.store, f.dir, f.media, service.NewDispatcher(f.events, 0), messaging.DefaultOptions())
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	messaging.SetClock(f.svc, func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	return f
}

func (f *fixture) group(t *testing.T, creator string, members ...string) *model.ConversationView {
	t.Helper()
	c, err := f.svc.CreateConversation(context.Background(), creator, messaging.CreateConversationInput{IsGroup: true, Members: members, Name: "team"})
	require.NoError(t, err)
	f.events.Reset()
	return c
}

func (f *fixture) send(t *testing.T, sender, conversationID, content string) *model.MessageView {
	t.Helper()
	m, err := f.svc.SendMessage(context.Background(), sender, conversationID, content, nil)
	require.NoError(t, err)
	return m
}

// stored returns the persisted conversation regardless of membership.
func (f *fixture) stored(t *testing.T, conversationID string) *model.Conversation {
	t.Helper()
	before, _, err := f.store.MutateConversation(context.Background(), conversationID, registrystore.Mutation{})
	require.NoError(t, err)
	return before
}

func requireKind[T error](t *testing.T, err error) T {
	t.Helper()
	require.Error(t, err)
	var target T
	require.True(t, errors.As(err, &target), "got %T: %v", err, err)
	return target
}

func requireAdminsSubset(t *testing.T, c *model.Conversation) {
	t.Helper()
	for _, a := range c.Admins {
		require.Contains(t, c.Members, a)
	}
}

func eventsNamed(events []fanouttest.Published, name string) []fanouttest.Published {
	var out []fanouttest.Published
	for _, e := range events {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func updateTags(events []fanouttest.Published) []model.ConversationTag {
	var out []model.ConversationTag
	for _, e := range events {
		if u, ok := e.Payload.(model.ConversationUpdate); ok {
			out = append(out, u.Tag)
		}
	}
	return out
}

func TestOptionsFromConfigKeepsDefaults(t *testing.T) {
	require.Equal(t, messaging.DefaultOptions(), messaging.OptionsFromConfig(nil))
}
