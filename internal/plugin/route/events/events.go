// Package events streams fanout events to clients as Server-Sent Events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/ids"
	"github.com/TruongKhoiNguyen/Agora-api/internal/messaging"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	registryfanout "github.com/TruongKhoiNguyen/Agora-api/internal/registry/fanout"
	registryroute "github.com/TruongKhoiNguyen/Agora-api/internal/registry/route"
	"github.com/TruongKhoiNguyen/Agora-api/internal/security"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// KeepAlive is the interval between comment frames on an idle stream.
var KeepAlive = 25 * time.Second

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "events",
		Order: 30,
		Type:  registryroute.RouteTypeMain,
		Loader: func(m registryroute.Mount) error {
			MountRoutes(m.Router, m.Messaging, m.Subscriber, m.Auth)
			return nil
		},
	})
}

// MountRoutes mounts GET /v1/events. A nil subscriber answers 501.
func MountRoutes(r *gin.Engine, svc *messaging.Service, sub registryfanout.Subscriber, auth gin.HandlerFunc) {
	r.GET("/v1/events", auth, func(c *gin.Context) {
		stream(c, svc, sub)
	})
}

func stream(c *gin.Context, svc *messaging.Service, sub registryfanout.Subscriber) {
	if sub == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "event streaming is not supported by the configured fanout"})
		return
	}
	userID := security.GetUserID(c)
	ctx := c.Request.Context()

	channels, err := svc.Channels(ctx, userID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	sess := newSession(ctx, userID, sub)
	for _, ch := range channels {
		if ch != userID {
			sess.live[ch] = true
		}
	}
	if err := sess.resubscribe(); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"code": "upstream_error", "error": "subscribe failed"})
		return
	}
	log.Debug("Event stream opened", "userId", userID, "channels", len(channels))

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	defer sess.close()
	ticker := time.NewTicker(KeepAlive)
	defer ticker.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case env := <-sess.out:
			if !sess.admit(env) {
				return true
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", env.ID, env.Event, env.Payload)
			return true
		case <-sess.lost:
			return false
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			return true
		case <-ctx.Done():
			return false
		}
	})
	log.Debug("Event stream closed", "userId", userID)
}

// session keeps one subscription covering the user's channel and every
// conversation channel the user may read. Membership changes arrive on
// the user's channel in the same subscription as the conversation
// traffic, so a departure is seen before anything published after it.
// Joining resubscribes with the grown set; envelopes replayed by the
// overlapping subscriptions are dropped by id.
type session struct {
	ctx    context.Context
	userID string
	sub    registryfanout.Subscriber
	out    chan model.Envelope
	lost   chan struct{}
	once   sync.Once
	cancel context.CancelFunc

	live   map[string]bool
	recent map[string]struct{}
	order  []string
}

// recentIDs bounds the duplicate filter.
const recentIDs = 512

func newSession(ctx context.Context, userID string, sub registryfanout.Subscriber) *session {
	return &session{
		ctx:    ctx,
		userID: userID,
		sub:    sub,
		out:    make(chan model.Envelope, registryfanout.SinkBuffer),
		lost:   make(chan struct{}),
		live:   map[string]bool{},
		recent: map[string]struct{}{},
	}
}

// resubscribe replaces the subscription with one over the user channel
// and the live conversations.
func (s *session) resubscribe() error {
	channels := []string{s.userID}
	for ch := range s.live {
		channels = append(channels, ch)
	}
	subCtx, cancel := context.WithCancel(s.ctx)
	in, err := s.sub.Subscribe(subCtx, channels...)
	if err != nil {
		cancel()
		return err
	}
	go func() {
		for env := range in {
			select {
			case s.out <- env:
			case <-subCtx.Done():
				return
			}
		}
		if subCtx.Err() == nil {
			s.once.Do(func() { close(s.lost) })
		}
	}()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	return nil
}

func (s *session) close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// admit reports whether env goes to the client, updating the live set
// from membership events addressed to the user.
func (s *session) admit(env model.Envelope) bool {
	if !s.first(env.ID) {
		return false
	}
	if env.Channel != s.userID {
		return s.live[env.Channel]
	}
	switch env.Event {
	case model.EventConversationNew:
		var conv model.ConversationView
		if err := json.Unmarshal(env.Payload, &conv); err == nil {
			s.join(conv.ID)
		}
	case model.EventConversationUpdate:
		u, err := model.DecodeConversationUpdate(env.Payload)
		if err != nil {
			return true
		}
		switch u.Tag {
		case model.TagIsLeave:
			delete(s.live, u.ConversationID)
		case model.TagAddMembers:
			if data, ok := u.Data.(model.MembersData); ok && slices.Contains(data.Members, s.userID) {
				s.join(u.ConversationID)
			}
		}
	}
	return true
}

func (s *session) first(id string) bool {
	if _, dup := s.recent[id]; dup {
		return false
	}
	s.recent[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > recentIDs {
		delete(s.recent, s.order[0])
		s.order = s.order[1:]
	}
	return true
}

func (s *session) join(conversationID string) {
	if !ids.IsValid(conversationID) || s.live[conversationID] {
		return
	}
	s.live[conversationID] = true
	if err := s.resubscribe(); err != nil {
		log.Warn("Event stream could not follow conversation", "userId", s.userID, "conversationId", conversationID, "err", err)
	}
}
