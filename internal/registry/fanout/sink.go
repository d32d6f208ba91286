package fanout

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
)

// SinkBuffer is the per-subscription buffer size.
const SinkBuffer = 64

// Sink is the delivery end of one subscription. Deliver never blocks; a
// subscriber that falls SinkBuffer events behind loses the overflow.
type Sink struct {
	mu       sync.Mutex
	out      chan model.Envelope
	channels map[string]struct{}
	closed   bool
}

// NewSink creates a sink accepting envelopes for channels.
func NewSink(channels ...string) *Sink {
	set := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		set[c] = struct{}{}
	}
	return &Sink{out: make(chan model.Envelope, SinkBuffer), channels: set}
}

// C returns the receive side.
func (s *Sink) C() <-chan model.Envelope { return s.out }

// Wants reports whether channel is part of this subscription.
func (s *Sink) Wants(channel string) bool {
	_, ok := s.channels[channel]
	return ok
}

// Deliver hands env to the subscriber unless the sink is closed or full.
func (s *Sink) Deliver(env model.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- env:
	default:
		log.Warn("Dropping event for slow subscriber", "channel", env.Channel, "event", env.Event)
	}
}

// Close closes the receive side. Safe to call more than once.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}
