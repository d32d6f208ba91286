package fanouttest

import (
	"context"
	"sync"

	registryfanout "github.com/TruongKhoiNguyen/Agora-api/internal/registry/fanout"
)

// Published is one recorded Publish call.
type Published struct {
	Channel string
	Event   string
	Payload any
}

// Recorder is a Bridge that keeps every publish in order.
type Recorder struct {
	mu     sync.Mutex
	events []Published
	err    error
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Publish(_ context.Context, channel, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Published{Channel: channel, Event: event, Payload: payload})
	return r.err
}

func (r *Recorder) Close() error { return nil }

// FailWith makes subsequent publishes return err after recording.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.events...)
}

// To returns the events published on channel.
func (r *Recorder) To(channel string) []Published {
	var out []Published
	for _, e := range r.Events() {
		if e.Channel == channel {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

var _ registryfanout.Bridge = (*Recorder)(nil)
