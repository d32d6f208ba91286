package fanout_test

import (
	"testing"

	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	"github.com/TruongKhoiNguyen/Agora-api/internal/registry/fanout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkDropsOverflowAndClosesOnce(t *testing.T) {
	s := fanout.NewSink("c1")
	assert.True(t, s.Wants("c1"))
	assert.False(t, s.Wants("c2"))

	for i := 0; i < fanout.SinkBuffer+5; i++ {
		s.Deliver(model.Envelope{Channel: "c1"})
	}
	s.Close()
	s.Close()
	s.Deliver(model.Envelope{Channel: "c1"})

	n := 0
	for range s.C() {
		n++
	}
	assert.Equal(t, fanout.SinkBuffer, n)
}

func TestNewEnvelope(t *testing.T) {
	env, err := fanout.NewEnvelope("u1", model.EventMessageTyping, model.TypingData{ConversationID: "c1", UserID: "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.JSONEq(t, `{"conversationId":"c1","userId":"u1"}`, string(env.Payload))

	_, err = fanout.NewEnvelope("u1", "x", make(chan int))
	assert.Error(t, err)
}
