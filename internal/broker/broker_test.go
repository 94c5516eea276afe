package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeopt/internal/model"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := New()
	rid := "r1"
	ch := b.Subscribe(rid)
	require.Equal(t, 1, b.Subscribers(rid))

	evt := model.RunEvent{Type: model.EventRunProgress, Progress: &model.Progress{RunID: rid, Generation: 3, Min: 12.5}}
	b.Publish(rid, evt)
	b.Publish("other", model.RunEvent{Type: "ignored"})

	select {
	case got := <-ch:
		assert.Equal(t, evt.Type, got.Type)
		require.NotNil(t, got.Progress)
		assert.Equal(t, 3, got.Progress.Generation)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(rid, ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.Equal(t, 0, b.Subscribers(rid))

	assert.NotPanics(t, func() { b.Unsubscribe(rid, ch) }, "double unsubscribe")
}

func TestBrokerDropsForSlowSubscribers(t *testing.T) {
	b := New()
	ch := b.Subscribe("r")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish("r", model.RunEvent{Type: model.EventRunProgress})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, cap(ch), len(ch))
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "run:abc", ChannelName("abc"))
}
