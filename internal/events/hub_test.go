package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishSubscribe(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe()
	defer cancel()

	ev := h.Publish(TypeTodoChanged, map[string]string{"id": "t1"})
	assert.Equal(t, int64(1), ev.ID)

	select {
	case got := <-ch:
		assert.Equal(t, TypeTodoChanged, got.Type)
		assert.JSONEq(t, `{"id":"t1"}`, string(got.Data))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHubNilPayloadIsEmptyObject(t *testing.T) {
	h := NewHub(1)
	ev := h.Publish(TypeTodosCleared, nil)
	assert.Equal(t, "{}", string(ev.Data))
}

func TestHubRingOverwritesOldest(t *testing.T) {
	h := NewHub(3)
	for range 5 {
		h.Publish(TypeTodoChanged, nil)
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{snap[0].ID, snap[1].ID, snap[2].ID})

	since := h.SnapshotSince(4)
	require.Len(t, since, 1)
	assert.Equal(t, int64(5), since[0].ID)
}

func TestHubCancelClosesChannel(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	cancel()
	cancel() // idempotent
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, h.Subscribers())
}

func TestHubClose(t *testing.T) {
	h := NewHub(2)
	ch, _ := h.Subscribe()

	h.Close()
	_, ok := <-ch
	assert.False(t, ok)

	ev := h.Publish(TypeTodoChanged, nil)
	assert.Zero(t, ev.ID)

	late, _ := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(1)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for range 500 {
			h.Publish(TypeTodoChanged, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
