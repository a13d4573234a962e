package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToSubscriber(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe("thread-1")
	defer unsubscribe()

	h.Publish("thread-1", []byte("hello"))

	select {
	case msg := <-ch:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(time.Second):
		t.Fatal("expected message, got none")
	}
}

func TestHubIsolatesThreads(t *testing.T) {
	h := NewHub()
	chA, unsubA := h.Subscribe("thread-a")
	defer unsubA()
	chB, unsubB := h.Subscribe("thread-b")
	defer unsubB()

	h.Publish("thread-a", []byte("for-a"))

	select {
	case msg := <-chA:
		assert.Equal(t, "for-a", string(msg))
	case <-time.After(time.Second):
		t.Fatal("expected message on thread-a")
	}

	select {
	case msg := <-chB:
		t.Fatalf("thread-b should not have received a message, got %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	h := NewHub()
	done := make(chan struct{})
	go func() {
		h.Publish("nobody-listening", []byte("x"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe("thread-1")
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}

func TestHubDropsWhenSubscriberBufferFull(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe("thread-1")
	defer unsubscribe()

	// The buffer is 8; publishing well past that must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish("thread-1", []byte("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
	// Drain so the goroutine backing Publish (if any) isn't leaked across tests.
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
