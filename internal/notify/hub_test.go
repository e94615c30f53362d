package notify

import (
	"testing"
	"time"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(4)
	a, cancelA := h.Subscribe()
	b, cancelB := h.Subscribe()
	defer cancelB()

	h.Publish(Message{Kind: KindInvalidate, Entity: model.EntityItem, EntityID: "42"})

	for name, ch := range map[string]<-chan Message{"a": a, "b": b} {
		select {
		case m := <-ch:
			if m.Kind != KindInvalidate || m.EntityID != "42" {
				t.Errorf("%s got %+v", name, m)
			}
			if m.At.IsZero() {
				t.Errorf("%s: timestamp not stamped", name)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: no message", name)
		}
	}

	cancelA()
	cancelA() // idempotent
	if _, ok := <-a; ok {
		t.Error("channel should be closed after cancel")
	}
	if h.Subscribers() != 1 {
		t.Errorf("subscribers = %d, want 1", h.Subscribers())
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(1)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Publish(Message{Kind: KindEventStatus})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}
