package events

import "testing"

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventOrderFilled, 1)
	defer unsub()

	bus.Publish(EventOrderFilled, "ord-1")

	select {
	case got := <-ch:
		if got != "ord-1" {
			t.Fatalf("got %v, want ord-1", got)
		}
	default:
		t.Fatal("no message delivered")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	_, unsub := bus.Subscribe(EventSignalReceived, 1)
	defer unsub()

	// Buffer of 1: the second publish must be dropped, not deadlock.
	bus.Publish(EventSignalReceived, 1)
	bus.Publish(EventSignalReceived, 2)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventRiskAlert, 1)
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(EventRiskAlert, "late")
}
