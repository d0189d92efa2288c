package ptyengine

import "testing"

func TestBroadcasterDeliversToEverySubscriber(t *testing.T) {
	b := newBroadcaster()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.publish(Event{Kind: EventDataChanged})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Kind != EventDataChanged {
				t.Fatalf("expected EventDataChanged, got %+v", evt)
			}
		default:
			t.Fatal("expected event to be delivered to subscriber")
		}
	}
}

func TestBroadcasterUnsubscribeStopsDelivery(t *testing.T) {
	b := newBroadcaster()
	ch, unsub := b.Subscribe()
	unsub()

	b.publish(Event{Kind: EventDataChanged})

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestBroadcasterDropsRatherThanBlocksOnFullSubscriber(t *testing.T) {
	b := newBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()

	// Fill the subscriber's buffer without draining it; further publishes
	// must not block the publisher.
	for i := 0; i < cap(ch)+10; i++ {
		b.publish(Event{Kind: EventDataChanged})
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			if drained != cap(ch) {
				t.Fatalf("expected exactly %d buffered events, drained %d", cap(ch), drained)
			}
			return
		}
	}
}
