package bus

import (
	"testing"
	"time"
)

func recvMsg(ch <-chan *Message, d time.Duration) (*Message, bool) {
	select {
	case m := <-ch:
		return m, true
	case <-time.After(d):
		return nil, false
	}
}

func TestPublishSubscribe(t *testing.T) {
	b := New(4)
	sub := b.Subscribe("ttn/join")
	defer sub.Unsubscribe()

	b.Publish(&Message{Topic: "ttn/join", Payload: "started"})

	m, ok := recvMsg(sub.Channel(), time.Second)
	if !ok {
		t.Errorf("timeout waiting for message")
		return
	}
	if m.Payload != "started" {
		t.Errorf("unexpected payload: %v", m.Payload)
	}
}

func TestRetainedReplay(t *testing.T) {
	b := New(4)
	b.Publish(&Message{Topic: "config/lorawan", Payload: 42, Retained: true})

	sub := b.Subscribe("config/lorawan")
	defer sub.Unsubscribe()

	m, ok := recvMsg(sub.Channel(), time.Second)
	if !ok {
		t.Errorf("retained message not replayed")
		return
	}
	if m.Payload != 42 {
		t.Errorf("unexpected payload: %v", m.Payload)
	}
}

func TestTopicIsolation(t *testing.T) {
	b := New(4)
	sub := b.Subscribe("a")
	defer sub.Unsubscribe()

	b.Publish(&Message{Topic: "b", Payload: 1})

	if _, ok := recvMsg(sub.Channel(), 50*time.Millisecond); ok {
		t.Errorf("message leaked across topics")
	}
}

func TestSlowConsumerDrops(t *testing.T) {
	b := New(1)
	sub := b.Subscribe("t")
	defer sub.Unsubscribe()

	// Queue length 1: the second publish must not block.
	done := make(chan struct{})
	go func() {
		b.Publish(&Message{Topic: "t", Payload: 1})
		b.Publish(&Message{Topic: "t", Payload: 2})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Errorf("publish blocked on slow consumer")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(4)
	sub := b.Subscribe("t")
	sub.Unsubscribe()

	b.Publish(&Message{Topic: "t", Payload: 1})

	if _, ok := recvMsg(sub.Channel(), 50*time.Millisecond); ok {
		t.Errorf("delivery after unsubscribe")
	}
}
