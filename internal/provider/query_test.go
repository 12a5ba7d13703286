package provider

import (
	"context"
	"testing"
	"time"
)

func TestSendEvent_DeliversWhileConsumerDrains(t *testing.T) {
	events := make(chan Event, 1)
	if !sendEvent(context.Background(), events, AssistantText{Text: "hello"}) {
		t.Fatal("send on an open channel must succeed")
	}
	got, ok := (<-events).(AssistantText)
	if !ok || got.Text != "hello" {
		t.Fatalf("got %#v, want AssistantText hello", got)
	}
}

func TestSendEvent_AbandonedConsumerDoesNotWedge(t *testing.T) {
	events := make(chan Event, 1)
	events <- AssistantText{Text: "stale"} // fill the buffer, nobody drains

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan bool, 1)
	go func() {
		done <- sendEvent(ctx, events, AssistantText{Text: "blocked"})
	}()

	select {
	case sent := <-done:
		if sent {
			t.Error("send must report failure when the context ends first")
		}
	case <-time.After(time.Second):
		t.Fatal("send blocked on a full channel with a finished context")
	}
}
