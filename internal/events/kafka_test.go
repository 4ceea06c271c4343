package events

import (
	"context"
	"testing"
	"time"
)

func TestKafkaPublisherNotifyDoesNotWaitForBroker(t *testing.T) {
	// Nothing listens on port 1, so a synchronous write would block until its timeout
	p := NewKafkaPublisher([]string{"127.0.0.1:1"})

	if !p.writer.Async {
		t.Fatal("writer must be async")
	}
	if p.writer.Completion == nil {
		t.Fatal("async writer needs a completion callback to surface failures")
	}

	start := time.Now()
	for i := 0; i < 50; i++ {
		p.Notify(context.Background(), Event{Type: LocationUpdated, DriverID: "drv-1"})
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("50 notifications took %v, want them enqueued without waiting", elapsed)
	}
}
