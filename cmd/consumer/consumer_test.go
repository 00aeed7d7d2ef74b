package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-negotiation/internal/ingest"
)

// fakeWriter implements PresenceWriter for tests
type fakeWriter struct {
	fail  int // number of times to fail HSet before succeeding
	calls int
	last  map[string]interface{}
}

func (f *fakeWriter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("hset fail")
	}
	f.last = values
	return nil
}

func TestMirrorPresenceWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeWriter{fail: 1}
	ev := &ingest.TripEvent{Type: ingest.EventDriverPresence, DriverID: "driver1", Online: true, At: time.Now()}
	ctx := context.Background()
	start := time.Now()
	if err := mirrorPresenceWithRetry(ctx, f, ev, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls < 2 {
		t.Fatalf("expected retries, got calls=%d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if online, ok := f.last["online"].(bool); !ok || !online {
		t.Fatalf("expected online=true mirrored, got %v", f.last)
	}
}

func TestMirrorPresenceWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeWriter{fail: 5}
	ev := &ingest.TripEvent{Type: ingest.EventDriverPresence, DriverID: "driver1", Online: false, At: time.Now()}
	ctx := context.Background()
	if err := mirrorPresenceWithRetry(ctx, f, ev, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}
