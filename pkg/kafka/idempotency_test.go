package kafka

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ---------------------------------------------------------------------------
// MemoryIdempotencyStore tests
// ---------------------------------------------------------------------------

func TestMemoryIdempotencyStore_AddAndContains(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	ctx := context.Background()

	if err := store.Add(ctx, "evt-1"); err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}

	got, err := store.Contains(ctx, "evt-1")
	if err != nil {
		t.Fatalf("Contains() returned error: %v", err)
	}
	if !got {
		t.Error("Contains(evt-1) = false, want true after Add")
	}

	got, _ = store.Contains(ctx, "evt-2")
	if got {
		t.Error("Contains(evt-2) = true, want false")
	}
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Add(ctx, "old")
	now = now.Add(2 * time.Minute)

	got, _ := store.Contains(ctx, "old")
	if got {
		t.Error("Contains(old) = true after TTL, want false")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after expired lookup", store.Len())
	}
}

func TestMemoryIdempotencyStore_AddSweepsExpired(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Add(ctx, "a")
	_ = store.Add(ctx, "b")
	now = now.Add(2 * time.Minute)
	_ = store.Add(ctx, "c")

	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryIdempotencyStore_Concurrent(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			_ = store.Add(ctx, id)
			_, _ = store.Contains(ctx, id)
		}(i)
	}
	wg.Wait()

	if store.Len() != 26 {
		t.Errorf("Len() = %d, want 26", store.Len())
	}
}

// ---------------------------------------------------------------------------
// IdempotentHandler tests
// ---------------------------------------------------------------------------

func TestIdempotentHandler_SkipsDuplicates(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	var calls atomic.Int32
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		calls.Add(1)
		return nil
	}, testLogger())

	event := &Event{EventID: "evt-1", EventType: "saga.compensation_failed"}
	for i := 0; i < 3; i++ {
		if err := h(context.Background(), event); err != nil {
			t.Fatalf("handler returned error: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("inner handler called %d times, want 1", calls.Load())
	}
}

func TestIdempotentHandler_FailureIsNotRecorded(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	var calls atomic.Int32
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}, testLogger())

	event := &Event{EventID: "evt-1"}
	if err := h(context.Background(), event); err == nil {
		t.Fatal("first call: want error")
	}
	if err := h(context.Background(), event); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("inner handler called %d times, want 2", calls.Load())
	}
}

func TestIdempotentHandler_EmptyIDAlwaysRuns(t *testing.T) {
	store := NewMemoryIdempotencyStore(time.Minute)
	var calls atomic.Int32
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		calls.Add(1)
		return nil
	}, testLogger())

	_ = h(context.Background(), &Event{})
	_ = h(context.Background(), &Event{})
	if calls.Load() != 2 {
		t.Errorf("inner handler called %d times, want 2", calls.Load())
	}
}

type brokenStore struct{}

func (brokenStore) Contains(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}

func (brokenStore) Add(context.Context, string) error { return errors.New("store down") }

func TestIdempotentHandler_StoreErrorStillProcesses(t *testing.T) {
	var calls atomic.Int32
	h := IdempotentHandler(brokenStore{}, func(context.Context, *Event) error {
		calls.Add(1)
		return nil
	}, testLogger())

	if err := h(context.Background(), &Event{EventID: "evt-1"}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("inner handler called %d times, want 1", calls.Load())
	}
}
