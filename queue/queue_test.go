package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestQueueOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	if q.Len() != 5 {
		t.Fatalf("unexpected len: %d", q.Len())
	}
	for i := 0; i < 5; i++ {
		v, ok := q.Pop()
		if !ok || v != i {
			t.Fatalf("pop %d: got %d %v", i, v, ok)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("pop on empty queue succeeded")
	}
}

func TestQueueDrain(t *testing.T) {
	q := New[string]()
	q.Push("a")
	q.Push("b")
	got := q.Drain()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" || q.Len() != 0 {
		t.Fatalf("unexpected drain: %v, len %d", got, q.Len())
	}
}

func TestQueueWaitWakesOnPush(t *testing.T) {
	q := New[int]()
	done := make(chan int)
	go func() {
		v, err := q.Wait(context.Background())
		if err != nil {
			t.Errorf("wait: %v", err)
		}
		done <- v
	}()

	q.Push(42)
	select {
	case v := <-done:
		if v != 42 {
			t.Fatalf("unexpected value: %d", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("consumer was not woken")
	}
}

func TestQueueWaitCancelled(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestQueueInterleaved(t *testing.T) {
	q := New[int]()
	next, want := 0, 0
	for round := 0; round < 50; round++ {
		for i := 0; i < 7; i++ {
			q.Push(next)
			next++
		}
		for i := 0; i < 5; i++ {
			v, ok := q.Pop()
			if !ok || v != want {
				t.Fatalf("round %d: got %d %v want %d", round, v, ok, want)
			}
			want++
		}
	}
	rest := q.Drain()
	if len(rest) != next-want || rest[0] != want || rest[len(rest)-1] != next-1 {
		t.Fatalf("unexpected drain: %d items from %d", len(rest), rest[0])
	}
	if q.Drain() != nil || q.Len() != 0 {
		t.Fatalf("queue not empty after drain")
	}
}
