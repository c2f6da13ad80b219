package queue

import (
	"testing"
	"time"

	"github.com/harsh-quidich/camxfer"
)

func TestPushPop(t *testing.T) {
	q := New(2, DefaultMaxAttempts)
	task := camxfer.TransferTask{Entry: camxfer.SourceEntry{Name: "a.jpg"}}
	q.Push(task)
	got, ok := q.Pop()
	if !ok || got.Entry.Name != "a.jpg" {
		t.Fatalf("unexpected pop result: %+v, %v", got, ok)
	}
}

func TestRetryExceedsMaxAttempts(t *testing.T) {
	q := New(4, 2)
	task := camxfer.TransferTask{Entry: camxfer.SourceEntry{Name: "a.jpg"}, Attempts: 2}
	if ok := q.Retry(task); ok {
		t.Fatal("expected retry to fail past max attempts")
	}
}

func TestRetryWithinMaxAttempts(t *testing.T) {
	q := New(4, 5)
	task := camxfer.TransferTask{Entry: camxfer.SourceEntry{Name: "a.jpg"}, Attempts: 1}
	if ok := q.Retry(task); !ok {
		t.Fatal("expected retry to succeed")
	}
	got, ok := q.Pop()
	if !ok || got.Attempts != 2 {
		t.Fatalf("expected attempts incremented to 2, got %+v", got)
	}
}

func TestBackoffIsBoundedAndGrows(t *testing.T) {
	d1 := Backoff(1)
	d5 := Backoff(5)
	if d1 <= 0 || d5 <= 0 {
		t.Fatal("backoff must be positive")
	}
	if d5 > DefaultMaxBackoff+time.Second {
		t.Fatalf("backoff exceeded cap: %v", d5)
	}
	if d5 <= d1 {
		t.Fatalf("expected backoff to grow: attempt 1 = %v, attempt 5 = %v", d1, d5)
	}
}
