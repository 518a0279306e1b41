package updatequeue

import (
	"testing"
	"time"
)

func TestQueueDeliversEverything(t *testing.T) {
	q := New[int](0)

	// Send all integers [0, 19] without anyone receiving yet.
	max := 20
	go func() {
		ch := q.In()
		for i := range max {
			ch <- i
		}
		close(ch)
	}()

	sum := 0
	next := 0
	for d := range q.Out() {
		if d != next {
			t.Errorf("Queue delivered %d, want %d (order must be preserved)", d, next)
		}
		next++
		sum += d
	}
	expect := (max * (max - 1)) / 2
	if sum != expect {
		t.Errorf("Queue sum was %d, want %d", sum, expect)
	}
	if q.Dropped() != 0 {
		t.Errorf("Queue.Dropped()=%d, want 0 with no limit", q.Dropped())
	}
}

func TestQueueLimitDropsOldest(t *testing.T) {
	q := New[int](3)
	for i := range 10 {
		q.In() <- i
	}
	// Nobody has received, so only the newest 3 remain.
	deadline := time.Now().Add(time.Second)
	for q.Dropped() < 7 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(q.In())

	var got []int
	for d := range q.Out() {
		got = append(got, d)
	}
	want := []int{7, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("Queue delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Queue delivered %v, want %v", got, want)
			break
		}
	}
	if q.Dropped() != 7 {
		t.Errorf("Queue.Dropped()=%d, want 7", q.Dropped())
	}
}
