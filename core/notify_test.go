package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNotifierCountsCompletions(t *testing.T) {
	n := NewNotifier()
	n.Completed()
	n.Completed()
	n.Completed()

	got, err := n.Wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if got.Reconfigure || got.Completions != 3 {
		t.Errorf("got %+v, want 3 completions", got)
	}
	if again := n.Take(); again.Pending() {
		t.Errorf("word not cleared: %+v", again)
	}
}

func TestNotifierReconfigureKeepsCount(t *testing.T) {
	n := NewNotifier()
	n.Completed()
	n.Reconfigure()
	n.Completed()

	got := n.Take()
	if !got.Reconfigure || got.Completions != 2 {
		t.Errorf("got %+v, want reconfigure with 2 completions", got)
	}
}

func TestNotifierWaitTimeout(t *testing.T) {
	n := NewNotifier()
	start := time.Now()
	got, err := n.Wait(context.Background(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if got.Pending() {
		t.Errorf("got %+v, want nothing", got)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Wait returned before the timeout")
	}
}

func TestNotifierWaitWakes(t *testing.T) {
	n := NewNotifier()
	go func() {
		time.Sleep(5 * time.Millisecond)
		n.Reconfigure()
	}()
	got, err := n.Wait(context.Background(), 0)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if !got.Reconfigure {
		t.Errorf("got %+v, want reconfigure", got)
	}
}

func TestNotifierWaitCanceled(t *testing.T) {
	n := NewNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := n.Wait(ctx, time.Second); err != context.Canceled {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestNotifierConcurrentCompletions(t *testing.T) {
	n := NewNotifier()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n.Completed()
			}
		}()
	}
	wg.Wait()
	if got := n.Take(); got.Completions != 800 {
		t.Errorf("got %d completions, want 800", got.Completions)
	}
}
