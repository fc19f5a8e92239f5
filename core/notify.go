package core

import (
	"context"
	"sync/atomic"
	"time"
)

// Notification word layout
const (
	ReconfigureBit = uint32(1) << 31
	CompletionMask = ReconfigureBit - 1
)

// Notification is one drained notification word
type Notification struct {
	Reconfigure bool
	Completions uint32
}

// Pending reports whether anything was signalled
func (n Notification) Pending() bool {
	return n.Reconfigure || n.Completions > 0
}

// Notifier multiplexes the reconfigure signal and transmit completion counts
// into a single word. Reconfigure and Completed never block and are safe to
// call from a transmit-done callback. Only one goroutine may call Wait.
type Notifier struct {
	word atomic.Uint32
	wake chan struct{}
}

// NewNotifier creates an empty notifier
func NewNotifier() *Notifier {
	return &Notifier{wake: make(chan struct{}, 1)}
}

// Reconfigure raises the configuration-changed bit
func (n *Notifier) Reconfigure() {
	for {
		old := n.word.Load()
		if n.word.CompareAndSwap(old, old|ReconfigureBit) {
			break
		}
	}
	n.signal()
}

// Completed adds one transmit completion. The count saturates at CompletionMask.
func (n *Notifier) Completed() {
	for {
		old := n.word.Load()
		count := old & CompletionMask
		if count < CompletionMask {
			count++
		}
		if n.word.CompareAndSwap(old, old&ReconfigureBit|count) {
			break
		}
	}
	n.signal()
}

func (n *Notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Take drains the word without waiting
func (n *Notifier) Take() Notification {
	w := n.word.Swap(0)
	return Notification{
		Reconfigure: w&ReconfigureBit != 0,
		Completions: w & CompletionMask,
	}
}

// Wait blocks until something is signalled, timeout elapses or ctx is done,
// then drains the word. A timeout of zero or less waits without limit.
// Timing out is not an error; the returned Notification is simply empty.
func (n *Notifier) Wait(ctx context.Context, timeout time.Duration) (Notification, error) {
	if got := n.Take(); got.Pending() {
		return got, nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return Notification{}, ctx.Err()
		case <-expired:
			return n.Take(), nil
		case <-n.wake:
			// the wake token can outlive a word already drained by Take
			if got := n.Take(); got.Pending() {
				return got, nil
			}
		}
	}
}
