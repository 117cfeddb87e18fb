package mockserver

import (
	"context"
	"sync"
	"time"
)

// notify wakes up everything waiting for calls whenever a call is recorded.
type notify struct {
	mu     sync.Mutex
	notify chan struct{}
}

func newNotify() *notify {
	return &notify{
		notify: make(chan struct{}),
	}
}

func (n *notify) Wait(ctx context.Context, timeout time.Duration) {
	n.mu.Lock()
	notify := n.notify
	n.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-notify:
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (n *notify) Notify() {
	n.mu.Lock()
	close(n.notify)
	n.notify = make(chan struct{})
	n.mu.Unlock()
}
