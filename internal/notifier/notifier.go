// Package notifier fans out "state changed" pings to SSE subscribers.
package notifier

import "sync"

// Notifier broadcasts viewer ids to subscribed listeners. A listener receives the id of
// the viewer whose state changed and decides whether to re-render.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan string]struct{}
}

func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives viewer ids. Callers must Unsubscribe.
func (n *Notifier) Subscribe() chan string {
	ch := make(chan string, 4)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan string) {
	n.mu.Lock()
	if _, ok := n.listeners[ch]; ok {
		delete(n.listeners, ch)
		close(ch)
	}
	n.mu.Unlock()
}

// Broadcast sends viewerID to every listener. Full channels are skipped.
func (n *Notifier) Broadcast(viewerID string) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- viewerID:
		default:
		}
	}
}

// Subscribers returns the current listener count.
func (n *Notifier) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}
