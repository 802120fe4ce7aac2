package session

import "sync"

// notifier runs UI callbacks one at a time, in the order they were queued,
// on its own goroutine. Queuing never blocks, so callbacks may call back
// into the Controller.
type notifier struct {
	mu      sync.Mutex
	queue   []func()
	closing bool
	wake    chan struct{}
	done    chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{wake: make(chan struct{}, 1), done: make(chan struct{})}
	go n.run()
	return n
}

func (n *notifier) emit(f func()) {
	n.mu.Lock()
	if n.closing {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, f)
	n.mu.Unlock()
	n.signal()
}

// finish delivers what is queued and then stops.
func (n *notifier) finish() {
	n.mu.Lock()
	n.closing = true
	n.mu.Unlock()
	n.signal()
}

func (n *notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for range n.wake {
		for {
			n.mu.Lock()
			if len(n.queue) == 0 {
				closing := n.closing
				n.mu.Unlock()
				if closing {
					return
				}
				break
			}
			f := n.queue[0]
			n.queue = n.queue[1:]
			n.mu.Unlock()
			f()
		}
	}
}
