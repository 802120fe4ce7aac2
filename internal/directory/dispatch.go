package directory

import (
	"sync"

	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/jason-s-yu/peerplay/internal/rules"
)

// dispatcher delivers events to RoomHandlers on its own goroutine through an
// unbounded queue, so publishers never block on a slow subscriber.
type dispatcher struct {
	h      RoomHandlers
	filter rules.GameType

	mu    sync.Mutex
	queue []models.RoomEvent
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
	onEnd func()
}

func newDispatcher(h RoomHandlers, filter rules.GameType) *dispatcher {
	d := &dispatcher{h: h, filter: filter, wake: make(chan struct{}, 1), done: make(chan struct{})}
	go d.loop()
	return d
}

func (d *dispatcher) push(ev models.RoomEvent) {
	if d.filter != "" && ev.Room.GameType != d.filter {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, ev)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) loop() {
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			ev := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()

			select {
			case <-d.done:
				return
			default:
			}
			d.deliver(ev)
		}
	}
}

func (d *dispatcher) deliver(ev models.RoomEvent) {
	var fn func(models.Room)
	switch ev.Event {
	case models.RoomInserted:
		fn = d.h.OnInsert
	case models.RoomUpdated:
		fn = d.h.OnUpdate
	case models.RoomDeleted:
		fn = d.h.OnDelete
	}
	if fn != nil {
		fn(ev.Room)
	}
}

func (d *dispatcher) Close() error {
	d.once.Do(func() {
		close(d.done)
		if d.onEnd != nil {
			d.onEnd()
		}
	})
	return nil
}
