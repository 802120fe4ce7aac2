package protocol

import (
	"fmt"
	"sync"
)

// DefaultWindow bounds how far ahead of the expected move the Sequencer buffers.
const DefaultWindow = 32

// Sequencer restores move order for transports that may reorder or duplicate
// frames. Moves are released strictly by moveNumber.
type Sequencer struct {
	mu     sync.Mutex
	next   int
	window int
	buf    map[int]MovePayload
}

// NewSequencer expects moveNumber localLen+1 next. A window <= 0 uses DefaultWindow.
func NewSequencer(localLen, window int) *Sequencer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Sequencer{next: localLen + 1, window: window, buf: make(map[int]MovePayload)}
}

// Push accepts one inbound move and returns every move that is now ready, in
// order. Duplicates are dropped silently. A move past the window returns
// ErrOutOfSequence and the caller should resynchronise.
func (s *Sequencer) Push(m MovePayload) ([]MovePayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case m.MoveNumber < s.next:
		return nil, nil
	case m.MoveNumber >= s.next+s.window:
		return nil, fmt.Errorf("%w: move %d is beyond window starting at %d", ErrOutOfSequence, m.MoveNumber, s.next)
	}
	if _, dup := s.buf[m.MoveNumber]; !dup {
		s.buf[m.MoveNumber] = m
	}

	var ready []MovePayload
	for {
		next, ok := s.buf[s.next]
		if !ok {
			break
		}
		delete(s.buf, s.next)
		ready = append(ready, next)
		s.next++
	}
	return ready, nil
}

// Advance records a locally produced move so the next inbound one is expected after it.
func (s *Sequencer) Advance(moveNumber int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if moveNumber >= s.next {
		s.next = moveNumber + 1
		for n := range s.buf {
			if n < s.next {
				delete(s.buf, n)
			}
		}
	}
}

// Reset discards buffered moves after a full state sync.
func (s *Sequencer) Reset(localLen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = localLen + 1
	s.buf = make(map[int]MovePayload)
}

// Buffered returns how many moves are waiting for a gap to fill.
func (s *Sequencer) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Expected returns the next moveNumber the sequencer will release.
func (s *Sequencer) Expected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
