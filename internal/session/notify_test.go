package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierKeepsOrderAndDrains(t *testing.T) {
	n := newNotifier()
	var got []int
	for i := 0; i < 100; i++ {
		n.emit(func() { got = append(got, i) })
	}
	n.finish()
	n.emit(func() { got = append(got, -1) })

	select {
	case <-n.done:
	case <-time.After(5 * time.Second):
		t.Fatal("notifier did not stop")
	}
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestNotifierCallbacksMayReenter(t *testing.T) {
	n := newNotifier()
	done := make(chan struct{})
	n.emit(func() {
		n.emit(func() { close(done) })
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("nested callback never ran")
	}
	n.finish()
}
