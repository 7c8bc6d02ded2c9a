package http

import (
	"errors"
	"sync"

	"messenger/internal/core"
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer full")
)

// wsClient adapts a websocket connection to core.Conn. Events are queued
// on a bounded channel drained by the connection's write loop, so a
// stalled peer can never block a broadcast: once the buffer is full,
// further events for this peer are dropped with an error.
type wsClient struct {
	events    chan *core.Event
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(buffer int) *wsClient {
	if buffer <= 0 {
		buffer = 16
	}
	return &wsClient{
		events: make(chan *core.Event, buffer),
		done:   make(chan struct{}),
	}
}

// Send queues an event without blocking.
func (c *wsClient) Send(ev *core.Event) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errSlowConsumer
	}
}

// Close marks the handle dead. The write loop observes done and exits,
// which in turn tears down the websocket. Idempotent.
func (c *wsClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
