package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"messenger/internal/store"
	"messenger/internal/store/sqlite"
)

// fakeConn records pushed events. failing makes every Send error to
// exercise per-recipient failure isolation.
type fakeConn struct {
	mu      sync.Mutex
	events  []*Event
	closed  bool
	failing bool
}

func (c *fakeConn) Send(ev *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("transport failure")
	}
	if c.closed {
		return errors.New("closed")
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) eventCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *fakeConn) lastEvent() *Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func createUser(t *testing.T, st store.Store, name string) *store.User {
	t.Helper()

	user, err := st.CreateUser(context.Background(), name, name+"@example.com", "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return user
}

func createGroupChat(t *testing.T, st store.Store, name string, creator uuid.UUID, members ...uuid.UUID) *store.Chat {
	t.Helper()

	chat, err := st.CreateGroupChat(context.Background(), name, creator, members)
	if err != nil {
		t.Fatalf("create group chat: %v", err)
	}
	return chat
}

func createPersonalChat(t *testing.T, st store.Store, a, b uuid.UUID) *store.Chat {
	t.Helper()

	chat, err := st.CreatePersonalChat(context.Background(), []uuid.UUID{a, b})
	if err != nil {
		t.Fatalf("create personal chat: %v", err)
	}
	return chat
}
