package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestMarkReadUnknownMessage(t *testing.T) {
	st := newTestStore(t)
	receipts := NewReceipts(st, NewRegistry(testLogger()), testLogger())

	user := createUser(t, st, "alice")

	_, err := receipts.MarkRead(context.Background(), uuid.New(), user.ID)
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestMarkReadNonMemberRejected(t *testing.T) {
	st := newTestStore(t)
	reg := NewRegistry(testLogger())
	delivery := NewDelivery(st, reg, testLogger())
	receipts := NewReceipts(st, reg, testLogger())

	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	eve := createUser(t, st, "eve")
	chat := createPersonalChat(t, st, alice.ID, bob.ID)

	msg, err := delivery.CreateAndDeliver(context.Background(), alice.ID, chat.ID, "hi")
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if _, err := receipts.MarkRead(context.Background(), msg.ID, eve.ID); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
}

func TestMarkReadOwnMessageIsNoOp(t *testing.T) {
	st := newTestStore(t)
	reg := NewRegistry(testLogger())
	delivery := NewDelivery(st, reg, testLogger())
	receipts := NewReceipts(st, reg, testLogger())

	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	chat := createPersonalChat(t, st, alice.ID, bob.ID)

	msg, err := delivery.CreateAndDeliver(context.Background(), alice.ID, chat.ID, "hi")
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	receipt, err := receipts.MarkRead(context.Background(), msg.ID, alice.ID)
	if err != nil {
		t.Fatalf("mark own message: %v", err)
	}
	if receipt != nil {
		t.Fatalf("expected nil receipt for own message, got %+v", receipt)
	}

	ids, err := st.ListReceiptUserIDs(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("own-message mark must not store a receipt, got %d", len(ids))
	}

	stored, err := st.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if stored.IsRead {
		t.Fatal("own-message mark must not flip the aggregate flag")
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	st := newTestStore(t)
	reg := NewRegistry(testLogger())
	delivery := NewDelivery(st, reg, testLogger())
	receipts := NewReceipts(st, reg, testLogger())

	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	carol := createUser(t, st, "carol")
	chat := createGroupChat(t, st, "team", alice.ID, bob.ID, carol.ID)

	msg, err := delivery.CreateAndDeliver(context.Background(), alice.ID, chat.ID, "hi")
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	first, err := receipts.MarkRead(context.Background(), msg.ID, bob.ID)
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}
	second, err := receipts.MarkRead(context.Background(), msg.ID, bob.ID)
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if first == nil || second == nil {
		t.Fatal("expected non-nil receipts")
	}
	if first.ID != second.ID {
		t.Fatalf("repeated mark returned a different receipt: %s vs %s", first.ID, second.ID)
	}

	ids, err := st.ListReceiptUserIDs(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected exactly one stored receipt, got %d", len(ids))
	}
}

func TestMarkReadAggregationOrderIndependent(t *testing.T) {
	orders := [][2]int{{0, 1}, {1, 0}}
	for _, order := range orders {
		st := newTestStore(t)
		reg := NewRegistry(testLogger())
		delivery := NewDelivery(st, reg, testLogger())
		receipts := NewReceipts(st, reg, testLogger())

		alice := createUser(t, st, "alice")
		bob := createUser(t, st, "bob")
		carol := createUser(t, st, "carol")
		chat := createGroupChat(t, st, "team", alice.ID, bob.ID, carol.ID)

		msg, err := delivery.CreateAndDeliver(context.Background(), alice.ID, chat.ID, "hi")
		if err != nil {
			t.Fatalf("deliver: %v", err)
		}

		readers := [2]uuid.UUID{bob.ID, carol.ID}

		if _, err := receipts.MarkRead(context.Background(), msg.ID, readers[order[0]]); err != nil {
			t.Fatalf("first reader: %v", err)
		}
		partial, err := st.GetMessage(context.Background(), msg.ID)
		if err != nil {
			t.Fatalf("get message: %v", err)
		}
		if partial.IsRead {
			t.Fatal("aggregate flipped after a single reader")
		}

		if _, err := receipts.MarkRead(context.Background(), msg.ID, readers[order[1]]); err != nil {
			t.Fatalf("second reader: %v", err)
		}
		full, err := st.GetMessage(context.Background(), msg.ID)
		if err != nil {
			t.Fatalf("get message: %v", err)
		}
		if !full.IsRead {
			t.Fatalf("aggregate not flipped after all recipients read (order %v)", order)
		}
	}
}

func TestMarkReadConcurrentDuplicates(t *testing.T) {
	st := newTestStore(t)
	reg := NewRegistry(testLogger())
	delivery := NewDelivery(st, reg, testLogger())
	receipts := NewReceipts(st, reg, testLogger())

	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	carol := createUser(t, st, "carol")
	chat := createGroupChat(t, st, "team", alice.ID, bob.ID, carol.ID)

	aliceConn := &fakeConn{}
	reg.RegisterChat(aliceConn, alice.ID, chat.ID)

	msg, err := delivery.CreateAndDeliver(context.Background(), alice.ID, chat.ID, "hi")
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	// both readers mark repeatedly and concurrently; the per-message
	// lock must collapse this to two receipts and a single flip
	readers := []uuid.UUID{bob.ID, carol.ID}
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		for _, reader := range readers {
			wg.Add(1)
			go func(reader uuid.UUID) {
				defer wg.Done()
				if _, err := receipts.MarkRead(context.Background(), msg.ID, reader); err != nil {
					errs <- err
				}
			}(reader)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent mark: %v", err)
	}

	ids, err := st.ListReceiptUserIDs(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("list receipts: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected exactly 2 receipts, got %d", len(ids))
	}

	stored, err := st.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if !stored.IsRead {
		t.Fatal("aggregate not flipped after all recipients read")
	}

	if got := aliceConn.eventCount(); got != 1 {
		t.Fatalf("sender got %d read events, want exactly 1", got)
	}
	if ev := aliceConn.lastEvent(); ev.Kind != EventRead || ev.Read.MessageID != msg.ID {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestMarkReadBroadcastsReadEventOnce(t *testing.T) {
	st := newTestStore(t)
	reg := NewRegistry(testLogger())
	delivery := NewDelivery(st, reg, testLogger())
	receipts := NewReceipts(st, reg, testLogger())

	alice := createUser(t, st, "alice")
	bob := createUser(t, st, "bob")
	chat := createPersonalChat(t, st, alice.ID, bob.ID)

	aliceConn := &fakeConn{}
	reg.RegisterChat(aliceConn, alice.ID, chat.ID)

	msg, err := delivery.CreateAndDeliver(context.Background(), alice.ID, chat.ID, "hi")
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if _, err := receipts.MarkRead(context.Background(), msg.ID, bob.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	if got := aliceConn.eventCount(); got != 1 {
		t.Fatalf("sender got %d events, want the read notification", got)
	}
	ev := aliceConn.lastEvent()
	if ev.Kind != EventRead {
		t.Fatalf("unexpected event kind: %v", ev.Kind)
	}
	if ev.Read.MessageID != msg.ID || ev.Read.ChatID != chat.ID {
		t.Fatalf("unexpected read payload: %+v", ev.Read)
	}

	// repeated mark is a no-op: the flag already flipped, no second broadcast
	if _, err := receipts.MarkRead(context.Background(), msg.ID, bob.ID); err != nil {
		t.Fatalf("repeated mark: %v", err)
	}
	if got := aliceConn.eventCount(); got != 1 {
		t.Fatalf("repeated mark re-broadcast the read event, count %d", got)
	}
}
