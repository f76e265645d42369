package tickets

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticketing/internal/domain"
	"ticketing/internal/event"
)

func orderCreatedEnv(t *testing.T, orderID, ticketID string) event.Envelope {
	t.Helper()

	env, err := event.New("orders-service", event.OrderCreated{
		ID:        orderID,
		UserID:    "u1",
		Status:    "created",
		ExpiresAt: time.Now().Add(15 * time.Minute),
		Ticket:    event.TicketRef{ID: ticketID, Price: 20},
	})
	if err != nil {
		t.Fatalf("build order-created: %v", err)
	}
	return env
}

func TestOrderCreatedReservesTicket(t *testing.T) {
	store := newMemTickets(domain.Ticket{ID: "t1", Title: "concert", Price: 20, Version: 0})
	ob := &memOutbox{}
	l := NewOrderCreatedListener(fakeTx{}, store, ob)

	env := orderCreatedEnv(t, "o1", "t1")
	if err := l.OnMessage(context.Background(), env); err != nil {
		t.Fatalf("OnMessage: %v", err)
	}

	got, _ := store.FindByID(context.Background(), "t1")
	if got.OrderID != "o1" {
		t.Errorf("order id = %q, want o1", got.OrderID)
	}
	if got.Version != 1 {
		t.Errorf("version = %d, want 1", got.Version)
	}

	stampedEnv, p := staged[*event.TicketUpdated](t, ob, 0)
	if p.OrderID != "o1" || p.Version != 1 {
		t.Errorf("staged payload = %+v", p)
	}
	if stampedEnv.CausationID != env.ID {
		t.Errorf("causation = %q, want %q", stampedEnv.CausationID, env.ID)
	}
}

func TestOrderCreatedRedeliveryIsNoOp(t *testing.T) {
	store := newMemTickets(domain.Ticket{ID: "t1", Title: "concert", Price: 20, OrderID: "o1", Version: 1})
	ob := &memOutbox{}
	l := NewOrderCreatedListener(fakeTx{}, store, ob)

	if err := l.OnMessage(context.Background(), orderCreatedEnv(t, "o1", "t1")); err != nil {
		t.Fatalf("OnMessage: %v", err)
	}

	got, _ := store.FindByID(context.Background(), "t1")
	if got.Version != 1 {
		t.Errorf("version = %d, want unchanged 1", got.Version)
	}
	if len(ob.events) != 0 {
		t.Errorf("staged %d events on redelivery, want 0", len(ob.events))
	}
}

func TestOrderCreatedDoubleReservationFails(t *testing.T) {
	store := newMemTickets(domain.Ticket{ID: "t1", Title: "concert", Price: 20, OrderID: "o1", Version: 1})
	l := NewOrderCreatedListener(fakeTx{}, store, &memOutbox{})

	err := l.OnMessage(context.Background(), orderCreatedEnv(t, "o2", "t1"))
	if !errors.Is(err, domain.ErrTicketAlreadyReserved) {
		t.Fatalf("expected ErrTicketAlreadyReserved, got %v", err)
	}

	got, _ := store.FindByID(context.Background(), "t1")
	if got.OrderID != "o1" {
		t.Errorf("reservation moved to %q", got.OrderID)
	}
}

func TestOrderCancelledReleasesTicket(t *testing.T) {
	store := newMemTickets(domain.Ticket{ID: "t1", Title: "concert", Price: 20, OrderID: "o1", Version: 1})
	ob := &memOutbox{}
	l := NewOrderCancelledListener(fakeTx{}, store, ob)

	env, err := event.New("orders-service", event.OrderCancelled{ID: "o1", Version: 2, Ticket: event.TicketRef{ID: "t1"}})
	if err != nil {
		t.Fatalf("build order-cancelled: %v", err)
	}
	if err := l.OnMessage(context.Background(), env); err != nil {
		t.Fatalf("OnMessage: %v", err)
	}

	got, _ := store.FindByID(context.Background(), "t1")
	if got.OrderID != "" {
		t.Errorf("order id = %q, want released", got.OrderID)
	}
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}

	_, p := staged[*event.TicketUpdated](t, ob, 0)
	if p.OrderID != "" || p.Version != 2 {
		t.Errorf("staged payload = %+v", p)
	}
}

func TestOrderCancelledForeignOrderIsNoOp(t *testing.T) {
	store := newMemTickets(domain.Ticket{ID: "t1", Title: "concert", Price: 20, OrderID: "o2", Version: 3})
	ob := &memOutbox{}
	l := NewOrderCancelledListener(fakeTx{}, store, ob)

	env, err := event.New("orders-service", event.OrderCancelled{ID: "o1", Version: 1, Ticket: event.TicketRef{ID: "t1"}})
	if err != nil {
		t.Fatalf("build order-cancelled: %v", err)
	}
	if err := l.OnMessage(context.Background(), env); err != nil {
		t.Fatalf("OnMessage: %v", err)
	}

	got, _ := store.FindByID(context.Background(), "t1")
	if got.OrderID != "o2" || got.Version != 3 {
		t.Errorf("ticket mutated: %+v", got)
	}
	if len(ob.events) != 0 {
		t.Errorf("staged %d events, want 0", len(ob.events))
	}
}
