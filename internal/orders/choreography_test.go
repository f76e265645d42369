package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"ticketing/internal/clock"
	"ticketing/internal/domain"
	"ticketing/internal/domain/inbox"
	"ticketing/internal/domain/outbox"
	"ticketing/internal/event"
	"ticketing/internal/expiration"
	"ticketing/internal/listener"
	"ticketing/internal/orders"
	"ticketing/internal/payments"
	"ticketing/internal/tickets"
)

// The fixtures below stand in for each service's database and outbox. The
// world type wires all four services together and moves staged events
// between them the way the relay and the bus would.

type tx struct{}

func (tx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type ticketTable struct {
	rows map[string]domain.Ticket
}

func (m *ticketTable) FindByID(_ context.Context, id string) (*domain.Ticket, error) {
	t, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
	}
	copied := t
	return &copied, nil
}

func (m *ticketTable) Insert(_ context.Context, t *domain.Ticket) error {
	m.rows[t.ID] = *t
	return nil
}

func (m *ticketTable) Save(_ context.Context, t *domain.Ticket, expectedVersion int) error {
	stored, ok := m.rows[t.ID]
	if !ok || stored.Version != expectedVersion {
		return fmt.Errorf("ticket %s at version %d: %w", t.ID, expectedVersion, domain.ErrVersionConflict)
	}
	m.rows[t.ID] = *t
	return nil
}

type orderTable struct {
	rows map[string]domain.Order
}

func (m *orderTable) FindByID(_ context.Context, id string) (*domain.Order, error) {
	o, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	copied := o
	return &copied, nil
}

func (m *orderTable) Insert(_ context.Context, o *domain.Order) error {
	for _, existing := range m.rows {
		if existing.TicketID == o.TicketID && existing.Status.Active() {
			return fmt.Errorf("ticket %s: %w", o.TicketID, domain.ErrTicketAlreadyReserved)
		}
	}
	m.rows[o.ID] = *o
	return nil
}

func (m *orderTable) Save(_ context.Context, o *domain.Order, expectedVersion int) error {
	stored, ok := m.rows[o.ID]
	if !ok || stored.Version != expectedVersion {
		return fmt.Errorf("order %s at version %d: %w", o.ID, expectedVersion, domain.ErrVersionConflict)
	}
	m.rows[o.ID] = *o
	return nil
}

type orderMirrorTable struct {
	rows map[string]domain.OrderMirror
}

func (m *orderMirrorTable) FindByID(_ context.Context, id string) (*domain.OrderMirror, error) {
	o, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	copied := o
	return &copied, nil
}

func (m *orderMirrorTable) Insert(_ context.Context, o *domain.OrderMirror) error {
	m.rows[o.ID] = *o
	return nil
}

func (m *orderMirrorTable) Save(_ context.Context, o *domain.OrderMirror, expectedVersion int) error {
	stored, ok := m.rows[o.ID]
	if !ok || stored.Version != expectedVersion {
		return fmt.Errorf("order %s at version %d: %w", o.ID, expectedVersion, domain.ErrVersionConflict)
	}
	m.rows[o.ID] = *o
	return nil
}

type paymentTable struct {
	rows []domain.Payment
}

func (m *paymentTable) Insert(_ context.Context, p *domain.Payment) error {
	m.rows = append(m.rows, *p)
	return nil
}

type outboxTable struct {
	events []*outbox.Event
}

func (m *outboxTable) Create(_ context.Context, e *outbox.Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *outboxTable) FetchBatch(_ context.Context, limit int) ([]*outbox.Event, error) {
	var batch []*outbox.Event
	for _, e := range m.events {
		if e.Status != outbox.StatusNew {
			continue
		}
		e.Status = outbox.StatusProcessing
		batch = append(batch, e)
		if len(batch) == limit {
			break
		}
	}
	return batch, nil
}

func (m *outboxTable) MarkProcessed(_ context.Context, ids []string) error {
	return m.setStatus(ids, outbox.StatusProcessed)
}

func (m *outboxTable) Release(_ context.Context, ids []string) error {
	return m.setStatus(ids, outbox.StatusNew)
}

func (m *outboxTable) setStatus(ids []string, status string) error {
	for _, e := range m.events {
		for _, id := range ids {
			if e.ID == id {
				e.Status = status
			}
		}
	}
	return nil
}

type inboxTable struct {
	seen map[string]bool
}

func (m *inboxTable) SaveIfNotExists(_ context.Context, e *inbox.Event) (bool, error) {
	key := e.Consumer + "/" + e.EventID
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

type scheduleTable struct {
	entries map[string]time.Duration
}

func (s *scheduleTable) Schedule(_ context.Context, orderID string, delay time.Duration) (bool, error) {
	if _, ok := s.entries[orderID]; ok {
		return false, nil
	}
	s.entries[orderID] = delay
	return true, nil
}

func (s *scheduleTable) Due(context.Context, int64) ([]string, error) {
	var due []string
	for id := range s.entries {
		due = append(due, id)
	}
	return due, nil
}

func (s *scheduleTable) Remove(_ context.Context, orderID string) error {
	delete(s.entries, orderID)
	return nil
}

// world is all four services plus their stores, with event movement done
// synchronously instead of through Kafka.
type world struct {
	t *testing.T

	ticketsSvc  *tickets.Service
	ordersSvc   *orders.Service
	paymentsSvc *payments.Service

	ownerTickets  *ticketTable
	mirrorTickets *ticketTable
	orderRows     *orderTable
	orderMirror   *orderMirrorTable
	paymentRows   *paymentTable
	schedule      *scheduleTable

	ticketsOutbox  *outboxTable
	ordersOutbox   *outboxTable
	paymentsOutbox *outboxTable

	handlers []listener.Handler
}

func newWorld(t *testing.T, now time.Time) *world {
	t.Helper()

	w := &world{
		t:              t,
		ownerTickets:   &ticketTable{rows: make(map[string]domain.Ticket)},
		mirrorTickets:  &ticketTable{rows: make(map[string]domain.Ticket)},
		orderRows:      &orderTable{rows: make(map[string]domain.Order)},
		orderMirror:    &orderMirrorTable{rows: make(map[string]domain.OrderMirror)},
		paymentRows:    &paymentTable{},
		schedule:       &scheduleTable{entries: make(map[string]time.Duration)},
		ticketsOutbox:  &outboxTable{},
		ordersOutbox:   &outboxTable{},
		paymentsOutbox: &outboxTable{},
	}

	clk := clock.NewFixed(now)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	w.ticketsSvc = tickets.NewService(tx{}, w.ownerTickets, w.ticketsOutbox)
	w.ordersSvc = orders.NewService(tx{}, w.orderRows, w.mirrorTickets, w.ordersOutbox, clk, 15*time.Minute)
	w.paymentsSvc = payments.NewService(tx{}, w.orderMirror, w.paymentRows, w.paymentsOutbox)

	w.handlers = []listener.Handler{
		tickets.NewOrderCreatedListener(tx{}, w.ownerTickets, w.ticketsOutbox),
		tickets.NewOrderCancelledListener(tx{}, w.ownerTickets, w.ticketsOutbox),
		orders.NewTicketCreatedListener(tx{}, w.mirrorTickets),
		orders.NewTicketUpdatedListener(tx{}, w.mirrorTickets),
		orders.NewExpirationCompleteListener(tx{}, w.orderRows, w.ordersOutbox),
		orders.NewPaymentCreatedListener(tx{}, w.orderRows, &inboxTable{seen: make(map[string]bool)}, log),
		payments.NewOrderCreatedListener(tx{}, w.orderMirror),
		payments.NewOrderCancelledListener(tx{}, w.orderMirror),
		expiration.NewOrderCreatedListener(w.schedule, clk, log),
	}

	return w
}

// dispatch hands the envelope to every listener subscribed to its subject.
func (w *world) dispatch(env event.Envelope) {
	w.t.Helper()

	for _, h := range w.handlers {
		if h.Subject() != env.Subject {
			continue
		}
		if err := h.OnMessage(context.Background(), env); err != nil {
			w.t.Fatalf("%s handler for %s: %v", h.Group(), env.Subject, err)
		}
	}
}

// settle drains every outbox repeatedly until no service has anything
// staged, delivering each event to all its subscribers.
func (w *world) settle() {
	w.t.Helper()

	for pass := 0; pass < 20; pass++ {
		moved := false
		for _, ob := range []*outboxTable{w.ticketsOutbox, w.ordersOutbox, w.paymentsOutbox} {
			batch, _ := ob.FetchBatch(context.Background(), 100)
			for _, e := range batch {
				var env event.Envelope
				if err := json.Unmarshal(e.Envelope, &env); err != nil {
					w.t.Fatalf("unmarshal staged envelope: %v", err)
				}
				w.dispatch(env)
				_ = ob.MarkProcessed(context.Background(), []string{e.ID})
				moved = true
			}
		}
		if !moved {
			return
		}
	}
	w.t.Fatal("outboxes never drained")
}

// expire publishes order-expiration-complete for every scheduled order,
// standing in for the poller.
func (w *world) expire() {
	w.t.Helper()

	due, _ := w.schedule.Due(context.Background(), 100)
	for _, orderID := range due {
		env, err := event.New(expiration.Group, event.ExpirationComplete{OrderID: orderID})
		if err != nil {
			w.t.Fatalf("build expiration event: %v", err)
		}
		w.dispatch(env)
		_ = w.schedule.Remove(context.Background(), orderID)
	}
	w.settle()
}

func TestPurchaseChoreography(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	w := newWorld(t, now)
	ctx := context.Background()

	ticket, err := w.ticketsSvc.Create(ctx, tickets.CreateParams{Title: "concert", Price: 20})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	w.settle()

	order, err := w.ordersSvc.Create(ctx, orders.CreateParams{UserID: "u1", TicketID: ticket.ID})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	w.settle()

	// the reservation propagated everywhere
	owned, _ := w.ownerTickets.FindByID(ctx, ticket.ID)
	if owned.OrderID != order.ID {
		t.Errorf("owner ticket order = %q, want %q", owned.OrderID, order.ID)
	}
	mirrored, _ := w.mirrorTickets.FindByID(ctx, ticket.ID)
	if mirrored.Version != owned.Version {
		t.Errorf("mirror version = %d, owner %d", mirrored.Version, owned.Version)
	}
	if _, err := w.orderMirror.FindByID(ctx, order.ID); err != nil {
		t.Fatalf("payments mirror missing order: %v", err)
	}
	if _, ok := w.schedule.entries[order.ID]; !ok {
		t.Error("expiration not scheduled")
	}

	// a second buyer loses the race
	if _, err := w.ordersSvc.Create(ctx, orders.CreateParams{UserID: "u2", TicketID: ticket.ID}); !errors.Is(err, domain.ErrTicketAlreadyReserved) {
		t.Fatalf("second reservation: expected ErrTicketAlreadyReserved, got %v", err)
	}

	// edits are frozen while reserved
	if _, err := w.ticketsSvc.Update(ctx, ticket.ID, tickets.UpdateParams{Title: "concert", Price: 99}); !errors.Is(err, domain.ErrTicketReserved) {
		t.Fatalf("update reserved ticket: expected ErrTicketReserved, got %v", err)
	}

	if _, err := w.paymentsSvc.Create(ctx, payments.CreateParams{OrderID: order.ID, UserID: "u1", Amount: 20}); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	w.settle()

	final, _ := w.orderRows.FindByID(ctx, order.ID)
	if final.Status != domain.OrderComplete {
		t.Fatalf("order status = %q, want complete", final.Status)
	}
	if len(w.paymentRows.rows) != 1 {
		t.Errorf("persisted %d payments, want 1", len(w.paymentRows.rows))
	}

	// the expiration fires late and must not undo the completed purchase
	w.expire()

	final, _ = w.orderRows.FindByID(ctx, order.ID)
	if final.Status != domain.OrderComplete {
		t.Errorf("order status after late expiration = %q, want complete", final.Status)
	}
	owned, _ = w.ownerTickets.FindByID(ctx, ticket.ID)
	if owned.OrderID != order.ID {
		t.Errorf("completed purchase lost its ticket: order = %q", owned.OrderID)
	}
}

func TestExpirationChoreography(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	w := newWorld(t, now)
	ctx := context.Background()

	ticket, err := w.ticketsSvc.Create(ctx, tickets.CreateParams{Title: "concert", Price: 20})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	w.settle()

	order, err := w.ordersSvc.Create(ctx, orders.CreateParams{UserID: "u1", TicketID: ticket.ID})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	w.settle()

	// nobody pays; the window passes
	w.expire()

	got, _ := w.orderRows.FindByID(ctx, order.ID)
	if got.Status != domain.OrderCancelled {
		t.Fatalf("order status = %q, want cancelled", got.Status)
	}

	// the ticket is free again
	owned, _ := w.ownerTickets.FindByID(ctx, ticket.ID)
	if owned.OrderID != "" {
		t.Errorf("ticket still reserved by %q", owned.OrderID)
	}

	// the payments mirror knows, so a late payment is refused
	if _, err := w.paymentsSvc.Create(ctx, payments.CreateParams{OrderID: order.ID, UserID: "u1", Amount: 20}); !errors.Is(err, domain.ErrOrderCancelled) {
		t.Fatalf("late payment: expected ErrOrderCancelled, got %v", err)
	}

	// and the ticket can be reserved by someone else
	second, err := w.ordersSvc.Create(ctx, orders.CreateParams{UserID: "u2", TicketID: ticket.ID})
	if err != nil {
		t.Fatalf("re-reserve released ticket: %v", err)
	}
	w.settle()

	owned, _ = w.ownerTickets.FindByID(ctx, ticket.ID)
	if owned.OrderID != second.ID {
		t.Errorf("ticket order = %q, want %q", owned.OrderID, second.ID)
	}
}
