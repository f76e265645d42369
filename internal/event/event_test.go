package event

import (
	"errors"
	"testing"
	"time"
)

func TestNewValidatesPayload(t *testing.T) {
	_, err := New("tickets-service", TicketCreated{ID: "t1", Title: ""})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	env, err := New("tickets-service", TicketCreated{ID: "t1", Title: "concert", Price: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.ID == "" {
		t.Error("envelope id not assigned")
	}
	if env.Subject != SubjectTicketCreated {
		t.Errorf("subject = %q, want %q", env.Subject, SubjectTicketCreated)
	}
	if env.Producer != "tickets-service" {
		t.Errorf("producer = %q", env.Producer)
	}
	if env.OccurredAt.IsZero() {
		t.Error("occurred_at not stamped")
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	payloads := []Payload{
		TicketCreated{ID: "t1", Version: 0, Title: "concert", Price: 20},
		TicketUpdated{ID: "t1", Version: 1, Title: "concert", Price: 25, OrderID: "o1"},
		OrderCreated{ID: "o1", UserID: "u1", Status: "created", ExpiresAt: time.Now().UTC(), Ticket: TicketRef{ID: "t1", Price: 25}},
		OrderCancelled{ID: "o1", Version: 1, Ticket: TicketRef{ID: "t1"}},
		ExpirationComplete{OrderID: "o1"},
		PaymentCreated{ID: "p1", OrderID: "o1", Amount: 25},
	}

	for _, p := range payloads {
		t.Run(string(p.EventSubject()), func(t *testing.T) {
			env, err := New("test", p)
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			decoded, err := Decode(env)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if decoded.EventSubject() != p.EventSubject() {
				t.Errorf("subject = %q, want %q", decoded.EventSubject(), p.EventSubject())
			}
			if decoded.AggregateID() != p.AggregateID() {
				t.Errorf("aggregate id = %q, want %q", decoded.AggregateID(), p.AggregateID())
			}
		})
	}
}

func TestDecodeUnknownSubject(t *testing.T) {
	_, err := Decode(Envelope{Subject: "ticket:deleted", Payload: []byte(`{}`)})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDecodeRejectsInvalidPayload(t *testing.T) {
	_, err := Decode(Envelope{Subject: SubjectOrderCreated, Payload: []byte(`{"id":""}`)})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDecodeAsTypeMismatch(t *testing.T) {
	env, err := New("test", ExpirationComplete{OrderID: "o1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := DecodeAs[*OrderCreated](env); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	p, err := DecodeAs[*ExpirationComplete](env)
	if err != nil {
		t.Fatalf("DecodeAs: %v", err)
	}
	if p.OrderID != "o1" {
		t.Errorf("order id = %q", p.OrderID)
	}
}

func TestCausedStampsCorrelation(t *testing.T) {
	root, _ := New("orders-service", OrderCancelled{ID: "o1", Version: 1, Ticket: TicketRef{ID: "t1"}})
	derived, _ := New("tickets-service", TicketUpdated{ID: "t1", Version: 2, Title: "concert"})

	stamped := derived.Caused(root)
	if stamped.CausationID != root.ID {
		t.Errorf("causation = %q, want %q", stamped.CausationID, root.ID)
	}
	// the root had no correlation of its own, so it becomes the correlation
	if stamped.CorrelationID != root.ID {
		t.Errorf("correlation = %q, want %q", stamped.CorrelationID, root.ID)
	}

	// a second hop preserves the original correlation
	third, _ := New("orders-service", TicketUpdated{ID: "t1", Version: 3, Title: "concert"})
	hopped := third.Caused(stamped)
	if hopped.CorrelationID != root.ID {
		t.Errorf("correlation after second hop = %q, want %q", hopped.CorrelationID, root.ID)
	}
	if hopped.CausationID != stamped.ID {
		t.Errorf("causation after second hop = %q, want %q", hopped.CausationID, stamped.ID)
	}
}
