package domain

import "errors"

var (
	// ErrNotFound means a referenced aggregate is absent. For a listener it
	// usually indicates the upstream creation event has not arrived yet.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict means a conditional update lost, or an incoming
	// event skipped ahead of the expected next version. Retried via
	// redelivery; resolves once the intermediate update is applied.
	ErrVersionConflict = errors.New("version conflict")

	// ErrTicketReserved rejects edits to a ticket currently held by an order.
	ErrTicketReserved = errors.New("ticket is reserved")

	// ErrTicketAlreadyReserved rejects reserving a ticket that already has a
	// non-terminal order.
	ErrTicketAlreadyReserved = errors.New("ticket is already reserved")

	// ErrOrderTerminal rejects transitions out of Complete or Cancelled.
	ErrOrderTerminal = errors.New("order is in a terminal state")

	// ErrOrderCancelled rejects paying for a cancelled order.
	ErrOrderCancelled = errors.New("order is cancelled")

	// ErrNotOwner rejects commands on an order by a different user.
	ErrNotOwner = errors.New("order belongs to a different user")

	// ErrAmountMismatch rejects a payment that does not match the order price.
	ErrAmountMismatch = errors.New("payment amount does not match order price")
)
