// Package records is the boundary to the booking record store. The payment
// initiator and the callback receiver run in different requests with no
// shared memory; the persisted booking plus its id as correlation key is
// the only coordination mechanism between them, so every write here is a
// field-level merge and terminal payment statuses are never downgraded.
package records

import (
	"context"
	"errors"
	"time"

	"github.com/example/amexan/internal/models"
)

// ErrNotFound is returned when no booking exists for the given id.
var ErrNotFound = errors.New("booking not found")

// PaymentUpdate is the set of payment fields a callback outcome merges into
// a booking. Status is always terminal (paid or failed).
type PaymentUpdate struct {
	Status     string
	Reference  string
	Receipt    string
	SettledAt  *time.Time
	PaidAmount int64
	PaidPhone  string
	FailReason string
}

// Store is the record-store contract shared by the initiator, the callback
// processor and the watcher.
type Store interface {
	// GetBooking returns the booking for the given id, or ErrNotFound.
	GetBooking(ctx context.Context, id string) (*models.Booking, error)

	// MarkPaymentPending merges status=pending plus the normalized phone
	// and amount. A no-op if the booking already reached a terminal status.
	MarkPaymentPending(ctx context.Context, id, phone string, amount int64) error

	// MarkPaymentProcessing merges status=processing and the gateway
	// tracking reference. A no-op on terminal bookings.
	MarkPaymentProcessing(ctx context.Context, id, reference string) error

	// MarkPaymentFailed merges a terminal failed status with a reason.
	// A no-op on terminal bookings.
	MarkPaymentFailed(ctx context.Context, id, reason string) error

	// ApplyPaymentUpdate merges a terminal callback outcome. A no-op on
	// bookings that are already terminal, which makes duplicate callback
	// deliveries safe.
	ApplyPaymentUpdate(ctx context.Context, id string, upd *PaymentUpdate) error

	// AppendCallbackRaw appends a verbatim callback payload to the
	// booking's audit column. Always applied, even on terminal bookings.
	AppendCallbackRaw(ctx context.Context, id string, raw []byte) error

	// AppendAudit inserts an immutable payment audit record.
	AppendAudit(ctx context.Context, rec *models.PaymentRecord) error
}
