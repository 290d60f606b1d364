// Package watcher drives the client-facing checkout state machine: it
// initiates a payment, then observes the booking record until a terminal
// payment status lands or a bounded timeout expires. It never writes the
// booking — timing out is a UI state only, and the user may retry against
// the same reserved booking.
package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/example/amexan/internal/models"
	"github.com/example/amexan/internal/records"
	"github.com/example/amexan/internal/services"
)

// State of one checkout attempt.
type State string

const (
	StateIdle                 State = "idle"
	StateSubmitting           State = "submitting"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StatePaid                 State = "paid"
	StateFailed               State = "failed"
	StateTimedOut             State = "timed_out"
)

// Terminal reports whether the watcher stops after emitting this state.
func (s State) Terminal() bool {
	return s == StatePaid || s == StateFailed || s == StateTimedOut
}

// Update is one state transition observed by the watcher.
type Update struct {
	State   State
	Reason  string
	Receipt string
}

// Initiator starts the payment for the watched booking. Implemented by
// services.PaymentService.Initiate wrapped by the caller.
type Initiator func(ctx context.Context) error

// Watcher polls the record store for a booking's payment outcome.
type Watcher struct {
	store    records.Store
	interval time.Duration
	timeout  time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) { w.interval = d }
}

// WithTimeout bounds how long the watcher waits for a terminal status.
// The default matches typical mobile-money prompt expiry.
func WithTimeout(d time.Duration) Option {
	return func(w *Watcher) { w.timeout = d }
}

// New constructs a Watcher with a 2s poll interval and 120s timeout.
func New(store records.Store, opts ...Option) *Watcher {
	w := &Watcher{
		store:    store,
		interval: 2 * time.Second,
		timeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch runs one checkout attempt. The returned channel emits state
// transitions and is closed after a terminal state; cancelling ctx
// releases the poll loop and the timer with no further emissions.
func (w *Watcher) Watch(ctx context.Context, bookingID string, initiate Initiator) <-chan Update {
	updates := make(chan Update, 4)

	go func() {
		defer close(updates)

		if !emit(ctx, updates, Update{State: StateSubmitting}) {
			return
		}

		if err := initiate(ctx); err != nil {
			// Could not even start the payment; the booking id is kept so
			// the user can retry without re-entering details.
			emit(ctx, updates, Update{State: StateFailed, Reason: failureMessage(err)})
			return
		}

		if !emit(ctx, updates, Update{State: StateAwaitingConfirmation}) {
			return
		}

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		deadline := time.NewTimer(w.timeout)
		defer deadline.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-deadline.C:
				emit(ctx, updates, Update{
					State:  StateTimedOut,
					Reason: "payment timed out; check your M-Pesa and try again — the slot is still reserved",
				})
				return
			case <-ticker.C:
				booking, err := w.store.GetBooking(ctx, bookingID)
				if err != nil {
					if errors.Is(err, records.ErrNotFound) {
						continue
					}
					emit(ctx, updates, Update{State: StateFailed, Reason: "could not verify payment status"})
					return
				}

				switch booking.PaymentStatus {
				case models.PaymentStatusPaid:
					emit(ctx, updates, Update{State: StatePaid, Receipt: booking.MpesaReceiptNumber})
					return
				case models.PaymentStatusFailed:
					reason := booking.PaymentFailReason
					if reason == "" {
						reason = "payment was not completed"
					}
					emit(ctx, updates, Update{State: StateFailed, Reason: reason})
					return
				}
			}
		}
	}()

	return updates
}

func emit(ctx context.Context, updates chan<- Update, u Update) bool {
	select {
	case updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

func failureMessage(err error) string {
	var perr *services.PaymentError
	if errors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}
