package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/amexan/internal/models"
	"github.com/example/amexan/internal/records"
	"github.com/example/amexan/internal/services"
)

func seedBooking(store *records.MemoryStore) *models.Booking {
	b := &models.Booking{PaymentStatus: models.PaymentStatusNone}
	b.ID = uuid.New()
	store.PutBooking(b)
	return b
}

func collect(t *testing.T, updates <-chan Update) []Update {
	t.Helper()
	var got []Update
	deadline := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return got
			}
			got = append(got, u)
		case <-deadline:
			t.Fatalf("timed out waiting for watcher, got %v", got)
		}
	}
}

func states(updates []Update) []State {
	out := make([]State, len(updates))
	for i, u := range updates {
		out[i] = u.State
	}
	return out
}

func assertStates(t *testing.T, got []Update, want ...State) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", states(got), want)
	}
	for i, s := range want {
		if got[i].State != s {
			t.Fatalf("states = %v, want %v", states(got), want)
		}
	}
}

func TestWatch_PaidPath(t *testing.T) {
	store := records.NewMemoryStore()
	b := seedBooking(store)
	w := New(store, WithInterval(5*time.Millisecond), WithTimeout(2*time.Second))

	initiate := func(ctx context.Context) error {
		if err := store.MarkPaymentProcessing(ctx, b.ID.String(), "REF-1"); err != nil {
			return err
		}
		// The callback lands shortly after the push is accepted.
		return store.ApplyPaymentUpdate(ctx, b.ID.String(), &records.PaymentUpdate{
			Status:  models.PaymentStatusPaid,
			Receipt: "RGH23XYZ",
		})
	}

	got := collect(t, w.Watch(context.Background(), b.ID.String(), initiate))
	assertStates(t, got, StateSubmitting, StateAwaitingConfirmation, StatePaid)
	if got[2].Receipt != "RGH23XYZ" {
		t.Errorf("Receipt = %q", got[2].Receipt)
	}
}

func TestWatch_FailedCallback(t *testing.T) {
	store := records.NewMemoryStore()
	b := seedBooking(store)
	w := New(store, WithInterval(5*time.Millisecond), WithTimeout(2*time.Second))

	initiate := func(ctx context.Context) error {
		return store.MarkPaymentFailed(ctx, b.ID.String(), "Insufficient funds")
	}

	got := collect(t, w.Watch(context.Background(), b.ID.String(), initiate))
	assertStates(t, got, StateSubmitting, StateAwaitingConfirmation, StateFailed)
	if got[2].Reason != "Insufficient funds" {
		t.Errorf("Reason = %q", got[2].Reason)
	}
}

func TestWatch_InitiateError(t *testing.T) {
	store := records.NewMemoryStore()
	b := seedBooking(store)
	w := New(store, WithInterval(5*time.Millisecond), WithTimeout(2*time.Second))

	initiate := func(ctx context.Context) error {
		return &services.PaymentError{Kind: services.KindGatewayUnreachable, Message: "could not reach PayHero"}
	}

	got := collect(t, w.Watch(context.Background(), b.ID.String(), initiate))
	assertStates(t, got, StateSubmitting, StateFailed)
	if got[1].Reason != "could not reach PayHero" {
		t.Errorf("Reason = %q", got[1].Reason)
	}
}

func TestWatch_TimeoutThenDetached(t *testing.T) {
	store := records.NewMemoryStore()
	b := seedBooking(store)
	w := New(store, WithInterval(5*time.Millisecond), WithTimeout(60*time.Millisecond))

	initiate := func(ctx context.Context) error {
		return store.MarkPaymentProcessing(ctx, b.ID.String(), "REF-1")
	}

	updates := w.Watch(context.Background(), b.ID.String(), initiate)
	got := collect(t, updates)
	assertStates(t, got, StateSubmitting, StateAwaitingConfirmation, StateTimedOut)

	// Timing out is UI-only: the booking record is untouched and still
	// eligible for a late callback.
	booking, err := store.GetBooking(context.Background(), b.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	if booking.PaymentStatus != models.PaymentStatusProcessing {
		t.Errorf("PaymentStatus = %q, watcher must not write the booking", booking.PaymentStatus)
	}

	// A late callback updates the record, but the detached watcher must
	// not react: its channel is closed and stays closed.
	if err := store.ApplyPaymentUpdate(context.Background(), b.ID.String(), &records.PaymentUpdate{Status: models.PaymentStatusPaid}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := <-updates; ok {
		t.Error("detached watcher emitted after timeout")
	}
}

func TestWatch_Cancellation(t *testing.T) {
	store := records.NewMemoryStore()
	b := seedBooking(store)
	w := New(store, WithInterval(5*time.Millisecond), WithTimeout(10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	updates := w.Watch(ctx, b.ID.String(), func(ctx context.Context) error {
		return store.MarkPaymentProcessing(ctx, b.ID.String(), "REF-1")
	})

	// Drain until awaiting_confirmation, then tear down.
	for u := range updates {
		if u.State == StateAwaitingConfirmation {
			break
		}
	}
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return // channel released, no dangling poller
			}
		case <-deadline:
			t.Fatal("watcher did not release after cancellation")
		}
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StatePaid, StateFailed, StateTimedOut} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []State{StateIdle, StateSubmitting, StateAwaitingConfirmation} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
