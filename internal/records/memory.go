package records

import (
	"context"
	"sync"
	"time"

	"github.com/example/amexan/internal/models"
)

// MemoryStore is an in-memory Store used by tests. It applies the same
// terminal-status guard as the Postgres implementation.
type MemoryStore struct {
	mu       sync.Mutex
	bookings map[string]*models.Booking
	audits   []*models.PaymentRecord
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: make(map[string]*models.Booking)}
}

// PutBooking seeds a booking keyed by its id string.
func (s *MemoryStore) PutBooking(b *models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.PaymentStatus == "" {
		b.PaymentStatus = models.PaymentStatusNone
	}
	s.bookings[b.ID.String()] = b
}

// Audits returns the appended audit records.
func (s *MemoryStore) Audits() []*models.PaymentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.PaymentRecord, len(s.audits))
	copy(out, s.audits)
	return out
}

func (s *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *b
	return &clone, nil
}

func (s *MemoryStore) MarkPaymentPending(ctx context.Context, id, phone string, amount int64) error {
	return s.mergeNonTerminal(id, func(b *models.Booking) {
		now := time.Now()
		b.PaymentStatus = models.PaymentStatusPending
		b.PatientPhone = phone
		b.Amount = amount
		b.PaymentInitiatedAt = &now
	})
}

func (s *MemoryStore) MarkPaymentProcessing(ctx context.Context, id, reference string) error {
	return s.mergeNonTerminal(id, func(b *models.Booking) {
		b.PaymentStatus = models.PaymentStatusProcessing
		if reference != "" {
			b.PayheroReference = reference
		}
	})
}

func (s *MemoryStore) MarkPaymentFailed(ctx context.Context, id, reason string) error {
	return s.mergeNonTerminal(id, func(b *models.Booking) {
		b.PaymentStatus = models.PaymentStatusFailed
		b.PaymentFailReason = reason
	})
}

func (s *MemoryStore) ApplyPaymentUpdate(ctx context.Context, id string, upd *PaymentUpdate) error {
	return s.mergeNonTerminal(id, func(b *models.Booking) {
		b.PaymentStatus = upd.Status
		if upd.Reference != "" {
			b.PayheroReference = upd.Reference
		}
		if upd.Receipt != "" {
			b.MpesaReceiptNumber = upd.Receipt
		}
		if upd.SettledAt != nil {
			b.PaymentSettledAt = upd.SettledAt
		}
		if upd.PaidAmount > 0 {
			b.PaidAmount = upd.PaidAmount
		}
		if upd.PaidPhone != "" {
			b.PaidPhone = upd.PaidPhone
		}
		if upd.FailReason != "" {
			b.PaymentFailReason = upd.FailReason
		}
	})
}

func (s *MemoryStore) AppendCallbackRaw(ctx context.Context, id string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return ErrNotFound
	}
	appended, err := appendRawPayload(b.PaymentCallbackRaw, raw)
	if err != nil {
		return err
	}
	b.PaymentCallbackRaw = appended
	return nil
}

func (s *MemoryStore) AppendAudit(ctx context.Context, rec *models.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, rec)
	return nil
}

func (s *MemoryStore) mergeNonTerminal(id string, apply func(*models.Booking)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return ErrNotFound
	}
	if models.PaymentStatusTerminal(b.PaymentStatus) {
		return nil
	}
	apply(b)
	return nil
}
