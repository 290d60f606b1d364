package records

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/amexan/internal/models"
)

var terminalStatuses = []string{models.PaymentStatusPaid, models.PaymentStatusFailed}

// GormStore is the Postgres-backed record store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a gorm connection as a Store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var booking models.Booking
	if err := s.db.WithContext(ctx).Where("id = ?", parsed).First(&booking).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &booking, nil
}

func (s *GormStore) MarkPaymentPending(ctx context.Context, id, phone string, amount int64) error {
	now := time.Now()
	return s.mergeNonTerminal(ctx, id, map[string]any{
		"payment_status":       models.PaymentStatusPending,
		"patient_phone":        phone,
		"amount":               amount,
		"payment_initiated_at": &now,
	})
}

func (s *GormStore) MarkPaymentProcessing(ctx context.Context, id, reference string) error {
	fields := map[string]any{
		"payment_status": models.PaymentStatusProcessing,
	}
	if reference != "" {
		fields["payhero_reference"] = reference
	}
	return s.mergeNonTerminal(ctx, id, fields)
}

func (s *GormStore) MarkPaymentFailed(ctx context.Context, id, reason string) error {
	return s.mergeNonTerminal(ctx, id, map[string]any{
		"payment_status":      models.PaymentStatusFailed,
		"payment_fail_reason": reason,
	})
}

func (s *GormStore) ApplyPaymentUpdate(ctx context.Context, id string, upd *PaymentUpdate) error {
	fields := map[string]any{
		"payment_status": upd.Status,
	}
	if upd.Reference != "" {
		fields["payhero_reference"] = upd.Reference
	}
	if upd.Receipt != "" {
		fields["mpesa_receipt_number"] = upd.Receipt
	}
	if upd.SettledAt != nil {
		fields["payment_settled_at"] = upd.SettledAt
	}
	if upd.PaidAmount > 0 {
		fields["paid_amount"] = upd.PaidAmount
	}
	if upd.PaidPhone != "" {
		fields["paid_phone"] = upd.PaidPhone
	}
	if upd.FailReason != "" {
		fields["payment_fail_reason"] = upd.FailReason
	}
	return s.mergeNonTerminal(ctx, id, fields)
}

// mergeNonTerminal merges fields into the booking unless a terminal status
// has already landed. Last-write-wins is acceptable on the remaining rows
// because all writers go through this guard.
func (s *GormStore) mergeNonTerminal(ctx context.Context, id string, fields map[string]any) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}

	res := s.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND payment_status NOT IN ?", parsed, terminalStatuses).
		Updates(fields)
	return res.Error
}

// AppendCallbackRaw locks the booking row for the read-modify-write so
// concurrent deliveries for the same booking cannot lose a payload.
func (s *GormStore) AppendCallbackRaw(ctx context.Context, id string, raw []byte) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var booking models.Booking
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", parsed).
			First(&booking).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		appended, err := appendRawPayload(booking.PaymentCallbackRaw, raw)
		if err != nil {
			return err
		}

		return tx.Model(&models.Booking{}).
			Where("id = ?", booking.ID).
			Update("payment_callback_raw", appended).Error
	})
}

func (s *GormStore) AppendAudit(ctx context.Context, rec *models.PaymentRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// appendRawPayload keeps the booking's callback audit column as a JSON
// array of every payload received, oldest first.
func appendRawPayload(existing datatypes.JSON, raw []byte) (datatypes.JSON, error) {
	var payloads []json.RawMessage
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &payloads); err != nil {
			// Legacy single-object column: wrap it.
			payloads = []json.RawMessage{json.RawMessage(existing)}
		}
	}

	entry := json.RawMessage(raw)
	if !json.Valid(raw) {
		quoted, err := json.Marshal(string(raw))
		if err != nil {
			return nil, err
		}
		entry = quoted
	}

	payloads = append(payloads, entry)
	out, err := json.Marshal(payloads)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}
