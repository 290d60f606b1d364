package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Payment status values for a booking. Transitions only move forward:
// none -> pending -> processing -> paid | failed. Paid and failed are
// terminal and must never be overwritten by a late or duplicate callback.
const (
	PaymentStatusNone       = "none"
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusPaid       = "paid"
	PaymentStatusFailed     = "failed"
)

// PaymentStatusTerminal reports whether a status is paid or failed.
func PaymentStatusTerminal(status string) bool {
	return status == PaymentStatusPaid || status == PaymentStatusFailed
}

// Booking is a consultation appointment. Its id doubles as the
// external_reference sent to PayHero, which the callback echoes back.
type Booking struct {
	BaseModel
	PatientID   uuid.UUID `gorm:"type:uuid;index" json:"patient_id"`
	Patient     *User     `json:"patient,omitempty"`
	PatientName string    `json:"patient_name"`
	DoctorName  string    `json:"doctor_name"`
	Specialty   string    `json:"specialty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `gorm:"default:booked" json:"status"`
	Notes       string    `json:"notes"`

	// Amount is whole currency units (KES), fixed at initiation time.
	Amount             int64          `json:"amount"`
	PatientPhone       string         `json:"patient_phone"`
	PaymentStatus      string         `gorm:"default:none;index" json:"payment_status"`
	PayheroReference   string         `gorm:"index" json:"payhero_reference"`
	MpesaReceiptNumber string         `json:"mpesa_receipt_number"`
	PaymentFailReason  string         `json:"payment_fail_reason"`
	PaymentInitiatedAt *time.Time     `json:"payment_initiated_at"`
	PaymentSettledAt   *time.Time     `json:"payment_settled_at"`
	PaidAmount         int64          `json:"paid_amount"`
	PaidPhone          string         `json:"paid_phone"`
	PaymentCallbackRaw datatypes.JSON `gorm:"type:jsonb" json:"payment_callback_raw"`
}
