package models

import "gorm.io/datatypes"

// PaymentRecord is an immutable audit row written once per callback
// delivery. It is never updated after creation and never read for
// correctness, only for reconciliation and support.
type PaymentRecord struct {
	BaseModel
	BookingID  string         `gorm:"index" json:"booking_id"`
	Succeeded  bool           `json:"succeeded"`
	Status     string         `json:"status"`
	Reference  string         `json:"reference"`
	Receipt    string         `json:"receipt"`
	Amount     int64          `json:"amount"`
	Phone      string         `json:"phone"`
	FailReason string         `json:"fail_reason"`
	Raw        datatypes.JSON `gorm:"type:jsonb" json:"raw"`
}
