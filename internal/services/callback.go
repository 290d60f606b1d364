package services

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/example/amexan/internal/models"
	"github.com/example/amexan/internal/records"
)

// CallbackOutcome is a PayHero callback payload normalized into one shape.
// The gateway has used different field names and casings for the same
// concepts across versions, so every logical field is resolved from an
// ordered candidate list, checking the flat payload before the "data"
// envelope.
type CallbackOutcome struct {
	BookingID  string
	Status     string
	ResultCode *int
	Succeeded  bool
	Reference  string
	Receipt    string
	Amount     int64
	Phone      string
	FailReason string
	SettledAt  *time.Time
	Raw        json.RawMessage
}

// NormalizeCallback parses a raw callback body. Returns nil when the body
// is not a JSON object; a missing correlation id leaves BookingID empty and
// is the caller's signal to discard.
func NormalizeCallback(raw []byte) *CallbackOutcome {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		return nil
	}

	nested, _ := payload["data"].(map[string]any)

	out := &CallbackOutcome{
		BookingID: firstString(payload, nested, "external_reference"),
		Status:    strings.ToUpper(strings.TrimSpace(firstString(payload, nested, "status"))),
		Reference: firstString(payload, nested, "reference", "CheckoutRequestID", "checkout_request_id"),
		Receipt:   firstString(payload, nested, "MpesaReceiptNumber", "mpesa_receipt_number"),
		Phone:     firstString(payload, nested, "phone_number", "phone"),
		Raw:       json.RawMessage(raw),
	}

	if code, ok := firstNumber(payload, nested, "ResultCode", "result_code"); ok {
		c := int(code)
		out.ResultCode = &c
	}
	if amount, ok := firstNumber(payload, nested, "amount"); ok {
		out.Amount = int64(amount)
	}
	if ts := firstString(payload, nested, "transaction_date", "transaction_time"); ts != "" {
		if parsed, ok := parseSettlementTime(ts); ok {
			out.SettledAt = &parsed
		}
	}

	out.Succeeded = out.Status == "SUCCESS" || out.Status == "COMPLETED" ||
		(out.ResultCode != nil && *out.ResultCode == 0)

	if !out.Succeeded {
		out.FailReason = firstString(payload, nested,
			"failure_reason", "ResultDesc", "result_desc", "error_message", "message")
		if out.FailReason == "" {
			if out.Status != "" {
				out.FailReason = out.Status
			} else {
				out.FailReason = "Payment declined"
			}
		}
	}

	return out
}

// ApplyCallback computes the booking mutation for a normalized outcome.
// It is pure, idempotent and monotonic: a booking already in a terminal
// state yields no update, so duplicate and late deliveries are no-ops on
// the booking's core fields. The callback contributes status and
// settlement metadata only; the committed amount and phone are untouched.
func ApplyCallback(b *models.Booking, o *CallbackOutcome) (*records.PaymentUpdate, bool) {
	if b == nil || o == nil {
		return nil, false
	}
	if models.PaymentStatusTerminal(b.PaymentStatus) {
		return nil, false
	}

	settled := o.SettledAt
	if settled == nil {
		now := time.Now()
		settled = &now
	}

	if o.Succeeded {
		return &records.PaymentUpdate{
			Status:     models.PaymentStatusPaid,
			Reference:  o.Reference,
			Receipt:    o.Receipt,
			SettledAt:  settled,
			PaidAmount: o.Amount,
			PaidPhone:  o.Phone,
		}, true
	}

	return &records.PaymentUpdate{
		Status:     models.PaymentStatusFailed,
		Reference:  o.Reference,
		SettledAt:  settled,
		FailReason: o.FailReason,
	}, true
}

func firstString(flat, nested map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := flat[key].(string); ok && v != "" {
			return v
		}
		if v, ok := nested[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func firstNumber(flat, nested map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if v, ok := flat[key].(float64); ok {
			return v, true
		}
		if v, ok := nested[key].(float64); ok {
			return v, true
		}
	}
	return 0, false
}

var settlementTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseSettlementTime(ts string) (time.Time, bool) {
	for _, layout := range settlementTimeLayouts {
		if parsed, err := time.Parse(layout, ts); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
