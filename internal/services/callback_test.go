package services

import (
	"testing"

	"github.com/example/amexan/internal/models"
)

func TestNormalizeCallback_ObservedVariants(t *testing.T) {
	t.Run("flat success payload", func(t *testing.T) {
		raw := []byte(`{
			"status": "SUCCESS",
			"external_reference": "abc-123",
			"reference": "REF-1",
			"amount": 500,
			"phone_number": "254712345678",
			"transaction_date": "2024-01-01T12:00:00",
			"MpesaReceiptNumber": "RGH23XYZ"
		}`)
		out := NormalizeCallback(raw)
		if out == nil {
			t.Fatal("expected outcome, got nil")
		}
		if !out.Succeeded {
			t.Error("expected success")
		}
		if out.BookingID != "abc-123" {
			t.Errorf("BookingID = %q", out.BookingID)
		}
		if out.Reference != "REF-1" {
			t.Errorf("Reference = %q", out.Reference)
		}
		if out.Receipt != "RGH23XYZ" {
			t.Errorf("Receipt = %q", out.Receipt)
		}
		if out.Amount != 500 {
			t.Errorf("Amount = %d", out.Amount)
		}
		if out.Phone != "254712345678" {
			t.Errorf("Phone = %q", out.Phone)
		}
		if out.SettledAt == nil {
			t.Error("expected settlement time to parse")
		}
	})

	t.Run("nested data envelope", func(t *testing.T) {
		raw := []byte(`{"data": {"status": "completed", "external_reference": "abc-123", "CheckoutRequestID": "ws_CO_1"}}`)
		out := NormalizeCallback(raw)
		if out == nil || !out.Succeeded {
			t.Fatal("expected nested COMPLETED payload to succeed")
		}
		if out.BookingID != "abc-123" {
			t.Errorf("BookingID = %q", out.BookingID)
		}
		if out.Reference != "ws_CO_1" {
			t.Errorf("Reference = %q", out.Reference)
		}
	})

	t.Run("numeric result code zero means success", func(t *testing.T) {
		out := NormalizeCallback([]byte(`{"external_reference": "abc-123", "ResultCode": 0}`))
		if out == nil || !out.Succeeded {
			t.Fatal("expected ResultCode 0 to mean success")
		}
	})

	t.Run("nonzero result code is failure", func(t *testing.T) {
		out := NormalizeCallback([]byte(`{"external_reference": "abc-123", "ResultCode": 1032, "ResultDesc": "Request cancelled by user"}`))
		if out == nil {
			t.Fatal("expected outcome")
		}
		if out.Succeeded {
			t.Error("expected failure")
		}
		if out.FailReason != "Request cancelled by user" {
			t.Errorf("FailReason = %q", out.FailReason)
		}
	})

	t.Run("failed status with failure_reason", func(t *testing.T) {
		out := NormalizeCallback([]byte(`{"external_reference": "abc-123", "status": "FAILED", "failure_reason": "Insufficient funds"}`))
		if out == nil || out.Succeeded {
			t.Fatal("expected failure outcome")
		}
		if out.FailReason != "Insufficient funds" {
			t.Errorf("FailReason = %q", out.FailReason)
		}
	})

	t.Run("failure with no message falls back to status", func(t *testing.T) {
		out := NormalizeCallback([]byte(`{"external_reference": "abc-123", "status": "failed"}`))
		if out == nil || out.Succeeded {
			t.Fatal("expected failure outcome")
		}
		if out.FailReason != "FAILED" {
			t.Errorf("FailReason = %q", out.FailReason)
		}
	})

	t.Run("failure with nothing at all gets generic reason", func(t *testing.T) {
		out := NormalizeCallback([]byte(`{"external_reference": "abc-123"}`))
		if out == nil || out.Succeeded {
			t.Fatal("expected failure outcome")
		}
		if out.FailReason != "Payment declined" {
			t.Errorf("FailReason = %q", out.FailReason)
		}
	})

	t.Run("missing correlation id", func(t *testing.T) {
		out := NormalizeCallback([]byte(`{"status": "SUCCESS"}`))
		if out == nil {
			t.Fatal("expected outcome")
		}
		if out.BookingID != "" {
			t.Errorf("BookingID = %q, want empty", out.BookingID)
		}
	})

	t.Run("lowercase status casing", func(t *testing.T) {
		out := NormalizeCallback([]byte(`{"external_reference": "abc-123", "status": "success"}`))
		if out == nil || !out.Succeeded {
			t.Fatal("expected lowercase success to normalize")
		}
	})

	t.Run("malformed bodies", func(t *testing.T) {
		for _, raw := range []string{"", "not json", `"just a string"`, `[1,2,3]`, "null"} {
			if out := NormalizeCallback([]byte(raw)); out != nil {
				t.Errorf("NormalizeCallback(%q) = %+v, want nil", raw, out)
			}
		}
	})
}

func TestApplyCallback(t *testing.T) {
	success := NormalizeCallback([]byte(`{"external_reference": "abc-123", "status": "SUCCESS", "reference": "REF-1", "MpesaReceiptNumber": "RGH23XYZ", "amount": 500, "phone_number": "254712345678"}`))
	failure := NormalizeCallback([]byte(`{"external_reference": "abc-123", "status": "FAILED", "ResultDesc": "Insufficient funds"}`))

	t.Run("success on processing booking", func(t *testing.T) {
		b := &models.Booking{PaymentStatus: models.PaymentStatusProcessing, Amount: 500, PatientPhone: "254700000000"}
		upd, changed := ApplyCallback(b, success)
		if !changed {
			t.Fatal("expected an update")
		}
		if upd.Status != models.PaymentStatusPaid {
			t.Errorf("Status = %q", upd.Status)
		}
		if upd.Receipt != "RGH23XYZ" || upd.Reference != "REF-1" {
			t.Errorf("settlement metadata not carried: %+v", upd)
		}
		if upd.SettledAt == nil {
			t.Error("expected a settlement timestamp")
		}
		// Committed booking fields are not redefined by the callback.
		if b.Amount != 500 || b.PatientPhone != "254700000000" {
			t.Error("ApplyCallback must not mutate the booking")
		}
	})

	t.Run("failure on processing booking", func(t *testing.T) {
		b := &models.Booking{PaymentStatus: models.PaymentStatusProcessing}
		upd, changed := ApplyCallback(b, failure)
		if !changed {
			t.Fatal("expected an update")
		}
		if upd.Status != models.PaymentStatusFailed {
			t.Errorf("Status = %q", upd.Status)
		}
		if upd.FailReason != "Insufficient funds" {
			t.Errorf("FailReason = %q", upd.FailReason)
		}
	})

	t.Run("idempotent on paid booking", func(t *testing.T) {
		b := &models.Booking{PaymentStatus: models.PaymentStatusPaid}
		if _, changed := ApplyCallback(b, success); changed {
			t.Error("duplicate delivery must not produce an update")
		}
		if _, changed := ApplyCallback(b, failure); changed {
			t.Error("late failure must not downgrade a paid booking")
		}
	})

	t.Run("monotonic on failed booking", func(t *testing.T) {
		b := &models.Booking{PaymentStatus: models.PaymentStatusFailed}
		if _, changed := ApplyCallback(b, success); changed {
			t.Error("a terminal failed booking must not be resurrected")
		}
	})

	t.Run("applies from every non-terminal state", func(t *testing.T) {
		for _, status := range []string{models.PaymentStatusNone, models.PaymentStatusPending, models.PaymentStatusProcessing} {
			b := &models.Booking{PaymentStatus: status}
			if _, changed := ApplyCallback(b, success); !changed {
				t.Errorf("expected update from %q", status)
			}
		}
	})

	t.Run("nil inputs", func(t *testing.T) {
		if _, changed := ApplyCallback(nil, success); changed {
			t.Error("nil booking")
		}
		if _, changed := ApplyCallback(&models.Booking{}, nil); changed {
			t.Error("nil outcome")
		}
	})
}
