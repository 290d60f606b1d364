package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"gorm.io/datatypes"

	"github.com/example/amexan/internal/models"
	"github.com/example/amexan/internal/records"
	"github.com/example/amexan/internal/utils"
)

// ErrorKind names a payment failure class.
type ErrorKind string

const (
	KindInvalidPhone         ErrorKind = "InvalidPhone"
	KindInvalidAmount        ErrorKind = "InvalidAmount"
	KindMissingField         ErrorKind = "MissingField"
	KindMisconfiguredGateway ErrorKind = "MisconfiguredGateway"
	KindGatewayUnreachable   ErrorKind = "GatewayUnreachable"
	KindGatewayRejected      ErrorKind = "GatewayRejected"
)

// PaymentError is a typed payment-initiation failure.
type PaymentError struct {
	Kind    ErrorKind
	Message string
	Raw     json.RawMessage
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// HTTPStatus maps the error kind to a response status.
func (e *PaymentError) HTTPStatus() int {
	switch e.Kind {
	case KindMisconfiguredGateway:
		return http.StatusInternalServerError
	case KindGatewayUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// InitiateParams is one payment-initiation request.
type InitiateParams struct {
	BookingID   string
	Phone       string
	Amount      int64
	PayerName   string
	Description string
}

// InitiateResult is a successful initiation: the gateway accepted the push
// request and the prompt is on its way to the payer's phone.
type InitiateResult struct {
	Reference string
	Gateway   json.RawMessage
}

// PaymentService owns the STK-push initiation and callback reconciliation
// flow against the record store.
type PaymentService struct {
	store   records.Store
	gateway StkGateway
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(store records.Store, gateway StkGateway) *PaymentService {
	return &PaymentService{store: store, gateway: gateway}
}

// Initiate validates the request, marks the booking pending, and asks the
// gateway to push the payment prompt. The booking is left in a well-defined
// payment state on every path: pending if the gateway accepted nothing yet,
// processing once it did, failed when it could not be reached or rejected
// the push.
func (s *PaymentService) Initiate(ctx context.Context, p InitiateParams) (*InitiateResult, error) {
	if p.BookingID == "" || p.PayerName == "" {
		return nil, &PaymentError{Kind: KindMissingField, Message: "bookingId and payerName are required"}
	}
	if p.Amount <= 0 {
		return nil, &PaymentError{Kind: KindInvalidAmount, Message: "amount must be a positive number"}
	}
	if !utils.ValidKenyanPhone(p.Phone) {
		return nil, &PaymentError{Kind: KindInvalidPhone, Message: "enter a valid Safaricom/Airtel number (e.g. 0712345678 or +254712345678)"}
	}
	if !s.gateway.Configured() {
		return nil, &PaymentError{Kind: KindMisconfiguredGateway, Message: "payment gateway is not configured"}
	}

	phone := utils.NormalizePhone(p.Phone)

	// Best effort: the callback path can recover the booking by id even if
	// this merge never lands.
	if err := s.store.MarkPaymentPending(ctx, p.BookingID, phone, p.Amount); err != nil {
		log.Printf("[PayHero] pending pre-write failed for booking %s: %v", p.BookingID, err)
	}

	description := p.Description
	if description == "" {
		description = "Consultation"
	}

	res, err := s.gateway.Push(ctx, StkPushRequest{
		Amount:      p.Amount,
		Phone:       phone,
		BookingID:   p.BookingID,
		PayerName:   p.PayerName,
		Description: description,
	})
	if err != nil {
		reason := err.Error()
		var perr *PaymentError
		if errors.As(err, &perr) {
			reason = perr.Message
		}
		if serr := s.store.MarkPaymentFailed(ctx, p.BookingID, reason); serr != nil {
			log.Printf("[PayHero] failed-status write failed for booking %s: %v", p.BookingID, serr)
		}
		return nil, err
	}

	if res.Reference == "" {
		log.Printf("[PayHero] no reference field in response for booking %s", p.BookingID)
	}
	if err := s.store.MarkPaymentProcessing(ctx, p.BookingID, res.Reference); err != nil {
		log.Printf("[PayHero] processing-status write failed for booking %s: %v", p.BookingID, err)
	}

	log.Printf("[PayHero] STK push sent — booking: %s, ref: %s", p.BookingID, res.Reference)

	return &InitiateResult{Reference: res.Reference, Gateway: res.Body}, nil
}

// ProcessCallback reconciles one callback delivery against the booking it
// correlates to. It never returns an error: unusable payloads are
// discarded (retrying cannot fix them) and store failures are logged for
// manual reconciliation from the audit trail.
func (s *PaymentService) ProcessCallback(ctx context.Context, raw []byte) {
	outcome := NormalizeCallback(raw)
	if outcome == nil {
		log.Printf("[Callback] unparseable payload — discarding")
		return
	}
	if outcome.BookingID == "" {
		log.Printf("[Callback] no external_reference — discarding")
		return
	}

	booking, err := s.store.GetBooking(ctx, outcome.BookingID)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			log.Printf("[Callback] no booking for reference %s — discarding", outcome.BookingID)
		} else {
			log.Printf("[Callback] booking lookup failed for %s: %v", outcome.BookingID, err)
		}
		return
	}

	if err := s.store.AppendCallbackRaw(ctx, outcome.BookingID, raw); err != nil {
		log.Printf("[Callback] raw-payload append failed for booking %s: %v", outcome.BookingID, err)
	}

	if upd, changed := ApplyCallback(booking, outcome); changed {
		if err := s.store.ApplyPaymentUpdate(ctx, outcome.BookingID, upd); err != nil {
			log.Printf("[Callback] booking update failed for %s: %v", outcome.BookingID, err)
		} else {
			log.Printf("[Callback] booking %s → %s", outcome.BookingID, upd.Status)
		}
	} else {
		log.Printf("[Callback] booking %s already %s — duplicate delivery ignored", outcome.BookingID, booking.PaymentStatus)
	}

	rec := &models.PaymentRecord{
		BookingID:  outcome.BookingID,
		Succeeded:  outcome.Succeeded,
		Status:     outcome.Status,
		Reference:  outcome.Reference,
		Receipt:    outcome.Receipt,
		Amount:     outcome.Amount,
		Phone:      outcome.Phone,
		FailReason: outcome.FailReason,
		Raw:        datatypes.JSON(raw),
	}
	if err := s.store.AppendAudit(ctx, rec); err != nil {
		log.Printf("[Callback] audit append failed for booking %s: %v", outcome.BookingID, err)
	}
}
