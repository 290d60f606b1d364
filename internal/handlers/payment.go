package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/amexan/internal/models"
	"github.com/example/amexan/internal/services"
	"github.com/example/amexan/internal/utils"
)

// PaymentHandler manages STK-push initiation and the PayHero callback.
type PaymentHandler struct {
	db      *gorm.DB
	payment *services.PaymentService
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(db *gorm.DB, payment *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{db: db, payment: payment}
}

type initiateRequest struct {
	Phone       string  `json:"phone"`
	Amount      float64 `json:"amount"`
	BookingID   string  `json:"bookingId"`
	PayerName   string  `json:"payerName"`
	Description string  `json:"description"`
}

// Initiate triggers an M-Pesa STK push for a booking.
func (h *PaymentHandler) Initiate(c *fiber.Ctx) error {
	var req initiateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid request body",
		})
	}

	if req.Amount != float64(int64(req.Amount)) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "amount must be a whole number of shillings",
		})
	}

	result, err := h.payment.Initiate(c.UserContext(), services.InitiateParams{
		BookingID:   req.BookingID,
		Phone:       req.Phone,
		Amount:      int64(req.Amount),
		PayerName:   req.PayerName,
		Description: req.Description,
	})
	if err != nil {
		var perr *services.PaymentError
		if errors.As(err, &perr) {
			body := fiber.Map{
				"success": false,
				"message": perr.Message,
			}
			if len(perr.Raw) > 0 {
				body["raw"] = perr.Raw
			}
			return c.Status(perr.HTTPStatus()).JSON(body)
		}
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result.Gateway,
	})
}

// Callback receives PayHero's out-of-band payment outcome. It always
// acknowledges with 200 immediately — PayHero retries on anything else,
// and retries cannot fix a payload we could not use — and reconciles the
// booking in the background.
func (h *PaymentHandler) Callback(c *fiber.Ctx) error {
	// Fiber reuses the request buffer after the handler returns; copy
	// before handing the body to the goroutine.
	raw := make([]byte, len(c.Body()))
	copy(raw, c.Body())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		h.payment.ProcessCallback(ctx, raw)
	}()

	return c.JSON(fiber.Map{"received": true})
}

// ListRecords returns the immutable payment audit trail, optionally
// filtered, for reconciliation and support.
func (h *PaymentHandler) ListRecords(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.PaymentRecord{})

	if bookingID := strings.TrimSpace(c.Query("booking_id")); bookingID != "" {
		query = query.Where("booking_id = ?", bookingID)
	}
	if succeeded := strings.TrimSpace(c.Query("succeeded")); succeeded != "" {
		query = query.Where("succeeded = ?", succeeded == "true")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var recs []models.PaymentRecord
	if err := query.
		Order("created_at desc").
		Limit(pg.Limit).
		Offset(pg.Offset).
		Find(&recs).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    recs,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}
