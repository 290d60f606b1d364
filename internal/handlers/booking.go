package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/amexan/internal/middleware"
	"github.com/example/amexan/internal/models"
	"github.com/example/amexan/internal/utils"
)

// BookingHandler manages consultation booking endpoints.
type BookingHandler struct {
	db *gorm.DB
}

// NewBookingHandler constructs BookingHandler.
func NewBookingHandler(db *gorm.DB) *BookingHandler {
	return &BookingHandler{db: db}
}

type createBookingRequest struct {
	DoctorName  string    `json:"doctor_name"`
	Specialty   string    `json:"specialty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Amount      int64     `json:"amount"`
	Notes       string    `json:"notes"`
}

// CreateBooking reserves a consultation slot. The payment status starts at
// "none"; checkout moves it forward later.
func (h *BookingHandler) CreateBooking(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if strings.TrimSpace(req.DoctorName) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "doctor_name is required")
	}
	if req.Amount <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "amount must be positive")
	}

	var patient models.User
	if err := h.db.First(&patient, "id = ?", userID).Error; err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "unknown user")
	}

	booking := models.Booking{
		PatientID:     userID,
		PatientName:   strings.TrimSpace(patient.FirstName + " " + patient.LastName),
		DoctorName:    req.DoctorName,
		Specialty:     req.Specialty,
		ScheduledAt:   req.ScheduledAt,
		Status:        "booked",
		Notes:         req.Notes,
		Amount:        req.Amount,
		PaymentStatus: models.PaymentStatusNone,
	}

	if err := h.db.Create(&booking).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(booking)
}

// ListBookings returns the caller's bookings, newest first. Doctors see
// bookings addressed to them by name.
func (h *BookingHandler) ListBookings(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Booking{})

	if middleware.GetCurrentUserRole(c) == models.RoleDoctor {
		var doctor models.User
		if err := h.db.First(&doctor, "id = ?", userID).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "unknown user")
		}
		query = query.Where("doctor_name = ?", strings.TrimSpace(doctor.FirstName+" "+doctor.LastName))
	} else {
		query = query.Where("patient_id = ?", userID)
	}

	if status := strings.TrimSpace(c.Query("payment_status")); status != "" {
		query = query.Where("payment_status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var bookings []models.Booking
	if err := query.
		Order("created_at desc").
		Limit(pg.Limit).
		Offset(pg.Offset).
		Find(&bookings).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    bookings,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetBooking returns a single booking owned by the caller.
func (h *BookingHandler) GetBooking(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid booking id")
	}

	var booking models.Booking
	if err := h.db.Where("id = ? AND patient_id = ?", id, userID).First(&booking).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.NewError(fiber.StatusNotFound, "booking not found")
		}
		return err
	}

	return c.JSON(booking)
}
