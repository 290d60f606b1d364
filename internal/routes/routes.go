package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/amexan/internal/config"
	"github.com/example/amexan/internal/handlers"
	"github.com/example/amexan/internal/middleware"
	"github.com/example/amexan/internal/records"
	"github.com/example/amexan/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	store := records.NewGormStore(db)
	gateway := services.NewPayHeroClient(cfg)
	paymentService := services.NewPaymentService(store, gateway)

	authHandler := handlers.NewAuthHandler(db, cfg)
	bookingHandler := handlers.NewBookingHandler(db)
	paymentHandler := handlers.NewPaymentHandler(db, paymentService)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Payment routes. The callback is invoked by PayHero, not users, and
	// must stay unauthenticated.
	payments := api.Group("/payments")
	payments.Post("/initiate", paymentHandler.Initiate)
	payments.Post("/callback", paymentHandler.Callback)
	payments.Get("/records", paymentHandler.ListRecords)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))

	protected.Post("/bookings", bookingHandler.CreateBooking)
	protected.Get("/bookings", bookingHandler.ListBookings)
	protected.Get("/bookings/:id", bookingHandler.GetBooking)
}
