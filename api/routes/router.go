package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/driveloop/driveloop-backend/api/controllers"
	"github.com/driveloop/driveloop-backend/api/middleware"
	"github.com/driveloop/driveloop-backend/internal/availability"
	"github.com/driveloop/driveloop-backend/internal/booking"
	"github.com/driveloop/driveloop-backend/internal/notifications"
	"github.com/driveloop/driveloop-backend/pkg/config"
	"github.com/driveloop/driveloop-backend/pkg/db"
	"github.com/driveloop/driveloop-backend/pkg/logger"
	"github.com/driveloop/driveloop-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	bookingService booking.Service,
	availabilityChecker *availability.Checker,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", controllers.CreateBooking(bookingService, logg))
			r.Get("/", controllers.ListBookings(bookingService, logg))
			r.Get("/{bookingId}", controllers.GetBooking(bookingService, logg))
			r.Post("/{bookingId}/accept", controllers.AcceptBooking(bookingService, logg))
			r.Post("/{bookingId}/decline", controllers.DeclineBooking(bookingService, logg))
			r.Post("/{bookingId}/cancel", controllers.CancelBooking(bookingService, logg))
			r.Post("/{bookingId}/complete", controllers.CompleteBooking(bookingService, logg))
		})

		r.Get("/vehicles/{vehicleId}/availability", controllers.VehicleAvailability(availabilityChecker, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	return r
}
