package controller

import (
	"time"

	"github.com/diaspomoney/payments/internal/command"
	"github.com/diaspomoney/payments/internal/infrastructure/config"
	"github.com/diaspomoney/payments/internal/infrastructure/observability"
	customMW "github.com/diaspomoney/payments/internal/middleware"
	"github.com/diaspomoney/payments/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	ServiceName  string
	Commands     *command.Handler
	Payments     *service.PaymentService
	Bookings     *service.BookingService
	Facade       *service.BookingFacade
	Transactions *service.TransactionService
	Strategies   StrategyCatalog
	// Idempotency is optional; without it Idempotency-Key headers are ignored.
	Idempotency  customMW.IdempotencyStore
	HealthChecks map[string]Check
	Metrics      *observability.Metrics
	Server       config.ServerConfig
	Logger       zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(deps.ServiceName))
	r.Use(chimw.RealIP)
	r.Use(customMW.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", customMW.IdempotencyHeader},
		ExposedHeaders:   []string{customMW.ReplayedHeader},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.SecurityHeaders())
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.HealthChecks)
	paymentH := NewPaymentController(deps.Commands, deps.Payments, deps.Logger)
	bookingH := NewBookingController(deps.Commands, deps.Facade, deps.Bookings, deps.Logger)
	transactionH := NewTransactionController(deps.Commands, deps.Transactions, deps.Logger)
	commandH := NewCommandController(deps.Commands)
	providerH := NewProviderController(deps.Strategies)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Server.RequestsPerMinute > 0 {
			r.Use(customMW.RateLimit(deps.Server.RequestsPerMinute))
		}
		if deps.Idempotency != nil {
			r.Use(customMW.Idempotency(deps.Idempotency, deps.Logger))
		}

		// Payments
		r.Post("/payments", paymentH.CreatePayment)
		r.Post("/payments/{id}/confirm", paymentH.ConfirmPayment)

		// Bookings
		r.Post("/bookings", bookingH.CreateBooking)
		r.Get("/bookings/{id}", bookingH.GetBooking)
		r.Post("/bookings/{id}/cancel", bookingH.CancelBooking)
		r.Patch("/bookings/{id}/status", bookingH.UpdateStatus)

		// Transactions
		r.Post("/transactions", transactionH.CreateTransaction)
		r.Get("/transactions/{id}", transactionH.GetTransaction)
		r.Post("/transactions/{id}/sync", transactionH.SyncTransaction)
		r.Patch("/transactions/{id}/status", transactionH.UpdateStatus)
		r.Post("/transactions/{id}/refund", transactionH.Refund)

		// Commands
		r.Post("/commands/undo", commandH.Undo)
		r.Get("/commands/history", commandH.History)
		r.Delete("/commands/history", commandH.ClearHistory)

		// Providers
		r.Get("/providers", providerH.List)
		r.Get("/providers/best", providerH.Best)
	})

	return r
}
