// Package api serves the public booking and staff JSON endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tablebook/internal/capacity"
	"tablebook/internal/load"
	"tablebook/internal/models"
	"tablebook/internal/rules"
	"tablebook/internal/service"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Bookings is the booking service as seen by the HTTP layer.
type Bookings interface {
	Rules(ctx context.Context, date time.Time) (rules.EffectiveRule, error)
	Availability(ctx context.Context, date time.Time, partySize int, area models.Area) (service.DayAvailability, error)
	Create(ctx context.Context, req service.CreateRequest) (*models.Reservation, capacity.Decision, error)
	GetByReference(ctx context.Context, ref string) (*models.Reservation, error)
	ListByDate(ctx context.Context, date time.Time) ([]models.Reservation, error)
	UpdateStatus(ctx context.Context, id int64, status models.Status) (*models.Reservation, error)
	AvailableTables(ctx context.Context, id int64) ([]models.Table, error)
	AssignTables(ctx context.Context, id int64, tableIDs []int64) (*models.Reservation, error)
	DayLoad(ctx context.Context, date time.Time) (load.Report, error)
}

var _ Bookings = (*service.BookingService)(nil)

// Config holds the HTTP server settings.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// StaffAPIKey unlocks staff endpoints; empty disables them.
	StaffAPIKey   string
	RatePerSecond float64
	RateBurst     int
	CORSOrigins   []string
	Location      *time.Location
}

// HTTPServer exposes Bookings over HTTP.
type HTTPServer struct {
	bookings Bookings
	cfg      Config
	limiter  *ipLimiter
	logger   zerolog.Logger
	server   *http.Server
}

func NewHTTPServer(cfg Config, bookings Bookings, logger zerolog.Logger) *HTTPServer {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &HTTPServer{
		bookings: bookings,
		cfg:      cfg,
		limiter:  newIPLimiter(cfg.RatePerSecond, cfg.RateBurst),
		logger:   logger.With().Str("component", "api").Logger(),
	}
	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler with CORS and request logging.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public
	mux.Handle("GET /api/v1/availability", s.route("availability", s.rateLimit(s.handleAvailability)))
	mux.Handle("POST /api/v1/reservations", s.route("create_reservation", s.rateLimit(s.handleCreateReservation)))
	mux.Handle("GET /api/v1/bookings/{reference}", s.route("lookup", s.rateLimit(s.handleLookup)))

	// Staff
	mux.Handle("GET /api/v1/rules", s.route("rules", s.requireStaff(s.handleRules)))
	mux.Handle("GET /api/v1/reservations", s.route("list_reservations", s.requireStaff(s.handleListReservations)))
	mux.Handle("PATCH /api/v1/reservations/{id}/status", s.route("update_status", s.requireStaff(s.handleUpdateStatus)))
	mux.Handle("GET /api/v1/reservations/{id}/tables", s.route("available_tables", s.requireStaff(s.handleAvailableTables)))
	mux.Handle("PUT /api/v1/reservations/{id}/tables", s.route("assign_tables", s.requireStaff(s.handleAssignTables)))
	mux.Handle("GET /api/v1/load", s.route("load", s.requireStaff(s.handleLoad)))
	mux.Handle("GET /api/v1/load/export", s.route("load_export", s.requireStaff(s.handleLoadExport)))

	if len(s.cfg.CORSOrigins) == 0 {
		return mux
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", apiKeyHeader},
	})
	return c.Handler(mux)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.cfg.Address).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
