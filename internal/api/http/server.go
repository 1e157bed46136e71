package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/execution-hub/dealflow/internal/domain/deal"
	"github.com/execution-hub/dealflow/internal/domain/event"
	"github.com/execution-hub/dealflow/internal/domain/fault"
	"github.com/execution-hub/dealflow/internal/metrics"
)

// Orchestrator is the deal state machine as seen by the HTTP surface.
type Orchestrator interface {
	Handle(ctx context.Context, ev event.Event) event.Reply
	Deal(ctx context.Context, id string) (*deal.Deal, error)
	Ingest(ctx context.Context, d *deal.Deal) error
	Advertise(ctx context.Context, dealID, channelID string) (*deal.Deal, error)
	Reprice(ctx context.Context, dealID string, payout, payoutVAT0 decimal.NullDecimal) (*deal.Deal, error)
}

// Sweeper runs one expiry pass.
type Sweeper interface {
	RunOnce(ctx context.Context) (int, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	orch        Orchestrator
	sweeper     Sweeper
	metrics     *metrics.Metrics
	ingestToken string
	now         func() time.Time
	logger      zerolog.Logger
}

func NewServer(orch Orchestrator, sweeper Sweeper, m *metrics.Metrics, ingestToken string, logger zerolog.Logger) *Server {
	return &Server{
		orch:        orch,
		sweeper:     sweeper,
		metrics:     m,
		ingestToken: ingestToken,
		now:         time.Now,
		logger:      logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireToken)

		r.Post("/events", s.handleEvent)
		r.Get("/deals/{dealID}", s.getDeal)
		r.Route("/listings", func(r chi.Router) {
			r.Post("/", s.createListing)
			r.Patch("/{dealID}", s.repriceListing)
			r.Post("/{dealID}/advertise", s.advertiseListing)
		})
		r.Post("/sweeps", s.runSweep)
	})

	return r
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]errorBody{
		"error": {Code: code, Message: message},
	})
}

// respondFault maps a classified failure onto a status code.
func (s *Server) respondFault(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	status := http.StatusBadGateway
	switch kind {
	case fault.KindNotFound:
		status = http.StatusNotFound
	case fault.KindUnauthorized:
		status = http.StatusForbidden
	case fault.KindInvalidState:
		status = http.StatusConflict
	case fault.KindExpired:
		status = http.StatusGone
	default:
		s.logger.Error().Err(err).Msg("request failed")
	}
	respondError(w, status, string(kind), fault.UserMessage(err))
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}
