package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadpipe/internal/config"
	"github.com/JakeFAU/leadpipe/internal/finder"
	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/metrics"
	"github.com/JakeFAU/leadpipe/internal/qualifier"
)

// Searcher runs a search cycle and queues what it finds.
type Searcher interface {
	Search(ctx context.Context, trigger string, types []lead.SourceType) (finder.Summary, error)
}

// Processor analyzes and qualifies one lead synchronously.
type Processor interface {
	Process(ctx context.Context, leadID string) (qualifier.Result, error)
}

// Enqueuer hands leads to the background qualification workers.
type Enqueuer interface {
	EnqueueLeads(ctx context.Context, leadIDs []string) (int, error)
}

// Drafter renders outreach proposals.
type Drafter interface {
	Draft(l lead.Lead, analysis *lead.WebsiteAnalysis, channel lead.ProposalChannel) (lead.Proposal, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Deps bundles the collaborators behind the handlers.
type Deps struct {
	Store     lead.Store
	Searcher  Searcher
	Processor Processor
	Enqueuer  Enqueuer
	Drafter   Drafter
	IDs       lead.IDGenerator
	Clock     lead.Clock
}

// Server wires HTTP handlers to the pipeline and store.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("api"),
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/leads", func(r chi.Router) {
			r.Get("/", s.listLeads)
			r.Get("/hot", s.hotLeads)
			r.Post("/qualify-new", s.qualifyNew)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getLead)
				r.Get("/analysis", s.getAnalysis)
				r.Post("/qualify", s.qualifyLead)
				r.Post("/status", s.setStatus)
				r.Get("/proposals", s.listProposals)
				r.Post("/proposals", s.draftProposal)
			})
		})
		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.listSources)
			r.Post("/", s.createSource)
			r.Get("/{id}", s.getSource)
			r.Post("/{id}/toggle", s.toggleSource)
		})
		r.Post("/search", s.search)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.deps.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeStoreError maps store and funnel sentinels onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, lead.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, lead.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		s.logger.Error("request failed", zap.String("entity", what), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
