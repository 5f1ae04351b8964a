// Package httpapi is the demo HTTP surface exercising every strategy
// side-by-side: one GET route per strategy, a seed endpoint, and an
// invalidate endpoint that fans out across every strategy's namespace.
// None of this layer is part of the core package's tested guarantees — it
// exists to make the five strategies comparable end-to-end.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/js0507dev/cache-stampede-test/cache"
	"github.com/js0507dev/cache-stampede-test/internal/product"
)

// Server wires the product registry and repository into net/http handlers.
type Server struct {
	registry *cache.Registry
	repo     *product.SlowRepository
	log      *slog.Logger
}

// NewServer builds a Server. log defaults to slog.Default() if nil.
func NewServer(registry *cache.Registry, repo *product.SlowRepository, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{registry: registry, repo: repo, log: log}
}

// Routes registers every handler on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	for _, name := range cache.AllStrategyNames {
		mux.HandleFunc("GET /products/{id}/"+name, s.handleGetProduct(name))
	}
	mux.HandleFunc("POST /admin/seed", s.handleSeed)
	mux.HandleFunc("POST /admin/invalidate/{id}", s.handleInvalidate)
}

func (s *Server) handleGetProduct(strategyName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			http.Error(w, "invalid product id", http.StatusBadRequest)
			return
		}

		strategy, ok := s.registry.Get(strategyName)
		if !ok {
			http.Error(w, "unknown strategy", http.StatusNotFound)
			return
		}

		raw, found, err := strategy.GetOrLoad(r.Context(), id.String(), s.repo.Loader(id))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				http.Error(w, "request cancelled", http.StatusRequestTimeout)
				return
			}
			s.log.ErrorContext(r.Context(), "httpapi: loader failed", "strategy", strategyName, "id", id, "error", err)
			http.Error(w, "loader failed", http.StatusBadGateway)
			return
		}
		if !found {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		p, err := product.Decode(raw)
		if err != nil {
			s.log.ErrorContext(r.Context(), "httpapi: decode failed", "strategy", strategyName, "id", id, "error", err)
			http.Error(w, "decode failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache-Strategy", strategyName)
		_ = json.NewEncoder(w).Encode(p)
	}
}

type seedRequest struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}

	p := product.Product{ID: req.ID, Name: req.Name, PriceCents: req.PriceCents}
	s.repo.Seed(p)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}

// handleInvalidate invalidates id across every strategy's namespace,
// demonstrating namespace isolation: each strategy owns a disjoint
// remote-store key, so one invalidation must fan out to all five rather
// than a single shared delete.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid product id", http.StatusBadRequest)
		return
	}

	var firstErr error
	for _, strategy := range s.registry.All() {
		if err := strategy.Invalidate(r.Context(), id.String()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		s.log.ErrorContext(r.Context(), "httpapi: invalidate failed", "id", id, "error", firstErr)
		http.Error(w, "invalidate failed", http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
