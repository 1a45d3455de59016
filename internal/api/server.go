// Package api exposes the query/predict service's HTTP front door
// (SPEC_FULL.md "Domain stack": chi + promhttp), grounded on the teacher's
// internal/api/server.go (chi.NewRouter, middleware stack, EnableMetrics,
// writeJSON/writeError helpers). The actual query/predict/entropy
// computations are out of THE CORE's scope per spec.md §1 ("inference
// service" is named only as a consumer); this package is exactly that
// consumer, fronting the scoring primitives internal/engine/model already
// implements (ProductMixture.ScoreDiff) with a JSON request/response
// instead of inventing a new scoring algorithm.
package api

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crosscatio/crosscat/internal/domain"
	"github.com/crosscatio/crosscat/internal/engine/crosscat"
)

// Server serves queries against one loaded cross_cat. It holds no mutable
// inference state of its own: every request scores against the snapshot cc
// pointed to at construction time.
type Server struct {
	cc             *crosscat.CrossCat
	seed           int64
	metricsEnabled bool
}

// NewServer returns a Server that scores requests against cc using seed to
// derive each request's RNG (family predictive scoring needs an RNG for a
// handful of families' Monte Carlo fallbacks, but never mutates cc).
func NewServer(cc *crosscat.CrossCat, seed int64) *Server {
	return &Server{cc: cc, seed: seed}
}

// EnableMetrics turns on the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/score", s.handleScore)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// scoreRequest is a partial row (the same observed-mask encoding rows use
// on disk) to score against every kind's current mixture.
type scoreRequest struct {
	Pos valueRequest `json:"pos"`
}

type valueRequest struct {
	Encoding string    `json:"encoding"`
	Dense    []bool    `json:"dense,omitempty"`
	Sparse   []uint32  `json:"sparse,omitempty"`
	Bools    []bool    `json:"bools,omitempty"`
	Counts   []uint32  `json:"counts,omitempty"`
	Reals    []float32 `json:"reals,omitempty"`
}

// scoreResponse is, per kind, the per-group unnormalized log score
// ProductMixture.ScoreDiff computes — the raw primitive, not a derived
// statistic such as total log-likelihood or entropy (those belong to a
// service built on top of this one, out of scope here).
type scoreResponse struct {
	KindScores [][]float64 `json:"kind_scores"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	enc, err := encodingFromWire(req.Pos.Encoding)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	full := domain.ProductValue{
		Encoding: enc,
		Dense:    req.Pos.Dense,
		Sparse:   req.Pos.Sparse,
		Bools:    req.Pos.Bools,
		Counts:   req.Pos.Counts,
		Reals:    req.Pos.Reals,
	}
	if err := full.Validate(s.cc.Schema); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	diff := domain.FromValue(full)
	parts := s.cc.DiffSplit(diff)
	rng := rand.New(rand.NewSource(s.seed))

	resp := scoreResponse{KindScores: make([][]float64, len(s.cc.Kinds))}
	for k, kind := range s.cc.Kinds {
		out := make([]float64, kind.Mixture.PackedSize())
		kind.Mixture.ScoreDiff(kind.Model, parts[k], out, rng)
		resp.KindScores[k] = out
	}
	writeJSON(w, http.StatusOK, resp)
}

func encodingFromWire(s string) (domain.Encoding, error) {
	switch s {
	case "ALL":
		return domain.EncodingAll, nil
	case "DENSE":
		return domain.EncodingDense, nil
	case "SPARSE":
		return domain.EncodingSparse, nil
	case "NONE":
		return domain.EncodingNone, nil
	default:
		return 0, errUnknownEncoding(s)
	}
}

type errUnknownEncoding string

func (e errUnknownEncoding) Error() string { return "unknown value encoding: " + string(e) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
		},
	})
}
