// Package web exposes a local JSON API over the build record store, the
// event trail, and the pending gates of a running build. Gate approval
// is the only mutating endpoint.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lucasnoah/conveyor/internal/db"
	"github.com/lucasnoah/conveyor/internal/gate"
	"github.com/lucasnoah/conveyor/internal/record"
)

// Server serves the conveyor HTTP API.
type Server struct {
	store *record.Store
	db    *db.DB
	gates *gate.Controller // nil when no build is running in-process
	addr  string

	srv *http.Server
}

// NewServer creates a Server. gates may be nil for a read-only server.
func NewServer(store *record.Store, database *db.DB, gates *gate.Controller, addr string) *Server {
	return &Server{store: store, db: database, gates: gates, addr: addr}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/builds", s.handleListBuilds)
		r.Get("/builds/{number}", s.handleGetBuild)
		r.Get("/builds/{number}/events", s.handleBuildEvents)
		r.Get("/gates", s.handleListGates)
		r.Post("/gates/{id}/approve", s.handleApproveGate)
	})

	return r
}

// Start listens and serves until Shutdown is called.
func (s *Server) Start() error {
	s.srv = &http.Server{Addr: s.addr, Handler: s.Router()}
	log.Printf("conveyor API: http://localhost%s", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// StartBackground serves in a goroutine, reporting startup failures on
// the returned channel.
func (s *Server) StartBackground() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// BuildSummary is the list representation of a build.
type BuildSummary struct {
	Number     int    `json:"number"`
	Pipeline   string `json:"pipeline"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Artifacts  int    `json:"artifacts"`
}

func (s *Server) handleListBuilds(w http.ResponseWriter, _ *http.Request) {
	records, err := s.store.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	summaries := make([]BuildSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, BuildSummary{
			Number:     rec.Number,
			Pipeline:   rec.Pipeline,
			Status:     rec.Status.String(),
			StartedAt:  rec.StartedAt,
			FinishedAt: rec.FinishedAt,
			Artifacts:  len(rec.Artifacts),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid build number"))
		return
	}

	rec, err := s.store.Get(number)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleBuildEvents(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid build number"))
		return
	}

	events, err := s.db.GetBuildEvents(number)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleListGates(w http.ResponseWriter, _ *http.Request) {
	if s.gates == nil {
		writeJSON(w, http.StatusOK, []gate.Info{})
		return
	}
	writeJSON(w, http.StatusOK, s.gates.Pending())
}

// approveRequest is the body of a gate approval.
type approveRequest struct {
	Approver string `json:"approver"`
}

func (s *Server) handleApproveGate(w http.ResponseWriter, r *http.Request) {
	if s.gates == nil {
		writeError(w, http.StatusConflict, fmt.Errorf("no build is running"))
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.gates.Approve(id, req.Approver); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"gate": id, "approver": req.Approver})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
