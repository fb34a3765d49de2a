package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"skywatch/internal/pipeline"
	"skywatch/internal/stats"
	"skywatch/internal/store"
	"skywatch/internal/ws"
)

var (
	errNoResults   = errors.New("no results yet")
	errNoThumbnail = errors.New("no thumbnail for event")
)

// server bundles everything the HTTP surface reads through. Everything it
// touches is snapshot-based or internally locked, so handlers never block
// the pipeline.
type server struct {
	worker  *pipeline.ProcessingWorker
	capture *pipeline.CaptureWorker
	stats   *stats.Stream
	bus     *pipeline.EventBus
	db      *store.Store
	hub     *ws.Hub
	logger  *log.Logger
}

// handleHTTPServer mounts the API and runs the server until ctx is
// canceled, forwarding fatal errors to errc.
func handleHTTPServer(ctx context.Context, addr string, s *server, wg *sync.WaitGroup, errc chan error, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/tracks", s.handleTracks)
	mux.HandleFunc("GET /api/latest", s.handleLatest)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/events/{id}/thumbnail", s.handleThumbnail)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handlePutConfig)
	mux.HandleFunc("POST /api/pause", s.handlePause)
	mux.HandleFunc("POST /api/resume", s.handleResume)
	mux.Handle("GET /ws/events", ws.NewHandler(s.hub))

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		go func() {
			logger.Printf("HTTP server listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- err
			}
		}()

		<-ctx.Done()
		logger.Printf("shutting down HTTP server at %s", addr)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !s.capture.Running() || !s.worker.Running() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"capturing": s.capture.Running(),
		"processing": map[string]interface{}{
			"running": s.worker.Running(),
			"paused":  s.worker.Paused(),
		},
		"frames_captured": s.capture.FramesCaptured(),
	})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *server) handleTracks(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		writeJSON(w, http.StatusOK, s.worker.Tracker().All())
		return
	}
	writeJSON(w, http.StatusOK, s.worker.Tracker().Confirmed())
}

func (s *server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest := s.bus.Latest()
	if latest == nil {
		writeError(w, http.StatusNotFound, errNoResults)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	var since *time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			return
		}
		since = &t
	}

	events, err := s.db.ListEvents(since, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []*store.EventRecord{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	ev, err := s.db.GetEvent(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if ev == nil || len(ev.Thumbnail) == 0 {
		writeError(w, http.StatusNotFound, errNoThumbnail)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(ev.Thumbnail)
}

func (s *server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.worker.Config())
}

// handlePutConfig applies a partial update: the request body is decoded on
// top of the active config, so clients send only the fields they change.
func (s *server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.worker.Config()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.worker.UpdateConfig(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.worker.Pause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.worker.Resume()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}
