// Package ops serves the health and status endpoints.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/suspectuso/galleon-bot/internal/scheduler"
	"github.com/suspectuso/galleon-bot/internal/storage"
)

// AttendanceStatus reports the attendance window.
type AttendanceStatus interface {
	Status() scheduler.Status
}

// Counter reports how many mentions were processed.
type Counter interface {
	Processed() int64
}

// Store is the part of the backing store /health and /status read.
type Store interface {
	Ping(ctx context.Context) error
	CountRows(ctx context.Context, sheet string) (int, error)
}

// catalogSheets are counted on /status.
var catalogSheets = []string{storage.SheetKeywords, storage.SheetGacha, storage.SheetShop}

// Status is the /status payload.
type Status struct {
	scheduler.Status
	ProcessedEvents int64          `json:"processed_events"`
	Feed            string         `json:"feed"`
	SheetRows       map[string]int `json:"sheet_rows,omitempty"`
}

// Server handles the ops endpoints.
type Server struct {
	attendance AttendanceStatus
	counter    Counter
	store      Store
	feedName   string
	log        *slog.Logger

	server *http.Server
}

// NewServer creates a new ops server. store may be nil.
func NewServer(attendance AttendanceStatus, counter Counter, store Store, feedName string, log *slog.Logger) *Server {
	return &Server{
		attendance: attendance,
		counter:    counter,
		store:      store,
		feedName:   feedName,
		log:        log,
	}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/", s.handleHealth)

	return r
}

// Start serves on port until ctx is done.
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting ops server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("ops server shutdown", "error", err)
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.log.Warn("health check failed", "error", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{
		Status:          s.attendance.Status(),
		ProcessedEvents: s.counter.Processed(),
		Feed:            s.feedName,
	}

	if s.store != nil {
		st.SheetRows = make(map[string]int, len(catalogSheets))
		for _, sheet := range catalogSheets {
			n, err := s.store.CountRows(r.Context(), sheet)
			if err != nil {
				s.log.Warn("count sheet rows", "sheet", sheet, "error", err)
				continue
			}
			st.SheetRows[sheet] = n
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.log.Warn("encode status", "error", err)
	}
}
