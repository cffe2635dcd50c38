package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/alvmarrod/kg-weaver/internal/crawler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// progressResponse is the body of GET /jobs/{id}/progress
type progressResponse struct {
	JobID   string           `json:"job_id"`
	Status  string           `json:"status"`
	Percent float64          `json:"percent"`
	Data    crawler.Snapshot `json:"data"`
}

// newProgressRouter exposes the progress of one crawl job
func newProgressRouter(jobID string, progress *crawler.Progress) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/jobs/{id}/progress", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "id") != jobID {
			http.Error(w, "unknown job", http.StatusNotFound)
			return
		}

		snap := progress.Snapshot()
		status := "running"
		switch {
		case snap.StartedAt.IsZero():
			status = "pending"
		case !snap.Active:
			status = "finished"
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(progressResponse{
			JobID:   jobID,
			Status:  status,
			Percent: snap.Percent(),
			Data:    snap,
		}); err != nil {
			logrus.Debugf("Failed to write progress response: %v", err)
		}
	})

	return r
}

// serveProgress runs the progress endpoint until ctx is cancelled
func serveProgress(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logrus.Infof("Progress endpoint listening on %s", ln.Addr())
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
