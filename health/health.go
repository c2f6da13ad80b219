// Package health implements the optional HTTP status endpoint: /healthz for
// a liveness probe and /stats for the running camxfer.Stats snapshot as
// JSON. Either the sender or the receiver can start one when its
// configuration sets a health_port.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/harsh-quidich/camxfer"
	"github.com/harsh-quidich/camxfer/log"
)

// Server serves /healthz and /stats on a dedicated port.
type Server struct {
	srv *http.Server
}

// New builds a Server reporting stats's current values. It does not start
// listening until Serve is called.
func New(port int, stats *camxfer.Stats) *Server {
	mux := http.NewServeMux()
	s := &Server{
		srv: &http.Server{
			Addr:    fmt.Sprintf("localhost:%d", port),
			Handler: mux,
		},
	}
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/stats", s.handleStats(stats))
	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

func (s *Server) handleStats(stats *camxfer.Stats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}

// Serve starts the HTTP listener and blocks until stop is closed, then
// shuts down gracefully and signals done.
func (s *Server) Serve(stop <-chan struct{}, done chan<- struct{}) {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err.Error())
		}
	}()
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.srv.Shutdown(ctx)
	close(done)
}
