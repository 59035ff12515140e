// Package rpc is the small JSON-over-HTTP surface the CLI and operators
// drive the core pipeline through: trigger backlog population, flush the
// block and vote processors, and read a point-in-time status snapshot of
// every component in the pipeline.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/latticenet/latticenode/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.RPCS)

// BacklogTrigger is the narrow view of the backlog populator the
// "backlog/trigger" command needs.
type BacklogTrigger interface {
	Trigger()
}

// Flusher is the narrow view of the block/vote processors the
// ".../flush" commands need.
type Flusher interface {
	Flush()
}

// StatusProvider reports a subsystem's contribution to the "status"
// snapshot, keyed by the subsystem's own name.
type StatusProvider interface {
	Status() map[string]interface{}
}

// Config parameterizes a Server. Every field is optional; a handler whose
// collaborator is nil reports 503 rather than panicking.
type Config struct {
	Backlog        BacklogTrigger
	BlockProcessor Flusher
	VoteProcessor  Flusher
	Providers      []StatusProvider
}

// Server is the handler-table dispatch the daemon registers on its
// listen address: one handlerFunc per exposed command, matching the
// teacher's server/rpc shape but trimmed to exactly what SPEC_FULL.md §6
// names.
type Server struct {
	cfg    Config
	mux    *http.ServeMux
	server *http.Server
}

type handlerFunc func(w http.ResponseWriter, r *http.Request)

// New builds the dispatch table and wires it into an http.ServeMux.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	handlers := map[string]handlerFunc{
		"/backlog/trigger":      s.handleBacklogTrigger,
		"/blockprocessor/flush": s.handleBlockProcessorFlush,
		"/voteprocessor/flush":  s.handleVoteProcessorFlush,
		"/status":               s.handleStatus,
	}
	for path, handler := range handlers {
		s.mux.HandleFunc(path, handler)
	}
	return s
}

// Start binds listenAddr and serves requests until Stop shuts it down.
// Serving happens on a background goroutine; any error other than the
// clean shutdown from Stop is logged.
func (s *Server) Start(listenAddr string) error {
	s.server = &http.Server{Addr: listenAddr, Handler: s.mux}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warnf("rpc server stopped: %s", err)
		}
	}()
	log.Infof("RPC server listening on %s", listenAddr)
	return nil
}

// Stop gracefully shuts down the server, unblocking Start's background
// goroutine.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(context.Background())
}

func (s *Server) handleBacklogTrigger(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Backlog == nil {
		http.Error(w, "backlog populator not configured", http.StatusServiceUnavailable)
		return
	}
	s.cfg.Backlog.Trigger()
	writeJSON(w, map[string]bool{"triggered": true})
}

func (s *Server) handleBlockProcessorFlush(w http.ResponseWriter, r *http.Request) {
	if s.cfg.BlockProcessor == nil {
		http.Error(w, "block processor not configured", http.StatusServiceUnavailable)
		return
	}
	s.cfg.BlockProcessor.Flush()
	writeJSON(w, map[string]bool{"flushed": true})
}

func (s *Server) handleVoteProcessorFlush(w http.ResponseWriter, r *http.Request) {
	if s.cfg.VoteProcessor == nil {
		http.Error(w, "vote processor not configured", http.StatusServiceUnavailable)
		return
	}
	s.cfg.VoteProcessor.Flush()
	writeJSON(w, map[string]bool{"flushed": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := make(map[string]interface{}, len(s.cfg.Providers))
	for _, provider := range s.cfg.Providers {
		for k, v := range provider.Status() {
			snapshot[k] = v
		}
	}
	writeJSON(w, snapshot)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("failed to encode rpc response: %s", err)
	}
}
