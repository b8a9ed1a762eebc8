// Package server implements the HTTP server, middleware, and request handlers for the application.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/woozymasta/mcquery/internal/config"
)

// New creates a new Server instance with the provided storage and configuration.
func New(store Repository, cfg config.ServeCommand, log zerolog.Logger) *Server {
	denied := make(map[uint64]struct{})
	for _, host := range cfg.Server.DenyHosts {
		denied[hostHash(host)] = struct{}{}
	}

	return &Server{
		storage:        store,
		deniedHosts:    denied,
		log:            log,
		authToken:      cfg.Server.AuthToken,
		probeOptions:   cfg.Probe,
		a2sOptions:     cfg.A2S,
		maxBody:        cfg.Server.MaxBodySize,
		trustProxy:     cfg.Server.TrustProxy,
		hardLimitCount: cfg.RateLimit.HardLimitCount,
		hardLimitWin:   cfg.RateLimit.HardLimitWin,
		softLimitDur:   cfg.RateLimit.SoftLimitDur,

		shutdown: make(chan struct{}),
	}
}

// StartWorkers launches the live cache cleanup routine.
func (s *Server) StartWorkers() {
	go s.gcLiveCache()
}

// StopWorkers stops the background routines.
func (s *Server) StopWorkers() {
	close(s.shutdown)
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/version", http.HandlerFunc(s.handleVersion))

	limited := s.RateLimitMiddleware()
	mux.Handle("GET /api/status", limited(http.HandlerFunc(s.handleLiveStatus)))
	mux.Handle("GET /api/query", limited(http.HandlerFunc(s.handleLiveQuery)))
	mux.Handle("GET /api/servers", limited(http.HandlerFunc(s.handleServers)))
	mux.Handle("GET /api/server", limited(http.HandlerFunc(s.handleGetServer)))

	mux.Handle("GET /api/a2s", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleLiveA2S)))
	mux.Handle("POST /api/servers", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleAddServer)))
	mux.Handle("DELETE /api/server", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleDeleteServer)))

	return s.LoggingMiddleware(mux)
}

// gcLiveCache periodically cleans up expired entries from the live probe cache.
func (s *Server) gcLiveCache() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.evictLiveCache(time.Now())
		}
	}
}

func (s *Server) evictLiveCache(now time.Time) {
	s.liveCache.Range(func(key, value any) bool {
		if e, ok := value.(liveEntry); !ok || now.Sub(e.at) > s.softLimitDur {
			s.liveCache.Delete(key)
		}
		return true
	})
}

// hostHash normalizes a host name for the deny set.
func hostHash(host string) uint64 {
	return xxhash.Sum64String(strings.ToLower(strings.TrimSuffix(host, ".")))
}

// denied reports whether live probes must not contact host.
func (s *Server) denied(host string) bool {
	if len(s.deniedHosts) == 0 {
		return false
	}
	_, ok := s.deniedHosts[hostHash(host)]

	return ok
}
