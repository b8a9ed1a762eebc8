package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcquery/internal/game"
	"github.com/woozymasta/mcquery/internal/models"
	"github.com/woozymasta/mcquery/internal/vars"
	"github.com/woozymasta/mcquery/pkg/mcerr"
	"github.com/woozymasta/mcquery/pkg/query"
	"github.com/woozymasta/mcquery/pkg/status"
)

const (
	defaultGamePort = 25565

	defaultSnapshotLimit = 50
	maxSnapshotLimit     = 1000
)

// handleVersion returns build information.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Info())
}

// handleLiveStatus fetches the server list status of a server right now.
// Query params: ?host=mc.example.org&port=25565&protocol=-1
func (s *Server) handleLiveStatus(w http.ResponseWriter, r *http.Request) {
	host, port, ok := s.target(w, r, defaultGamePort)
	if !ok {
		return
	}

	protocol := status.DefaultProtocolVersion
	if v := r.URL.Query().Get("protocol"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			http.Error(w, "Invalid protocol", http.StatusBadRequest)
			return
		}
		protocol = int32(n)
	}

	key := fmt.Sprintf("status|%s|%d|%d", host, port, protocol)
	s.live(w, r, key, func() (any, error) {
		opts := []status.Option{status.WithLogger(s.log), status.WithProtocolVersion(protocol)}
		if s.probeOptions.NoPing {
			opts = append(opts, status.WithoutPing())
		}

		return status.Fetch(r.Context(), host, port, s.probeOptions.Timeout, opts...)
	})
}

// handleLiveQuery fetches basic or full stat of a server right now.
// Query params: ?host=mc.example.org&port=25565&full=1
func (s *Server) handleLiveQuery(w http.ResponseWriter, r *http.Request) {
	host, port, ok := s.target(w, r, defaultGamePort)
	if !ok {
		return
	}

	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))

	key := fmt.Sprintf("query|%s|%d|%t", host, port, full)
	s.live(w, r, key, func() (any, error) {
		if full {
			return query.Full(r.Context(), host, port, s.probeOptions.Timeout, query.WithLogger(s.log))
		}
		return query.Basic(r.Context(), host, port, s.probeOptions.Timeout, query.WithLogger(s.log))
	})
}

// handleLiveA2S performs a live A2S query to a specific game server.
// It acts as a proxy to retrieve real-time server status.
// Query params: ?host=1.2.3.4&port=2302
func (s *Server) handleLiveA2S(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("port") == "" {
		http.Error(w, "Missing port", http.StatusBadRequest)
		return
	}
	host, port, ok := s.target(w, r, 0)
	if !ok {
		return
	}

	info, err := game.QueryServer(host, int(port), s.a2sOptions)
	if err != nil {
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// target reads and validates the host and port query parameters.
func (s *Server) target(w http.ResponseWriter, r *http.Request, defaultPort uint16) (string, uint16, bool) {
	host := r.URL.Query().Get("host")
	if host == "" {
		http.Error(w, "Missing host", http.StatusBadRequest)
		return "", 0, false
	}

	port := defaultPort
	if v := r.URL.Query().Get("port"); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil || n == 0 {
			http.Error(w, "Invalid port", http.StatusBadRequest)
			return "", 0, false
		}
		port = uint16(n)
	}

	if s.denied(host) {
		log.Debug().Str("host", host).Str("ip", GetRealIP(r, s.trustProxy)).Msg("Live probe of denied host")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return "", 0, false
	}

	return host, port, true
}

// live answers from the live cache when a fresh entry exists, otherwise runs probe
// and caches its outcome, failures included. An outcome cut short by the client
// going away is not cached.
func (s *Server) live(w http.ResponseWriter, r *http.Request, key string, probe func() (any, error)) {
	hash := xxhash.Sum64String(key)

	if v, ok := s.liveCache.Load(hash); ok {
		if e, ok := v.(liveEntry); ok && time.Since(e.at) < s.softLimitDur {
			w.Header().Set("X-Cache", "HIT")
			writeRaw(w, e.status, e.body)
			return
		}
	}

	code := http.StatusOK
	result, err := probe()
	if err != nil {
		code = errorStatus(err)
		result = errorBody(err)
	}

	body, err := json.Marshal(result)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to encode live probe result")
		http.Error(w, "Encoding Error", http.StatusInternalServerError)
		return
	}

	if err := r.Context().Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Client left during live probe, result not cached")
	} else if s.softLimitDur > 0 {
		s.liveCache.Store(hash, liveEntry{at: time.Now(), body: body, status: code})
	}
	w.Header().Set("X-Cache", "MISS")
	writeRaw(w, code, body)
}

// errorStatus maps a protocol error kind to an HTTP status code.
func errorStatus(err error) int {
	if errors.Is(err, mcerr.ErrTimeout) {
		return http.StatusGatewayTimeout
	}

	return http.StatusBadGateway
}

func errorBody(err error) map[string]string {
	body := map[string]string{"error": err.Error()}
	if kind := mcerr.KindOf(err); kind != nil {
		body["kind"] = kind.Error()
	}

	return body
}

// handleServers returns a JSON list of all tracked servers.
func (s *Server) handleServers(w http.ResponseWriter, _ *http.Request) {
	servers, err := s.storage.GetServers()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch servers")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	if servers == nil {
		servers = []models.Server{}
	}

	writeJSON(w, http.StatusOK, servers)
}

// handleGetServer returns a tracked server with its most recent snapshots.
// Query params: ?id=1&limit=50
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	id, ok := serverID(w, r)
	if !ok {
		return
	}

	limit := defaultSnapshotLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxSnapshotLimit)
	}

	srv, err := s.storage.GetServer(id)
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("Failed to fetch server")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}
	if srv == nil {
		http.NotFound(w, r)
		return
	}

	snaps, err := s.storage.GetSnapshots(id, limit)
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("Failed to fetch snapshots")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, models.ServerDetails{Server: *srv, Snapshots: snaps})
}

// handleAddServer starts tracking a server. Re-adding a known address updates its name and query port.
func (s *Server) handleAddServer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var req models.ServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debug().Err(err).Str("ip", GetRealIP(r, s.trustProxy)).Msg("Invalid JSON")
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Kind == "" {
		req.Kind = models.KindMinecraft
	}
	if err := validate(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.storage.UpsertServer(models.Server{
		Name:      req.Name,
		Kind:      req.Kind,
		Host:      req.Host,
		Port:      req.Port,
		QueryPort: req.QueryPort,
	})
	if err != nil {
		log.Error().Err(err).Str("host", req.Host).Int("port", req.Port).Msg("Failed to save server")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}

	log.Info().
		Int64("id", id).
		Str("kind", req.Kind).
		Str("host", req.Host).
		Int("port", req.Port).
		Msg("Server tracked")

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func validate(req models.ServerRequest) error {
	switch {
	case req.Kind != models.KindMinecraft && req.Kind != models.KindA2S:
		return fmt.Errorf("unknown kind %q", req.Kind)
	case req.Host == "":
		return errors.New("missing host")
	case req.Port < 1 || req.Port > 65535:
		return errors.New("invalid port")
	case req.QueryPort < 0 || req.QueryPort > 65535:
		return errors.New("invalid query_port")
	}

	return nil
}

// handleDeleteServer stops tracking a server and drops its snapshots.
// Query params: ?id=1
func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id, ok := serverID(w, r)
	if !ok {
		return
	}

	found, err := s.storage.DeleteServer(id)
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("Failed to delete server")
		http.Error(w, "Database Error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}

	log.Info().Int64("id", id).Msg("Server deleted manually")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Server deleted"})
}

func serverID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	v := r.URL.Query().Get("id")
	if v == "" {
		http.Error(w, "Missing id", http.StatusBadRequest)
		return 0, false
	}

	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}

	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
