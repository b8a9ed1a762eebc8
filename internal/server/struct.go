package server

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/woozymasta/mcquery/internal/config"
	"github.com/woozymasta/mcquery/internal/models"
)

// Repository is the part of the storage layer the HTTP API reads and writes.
type Repository interface {
	UpsertServer(s models.Server) (int64, error)
	GetServers() ([]models.Server, error)
	GetServer(id int64) (*models.Server, error)
	DeleteServer(id int64) (bool, error)
	GetSnapshots(serverID int64, limit int) ([]models.Snapshot, error)
}

// Server holds the dependencies, configuration, and runtime state required
// to handle HTTP requests.
type Server struct {
	// storage provides access to tracked servers and their snapshots.
	storage Repository

	// deniedHosts is a set of hashed host names (using xxhash) that live probes
	// refuse to contact.
	deniedHosts map[uint64]struct{}

	// shutdown is a signal channel that stops the cache cleanup routine.
	shutdown chan struct{}

	// liveCache holds recent live probe answers keyed by the xxhash of their address.
	// It supports the "soft rate limit" logic so repeated lookups do not hit the game server.
	liveCache sync.Map

	// log is handed to the protocol clients for their debug records.
	log zerolog.Logger

	// authToken is the secret token required to access administrative API endpoints.
	authToken string

	// probeOptions holds timeouts for live Minecraft probes.
	probeOptions config.Probe

	// a2sOptions holds configuration settings for live A2S queries.
	a2sOptions config.A2S

	// maxBody specifies the maximum allowed size (in bytes) for incoming HTTP request bodies.
	maxBody int64

	// hardLimitCount is the maximum number of requests allowed per IP address
	// within the hardLimitWin duration.
	hardLimitCount int

	// hardLimitWin is the time window duration for the hard rate limiter.
	hardLimitWin time.Duration

	// softLimitDur is how long a live probe answer is served from liveCache.
	softLimitDur time.Duration

	// trustProxy indicates whether the server should trust headers like X-Forwarded-For
	// or CF-Connecting-IP when determining the client's real IP address.
	trustProxy bool
}

// liveEntry is a cached live probe answer.
type liveEntry struct {
	at     time.Time
	body   []byte
	status int
}
