// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/mcquery/internal/logger"
	"github.com/woozymasta/mcquery/internal/vars"
	"github.com/woozymasta/mcquery/pkg/rcon"
)

// Command names as typed on the command line.
const (
	CommandStatus      = "status"
	CommandQuery       = "query"
	CommandRcon        = "rcon"
	CommandServe       = "serve"
	CommandMaintenance = "maintenance"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Logger logger.Config `group:"Logger Options" namespace:"log" env-namespace:"MCQUERY_LOG"`

	Status      StatusCommand      `command:"status" description:"Fetch server list status over TCP"`
	Query       QueryCommand       `command:"query" description:"Fetch basic or full stat over UDP query"`
	Rcon        RconCommand        `command:"rcon" description:"Run commands over RCON"`
	Serve       ServeCommand       `command:"serve" description:"Run the HTTP API and the background tracker"`
	Maintenance MaintenanceCommand `command:"maintenance" description:"Prune snapshots and re-check tracked servers, then exit"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Target addresses a single game server.
type Target struct {
	// betteralign:ignore

	Host    string        `short:"H" long:"host" env:"MCQUERY_HOST" description:"Server host name or IP" required:"true"`
	Timeout time.Duration `short:"T" long:"timeout" env:"MCQUERY_TIMEOUT" description:"Timeout for every read and write" default:"5s"`
}

// StatusCommand holds options of the status command.
type StatusCommand struct {
	// betteralign:ignore

	Target
	Port     uint16 `short:"p" long:"port" env:"MCQUERY_PORT" description:"Server port" default:"25565"`
	Protocol int32  `long:"protocol" description:"Protocol version sent in the handshake" default:"-1"`
	NoPing   bool   `long:"no-ping" description:"Skip the latency round trip"`
}

// QueryCommand holds options of the query command.
type QueryCommand struct {
	// betteralign:ignore

	Target
	Port uint16 `short:"p" long:"port" env:"MCQUERY_QUERY_PORT" description:"Query port" default:"25565"`
	Full bool   `short:"f" long:"full" description:"Request full stat with the player list"`
}

// RconCommand holds options of the rcon command.
type RconCommand struct {
	// betteralign:ignore

	Target
	Port     uint16 `short:"p" long:"port" env:"MCQUERY_RCON_PORT" description:"RCON port" default:"25575"`
	Password string `short:"P" long:"password" env:"MCQUERY_RCON_PASSWORD" description:"RCON password" required:"true"`
	Fragment string `long:"fragment" env:"MCQUERY_RCON_FRAGMENT" description:"End of response detection" choice:"sentinel" choice:"short" default:"sentinel"`

	Args struct {
		Commands []string `positional-arg-name:"command" required:"1"`
	} `positional-args:"yes"`
}

// FragmentStrategy converts the fragment flag.
func (c RconCommand) FragmentStrategy() rcon.FragmentStrategy {
	s, _ := rcon.ParseFragmentStrategy(c.Fragment)
	return s
}

// ServeCommand holds options of the serve command.
type ServeCommand struct {
	// betteralign:ignore

	Server    Server    `group:"Server Options" env-namespace:"MCQUERY"`
	Storage   Storage   `group:"Storage Options" namespace:"db" env-namespace:"MCQUERY_DB"`
	GeoIP     GeoIP     `group:"GeoIP Options" namespace:"geoip" env-namespace:"MCQUERY_GEOIP"`
	RateLimit RateLimit `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"MCQUERY_RATE_LIMIT"`
	Tracker   Tracker   `group:"Tracker Options" namespace:"tracker" env-namespace:"MCQUERY_TRACKER"`
	Probe     Probe     `group:"Probe Options" namespace:"probe" env-namespace:"MCQUERY_PROBE"`
	A2S       A2S       `group:"A2S Options" namespace:"a2s" env-namespace:"MCQUERY_A2S"`
}

// MaintenanceCommand holds options of the maintenance command.
type MaintenanceCommand struct {
	// betteralign:ignore

	Storage Storage `group:"Storage Options" namespace:"db" env-namespace:"MCQUERY_DB"`
	Probe   Probe   `group:"Probe Options" namespace:"probe" env-namespace:"MCQUERY_PROBE"`
	A2S     A2S     `group:"A2S Options" namespace:"a2s" env-namespace:"MCQUERY_A2S"`

	PruneOlder        time.Duration `long:"prune-older" description:"Delete snapshots older than this duration"`
	CheckAll          bool          `long:"check-all" description:"Probe every tracked server and record a snapshot"`
	DeleteUnreachable bool          `long:"delete-unreachable" description:"With --check-all, delete servers that do not answer"`
	GenerateCount     int           `long:"gen-fake-data" hidden:"true" description:"Generate N fake servers with a day of history"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Address     string `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	AuthToken   string `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token" required:"true"`
	MaxBodySize int64  `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for incoming requests" default:"4096"`
	TrustProxy  bool   `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`

	DenyHosts []string `long:"deny-host" env:"DENY_HOSTS" env-delim:"," description:"Hosts that live probes refuse to contact"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path string `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"mcquery.db"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file" default:"mcquery.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
	Disabled bool          `long:"disabled" env:"DISABLED" description:"Disable country detection"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Hard IP limit: requests count" default:"30"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Hard IP limit: window duration" default:"1m"`
	SoftLimitDur   time.Duration `long:"soft-window" env:"SOFT_WINDOW" description:"Live probe answers are reused for this long" default:"10s"`
}

// Tracker holds background polling configuration.
type Tracker struct {
	// betteralign:ignore

	Interval      time.Duration `long:"interval" env:"INTERVAL" description:"Time between polling rounds" default:"1m"`
	Workers       int           `long:"workers" env:"WORKERS" description:"Concurrent probes" default:"10"`
	ProbesPerSec  float64       `long:"probes-per-second" env:"PROBES_PER_SECOND" description:"Probe rate limit across workers" default:"20"`
	BatchSize     int           `long:"batch-size" env:"BATCH_SIZE" description:"Snapshots per database transaction" default:"50"`
	FlushInterval time.Duration `long:"flush-interval" env:"FLUSH_INTERVAL" description:"Max time a snapshot waits before being written" default:"5s"`
	Retention     time.Duration `long:"retention" env:"RETENTION" description:"Snapshots older than this are pruned, 0 keeps all" default:"720h"`
}

// Probe holds Minecraft protocol configuration.
type Probe struct {
	// betteralign:ignore

	Timeout time.Duration `long:"timeout" env:"TIMEOUT" description:"Timeout for every read and write" default:"3s"`
	NoPing  bool          `long:"no-ping" env:"NO_PING" description:"Skip the status latency round trip"`
}

// A2S holds Source Query protocol configuration.
type A2S struct {
	// betteralign:ignore

	Timeout    time.Duration `long:"timeout" env:"TIMEOUT" description:"Query timeout" default:"3s"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Response body buffer size" default:"1400"`
}

// ErrNoCommand is returned when neither a command nor --version was given.
var ErrNoCommand = errors.New("please specify one command of: status, query, rcon, serve or maintenance")

// ParseArgs parses args and returns the configuration with the name of the selected command.
// The command is empty when only --version was requested.
func ParseArgs(args []string) (*Config, string, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	parser.NamespaceDelimiter = "-"
	parser.SubcommandsOptional = true

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, "", err
	}

	if cfg.Version {
		return &cfg, "", nil
	}
	if parser.Active == nil {
		return nil, "", ErrNoCommand
	}

	return &cfg, parser.Active.Name, nil
}

// Parse reads the configuration from os.Args and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() (*Config, string) {
	cfg, command, err := ParseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	return cfg, command
}
