package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/mcquery/internal/config"
	"github.com/woozymasta/mcquery/internal/mctest"
	"github.com/woozymasta/mcquery/internal/models"
	"github.com/woozymasta/mcquery/pkg/status"
)

func newProber() *Prober {
	return New(config.Probe{Timeout: time.Second}, config.A2S{Timeout: time.Second}, zerolog.Nop())
}

func TestProbe_MinecraftStatus(t *testing.T) {
	host, port := mctest.StatusServer(t, mctest.Doc)

	snap := newProber().Probe(context.Background(), models.Server{ID: 7, Host: host, Port: int(port)})

	assert.Empty(t, snap.Error)
	assert.True(t, snap.Online)
	assert.Equal(t, int64(7), snap.ServerID)
	assert.Equal(t, "1.21.4", snap.Version)
	assert.Equal(t, 769, snap.Protocol)
	assert.Equal(t, "A Minecraft Server", snap.MOTD)
	assert.Equal(t, 2, snap.Players)
	assert.Equal(t, 20, snap.MaxPlayers)
	assert.Equal(t, []string{"Alice"}, snap.PlayerNames)
	assert.Len(t, snap.FaviconHash, 16)
	assert.False(t, snap.TakenAt.IsZero())
}

func TestProbe_MinecraftWithQuery(t *testing.T) {
	host, port := mctest.StatusServer(t, mctest.Doc)
	qport := mctest.QueryServer(t, []mctest.KV{
		{Key: "hostname", Value: "A Minecraft Server"},
		{Key: "map", Value: "world"},
		{Key: "numplayers", Value: "2"},
		{Key: "maxplayers", Value: "20"},
	}, []string{"Alice", "Bob"})

	snap := newProber().Probe(context.Background(), models.Server{Host: host, Port: int(port), QueryPort: int(qport)})

	assert.Empty(t, snap.Error)
	assert.True(t, snap.Online)
	assert.Equal(t, "world", snap.Map)
	assert.Equal(t, []string{"Alice", "Bob"}, snap.PlayerNames)
}

func TestProbe_QueryFailureKeepsOnline(t *testing.T) {
	host, port := mctest.StatusServer(t, mctest.Doc)

	p := New(config.Probe{Timeout: 100 * time.Millisecond}, config.A2S{}, zerolog.Nop())
	// nothing answers UDP on a closed TCP port number
	snap := p.Probe(context.Background(), models.Server{Host: host, Port: int(port), QueryPort: int(mctest.ClosedPort(t))})

	assert.True(t, snap.Online)
	assert.Contains(t, snap.Error, "query: ")
	assert.Equal(t, []string{"Alice"}, snap.PlayerNames)
}

func TestProbe_Unreachable(t *testing.T) {
	snap := newProber().Probe(context.Background(), models.Server{Host: "127.0.0.1", Port: int(mctest.ClosedPort(t))})

	assert.False(t, snap.Online)
	assert.NotEmpty(t, snap.Error)
}

func TestProbe_A2S(t *testing.T) {
	p := newProber()
	p.a2s = func(host string, port int, _ config.A2S) (*a2s.Info, error) {
		assert.Equal(t, "10.0.0.1", host)
		assert.Equal(t, 27016, port)
		return &a2s.Info{Name: "DayZ server", Map: "chernarusplus", Version: "1.26", Players: 5, MaxPlayers: 60}, nil
	}

	snap := p.Probe(context.Background(), models.Server{Kind: models.KindA2S, Host: "10.0.0.1", Port: 27016})

	assert.True(t, snap.Online)
	assert.Equal(t, "DayZ server", snap.MOTD)
	assert.Equal(t, "chernarusplus", snap.Map)
	assert.Equal(t, 5, snap.Players)
	assert.Equal(t, 60, snap.MaxPlayers)
}

func TestProbe_A2SError(t *testing.T) {
	p := newProber()
	p.a2s = func(string, int, config.A2S) (*a2s.Info, error) {
		return nil, errors.New("i/o timeout")
	}

	snap := p.Probe(context.Background(), models.Server{Kind: models.KindA2S, Host: "10.0.0.1", Port: 27016})
	assert.False(t, snap.Online)
	assert.Equal(t, "i/o timeout", snap.Error)
}

func TestProbe_UnknownKind(t *testing.T) {
	snap := newProber().Probe(context.Background(), models.Server{Kind: "quake", Host: "10.0.0.1", Port: 1})
	assert.False(t, snap.Online)
	assert.Contains(t, snap.Error, "quake")
}

func TestFill_StripsFormatting(t *testing.T) {
	var snap models.Snapshot
	Fill(&snap, &status.Response{
		Version:     status.Version{Name: "Paper 1.21", Protocol: 767},
		Description: status.Chat{Text: "§aGreen §lbold"},
		Latency:     42 * time.Millisecond,
	})

	assert.Equal(t, "Green bold", snap.MOTD)
	assert.Equal(t, int64(42), snap.LatencyMS)
	assert.Empty(t, snap.FaviconHash)
	assert.Nil(t, snap.PlayerNames)
}

func TestFaviconHash(t *testing.T) {
	a := FaviconHash("data:image/png;base64,AAAA")
	b := FaviconHash("data:image/png;base64,AAAB")

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, FaviconHash("data:image/png;base64,AAAA"))
	assert.Empty(t, FaviconHash(""))
}

func TestProbe_ContextCanceled(t *testing.T) {
	host, port := mctest.StatusServer(t, mctest.Doc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap := newProber().Probe(ctx, models.Server{Host: host, Port: int(port)})
	require.NotEmpty(t, snap.Error)
	assert.False(t, snap.Online)
}
