package storage

import (
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/mcquery/internal/models"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()

	repo, err := New(filepath.Join(t.TempDir(), "mcquery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func TestNew_ReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcquery.db")

	repo, err := New(path)
	require.NoError(t, err)
	_, err = repo.UpsertServer(models.Server{Host: "mc.example.org", Port: 25565})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = New(path)
	require.NoError(t, err)
	defer repo.Close()

	servers, err := repo.GetServers()
	require.NoError(t, err)
	assert.Len(t, servers, 1)
}

func TestMigrate_AppliesOnce(t *testing.T) {
	repo := newRepo(t)

	fsys := fstest.MapFS{
		"m/0002_extra.sql": {Data: []byte(`CREATE TABLE extra (id INTEGER);`)},
		"m/0003_more.sql":  {Data: []byte(`ALTER TABLE extra ADD COLUMN name TEXT;`)},
		"m/README.md":      {Data: []byte(`not sql`)},
	}

	n, err := migrate(repo.db, fsys, "m")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = migrate(repo.db, fsys, "m")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMigrate_BrokenFileRollsBack(t *testing.T) {
	repo := newRepo(t)

	fsys := fstest.MapFS{"m/0002_bad.sql": {Data: []byte(`CREATE TABLE;`)}}
	_, err := migrate(repo.db, fsys, "m")
	require.Error(t, err)

	var count int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = '0002_bad.sql'`).Scan(&count))
	assert.Zero(t, count)
}

func TestRepository_UpsertServer(t *testing.T) {
	repo := newRepo(t)

	id, err := repo.UpsertServer(models.Server{Name: "Lobby", Host: "mc.example.org", Port: 25565})
	require.NoError(t, err)

	// same address updates in place, an empty name keeps the old one
	again, err := repo.UpsertServer(models.Server{Host: "mc.example.org", Port: 25565, QueryPort: 25566})
	require.NoError(t, err)
	assert.Equal(t, id, again)

	s, err := repo.GetServer(id)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "Lobby", s.Name)
	assert.Equal(t, models.KindMinecraft, s.Kind)
	assert.Equal(t, 25566, s.QueryPort)
	assert.True(t, s.LastSeen.IsZero())
	assert.False(t, s.Online)

	// another kind on the same address is another server
	other, err := repo.UpsertServer(models.Server{Kind: models.KindA2S, Host: "mc.example.org", Port: 25565})
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	servers, err := repo.GetServers()
	require.NoError(t, err)
	assert.Len(t, servers, 2)
}

func TestRepository_GetServerMissing(t *testing.T) {
	repo := newRepo(t)

	s, err := repo.GetServer(42)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestRepository_Snapshots(t *testing.T) {
	repo := newRepo(t)

	id, err := repo.UpsertServer(models.Server{Host: "mc.example.org", Port: 25565})
	require.NoError(t, err)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.SaveSnapshots([]models.Snapshot{
		{ServerID: id, TakenAt: base, Online: true, Version: "1.21.4", Protocol: 769, MOTD: "A Minecraft Server",
			Players: 2, MaxPlayers: 20, PlayerNames: []string{"Alice", "Bob"}, LatencyMS: 12, FaviconHash: "abc"},
		{ServerID: id, TakenAt: base.Add(time.Minute), Error: "timeout"},
		{ServerID: id + 100, TakenAt: base}, // unknown server is dropped
	}))

	snaps, err := repo.GetSnapshots(id, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	assert.False(t, snaps[0].Online)
	assert.Equal(t, "timeout", snaps[0].Error)
	assert.Nil(t, snaps[0].PlayerNames)

	assert.True(t, snaps[1].Online)
	assert.Equal(t, []string{"Alice", "Bob"}, snaps[1].PlayerNames)
	assert.Equal(t, "1.21.4", snaps[1].Version)
	assert.Equal(t, int64(12), snaps[1].LatencyMS)
	assert.True(t, base.Equal(snaps[1].TakenAt))

	// offline after online: flag follows the last snapshot, last_seen the last successful one
	s, err := repo.GetServer(id)
	require.NoError(t, err)
	assert.False(t, s.Online)
	assert.True(t, base.Equal(s.LastSeen), "last_seen %s", s.LastSeen)

	limited, err := repo.GetSnapshots(id, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRepository_PruneSnapshots(t *testing.T) {
	repo := newRepo(t)

	id, err := repo.UpsertServer(models.Server{Host: "mc.example.org", Port: 25565})
	require.NoError(t, err)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.SaveSnapshots([]models.Snapshot{
		{ServerID: id, TakenAt: base},
		{ServerID: id, TakenAt: base.Add(time.Hour)},
		{ServerID: id, TakenAt: base.Add(2 * time.Hour)},
	}))

	n, err := repo.PruneSnapshots(base.Add(90 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	snaps, err := repo.GetSnapshots(id, 10)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestRepository_DeleteServer(t *testing.T) {
	repo := newRepo(t)

	id, err := repo.UpsertServer(models.Server{Host: "mc.example.org", Port: 25565})
	require.NoError(t, err)
	require.NoError(t, repo.SaveSnapshots([]models.Snapshot{{ServerID: id, TakenAt: time.Now()}}))
	require.NoError(t, repo.SetCountry(id, "DE"))

	s, err := repo.GetServer(id)
	require.NoError(t, err)
	assert.Equal(t, "DE", s.CountryCode)

	ok, err := repo.DeleteServer(id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DeleteServer(id)
	require.NoError(t, err)
	assert.False(t, ok)

	snaps, err := repo.GetSnapshots(id, 10)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

type recorder struct {
	mu      sync.Mutex
	batches [][]models.Snapshot
}

func (r *recorder) SaveSnapshots(batch []models.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batches = append(r.batches, append([]models.Snapshot(nil), batch...))
	return nil
}

func (r *recorder) sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []int
	for _, b := range r.batches {
		out = append(out, len(b))
	}
	return out
}

func TestStartWriter_BatchesAndFlushesOnClose(t *testing.T) {
	rec := &recorder{}
	in := make(chan models.Snapshot)
	done := StartWriter(rec, in, 2, time.Hour)

	for i := 0; i < 5; i++ {
		in <- models.Snapshot{ServerID: int64(i)}
	}
	close(in)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not stop")
	}

	assert.Equal(t, []int{2, 2, 1}, rec.sizes())
}

func TestStartWriter_FlushesOnInterval(t *testing.T) {
	rec := &recorder{}
	in := make(chan models.Snapshot)
	done := StartWriter(rec, in, 100, 20*time.Millisecond)
	defer func() {
		close(in)
		<-done
	}()

	in <- models.Snapshot{ServerID: 1}

	assert.Eventually(t, func() bool {
		return len(rec.sizes()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartWriter_IntoSQLite(t *testing.T) {
	repo := newRepo(t)

	id, err := repo.UpsertServer(models.Server{Host: "mc.example.org", Port: 25565})
	require.NoError(t, err)

	in := make(chan models.Snapshot, 3)
	done := StartWriter(repo, in, 10, time.Hour)
	for i := 0; i < 3; i++ {
		in <- models.Snapshot{ServerID: id, TakenAt: time.Now(), Online: true, Players: i}
	}
	close(in)
	<-done

	snaps, err := repo.GetSnapshots(id, 10)
	require.NoError(t, err)
	assert.Len(t, snaps, 3)
}
