package fake

import (
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/mcquery/internal/models"
	"github.com/woozymasta/mcquery/internal/storage"
)

func TestGenerateData(t *testing.T) {
	repo, err := storage.New(filepath.Join(t.TempDir(), "mcquery.db"))
	require.NoError(t, err)
	defer repo.Close()

	created := GenerateData(repo, 5, rand.New(rand.NewPCG(1, 2)))
	servers, err := repo.GetServers()
	require.NoError(t, err)
	// random addresses may collide and update in place
	assert.Len(t, servers, created)
	assert.LessOrEqual(t, created, 5)

	for _, srv := range servers {
		assert.NotEmpty(t, srv.CountryCode)
		assert.Contains(t, []string{models.KindMinecraft, models.KindA2S}, srv.Kind)

		snaps, err := repo.GetSnapshots(srv.ID, 1000)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(snaps), snapshotsPerServer)

		for _, s := range snaps {
			if s.Online {
				assert.Len(t, s.PlayerNames, s.Players)
				assert.LessOrEqual(t, s.Players, s.MaxPlayers)
			} else {
				assert.NotEmpty(t, s.Error)
			}
		}
	}
}
