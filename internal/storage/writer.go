package storage

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcquery/internal/models"
)

// SnapshotSaver persists a batch of snapshots.
type SnapshotSaver interface {
	SaveSnapshots(batch []models.Snapshot) error
}

// StartWriter drains in into store in batches of batchSize, flushing a partial batch
// every interval. The returned channel is closed after in is closed and the last batch is written.
func StartWriter(store SnapshotSaver, in <-chan models.Snapshot, batchSize int, interval time.Duration) <-chan struct{} {
	if batchSize < 1 {
		batchSize = 1
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		batch := make([]models.Snapshot, 0, batchSize)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		flush := func(reason string) {
			if len(batch) == 0 {
				return
			}
			if err := store.SaveSnapshots(batch); err != nil {
				log.Error().Err(err).Int("count", len(batch)).Str("reason", reason).Msg("Failed to save snapshots")
			} else {
				log.Trace().Int("count", len(batch)).Str("reason", reason).Msg("Snapshots saved")
			}
			batch = batch[:0]
		}

		for {
			select {
			case snap, ok := <-in:
				if !ok {
					flush("closed")
					return
				}
				batch = append(batch, snap)
				if len(batch) >= batchSize {
					flush("size")
				}

			case <-ticker.C:
				flush("interval")
			}
		}
	}()

	return done
}
