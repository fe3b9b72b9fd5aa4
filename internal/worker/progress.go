package worker

import (
	"context"
	"log"
	"sync"

	"github.com/emberline/keepsake/internal/models"
	"github.com/google/uuid"
)

// progressTracker reports stage and percentage for one render attempt.
// Updates are clamped so reported progress never decreases within the
// attempt, and a failed write never fails the render — progress is advisory.
// Download goroutines report concurrently, so the clamp and the DB write
// happen under one lock; otherwise two updates could swap order between the
// clamp and the write and persist a decreasing value.
type progressTracker struct {
	store   Store
	videoID uuid.UUID

	mu   sync.Mutex
	last int
}

func newProgressTracker(store Store, videoID uuid.UUID) *progressTracker {
	return &progressTracker{store: store, videoID: videoID}
}

func (t *progressTracker) update(ctx context.Context, status models.VideoStatus, progress int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if progress < t.last {
		progress = t.last
	}
	if progress > 100 {
		progress = 100
	}
	t.last = progress

	log.Printf("[Render] video=%s status=%s progress=%d%%", t.videoID, status, progress)

	if err := t.store.UpdateVideoProgress(ctx, t.videoID, status, progress); err != nil {
		log.Printf("[Render] Failed to persist progress for video %s: %v", t.videoID, err)
	}
}

// span maps a completed/total ratio into the sub-range [lo, hi].
func span(lo, hi, done, total int) int {
	if total <= 0 {
		return lo
	}
	if done > total {
		done = total
	}
	return lo + (hi-lo)*done/total
}
