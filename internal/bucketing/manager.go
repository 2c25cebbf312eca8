package bucketing

import (
	"hash"
	"sync"
	"time"

	"admin-auth-service/internal/config"

	"github.com/spaolacci/murmur3"
)

const dateLayout = "2006-01-02"

// BucketingManager spreads time-series rows (login attempts) across
// (date, bucket) partitions so a single busy day does not become one hot
// partition.
type BucketingManager struct {
	eventBuckets int
	hasherPool   sync.Pool
}

type BucketAssignment struct {
	DateBucket  string `json:"date_bucket"`
	EventBucket int    `json:"event_bucket"`
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	return NewBucketingManagerWithBuckets(cfg.Bucketing.EventBuckets)
}

func NewBucketingManagerWithBuckets(eventBuckets int) *BucketingManager {
	if eventBuckets < 1 {
		eventBuckets = 1
	}
	bm := &BucketingManager{eventBuckets: eventBuckets}
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return bm
}

// GetEventBucket returns a stable bucket in [0, EventBuckets).
func (bm *BucketingManager) GetEventBucket(identifier string) int {
	return int(bm.getHash(identifier) % uint64(bm.eventBuckets))
}

// GetDateBucket returns the UTC day of t.
func (bm *BucketingManager) GetDateBucket(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func (bm *BucketingManager) Assign(identifier string, at time.Time) BucketAssignment {
	return BucketAssignment{
		DateBucket:  bm.GetDateBucket(at),
		EventBucket: bm.GetEventBucket(identifier),
	}
}

// DateBucketsBetween lists every UTC day touched by [from, to], newest
// first, so readers can stop early once a limit is satisfied.
func (bm *BucketingManager) DateBucketsBetween(from, to time.Time) []string {
	if to.Before(from) {
		return nil
	}
	start := from.UTC().Truncate(24 * time.Hour)
	var days []string
	for d := to.UTC().Truncate(24 * time.Hour); !d.Before(start); d = d.Add(-24 * time.Hour) {
		days = append(days, d.Format(dateLayout))
	}
	return days
}

func (bm *BucketingManager) GetEventBuckets() int {
	return bm.eventBuckets
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
