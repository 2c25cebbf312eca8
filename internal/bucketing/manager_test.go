package bucketing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBucketIsStableAndInRange(t *testing.T) {
	bm := NewBucketingManagerWithBuckets(8)
	for _, id := range []string{"a@x.com", "b@x.com", "203.0.113.9", ""} {
		b := bm.GetEventBucket(id)
		assert.GreaterOrEqual(t, b, 0)
		assert.Less(t, b, 8)
		assert.Equal(t, b, bm.GetEventBucket(id))
	}
}

func TestZeroBucketsFallsBackToOne(t *testing.T) {
	bm := NewBucketingManagerWithBuckets(0)
	assert.Equal(t, 1, bm.GetEventBuckets())
	assert.Equal(t, 0, bm.GetEventBucket("anything"))
}

func TestDateBucketsBetween(t *testing.T) {
	bm := NewBucketingManagerWithBuckets(4)
	to := time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC)
	from := to.Add(-49 * time.Hour)

	assert.Equal(t, []string{"2024-03-10", "2024-03-09", "2024-03-08"}, bm.DateBucketsBetween(from, to))
	assert.Equal(t, []string{"2024-03-10"}, bm.DateBucketsBetween(to, to))
	assert.Nil(t, bm.DateBucketsBetween(to, from))
}

func TestAssignUsesUTC(t *testing.T) {
	bm := NewBucketingManagerWithBuckets(4)
	loc := time.FixedZone("UTC+10", 10*3600)
	at := time.Date(2024, 3, 10, 5, 0, 0, 0, loc)

	assert.Equal(t, "2024-03-09", bm.Assign("a@x.com", at).DateBucket)
}
