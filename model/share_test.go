package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShareExpiryBoundaries(t *testing.T) {
	now := time.Now().UTC()

	share := Share{
		Status:     ShareStatusActive,
		ClickCount: 49,
		MaxClicks:  50,
		ExpiresAt:  now.Add(time.Hour),
	}
	assert.False(t, share.IsExpired(now))
	assert.True(t, share.IsAccessible(now))

	share.ClickCount = 50
	assert.True(t, share.IsExpired(now))
	assert.False(t, share.IsAccessible(now))

	share.ClickCount = 0
	share.ExpiresAt = now
	assert.True(t, share.IsExpired(now), "expiry instant counts as expired")

	share.ExpiresAt = now.Add(time.Nanosecond)
	assert.False(t, share.IsExpired(now))

	share.Status = ShareStatusDeleted
	assert.False(t, share.IsAccessible(now))
}

func TestGenerateShareID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := GenerateShareID()
		assert.Len(t, id, 8)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 90)
}
