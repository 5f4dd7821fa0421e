package retrycore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQuotaForKnownAndUnknownKeys(t *testing.T) {
	assert.Equal(t, 30, QuotaFor("model"))
	assert.Equal(t, 100, QuotaFor("store"))
	assert.Equal(t, 60, QuotaFor("default"))
	assert.Equal(t, 60, QuotaFor("unlisted-key"))
}

func TestAdmitOrWaitAdmitsUnderQuota(t *testing.T) {
	tbl := newRateLimiterTable()
	now := time.Now()
	for i := 0; i < 5; i++ {
		delay, ok := tbl.admitOrWait("store", 5, now)
		assert.True(t, ok)
		assert.Zero(t, delay)
	}
	_, ok := tbl.admitOrWait("store", 5, now)
	assert.False(t, ok)
}

func TestAdmitOrWaitReturnsDelayWhenFull(t *testing.T) {
	tbl := newRateLimiterTable()
	now := time.Now()
	delay, ok := tbl.admitOrWait("model", 1, now)
	assert.True(t, ok)
	assert.Zero(t, delay)

	delay, ok = tbl.admitOrWait("model", 1, now.Add(time.Second))
	assert.False(t, ok)
	assert.Greater(t, delay, time.Duration(0))
	assert.LessOrEqual(t, delay, 60*time.Second)
}

func TestWindowPruneDropsOldCalls(t *testing.T) {
	tbl := newRateLimiterTable()
	now := time.Now()
	_, _ = tbl.admitOrWait("default", 1, now)
	_, ok := tbl.admitOrWait("default", 1, now.Add(61*time.Second))
	assert.True(t, ok, "call outside the 60s window should be pruned and admit a new one")
}
