package retrycore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProfileOrDefaultFallsBackOnUnknownName(t *testing.T) {
	assert.Equal(t, Profiles["default"], ProfileOrDefault("does-not-exist"))
	assert.Equal(t, Profiles["storage"], ProfileOrDefault("storage"))
}

func TestDelayRespectsCapAndJitterBand(t *testing.T) {
	p := Profiles["quota"]
	d := p.Delay(10)
	assert.GreaterOrEqual(t, d, p.Cap)
	assert.LessOrEqual(t, d, time.Duration(float64(p.Cap)*1.1)+time.Millisecond)
}

func TestDelayGrowsWithAttempt(t *testing.T) {
	p := Profiles["default"]
	first := p.Delay(1)
	second := p.Delay(2)
	assert.Less(t, first, p.Cap)
	assert.GreaterOrEqual(t, second, first)
}

func TestProfileNamesMatchSpec(t *testing.T) {
	for _, name := range []string{"default", "network", "storage", "ai", "quota"} {
		_, ok := Profiles[name]
		assert.True(t, ok, "profile %q must exist", name)
	}
}
