package retrycore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
)

func TestClassifyTaggedKinds(t *testing.T) {
	assert.True(t, Classify(apierr.Network("x", errors.New("conn"))))
	assert.True(t, Classify(apierr.Store("x", errors.New("conn"))))
	assert.True(t, Classify(apierr.TransientModel("x", errors.New("conn"))))
	assert.True(t, Classify(apierr.Quota("x", errors.New("conn"))))

	assert.False(t, Classify(apierr.Validation("x", errors.New("bad input"))))
	assert.False(t, Classify(apierr.Auth("x", errors.New("denied"))))
	assert.False(t, Classify(apierr.Configuration("x", nil, errors.New("bad"))))
}

func TestClassifyUnwrapsWrappedAPIError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", apierr.Store("x", errors.New("timeout")))
	assert.True(t, Classify(wrapped))
}

func TestClassifyFallsBackToPatternMatch(t *testing.T) {
	assert.True(t, Classify(errors.New("upstream returned 503 Service Unavailable")))
	assert.True(t, Classify(errors.New("dial tcp: connection refused")))
	assert.False(t, Classify(errors.New("invalid argument: language not supported")))
}

func TestClassifyNilError(t *testing.T) {
	assert.False(t, Classify(nil))
}
