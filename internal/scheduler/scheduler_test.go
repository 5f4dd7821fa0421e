package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/domain"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/logger"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/retrycore"
)

func chunks(n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{Index: uint(i), RemoteURI: fmt.Sprintf("gs://bucket/chunk_%03d.mp4", i)}
	}
	return out
}

func TestBuildItemsExpandsLanguagesAndFlags(t *testing.T) {
	items := BuildItems(chunks(2), []string{"eng"}, true)
	assert.Len(t, items, 4) // 2 chunks * 1 language * 2 flags
}

func TestBuildItemsHinDualMethod(t *testing.T) {
	items := BuildItems(chunks(1), []string{"hin"}, false)
	require.Len(t, items, 2)
	methods := map[domain.PromptMethod]bool{}
	for _, it := range items {
		methods[it.Method] = true
	}
	assert.True(t, methods[domain.MethodDirect])
	assert.True(t, methods[domain.MethodTranslate])
}

func TestBuildItemsNonHinHasNoMethod(t *testing.T) {
	items := BuildItems(chunks(1), []string{"eng"}, false)
	require.Len(t, items, 1)
	assert.Equal(t, domain.MethodNone, items[0].Method)
}

func TestRunAllSucceed(t *testing.T) {
	core := retrycore.New()
	log := logger.Nop()
	items := BuildItems(chunks(3), []string{"eng"}, false)

	sched := New(core, log, 4,
		func(ctx context.Context, uri, lang string, flags GenFlags) (string, error) {
			return "1\n00:00:00,000 --> 00:00:01,000\nhi\n", nil
		},
		func(ctx context.Context, item Item, content string) (string, error) {
			return fmt.Sprintf("blob/%d", item.Chunk.Index), nil
		},
	)

	results, agg := sched.Run(context.Background(), items)
	require.Len(t, results, 3)
	assert.Equal(t, 3, agg.SuccessCount)
	assert.Equal(t, 0, agg.FailureCount)
	assert.Equal(t, 1.0, agg.Rate)
}

func TestRunPartialFailureAggregation(t *testing.T) {
	core := retrycore.New()
	log := logger.Nop()
	items := BuildItems(chunks(4), []string{"eng"}, false)

	var mu sync.Mutex
	failedOnce := map[uint]bool{}

	sched := New(core, log, 2,
		func(ctx context.Context, uri, lang string, flags GenFlags) (string, error) {
			return "1\n00:00:00,000 --> 00:00:01,000\nhi\n", nil
		},
		func(ctx context.Context, item Item, content string) (string, error) {
			if item.Chunk.Index%2 == 0 {
				mu.Lock()
				failedOnce[item.Chunk.Index] = true
				mu.Unlock()
				return "", errors.New("upload failed: permanent")
			}
			return fmt.Sprintf("blob/%d", item.Chunk.Index), nil
		},
	)

	results, agg := sched.Run(context.Background(), items)
	require.Len(t, results, 4)
	assert.Equal(t, 2, agg.SuccessCount)
	assert.Equal(t, 2, agg.FailureCount)
	assert.Equal(t, 0.5, agg.Rate)
}

func TestNewClampsWorkerCount(t *testing.T) {
	core := retrycore.New()
	log := logger.Nop()
	s := New(core, log, 0, nil, nil)
	assert.Equal(t, 4, s.workers)
	s = New(core, log, 100, nil, nil)
	assert.Equal(t, 8, s.workers)
}

func TestRunCancelledContextCountsUndispatchedAsFailures(t *testing.T) {
	core := retrycore.New()
	log := logger.Nop()
	items := BuildItems(chunks(6), []string{"eng"}, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sched := New(core, log, 2,
		func(ctx context.Context, uri, lang string, flags GenFlags) (string, error) {
			return "1\n00:00:00,000 --> 00:00:01,000\nhi\n", nil
		},
		func(ctx context.Context, item Item, content string) (string, error) {
			return fmt.Sprintf("blob/%d", item.Chunk.Index), nil
		},
	)

	results, agg := sched.Run(ctx, items)
	assert.LessOrEqual(t, len(results), len(items))
	assert.Equal(t, len(items), agg.SuccessCount+agg.FailureCount, "undispatched items must still be counted as failures, not dropped from the rate")
	assert.Less(t, agg.Rate, 1.0, "a cancelled run must not report a full success rate")
}

func TestRunEmptyItemsReturnsFullRate(t *testing.T) {
	core := retrycore.New()
	log := logger.Nop()
	s := New(core, log, 4, nil, nil)
	results, agg := s.Run(context.Background(), nil)
	assert.Nil(t, results)
	assert.Equal(t, 1.0, agg.Rate)
}
