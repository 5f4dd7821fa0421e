// Package scheduler runs the chunk×language×flagVariant generation fan-out
// with partial-success semantics. The bounded worker pool is built on
// golang.org/x/sync/errgroup, with rate-limit/circuit-breaker gating and
// partial-success aggregation layered on top.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/domain"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/logger"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/retrycore"
)

// Item is one unit of scheduled work: produce a fragment for one chunk, in
// one language, under one flag variant (and, for hin, one prompt method).
type Item struct {
	Chunk    domain.Chunk
	Language string
	Flag     domain.FlagVariant
	Method   domain.PromptMethod
}

// Result is the per-item outcome.
type Result struct {
	Item     Item
	Fragment domain.Fragment
	Err      error
}

// Aggregate summarizes a Run.
type Aggregate struct {
	SuccessCount int
	FailureCount int
	Rate         float64
}

// Generator produces subtitle text for one item. Implemented by
// internal/modelport.Port.Generate, kept as a function type here so the
// scheduler has no direct dependency on the genai client.
type Generator func(ctx context.Context, chunkRemoteURI, language string, flags GenFlags) (string, error)

// GenFlags mirrors modelport.Flags without importing that package, keeping
// the scheduler independent of the model client's wire types.
type GenFlags struct {
	Extended bool
	Method   domain.PromptMethod
}

// Uploader persists generated fragment content to the store, returning the
// blob name it was written under.
type Uploader func(ctx context.Context, item Item, content string) (string, error)

// Scheduler runs Items through Generator and Uploader with bounded
// concurrency, rate limiting, and circuit breaking via the shared
// retrycore.Core.
type Scheduler struct {
	core     *retrycore.Core
	log      *logger.Logger
	workers  int
	generate Generator
	upload   Uploader
}

// New constructs a Scheduler. A workers value of zero or less becomes 4 and
// a value above 8 is capped at 8; values from 1 to 8 are used as given.
func New(core *retrycore.Core, log *logger.Logger, workers int, generate Generator, upload Uploader) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	if workers > 8 {
		workers = 8
	}
	return &Scheduler{core: core, log: log.With("component", "scheduler"), workers: workers, generate: generate, upload: upload}
}

// Run executes every item through the worker pool and returns per-item
// results (in completion order — re-sorting is the merger's job, not the
// scheduler's) plus the aggregate success rate.
func (s *Scheduler) Run(ctx context.Context, items []Item) ([]Result, Aggregate) {
	if len(items) == 0 {
		return nil, Aggregate{Rate: 1.0}
	}

	queue := make(chan Item)
	results := make(chan Result, len(items))

	var wg sync.WaitGroup
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for {
				select {
				case <-gctx.Done():
					return nil
				case item, ok := <-queue:
					if !ok {
						return nil
					}
					results <- s.runOne(gctx, item)
				}
			}
		})
	}

	g.Go(func() error {
		defer close(queue)
		for _, item := range items {
			select {
			case <-gctx.Done():
				return nil
			case queue <- item:
			}
		}
		return nil
	})

	go func() {
		wg.Wait()
		close(results)
	}()

	_ = g.Wait()

	all := make([]Result, 0, len(items))
	successCount := 0
	for r := range results {
		all = append(all, r)
		if r.Err == nil {
			successCount++
		}
	}

	cancelledCount := len(items) - len(all)
	failureCount := len(all) - successCount + cancelledCount
	rate := 0.0
	if len(items) > 0 {
		rate = float64(successCount) / float64(len(items))
	}

	s.log.Info("scheduler run complete", "total", len(items), "success", successCount, "failure", failureCount, "rate", rate)

	return all, Aggregate{SuccessCount: successCount, FailureCount: failureCount, Rate: rate}
}

// runOne executes the four-step per-item pipeline: wait on the rate
// limiter, generate through the retry façade, upload through the retry
// façade, and build the fragment record.
func (s *Scheduler) runOne(ctx context.Context, item Item) Result {
	identifier := fmt.Sprintf("chunk_%03d_%s_%s", item.Chunk.Index, item.Language, item.Flag)

	var content string
	genErr := s.core.Do(ctx, "ai", "model", "model", func(ctx context.Context) error {
		out, err := s.generate(ctx, item.Chunk.RemoteURI, item.Language, GenFlags{
			Extended: item.Flag == domain.FlagExtended,
			Method:   item.Method,
		})
		if err != nil {
			return err
		}
		content = out
		return nil
	})
	if genErr != nil {
		return Result{Item: item, Err: apierr.New(apierr.KindTransientModel, identifier, genErr)}
	}

	var blobName string
	upErr := s.core.Do(ctx, "storage", "store", "store", func(ctx context.Context) error {
		name, err := s.upload(ctx, item, content)
		if err != nil {
			return err
		}
		blobName = name
		return nil
	})
	if upErr != nil {
		return Result{Item: item, Err: apierr.Store(identifier, upErr)}
	}

	return Result{
		Item: item,
		Fragment: domain.Fragment{
			ChunkIndex: item.Chunk.Index,
			Language:   item.Language,
			Flag:       item.Flag,
			Method:     item.Method,
			RemoteURI:  blobName,
			Content:    content,
		},
	}
}

// BuildItems expands chunks × languages × flagVariants into a flat work
// list, applying the hin dual-method special case: hin gets two independent
// items (direct and translate) per (chunk, flag) instead of one.
func BuildItems(chunks []domain.Chunk, languages []string, extended bool) []Item {
	flags := []domain.FlagVariant{domain.FlagRegular}
	if extended {
		flags = append(flags, domain.FlagExtended)
	}

	var items []Item
	for _, chunk := range chunks {
		for _, lang := range languages {
			for _, flag := range flags {
				if lang == "hin" {
					items = append(items,
						Item{Chunk: chunk, Language: lang, Flag: flag, Method: domain.MethodDirect},
						Item{Chunk: chunk, Language: lang, Flag: flag, Method: domain.MethodTranslate},
					)
					continue
				}
				items = append(items, Item{Chunk: chunk, Language: lang, Flag: flag, Method: domain.MethodNone})
			}
		}
	}
	return items
}
