// Package orchestrator drives a Job through the linear 10-stage pipeline
// state machine. The stage table, failure-policy dispatch, and per-stage
// save bookkeeping follow a DB-backed workflow-engine
// shape, adapted down to a single synchronous loop: this pipeline has one
// process per job and no queue to yield back to.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/config"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/domain"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/jobstore"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/logger"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/mediaport"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/merger"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/modelport"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/objectstore"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/retrycore"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/scheduler"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/validator"
)

// failurePolicy is the closed set of stage failure handling modes.
type failurePolicy int

const (
	failFast failurePolicy = iota
	retryStage
	partialOK
)

// stage couples a pipeline Stage constant with its handler and policy.
type stage struct {
	id     domain.Stage
	policy failurePolicy
	run    func(ctx context.Context, o *Orchestrator, job *domain.Job) error
}

// Orchestrator owns the ports and shared core every stage handler needs. It
// is single-threaded per job: Run must not be called concurrently
// for the same job.
type Orchestrator struct {
	cfg      config.Config
	log      *logger.Logger
	jobs     *jobstore.Store
	media    *mediaport.Port
	core     *retrycore.Core
	store    *objectstore.Port
	model    *modelport.Port
}

// New constructs an Orchestrator. store and model are nil until the
// ConnectingStore and InitModel stages populate them — this mirrors a fresh
// run; on resume Run re-invokes those two handlers to rebuild the ports
// even though their stages already completed.
func New(cfg config.Config, log *logger.Logger, jobs *jobstore.Store, media *mediaport.Port, core *retrycore.Core) *Orchestrator {
	return &Orchestrator{cfg: cfg, log: log.With("component", "orchestrator"), jobs: jobs, media: media, core: core}
}

func (o *Orchestrator) table() []stage {
	return []stage{
		{domain.StageValidating, failFast, (*Orchestrator).runValidating},
		{domain.StageAnalyzing, retryStage, (*Orchestrator).runAnalyzing},
		{domain.StageChunking, retryStage, (*Orchestrator).runChunking},
		{domain.StageConnectingStore, retryStage, (*Orchestrator).runConnectingStore},
		{domain.StageUploading, retryStage, (*Orchestrator).runUploading},
		{domain.StageInitModel, retryStage, (*Orchestrator).runInitModel},
		{domain.StageGenerating, partialOK, (*Orchestrator).runGenerating},
		{domain.StageDownloading, retryStage, (*Orchestrator).runDownloading},
		{domain.StageMerging, failFast, (*Orchestrator).runMerging},
		{domain.StageFinalizing, failFast, (*Orchestrator).runFinalizing},
	}
}

// Run drives job from its current stage through Completed or Failed.
// job.Stage holds the id of the last stage that completed successfully; on
// resume, every stage up to and including that one is skipped and replay
// resumes from the next one; the only exception is that the ConnectingStore
// and InitModel handlers run again when a later stage still needs the
// in-memory port they build. A job stops advancing Stage the moment a
// handler fails, so Stage always reflects real progress even after a
// failed run — handleStageErr sets job.Failed instead of touching Stage.
func (o *Orchestrator) Run(ctx context.Context, job *domain.Job) error {
	job.Failed = false

	for _, st := range o.table() {
		if job.Stage >= st.id {
			rebuild := (st.id == domain.StageConnectingStore && job.Stage < domain.StageFinalizing) ||
				(st.id == domain.StageInitModel && job.Stage < domain.StageGenerating)
			if rebuild {
				if err := o.invoke(ctx, st, job); err != nil {
					return o.handleStageErr(job, st, err)
				}
			}
			continue
		}

		startedAt := time.Now()
		if err := o.invoke(ctx, st, job); err != nil {
			return o.handleStageErr(job, st, err)
		}

		job.Stage = st.id
		o.log.Info("stage complete", "job", job.ID, "stage", st.id.String(), "elapsed", time.Since(startedAt))

		if err := o.jobs.Save(job); err != nil {
			return err
		}
	}

	job.Stage = domain.StageCompleted
	now := time.Now()
	job.CompletedAt = &now
	return o.jobs.Save(job)
}

// invoke runs a stage's handler, retrying through retrycore's backoff
// profiles when its policy is retryStage.
func (o *Orchestrator) invoke(ctx context.Context, st stage, job *domain.Job) error {
	if st.policy != retryStage {
		return st.run(ctx, o, job)
	}
	return o.core.Do(ctx, "default", "stage:"+st.id.String(), "", func(ctx context.Context) error {
		return st.run(ctx, o, job)
	})
}

// handleStageErr applies the stage's failure policy. partial-ok
// is handled inside runGenerating itself (it never returns an error on a
// rate at or above threshold), so by the time an error reaches here every policy
// collapses to fail-fast: mark Failed, persist, and return.
func (o *Orchestrator) handleStageErr(job *domain.Job, st stage, err error) error {
	job.Failed = true
	rec := &domain.ErrorRecord{
		Timestamp: time.Now(),
		Message:   err.Error(),
		Stage:     st.id.String(),
	}
	if apiErr, ok := err.(*apierr.Error); ok {
		rec.Kind = string(apiErr.Kind)
		rec.Identifier = apiErr.Identifier
		rec.Retries = apiErr.Retries
	}
	job.ErrorRecord = rec

	if saveErr := o.jobs.Save(job); saveErr != nil {
		o.log.Error("failed to persist failed job", "job", job.ID, "error", saveErr)
	}
	return err
}

func setMeta(job *domain.Job, key string, value any) {
	if job.Metadata == nil {
		job.Metadata = map[string]any{}
	}
	job.Metadata[key] = value
}

// runValidating checks the source file against Validating
// handler: existence, size band, extension allow-list, MIME, and a
// successful probe with duration ≤ 12h.
func (o *Orchestrator) runValidating(ctx context.Context, job *domain.Job) error {
	info, err := os.Stat(job.SourcePath)
	if err != nil {
		return apierr.Validation(job.SourcePath, fmt.Errorf("source not accessible: %w", err))
	}
	if info.IsDir() {
		return apierr.Validation(job.SourcePath, fmt.Errorf("source is a directory"))
	}
	if info.Size() < o.cfg.Processing.MinVideoBytes || info.Size() > o.cfg.Processing.MaxVideoBytes {
		return apierr.Validation(job.SourcePath, fmt.Errorf("size %d bytes outside allowed range", info.Size()))
	}

	ext := filepath.Ext(job.SourcePath)
	if !o.cfg.ExtensionAllowed(ext) {
		return apierr.Validation(job.SourcePath, fmt.Errorf("extension %q not allowed", ext))
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType != "" && !isVideoMIME(mimeType) {
		return apierr.Validation(job.SourcePath, fmt.Errorf("MIME type %q is not a video type", mimeType))
	}

	probe, err := o.media.Probe(ctx, job.SourcePath)
	if err != nil {
		return err
	}
	if probe.DurationSeconds > o.cfg.Processing.MaxVideoDurationSecs {
		return apierr.Validation(job.SourcePath, fmt.Errorf("duration %.0fs exceeds %0.fs maximum", probe.DurationSeconds, o.cfg.Processing.MaxVideoDurationSecs))
	}

	setMeta(job, "probe_duration_seconds", probe.DurationSeconds)
	return nil
}

func isVideoMIME(m string) bool {
	return len(m) >= 6 && m[:6] == "video/"
}

// runAnalyzing records the probe result and the chunk plan.
func (o *Orchestrator) runAnalyzing(ctx context.Context, job *domain.Job) error {
	probe, err := o.media.Probe(ctx, job.SourcePath)
	if err != nil {
		return err
	}

	chunkLen := o.cfg.Processing.ChunkDurationSeconds
	chunkCount := int(probe.DurationSeconds/chunkLen) + 1
	if float64(chunkCount-1)*chunkLen >= probe.DurationSeconds {
		chunkCount--
	}
	if chunkCount < 1 {
		chunkCount = 1
	}

	setMeta(job, "probe_duration_seconds", probe.DurationSeconds)
	setMeta(job, "probe_width", probe.Width)
	setMeta(job, "probe_height", probe.Height)
	setMeta(job, "chunk_count", chunkCount)
	setMeta(job, "chunk_duration_seconds", chunkLen)
	return nil
}

func (o *Orchestrator) jobTempDir(job *domain.Job) string {
	return filepath.Join(o.cfg.Directories.TempDir, job.ID)
}

// runChunking cuts the source into chunkCount pieces, skipping chunks that
// already exist and are non-empty.
func (o *Orchestrator) runChunking(ctx context.Context, job *domain.Job) error {
	chunkCountF, _ := job.Metadata["chunk_count"].(float64)
	chunkCount := int(chunkCountF)
	if chunkCount == 0 {
		if n, ok := job.Metadata["chunk_count"].(int); ok {
			chunkCount = n
		}
	}
	chunkLen, _ := job.Metadata["chunk_duration_seconds"].(float64)
	if chunkLen == 0 {
		chunkLen = o.cfg.Processing.ChunkDurationSeconds
	}

	dir := o.jobTempDir(job)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apierr.Resource(dir, err)
	}

	chunks := make([]domain.Chunk, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		outPath := filepath.Join(dir, fmt.Sprintf("chunk_%03d.mp4", i))
		if info, err := os.Stat(outPath); err == nil && info.Size() > 0 {
			chunks = append(chunks, domain.Chunk{Index: uint(i), Start: float64(i) * chunkLen, Duration: chunkLen, LocalPath: outPath, SizeBytes: info.Size()})
			continue
		}
		start := float64(i) * chunkLen
		if err := o.media.Cut(ctx, job.SourcePath, start, chunkLen, outPath); err != nil {
			return err
		}
		info, err := os.Stat(outPath)
		if err != nil || info.Size() == 0 {
			return apierr.VideoFormat(outPath, fmt.Errorf("chunk produced empty output"))
		}
		chunks = append(chunks, domain.Chunk{Index: uint(i), Start: start, Duration: chunkLen, LocalPath: outPath, SizeBytes: info.Size()})
	}

	setMeta(job, "chunks", chunks)
	return nil
}

// runConnectingStore creates or attaches the working bucket.
func (o *Orchestrator) runConnectingStore(ctx context.Context, job *domain.Job) error {
	if o.store != nil {
		return nil
	}
	opts := objectstore.Options{
		Mode:           objectstore.BucketMode(o.cfg.GCP.BucketMode),
		ProjectID:      o.cfg.GCP.ProjectID,
		Region:         o.cfg.GCP.Region,
		BucketPrefix:   o.cfg.GCP.BucketPrefix,
		ExistingBucket: o.cfg.GCP.ExistingBucket,
		CredentialPath: o.cfg.GCP.CredentialPath,
	}
	if bucket, ok := job.Metadata["bucket"].(string); ok && bucket != "" {
		opts.Mode = objectstore.ModeUseExisting
		opts.ExistingBucket = bucket
	}
	port, err := objectstore.New(ctx, o.log, opts)
	if err != nil {
		return err
	}
	o.store = port
	setMeta(job, "bucket", port.Bucket())
	return nil
}

// runUploading uploads every chunk, skipping blobs that already exist so
// a resumed job doesn't re-upload work already done.
func (o *Orchestrator) runUploading(ctx context.Context, job *domain.Job) error {
	chunks, err := decodeChunks(job)
	if err != nil {
		return err
	}

	for i := range chunks {
		blobName := fmt.Sprintf("%s/chunks/chunk_%03d.mp4", job.ID, chunks[i].Index)
		existing, listErr := o.store.List(ctx, blobName)
		if listErr == nil && len(existing) > 0 {
			chunks[i].RemoteURI = fmt.Sprintf("gs://%s/%s", o.store.Bucket(), blobName)
			continue
		}
		if err := o.core.Do(ctx, "storage", "store", "store", func(ctx context.Context) error {
			return o.store.Upload(ctx, chunks[i].LocalPath, blobName)
		}); err != nil {
			return err
		}
		chunks[i].RemoteURI = fmt.Sprintf("gs://%s/%s", o.store.Bucket(), blobName)
	}

	setMeta(job, "chunks", chunks)
	return nil
}

// runInitModel constructs the model port once per job.
func (o *Orchestrator) runInitModel(ctx context.Context, job *domain.Job) error {
	if o.model != nil {
		return nil
	}
	timeout, err := time.ParseDuration(o.cfg.Model.RequestTimeout)
	if err != nil {
		timeout = 10 * time.Minute
	}
	port, err := modelport.New(ctx, o.cfg.Model.ModelName, o.cfg.GCP.CredentialPath, timeout)
	if err != nil {
		return err
	}
	o.model = port
	return nil
}

// runGenerating hands work to the scheduler and accepts the result iff
// the success rate clears the configured threshold.
func (o *Orchestrator) runGenerating(ctx context.Context, job *domain.Job) error {
	chunks, err := decodeChunks(job)
	if err != nil {
		return err
	}

	items := scheduler.BuildItems(chunks, job.Languages, job.ExtendedMode)

	sched := scheduler.New(o.core, o.log, o.cfg.Processing.WorkerPoolSize,
		func(ctx context.Context, chunkRemoteURI, language string, flags scheduler.GenFlags) (string, error) {
			return o.model.Generate(ctx, chunkRemoteURI, language, modelport.Flags{Extended: flags.Extended, Method: flags.Method})
		},
		func(ctx context.Context, item scheduler.Item, content string) (string, error) {
			extSuffix := ""
			if item.Flag == domain.FlagExtended {
				extSuffix = "_ext"
			}
			methodSuffix := ""
			if item.Method != domain.MethodNone {
				methodSuffix = "_" + string(item.Method)
			}
			blobName := fmt.Sprintf("%s/subtitles/chunk_%03d_%s%s%s.srt", job.ID, item.Chunk.Index, item.Language, extSuffix, methodSuffix)
			tmp := filepath.Join(o.jobTempDir(job), fmt.Sprintf("frag_%03d_%s%s%s.srt", item.Chunk.Index, item.Language, extSuffix, methodSuffix))
			if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
				return "", apierr.Resource(tmp, err)
			}
			if err := o.store.Upload(ctx, tmp, blobName); err != nil {
				return "", err
			}
			return blobName, nil
		},
	)

	results, agg := sched.Run(ctx, items)

	var fragments []domain.Fragment
	var failures []string
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, fmt.Sprintf("chunk %d lang %s: %v", r.Item.Chunk.Index, r.Item.Language, r.Err))
			continue
		}
		fragments = append(fragments, r.Fragment)
	}

	setMeta(job, "fragments", fragments)
	setMeta(job, "generation_success_count", agg.SuccessCount)
	setMeta(job, "generation_failure_count", agg.FailureCount)
	setMeta(job, "generation_rate", agg.Rate)
	setMeta(job, "generation_failures", failures)

	threshold := o.cfg.Processing.SuccessRateThreshold
	if agg.Rate < threshold {
		return apierr.New(apierr.KindTransientModel, job.ID, fmt.Errorf("generation success rate %.2f below threshold %.2f", agg.Rate, threshold))
	}
	return nil
}

// runDownloading fetches every fragment's content into job-local storage.
// Content was already produced in-memory by the scheduler, so this stage
// only needs to re-read it back for fragments that weren't carried over
// (e.g. on resume after a crash past Generating).
func (o *Orchestrator) runDownloading(ctx context.Context, job *domain.Job) error {
	fragments, err := decodeFragments(job)
	if err != nil {
		return err
	}
	for i := range fragments {
		if fragments[i].Content != "" {
			continue
		}
		data, err := o.store.Download(ctx, fragments[i].RemoteURI)
		if err != nil {
			return err
		}
		fragments[i].Content = string(data)
	}
	setMeta(job, "fragments", fragments)
	return nil
}

// runMerging groups fragments by (language, flag) and invokes the merger,
// then runs the validator over each resulting track and records the
// reports.
func (o *Orchestrator) runMerging(ctx context.Context, job *domain.Job) error {
	fragments, err := decodeFragments(job)
	if err != nil {
		return err
	}
	chunkLen, _ := job.Metadata["chunk_duration_seconds"].(float64)
	if chunkLen == 0 {
		chunkLen = o.cfg.Processing.ChunkDurationSeconds
	}

	groups := groupFragments(fragments)
	stem := videoStem(job.SourcePath)

	var written []string
	var reports []validator.Report
	for _, g := range groups {
		track, err := merger.Merge(g, chunkLen)
		if err != nil {
			return err
		}
		paths, err := merger.WriteTrack(job.OutputDir, stem, track)
		if err != nil {
			return err
		}
		written = append(written, paths...)

		report := validator.Validate(g.Language, g.Flag, track.Entries)
		reports = append(reports, report)
		if job.StrictValidate && !report.ProductionReady {
			return apierr.Validation(fmt.Sprintf("%s_%s", g.Language, g.Flag), fmt.Errorf("validation failed in strict mode: %v", report.CriticalErrors))
		}
	}

	manifestPath, err := merger.WriteManifest(job.OutputDir, stem, written)
	if err != nil {
		return err
	}
	written = append(written, manifestPath)

	setMeta(job, "output_files", written)
	setMeta(job, "validation_reports", reports)
	return nil
}

// runFinalizing deletes local temp (unless keep-temp), deletes remote blobs
// (unless keep-cloud), and verifies outputs exist.
func (o *Orchestrator) runFinalizing(ctx context.Context, job *domain.Job) error {
	outputs, err := reencode[[]string](job.Metadata["output_files"])
	if err != nil {
		return err
	}
	for _, path := range outputs {
		if _, err := os.Stat(path); err != nil {
			return apierr.Resource(path, fmt.Errorf("expected output missing: %w", err))
		}
	}

	if !job.KeepTemp {
		_ = os.RemoveAll(o.jobTempDir(job))
	}
	if !job.KeepCloud && o.store != nil {
		o.store.Cleanup(ctx, job.ID+"/")
	}
	return nil
}

func decodeChunks(job *domain.Job) ([]domain.Chunk, error) {
	raw, ok := job.Metadata["chunks"]
	if !ok {
		return nil, apierr.New(apierr.KindMergeInvariant, job.ID, fmt.Errorf("missing chunks metadata"))
	}
	return reencode[[]domain.Chunk](raw)
}

func decodeFragments(job *domain.Job) ([]domain.Fragment, error) {
	raw, ok := job.Metadata["fragments"]
	if !ok {
		return nil, apierr.New(apierr.KindMergeInvariant, job.ID, fmt.Errorf("missing fragments metadata"))
	}
	return reencode[[]domain.Fragment](raw)
}

// reencode round-trips a decoded-JSON any value back into a typed value.
// Job.Metadata holds map[string]any after a jobstore.Load, so values written
// as typed structs during the same in-memory run (before the first Save)
// pass straight through via a type assertion; values reloaded from disk
// arrive as generic maps/slices and need this conversion instead.
func reencode[T any](raw any) (T, error) {
	var zero T
	if v, ok := raw.(T); ok {
		return v, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return zero, apierr.New(apierr.KindMergeInvariant, "metadata", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, apierr.New(apierr.KindMergeInvariant, "metadata", err)
	}
	return out, nil
}

func groupFragments(fragments []domain.Fragment) []merger.Group {
	type key struct {
		lang string
		flag domain.FlagVariant
	}
	order := []key{}
	byKey := map[key][]domain.Fragment{}
	for _, f := range fragments {
		k := key{f.Language, f.Flag}
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], f)
	}
	groups := make([]merger.Group, 0, len(order))
	for _, k := range order {
		groups = append(groups, merger.Group{Language: k.lang, Flag: k.flag, Fragments: byKey[k]})
	}
	return groups
}

func videoStem(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
