// Package domain holds the shared value types of the pipeline: Job, Chunk,
// Fragment, and SubtitleEntry. These types carry no behavior of
// their own — every invariant is enforced by the component that produces or
// consumes them.
package domain

import "time"

// Stage is one step of the linear 10-stage pipeline state machine.
type Stage int

const (
	StageCreated Stage = iota
	StageValidating
	StageAnalyzing
	StageChunking
	StageConnectingStore
	StageUploading
	StageInitModel
	StageGenerating
	StageDownloading
	StageMerging
	StageFinalizing
	StageCompleted
	// StageFailed is the terminal sink; it does not participate in the
	// monotonic stage ordering above.
	StageFailed Stage = -1
)

var stageNames = map[Stage]string{
	StageCreated:         "Created",
	StageValidating:      "Validating",
	StageAnalyzing:       "Analyzing",
	StageChunking:        "Chunking",
	StageConnectingStore: "ConnectingStore",
	StageUploading:       "Uploading",
	StageInitModel:       "InitModel",
	StageGenerating:      "Generating",
	StageDownloading:     "Downloading",
	StageMerging:         "Merging",
	StageFinalizing:      "Finalizing",
	StageCompleted:       "Completed",
	StageFailed:          "Failed",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return "Unknown"
}

// Stages lists every non-terminal stage in pipeline order.
var Stages = []Stage{
	StageCreated, StageValidating, StageAnalyzing, StageChunking,
	StageConnectingStore, StageUploading, StageInitModel, StageGenerating,
	StageDownloading, StageMerging, StageFinalizing, StageCompleted,
}

// ErrorRecord captures everything needed to diagnose a fatal failure.
type ErrorRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	Stage      string    `json:"stage"`
	Identifier string    `json:"identifier,omitempty"`
	Retries    int       `json:"retries"`
}

// Job is the unit of work driven through the pipeline by the orchestrator.
// Metadata is a free-form bag keyed by stage name so each stage handler
// owns exactly the keys it writes.
type Job struct {
	ID             string         `json:"id"`
	SourcePath     string         `json:"source_path"`
	Languages      []string       `json:"languages"`
	ExtendedMode   bool           `json:"extended_mode"`
	Stage          Stage          `json:"stage"`
	Failed         bool           `json:"failed,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	ErrorRecord    *ErrorRecord   `json:"error_record,omitempty"`
	OutputDir      string         `json:"output_dir,omitempty"`
	Metadata       map[string]any `json:"metadata"`
	KeepTemp       bool           `json:"keep_temp,omitempty"`
	KeepCloud      bool           `json:"keep_cloud,omitempty"`
	StrictValidate bool           `json:"strict_validate,omitempty"`
}

// Chunk is a contiguous time-range slice of the source video.
type Chunk struct {
	Index     uint    `json:"index"`
	Start     float64 `json:"start"`
	Duration  float64 `json:"duration"`
	LocalPath string  `json:"local_path"`
	RemoteURI string  `json:"remote_uri,omitempty"`
	SizeBytes int64   `json:"size_bytes"`
}

// FlagVariant distinguishes the regular pass from the extended/SDH pass.
type FlagVariant string

const (
	FlagRegular  FlagVariant = "regular"
	FlagExtended FlagVariant = "extended"
)

// PromptMethod distinguishes the two independent hin prompt variants,
// direct and translate. It is empty for every other language.
type PromptMethod string

const (
	MethodNone      PromptMethod = ""
	MethodDirect    PromptMethod = "direct"
	MethodTranslate PromptMethod = "translate"
)

// Fragment is the generated subtitle for one (chunk, language, flag, method)
// combination.
type Fragment struct {
	ChunkIndex uint         `json:"chunk_index"`
	Language   string       `json:"language"`
	Flag       FlagVariant  `json:"flag"`
	Method     PromptMethod `json:"method,omitempty"`
	RemoteURI  string       `json:"remote_uri,omitempty"`
	LocalPath  string       `json:"local_path,omitempty"`
	Content    string       `json:"content,omitempty"`
}

// SubtitleEntry is one timed caption line within a merged track.
type SubtitleEntry struct {
	Seq     uint   `json:"seq"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}
