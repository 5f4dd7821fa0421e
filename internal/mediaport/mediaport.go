// Package mediaport shells out to ffprobe and ffmpeg for video inspection
// and chunk cutting, following the common os/exec idiom for media tooling:
// build an argument slice, run the command, capture combined output for
// the error path.
package mediaport

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
)

// ProbeInfo is the subset of ffprobe output the pipeline needs to plan
// chunking and validate the input video.
type ProbeInfo struct {
	DurationSeconds float64
	Width           int
	Height          int
	FPS             float64
	VideoCodec      string
	AudioCodec      string
	SizeBytes       int64
}

// Port wraps ffprobe/ffmpeg invocation. FFprobePath/FFmpegPath default to
// "ffprobe" and "ffmpeg" resolved via PATH.
type Port struct {
	FFprobePath  string
	FFmpegPath   string
	ProbeTimeout time.Duration
}

// New constructs a Port with the standard PATH-resolved binaries and the
// minimum 30s probe timeout.
func New() *Port {
	return &Port{
		FFprobePath:  "ffprobe",
		FFmpegPath:   "ffmpeg",
		ProbeTimeout: 30 * time.Second,
	}
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

// Probe inspects path and returns duration, dimensions, codecs, and size.
// It fails with a VideoFormatError if there is no video stream, duration is
// non-positive, or the probe exceeds ProbeTimeout.
func (p *Port) Probe(ctx context.Context, path string) (ProbeInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.ProbeTimeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	cmd := exec.CommandContext(ctx, p.FFprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ProbeInfo{}, apierr.VideoFormat(path, apierr.New(apierr.KindVideoFormat, path, ctx.Err()))
		}
		return ProbeInfo{}, apierr.VideoFormat(path, errFrom(err, stderr.String()))
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return ProbeInfo{}, apierr.VideoFormat(path, err)
	}

	var video, audio *ffprobeStream
	for i := range out.Streams {
		s := &out.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			if audio == nil {
				audio = s
			}
		}
	}
	if video == nil {
		return ProbeInfo{}, apierr.VideoFormat(path, errNoVideoStream)
	}

	duration, _ := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if duration <= 0 {
		return ProbeInfo{}, apierr.VideoFormat(path, errNonPositiveDuration)
	}
	size, _ := strconv.ParseInt(strings.TrimSpace(out.Format.Size), 10, 64)

	info := ProbeInfo{
		DurationSeconds: duration,
		Width:           video.Width,
		Height:          video.Height,
		FPS:             parseFrameRate(video.RFrameRate),
		VideoCodec:      video.CodecName,
		SizeBytes:       size,
	}
	if audio != nil {
		info.AudioCodec = audio.CodecName
	}
	return info, nil
}

func parseFrameRate(rate string) float64 {
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(rate, 64)
		return v
	}
	num, errN := strconv.ParseFloat(parts[0], 64)
	den, errD := strconv.ParseFloat(parts[1], 64)
	if errN != nil || errD != nil || den == 0 {
		return 0
	}
	return num / den
}

// Cut extracts [startSec, startSec+durationSec) from path into outPath as a
// single standalone file, re-originating timestamps at zero. On
// any failure outPath is guaranteed not to exist.
func (p *Port) Cut(ctx context.Context, path string, startSec, durationSec float64, outPath string) error {
	_ = os.Remove(outPath)

	args := []string{
		"-hide_banner",
		"-ss", strconv.FormatFloat(startSec, 'f', 3, 64),
		"-i", path,
		"-t", strconv.FormatFloat(durationSec, 'f', 3, 64),
		"-avoid_negative_ts", "make_zero",
		"-reset_timestamps", "1",
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "aac",
		"-y", outPath,
	}
	cmd := exec.CommandContext(ctx, p.FFmpegPath, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(outPath)
		if ctx.Err() != nil {
			return apierr.VideoFormat(path, ctx.Err())
		}
		return apierr.VideoFormat(path, &CutError{Args: args, Output: string(output), Err: err})
	}
	if _, statErr := os.Stat(outPath); statErr != nil {
		return apierr.VideoFormat(path, statErr)
	}
	return nil
}

// CutError carries ffmpeg's combined output alongside the exec error, for
// diagnosing chunk-cut failures without re-running the command.
type CutError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CutError) Error() string {
	return "ffmpeg cut failed: " + e.Err.Error() + "\noutput: " + e.Output
}

func (e *CutError) Unwrap() error { return e.Err }

func errFrom(err error, stderr string) error {
	if strings.TrimSpace(stderr) == "" {
		return err
	}
	return &CutError{Err: err, Output: stderr}
}

var (
	errNoVideoStream       = videoFormatErr("no video stream present")
	errNonPositiveDuration = videoFormatErr("duration is non-positive")
)

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func videoFormatErr(msg string) error { return simpleErr(msg) }
