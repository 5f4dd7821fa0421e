// Package merger assembles downloaded subtitle fragments into final SRT and
// VTT tracks per (language, flag), using a tolerant parser and an
// offset-then-renumber algorithm for stitching chunk-local timestamps back
// onto the full track.
package merger

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/domain"
)

const utf8BOM = "\xef\xbb\xbf"

// maxMicroOverlapMs is the largest overlap (inclusive) the merger silently
// corrects by pulling the earlier entry's end back to the next entry's start.
const maxMicroOverlapMs = 10

var timestampPattern = regexp.MustCompile(`(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})\s*-->\s*(\d{1,2}):(\d{2}):(\d{2})[,.](\d{1,3})`)

// Group is one (language, flag) fragment set to merge, ordered arbitrarily
// on input — Merge sorts by ChunkIndex itself.
type Group struct {
	Language  string
	Flag      domain.FlagVariant
	Fragments []domain.Fragment
}

// Track is the merge result for one Group, ready for serialization.
type Track struct {
	Language string
	Flag     domain.FlagVariant
	Entries  []domain.SubtitleEntry
}

// Merge runs the merge algorithm over one group's fragments: sort by chunk
// index, parse, offset by chunkLen*index, concatenate (ordered by start
// time), resolve micro-overlaps, renumber, and verify invariants.
func Merge(group Group, chunkLenSeconds float64) (Track, error) {
	sorted := selectFragments(group.Fragments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkIndex < sorted[j].ChunkIndex })

	var entries []domain.SubtitleEntry
	offsetMs := func(idx uint) int64 {
		return int64(float64(idx) * chunkLenSeconds * 1000)
	}

	for _, frag := range sorted {
		parsed, err := ParseSRT(frag.Content)
		if err != nil {
			return Track{}, apierr.MergeInvariant(fmt.Sprintf("chunk_%03d", frag.ChunkIndex), err)
		}
		off := offsetMs(frag.ChunkIndex)
		for _, e := range parsed {
			entries = append(entries, domain.SubtitleEntry{
				StartMs: e.StartMs + off,
				EndMs:   e.EndMs + off,
				Text:    e.Text,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].StartMs < entries[j].StartMs })

	if err := resolveOverlaps(entries); err != nil {
		return Track{}, err
	}

	for i := range entries {
		entries[i].Seq = uint(i + 1)
	}

	if err := verifyInvariants(entries); err != nil {
		return Track{}, err
	}

	return Track{Language: group.Language, Flag: group.Flag, Entries: entries}, nil
}

// selectFragments resolves the hin dual-method special case: if a chunk has
// both a direct and a translate fragment, direct wins and the translate one
// is dropped. Every other language has at most one fragment per chunk and
// passes through unchanged.
func selectFragments(fragments []domain.Fragment) []domain.Fragment {
	byChunk := make(map[uint]domain.Fragment, len(fragments))
	for _, f := range fragments {
		existing, ok := byChunk[f.ChunkIndex]
		if !ok {
			byChunk[f.ChunkIndex] = f
			continue
		}
		if existing.Method == domain.MethodTranslate && f.Method == domain.MethodDirect {
			byChunk[f.ChunkIndex] = f
		}
	}
	out := make([]domain.Fragment, 0, len(byChunk))
	for _, f := range byChunk {
		out = append(out, f)
	}
	return out
}

// resolveOverlaps corrects overlaps of up to maxMicroOverlapMs by pulling
// the earlier entry's end back to the next entry's start, and fails on
// larger overlaps.
func resolveOverlaps(entries []domain.SubtitleEntry) error {
	for i := 0; i < len(entries)-1; i++ {
		cur := &entries[i]
		next := entries[i+1]
		if cur.EndMs <= next.StartMs {
			continue
		}
		overlap := cur.EndMs - next.StartMs
		if overlap > maxMicroOverlapMs {
			return apierr.MergeInvariant(
				fmt.Sprintf("entry_%d", i+1),
				fmt.Errorf("overlap of %dms between entries %d and %d exceeds %dms tolerance", overlap, i+1, i+2, maxMicroOverlapMs),
			)
		}
		cur.EndMs = next.StartMs
	}
	return nil
}

func verifyInvariants(entries []domain.SubtitleEntry) error {
	for i, e := range entries {
		if e.Seq != uint(i+1) {
			return apierr.MergeInvariant(fmt.Sprintf("entry_%d", i+1), fmt.Errorf("dense numbering violated"))
		}
		if e.EndMs <= e.StartMs {
			return apierr.MergeInvariant(fmt.Sprintf("entry_%d", e.Seq), fmt.Errorf("non-positive duration"))
		}
		if i > 0 && e.StartMs < entries[i-1].EndMs {
			return apierr.MergeInvariant(fmt.Sprintf("entry_%d", e.Seq), fmt.Errorf("timestamp not monotonic relative to previous entry"))
		}
	}
	return nil
}

// ParseSRT is the tolerant parser the merge algorithm's step 2 requires: it
// skips malformed blocks rather than failing the whole fragment, converts
// comma/dot decimal separators, and normalizes CRLF.
func ParseSRT(content string) ([]domain.SubtitleEntry, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = strings.TrimPrefix(content, utf8BOM)
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}

	blocks := regexp.MustCompile(`\n\s*\n`).Split(content, -1)
	var entries []domain.SubtitleEntry

	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) < 3 {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err != nil {
			continue
		}
		m := timestampPattern.FindStringSubmatch(strings.TrimSpace(lines[1]))
		if m == nil {
			continue
		}
		start := timestampMsFromMatch(m[1:4], m[4])
		end := timestampMsFromMatch(m[5:8], m[8])
		text := strings.TrimSpace(strings.Join(lines[2:], "\n"))
		if text == "" {
			continue
		}
		entries = append(entries, domain.SubtitleEntry{StartMs: start, EndMs: end, Text: text})
	}
	return entries, nil
}

func timestampMsFromMatch(hms []string, fracRaw string) int64 {
	h, _ := strconv.ParseInt(hms[0], 10, 64)
	m, _ := strconv.ParseInt(hms[1], 10, 64)
	s, _ := strconv.ParseInt(hms[2], 10, 64)
	frac := fracRaw
	for len(frac) < 3 {
		frac += "0"
	}
	frac = frac[:3]
	ms, _ := strconv.ParseInt(frac, 10, 64)
	return ((h*3600+m*60+s)*1000 + ms)
}

func msToTimestamp(ms int64, sep string) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms)
}

// RenderSRT serializes entries using comma as the decimal separator.
func RenderSRT(entries []domain.SubtitleEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", e.Seq, msToTimestamp(e.StartMs, ","), msToTimestamp(e.EndMs, ","), e.Text)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// RenderVTT serializes entries with a WEBVTT header and dot-separated
// timestamps.
func RenderVTT(entries []domain.SubtitleEntry) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", msToTimestamp(e.StartMs, "."), msToTimestamp(e.EndMs, "."), e.Text)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// WriteTrack writes the SRT and VTT for one track under outputRoot/videoStem
// using the <stem>_<lang>[_ext].srt|.vtt naming convention, UTF-8 with BOM.
// It returns the paths written, in SRT-then-VTT order.
func WriteTrack(outputRoot, videoStem string, track Track) ([]string, error) {
	dir := filepath.Join(outputRoot, videoStem)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierr.Resource(dir, err)
	}

	suffix := ""
	if track.Flag == domain.FlagExtended {
		suffix = "_ext"
	}
	base := fmt.Sprintf("%s_%s%s", videoStem, track.Language, suffix)

	srtPath := filepath.Join(dir, base+".srt")
	vttPath := filepath.Join(dir, base+".vtt")

	if err := writeWithBOM(srtPath, RenderSRT(track.Entries)); err != nil {
		return nil, err
	}
	if err := writeWithBOM(vttPath, RenderVTT(track.Entries)); err != nil {
		return nil, err
	}
	return []string{srtPath, vttPath}, nil
}

func writeWithBOM(path, content string) error {
	if err := os.WriteFile(path, []byte(utf8BOM+content), 0o644); err != nil {
		return apierr.Resource(path, err)
	}
	return nil
}

// WriteManifest writes the plain-text subtitle_info.txt summary listing every file produced for this video.
func WriteManifest(outputRoot, videoStem string, files []string) (string, error) {
	dir := filepath.Join(outputRoot, videoStem)
	manifestPath := filepath.Join(dir, videoStem+"_subtitle_info.txt")

	var b strings.Builder
	b.WriteString("Video Subtitle Generation Summary\n")
	b.WriteString("================================\n\n")
	fmt.Fprintf(&b, "Video: %s\n", videoStem)
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString("Generated Files:\n")

	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	for _, f := range sorted {
		info, err := os.Stat(f)
		size := int64(0)
		if err == nil {
			size = info.Size()
		}
		fmt.Fprintf(&b, "  - %s (%d bytes)\n", filepath.Base(f), size)
	}
	fmt.Fprintf(&b, "\nTotal Files: %d\n", len(files))

	if err := os.WriteFile(manifestPath, []byte(b.String()), 0o644); err != nil {
		return "", apierr.Resource(manifestPath, err)
	}
	return manifestPath, nil
}
