// Package validator runs strict post-merge quality checks over SRT output:
// format/timing rules and per-language reading-speed bands. A
// translation-quality-analysis subsystem has no counterpart here — see
// DESIGN.md for why it was left out.
package validator

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/domain"
)

// maxCharsPerLine is the hard cap on rendered-line length for every
// supported language.
const maxCharsPerLine = 42

// speedBand is the acceptable characters-per-second range for a language's
// reading speed check.
type speedBand struct {
	minCPS float64
	maxCPS float64
}

var speedBands = map[string]speedBand{
	"eng": {minCPS: 15, maxCPS: 20},
	"ben": {minCPS: 12, maxCPS: 18},
	"hin": {minCPS: 14, maxCPS: 19},
}

// scriptRange restricts entries in ben/hin tracks to their expected Unicode
// block, tolerant of shared punctuation and digits.
type scriptRange struct {
	lo rune
	hi rune
}

var scriptRanges = map[string]scriptRange{
	"ben": {lo: 0x0980, hi: 0x09FF},
	"hin": {lo: 0x0900, hi: 0x097F},
}

// Report is the validation result for one track.
type Report struct {
	Language        string
	Flag            domain.FlagVariant
	CriticalErrors  []string
	Warnings        []string
	QualityMetrics  Metrics
	ProductionReady bool
}

// Metrics summarizes the checked track for the report and for logging.
type Metrics struct {
	EntryCount           int
	AverageCPS           float64
	ScriptComplianceRate float64
	InBandCount          int
}

// Validate runs every format, timing, script, and reading-speed check over
// entries and returns a report. It never returns an error: validation
// failures are reported as CriticalErrors/Warnings, not Go errors, because a
// failed validation is an expected terminal outcome for the stage, not an
// exceptional one.
func Validate(language string, flag domain.FlagVariant, entries []domain.SubtitleEntry) Report {
	r := Report{Language: language, Flag: flag}

	r.CriticalErrors = append(r.CriticalErrors, validateFormat(entries)...)
	r.CriticalErrors = append(r.CriticalErrors, validateTiming(entries)...)

	scriptErrs, scriptWarns, complianceRate := validateScript(language, entries)
	r.CriticalErrors = append(r.CriticalErrors, scriptErrs...)
	r.Warnings = append(r.Warnings, scriptWarns...)

	speedErrs, speedWarns, avgCPS, inBand := validateReadingSpeed(language, entries)
	r.CriticalErrors = append(r.CriticalErrors, speedErrs...)
	r.Warnings = append(r.Warnings, speedWarns...)

	r.QualityMetrics = Metrics{
		EntryCount:           len(entries),
		AverageCPS:           avgCPS,
		ScriptComplianceRate: complianceRate,
		InBandCount:          inBand,
	}

	r.ProductionReady = len(r.CriticalErrors) == 0
	return r
}

// validateFormat checks the structural invariants: dense sequencing, line
// count, and per-line character limit.
func validateFormat(entries []domain.SubtitleEntry) []string {
	var errs []string
	for i, e := range entries {
		if e.Seq != uint(i+1) {
			errs = append(errs, fmt.Sprintf("entry %d: sequence number %d is not dense", i+1, e.Seq))
		}
		lines := strings.Split(e.Text, "\n")
		if len(lines) > 2 {
			errs = append(errs, fmt.Sprintf("entry %d: %d lines exceeds the 2-line limit", e.Seq, len(lines)))
		}
		for _, line := range lines {
			if len([]rune(line)) > maxCharsPerLine {
				errs = append(errs, fmt.Sprintf("entry %d: line exceeds %d characters", e.Seq, maxCharsPerLine))
			}
		}
		if strings.TrimSpace(e.Text) == "" {
			errs = append(errs, fmt.Sprintf("entry %d: empty text", e.Seq))
		}
	}
	return errs
}

// validateTiming checks ordering and positive, non-degenerate durations.
func validateTiming(entries []domain.SubtitleEntry) []string {
	var errs []string
	for i, e := range entries {
		if e.EndMs <= e.StartMs {
			errs = append(errs, fmt.Sprintf("entry %d: end timestamp not after start", e.Seq))
		}
		if i > 0 && e.StartMs < entries[i-1].EndMs {
			errs = append(errs, fmt.Sprintf("entry %d: overlaps previous entry", e.Seq))
		}
	}
	return errs
}

// validateScript enforces the expected Unicode block for ben/hin tracks.
// Latin-script languages (eng) are not constrained here: English subtitles
// legitimately mix scripts for names and loanwords.
func validateScript(language string, entries []domain.SubtitleEntry) (errs, warns []string, complianceRate float64) {
	rng, ok := scriptRanges[language]
	if !ok || len(entries) == 0 {
		return nil, nil, 1.0
	}

	violating := 0
	for _, e := range entries {
		bad := offendingChars(e.Text, rng)
		if bad > 0 {
			violating++
			errs = append(errs, fmt.Sprintf("entry %d: %d character(s) outside the %s Unicode range", e.Seq, bad, language))
		}
	}
	complianceRate = 1.0 - float64(violating)/float64(len(entries))
	return errs, warns, complianceRate
}

// offendingChars counts letters in text that fall outside rng.
func offendingChars(text string, rng scriptRange) int {
	bad := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		if r < rng.lo || r > rng.hi {
			bad++
		}
	}
	return bad
}

// validateReadingSpeed checks the language's acceptable characters-per-second
// band. Exceeding the maximum by more than 20% is a critical
// error; falling under the minimum, or exceeding the maximum by up to 20%,
// is a warning.
func validateReadingSpeed(language string, entries []domain.SubtitleEntry) (errs, warns []string, avgCPS float64, inBand int) {
	band, ok := speedBands[language]
	if !ok {
		band = speedBand{minCPS: 12, maxCPS: 20}
	}

	var total float64
	for _, e := range entries {
		durationSec := float64(e.EndMs-e.StartMs) / 1000.0
		if durationSec <= 0 {
			continue
		}
		cps := float64(len([]rune(strings.ReplaceAll(e.Text, "\n", "")))) / durationSec
		total += cps

		switch {
		case cps > band.maxCPS*1.2:
			errs = append(errs, fmt.Sprintf("entry %d: reading speed %.1f cps exceeds %.1f maximum by more than 20%%", e.Seq, cps, band.maxCPS))
		case cps > band.maxCPS:
			warns = append(warns, fmt.Sprintf("entry %d: reading speed %.1f cps above %.1f maximum", e.Seq, cps, band.maxCPS))
		case cps < band.minCPS:
			warns = append(warns, fmt.Sprintf("entry %d: reading speed %.1f cps below %.1f minimum", e.Seq, cps, band.minCPS))
		default:
			inBand++
		}
	}
	if len(entries) > 0 {
		avgCPS = total / float64(len(entries))
	}
	return errs, warns, avgCPS, inBand
}
