package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/domain"
)

func entry(seq uint, startMs, endMs int64, text string) domain.SubtitleEntry {
	return domain.SubtitleEntry{Seq: seq, StartMs: startMs, EndMs: endMs, Text: text}
}

func TestValidateCleanTrackIsProductionReady(t *testing.T) {
	entries := []domain.SubtitleEntry{
		entry(1, 0, 2000, "Hello there, friend."),
		entry(2, 2000, 4000, "General Kenobi."),
	}
	report := Validate("eng", domain.FlagRegular, entries)
	assert.True(t, report.ProductionReady)
	assert.Empty(t, report.CriticalErrors)
}

func TestValidateFlagsNonDenseSequencing(t *testing.T) {
	entries := []domain.SubtitleEntry{entry(1, 0, 2000, "a"), entry(3, 2000, 4000, "b")}
	report := Validate("eng", domain.FlagRegular, entries)
	assert.False(t, report.ProductionReady)
	assert.NotEmpty(t, report.CriticalErrors)
}

func TestValidateFlagsOverLongLine(t *testing.T) {
	longLine := strings.Repeat("a", maxCharsPerLine+1)
	entries := []domain.SubtitleEntry{entry(1, 0, 5000, longLine)}
	report := Validate("eng", domain.FlagRegular, entries)
	assert.False(t, report.ProductionReady)
}

func TestValidateFlagsTooManyLines(t *testing.T) {
	entries := []domain.SubtitleEntry{entry(1, 0, 5000, "one\ntwo\nthree")}
	report := Validate("eng", domain.FlagRegular, entries)
	assert.False(t, report.ProductionReady)
}

func TestValidateFlagsOverlap(t *testing.T) {
	entries := []domain.SubtitleEntry{entry(1, 0, 3000, "a"), entry(2, 2000, 4000, "b")}
	report := Validate("eng", domain.FlagRegular, entries)
	assert.False(t, report.ProductionReady)
}

func TestValidateFlagsNonPositiveDuration(t *testing.T) {
	entries := []domain.SubtitleEntry{entry(1, 2000, 2000, "a")}
	report := Validate("eng", domain.FlagRegular, entries)
	assert.False(t, report.ProductionReady)
}

func TestValidateScriptRangeCriticalForBengali(t *testing.T) {
	entries := []domain.SubtitleEntry{entry(1, 0, 3000, "This is English text, not Bengali.")}
	report := Validate("ben", domain.FlagRegular, entries)
	assert.False(t, report.ProductionReady)
	assert.Less(t, report.QualityMetrics.ScriptComplianceRate, 1.0)
}

func TestValidateScriptRangePassesForConformingBengali(t *testing.T) {
	entries := []domain.SubtitleEntry{entry(1, 0, 3000, "বাংলা লেখা")}
	report := Validate("ben", domain.FlagRegular, entries)
	assert.Empty(t, report.CriticalErrors)
	assert.Equal(t, 1.0, report.QualityMetrics.ScriptComplianceRate)
}

func TestValidateScriptSkippedForEnglish(t *testing.T) {
	entries := []domain.SubtitleEntry{entry(1, 0, 3000, "日本語でも問題ない")}
	report := Validate("eng", domain.FlagRegular, entries)
	assert.Empty(t, report.CriticalErrors)
}

func TestValidateReadingSpeedCriticalAbove120PercentMax(t *testing.T) {
	// eng max is 20 cps; 2 seconds at 60 chars (two 30-char lines, within the
	// format limits) => 30 cps, well over the 1.2x critical threshold.
	text := strings.Repeat("x", 30) + "\n" + strings.Repeat("x", 30)
	entries := []domain.SubtitleEntry{entry(1, 0, 2000, text)}
	report := Validate("eng", domain.FlagRegular, entries)
	assert.False(t, report.ProductionReady)
	require.Len(t, report.CriticalErrors, 1)
}

func TestValidateReadingSpeedWarningBetweenMaxAnd120Percent(t *testing.T) {
	// eng max is 20 cps; 2 seconds at 42 chars => 21 cps, just over max but under 24.
	text := strings.Repeat("x", 42)
	entries := []domain.SubtitleEntry{entry(1, 0, 2000, text)}
	report := Validate("eng", domain.FlagRegular, entries)
	assert.Empty(t, report.CriticalErrors)
	assert.NotEmpty(t, report.Warnings)
}

func TestValidateReadingSpeedWarningBelowMinimum(t *testing.T) {
	// eng min is 15 cps; 5 seconds at 10 chars => 2 cps.
	entries := []domain.SubtitleEntry{entry(1, 0, 5000, "slowtext..")}
	report := Validate("eng", domain.FlagRegular, entries)
	assert.Empty(t, report.CriticalErrors)
	assert.NotEmpty(t, report.Warnings)
}

func TestValidateMetricsEntryCount(t *testing.T) {
	entries := []domain.SubtitleEntry{entry(1, 0, 2000, "a"), entry(2, 2000, 4000, "b")}
	report := Validate("eng", domain.FlagRegular, entries)
	assert.Equal(t, 2, report.QualityMetrics.EntryCount)
}
