package usage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestModelTier(t *testing.T) {
	tests := []struct {
		modelID string
		want    string
	}{
		{"claude-opus-4-20250514", "opus"},
		{"claude-sonnet-4-20250514", "sonnet"},
		{"claude-3-5-haiku-latest", "haiku"},
		{"SONNET", "sonnet"},
		{"", "opus"},
		{"mystery-model", "opus"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ModelTier(tt.modelID), "model %q", tt.modelID)
	}
}

func TestCredits(t *testing.T) {
	tests := []struct {
		name  string
		usage TokenUsage
		tier  string
		want  int64
	}{
		{
			name:  "opus input only",
			usage: TokenUsage{InputTokens: 15},
			tier:  "opus",
			want:  10,
		},
		{
			name:  "cache creation counts as input",
			usage: TokenUsage{InputTokens: 10, CacheCreationInputTokens: 5},
			tier:  "opus",
			want:  10,
		},
		{
			name:  "cache reads are free",
			usage: TokenUsage{CacheReadInputTokens: 1_000_000},
			tier:  "opus",
			want:  0,
		},
		{
			name:  "sonnet output",
			usage: TokenUsage{OutputTokens: 15},
			tier:  "sonnet",
			want:  30,
		},
		{
			name:  "haiku mixed",
			usage: TokenUsage{InputTokens: 15, OutputTokens: 15},
			tier:  "haiku",
			want:  12,
		},
		{
			name:  "fractional credits round up",
			usage: TokenUsage{InputTokens: 1},
			tier:  "opus",
			want:  1,
		},
		{
			name:  "unknown tier billed as opus",
			usage: TokenUsage{OutputTokens: 15},
			tier:  "mystery",
			want:  50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Credits(tt.usage, tt.tier))
		})
	}
}

func sessionLine(typ, model string, at time.Time, usage TokenUsage) string {
	return fmt.Sprintf(`{"type":%q,"timestamp":%q,"message":{"model":%q,"usage":{"input_tokens":%d,"output_tokens":%d,"cache_creation_input_tokens":%d,"cache_read_input_tokens":%d}}}`,
		typ, at.Format(time.RFC3339), model,
		usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
}

func writeSessionLog(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestScanSessionsWindowing(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	writeSessionLog(t, dir, "a.jsonl",
		// In both windows: 15 opus input tokens = 10 credits.
		sessionLine("assistant", "claude-opus-4", now.Add(-time.Hour), TokenUsage{InputTokens: 15}),
		// Outside 5h, inside 7d: 15 sonnet output tokens = 30 credits.
		sessionLine("assistant", "claude-sonnet-4", now.Add(-24*time.Hour), TokenUsage{OutputTokens: 15}),
		// Older than 7 days: ignored everywhere.
		sessionLine("assistant", "claude-opus-4", now.Add(-8*24*time.Hour), TokenUsage{InputTokens: 1_500}),
		// Non-assistant records never count.
		sessionLine("user", "", now, TokenUsage{InputTokens: 1_500}),
	)

	usage, err := ScanSessions(dir, now, testLogger())
	require.NoError(t, err)

	assert.Equal(t, int64(10), usage.Credits5h)
	assert.Equal(t, int64(40), usage.Credits7d)
	assert.Equal(t, 1, usage.Messages5h)
	assert.Equal(t, 2, usage.Messages7d)
	assert.Equal(t, int64(15), usage.Input5h)
}

func TestScanSessionsAggregatesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	writeSessionLog(t, dir, "a.jsonl",
		sessionLine("assistant", "claude-opus-4", now.Add(-time.Minute), TokenUsage{InputTokens: 15}))
	writeSessionLog(t, dir, "b.jsonl",
		sessionLine("assistant", "claude-opus-4", now.Add(-time.Minute), TokenUsage{InputTokens: 15}))
	// Non-jsonl files are not session logs.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a log"), 0o600))

	usage, err := ScanSessions(dir, now, testLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(20), usage.Credits7d)
	assert.Equal(t, 2, usage.Messages7d)
}

func TestScanSessionsSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	writeSessionLog(t, dir, "a.jsonl",
		"{not json at all",
		`{"type":"assistant","timestamp":"last tuesday","message":{}}`,
		`{"type":"assistant","message":{}}`,
		sessionLine("assistant", "claude-opus-4", now, TokenUsage{InputTokens: 15}),
	)

	usage, err := ScanSessions(dir, now, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Messages7d)
	assert.Equal(t, int64(10), usage.Credits7d)
}

func TestScanSessionsEmptyDirectory(t *testing.T) {
	usage, err := ScanSessions(t.TempDir(), time.Now(), testLogger())
	require.NoError(t, err)
	assert.Zero(t, usage.Messages7d)
	assert.Zero(t, usage.Credits7d)
}

func TestScanSessionsMissingDirectory(t *testing.T) {
	// A glob over a nonexistent directory matches nothing and is not an error.
	usage, err := ScanSessions(filepath.Join(t.TempDir(), "absent"), time.Now(), testLogger())
	require.NoError(t, err)
	assert.Zero(t, usage.Messages7d)
}

func TestSessionUsageDetail(t *testing.T) {
	u := &SessionUsage{Input5h: 100, Output5h: 200, CacheRead5h: 300, Messages5h: 4}
	detail := u.Detail()
	assert.Equal(t, int64(100), detail.InputTokens5h)
	assert.Equal(t, int64(200), detail.OutputTokens5h)
	assert.Equal(t, int64(300), detail.CacheReadTokens5h)
	assert.Equal(t, 4, detail.Messages5h)
}

func TestFormatCredits(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1_500, "1.5K"},
		{550_000, "550.0K"},
		{3_300_000, "3.3M"},
		{41_666_700, "41.7M"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCredits(tt.in), "input %v", tt.in)
	}
}
