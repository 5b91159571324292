package usage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Rolling window sizes.
const (
	fiveHourWindow = 5 * time.Hour
	sevenDayWindow = 7 * 24 * time.Hour
)

// Session log lines routinely exceed bufio.Scanner's default 64K cap.
const maxSessionLine = 16 * 1024 * 1024

// Rate converts tokens to credits for one model tier.
type Rate struct {
	Input  float64
	Output float64
}

// Credit rates per token. Cache creation counts as input; cache reads are
// free on subscription plans and excluded entirely.
var rates = map[string]Rate{
	"opus":   {Input: 10.0 / 15, Output: 50.0 / 15},
	"sonnet": {Input: 6.0 / 15, Output: 30.0 / 15},
	"haiku":  {Input: 2.0 / 15, Output: 10.0 / 15},
}

// ModelTier extracts the rate tier from a model identifier, defaulting to
// the most expensive tier when the identifier is empty or unrecognized.
func ModelTier(modelID string) string {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "haiku"):
		return "haiku"
	case strings.Contains(id, "sonnet"):
		return "sonnet"
	default:
		return "opus"
	}
}

// TokenUsage is the usage block on an assistant record.
type TokenUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// Credits converts token usage to credits for the given tier, rounded up.
func Credits(u TokenUsage, tier string) int64 {
	rate, ok := rates[tier]
	if !ok {
		rate = rates["opus"]
	}
	input := float64(u.InputTokens + u.CacheCreationInputTokens)
	credits := input*rate.Input + float64(u.OutputTokens)*rate.Output
	return int64(math.Ceil(credits))
}

// SessionUsage aggregates credits and token detail across session logs.
type SessionUsage struct {
	Credits5h   int64
	Credits7d   int64
	Input5h     int64
	Output5h    int64
	CacheRead5h int64
	Messages5h  int
	Messages7d  int
}

// SessionDetail is the 5-hour token breakdown included in reports.
type SessionDetail struct {
	InputTokens5h     int64 `json:"input_tokens_5h"`
	OutputTokens5h    int64 `json:"output_tokens_5h"`
	CacheReadTokens5h int64 `json:"cache_read_tokens_5h"`
	Messages5h        int   `json:"messages_5h"`
}

// Detail extracts the report-facing breakdown.
func (u *SessionUsage) Detail() SessionDetail {
	return SessionDetail{
		InputTokens5h:     u.Input5h,
		OutputTokens5h:    u.Output5h,
		CacheReadTokens5h: u.CacheRead5h,
		Messages5h:        u.Messages5h,
	}
}

type sessionRecord struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   struct {
		Model string     `json:"model"`
		Usage TokenUsage `json:"usage"`
	} `json:"message"`
}

// ScanSessions recomputes usage from every *.jsonl session log under dir,
// filtered to the 7-day lookback. Nothing is persisted; the scan is fresh
// each invocation. Malformed lines and unreadable files are skipped.
func ScanSessions(dir string, now time.Time, logger *slog.Logger) (*SessionUsage, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("glob session logs: %w", err)
	}

	usage := &SessionUsage{}
	fiveHoursAgo := now.Add(-fiveHourWindow)
	sevenDaysAgo := now.Add(-sevenDayWindow)

	for _, path := range files {
		if err := scanSessionFile(path, fiveHoursAgo, sevenDaysAgo, usage); err != nil {
			logger.Warn("Skipping unreadable session log", "path", path, "error", err)
			continue
		}
	}

	logger.Debug("Session scan completed",
		"files", len(files),
		"messages_7d", usage.Messages7d,
		"credits_5h", usage.Credits5h,
		"credits_7d", usage.Credits7d)

	return usage, nil
}

func scanSessionFile(path string, fiveHoursAgo, sevenDaysAgo time.Time, usage *SessionUsage) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSessionLine)

	for scanner.Scan() {
		var record sessionRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if record.Type != "assistant" || record.Timestamp == "" {
			continue
		}

		timestamp, err := time.Parse(time.RFC3339, record.Timestamp)
		if err != nil {
			continue
		}
		if timestamp.Before(sevenDaysAgo) {
			continue
		}

		credits := Credits(record.Message.Usage, ModelTier(record.Message.Model))
		usage.Credits7d += credits
		usage.Messages7d++

		if !timestamp.Before(fiveHoursAgo) {
			usage.Credits5h += credits
			usage.Input5h += record.Message.Usage.InputTokens + record.Message.Usage.CacheCreationInputTokens
			usage.Output5h += record.Message.Usage.OutputTokens
			usage.CacheRead5h += record.Message.Usage.CacheReadInputTokens
			usage.Messages5h++
		}
	}

	return scanner.Err()
}

// FormatCredits renders large credit counts with K/M suffixes.
func FormatCredits(n float64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", n/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", n/1_000)
	default:
		return fmt.Sprintf("%.0f", n)
	}
}
