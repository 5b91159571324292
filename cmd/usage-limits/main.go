// Command usage-limits reports Claude subscription capacity and advises
// whether autonomous exploration is wise right now. Figures come from an
// external daemon when one pushes them (update/update-json), otherwise they
// are recomputed from the local session logs on every invocation.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"hermit-skills/internal/config"
	"hermit-skills/internal/store"
	"hermit-skills/internal/usage"
)

const usageText = `Usage: usage-limits <command> [args]

Commands:
  status                               Show current usage and recommendation
  should-explore                       Exit 0 proceed, 1 cautiously, 2 do not
  set-plan <pro|max5x|max20x>          Set plan type
  update <5h%> <7d%> [resets...]       Record daemon-supplied utilization
  update-json <payload>                Record daemon-supplied utilization (JSON)
  json                                 Print the full evaluation as JSON
  reset                                Clear stored data
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.LoadUsage()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.StateBucket, cfg.GoogleCredentialsJSON, cfg.StateDir, logger)
	if err != nil {
		logger.Error("Failed to open state store", "error", err)
		os.Exit(1)
	}

	switch command {
	case "status":
		eval := evaluate(ctx, cfg, st, logger)
		printStatus(eval)
	case "should-explore":
		eval := evaluate(ctx, cfg, st, logger)
		fmt.Println(eval.Level.Answer())
		os.Exit(eval.Level.ExitCode())
	case "set-plan":
		runSetPlan(ctx, st, logger, args)
	case "update":
		runUpdate(ctx, st, logger, args)
	case "update-json":
		runUpdateJSON(ctx, st, logger, args)
	case "json":
		eval := evaluate(ctx, cfg, st, logger)
		data, err := json.MarshalIndent(eval, "", "  ")
		if err != nil {
			logger.Error("Failed to encode evaluation", "error", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	case "reset":
		if err := st.Delete(ctx, usage.StateKey); err != nil {
			logger.Error("Failed to clear state", "error", err)
			os.Exit(1)
		}
		fmt.Println("Usage state cleared.")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(1)
	}
}

func evaluate(ctx context.Context, cfg config.Usage, st store.Store, logger *slog.Logger) usage.Evaluation {
	state := loadState(ctx, st, logger)
	now := time.Now().UTC()

	var sessions *usage.SessionUsage
	if state.FiveHour == nil && state.SevenDay == nil {
		scanned, err := usage.ScanSessions(sessionDir(cfg), now, logger)
		if err != nil {
			logger.Warn("Session scan failed", "error", err)
		} else {
			sessions = scanned
		}
	}

	return usage.Evaluate(state, sessions, now)
}

func runSetPlan(ctx context.Context, st store.Store, logger *slog.Logger, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: usage-limits set-plan <pro|max5x|max20x>")
		os.Exit(1)
	}
	plan := strings.ToLower(args[0])
	if _, ok := usage.Plans[plan]; !ok {
		fmt.Fprintf(os.Stderr, "Unknown plan: %s\n", plan)
		fmt.Fprintf(os.Stderr, "Valid plans: %s\n", planNames())
		os.Exit(1)
	}

	state := loadState(ctx, st, logger)
	state.Plan = plan
	saveState(ctx, st, logger, state)
	fmt.Printf("Plan set to: %s\n", plan)
}

func runUpdate(ctx context.Context, st store.Store, logger *slog.Logger, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: usage-limits update <5h%> <7d%> [resets_5h resets_7d]")
		os.Exit(1)
	}

	fiveHourPct, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid 5h percentage: %s\n", args[0])
		os.Exit(1)
	}
	sevenDayPct, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid 7d percentage: %s\n", args[1])
		os.Exit(1)
	}

	state := loadState(ctx, st, logger)
	limits := usage.LimitsFor(state.PlanOrDefault())

	state.FiveHour = daemonWindow(fiveHourPct, limits.FiveHour, resetArg(args, 2))
	state.SevenDay = daemonWindow(sevenDayPct, limits.SevenDay, resetArg(args, 3))
	saveState(ctx, st, logger, state)

	fmt.Printf("Recorded: 5h %.1f%%, 7d %.1f%%\n", fiveHourPct, sevenDayPct)
}

func runUpdateJSON(ctx context.Context, st store.Store, logger *slog.Logger, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: usage-limits update-json <payload>")
		os.Exit(1)
	}

	var payload usage.State
	if err := json.Unmarshal([]byte(args[0]), &payload); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		os.Exit(1)
	}

	state := loadState(ctx, st, logger)
	if payload.Plan != "" {
		state.Plan = payload.Plan
	}
	if payload.FiveHour != nil {
		state.FiveHour = payload.FiveHour
	}
	if payload.SevenDay != nil {
		state.SevenDay = payload.SevenDay
	}
	saveState(ctx, st, logger, state)

	fmt.Println("Usage state updated.")
}

func printStatus(eval usage.Evaluation) {
	fmt.Println("Claude Usage Limits")
	fmt.Println(strings.Repeat("=", 55))
	fmt.Printf("Plan: %s\n", eval.Plan)
	switch eval.Source {
	case usage.SourceDaemon:
		when := "unknown time"
		if eval.UpdatedAt != nil {
			when = eval.UpdatedAt.Format(time.RFC3339)
		}
		fmt.Printf("Source: daemon (updated %s)\n", when)
	case usage.SourceSessions:
		fmt.Println("Source: session logs (recomputed)")
	default:
		fmt.Println("Source: none")
	}
	fmt.Println()

	fmt.Printf("5-hour window:  %.1f%%\n", eval.FiveHour.Pct)
	if eval.FiveHour.Limit > 0 {
		fmt.Printf("  Credits:      %s / %s\n",
			usage.FormatCredits(eval.FiveHour.Used), usage.FormatCredits(eval.FiveHour.Limit))
	}
	fmt.Println()
	fmt.Printf("7-day window:   %.1f%%\n", eval.SevenDay.Pct)
	if eval.SevenDay.Limit > 0 {
		fmt.Printf("  Credits:      %s / %s\n",
			usage.FormatCredits(eval.SevenDay.Used), usage.FormatCredits(eval.SevenDay.Limit))
	}
	fmt.Println()

	if eval.Detail != nil {
		fmt.Println("Session details (last 5h):")
		fmt.Printf("  Messages:     %d\n", eval.Detail.Messages5h)
		fmt.Printf("  Input:        %s tokens\n", usage.FormatCredits(float64(eval.Detail.InputTokens5h)))
		fmt.Printf("  Output:       %s tokens\n", usage.FormatCredits(float64(eval.Detail.OutputTokens5h)))
		fmt.Printf("  Cache reads:  %s tokens (free)\n", usage.FormatCredits(float64(eval.Detail.CacheReadTokens5h)))
		fmt.Println()
	}

	fmt.Printf("Status: %s\n", strings.ToUpper(string(eval.Level)))
	fmt.Printf("Advice: %s\n", eval.Advice)
}

func loadState(ctx context.Context, st store.Store, logger *slog.Logger) *usage.State {
	state := usage.NewState()
	if err := st.Load(ctx, usage.StateKey, state); err != nil && !errors.Is(err, store.ErrNotExist) {
		logger.Error("Failed to load state", "error", err)
		os.Exit(1)
	}
	return state
}

func saveState(ctx context.Context, st store.Store, logger *slog.Logger, state *usage.State) {
	now := time.Now().UTC()
	state.UpdatedAt = &now
	if err := st.Save(ctx, usage.StateKey, state); err != nil {
		logger.Error("Failed to save state", "error", err)
		os.Exit(1)
	}
}

func daemonWindow(pct, limit float64, resetsAt *time.Time) *usage.Window {
	return &usage.Window{
		Used:     pct / 100 * limit,
		Limit:    limit,
		Pct:      pct,
		ResetsAt: resetsAt,
	}
}

func resetArg(args []string, idx int) *time.Time {
	if idx >= len(args) {
		return nil
	}
	t, err := time.Parse(time.RFC3339, args[idx])
	if err != nil {
		return nil
	}
	return &t
}

func sessionDir(cfg config.Usage) string {
	if cfg.SessionDir != "" {
		return cfg.SessionDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", "projects", "-workspace")
}

func planNames() string {
	names := make([]string, 0, len(usage.Plans))
	for name := range usage.Plans {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
