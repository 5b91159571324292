// Command moltbook-notify surfaces Moltbook activity the agent has not been
// shown yet: new comments on tracked posts, new DMs, and new posts on the
// following feed. Watermarks persist between invocations so each item is
// reported once.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"hermit-skills/internal/config"
	"hermit-skills/internal/moltbook"
	"hermit-skills/internal/notify"
	"hermit-skills/internal/store"
)

const usageText = `Usage: moltbook-notify <command> [args]

Commands:
  check [posts|dms|feed|all] [--json] [--quiet]   Check for new activity
  reset                                           Reset all watermarks
  config                                          Show config and state locations
  track <post_id> [--label 'description']         Track a post's comments
  untrack <post_id>                               Stop tracking a post
  list                                            Show tracked posts
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(1)
	}
	command := os.Args[1]

	jsonOutput := hasFlag(os.Args[2:], "--json")
	quiet := hasFlag(os.Args[2:], "--quiet") || hasFlag(os.Args[2:], "-q")
	label := flagValue(os.Args[2:], "--label")
	args := positionalArgs(os.Args[2:], label)

	level := slog.LevelWarn
	if quiet {
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.LoadNotify()
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
	case "check":
		runCheck(ctx, cfg, st, logger, args, jsonOutput, quiet)
	case "reset":
		runReset(ctx, st, logger, quiet)
	case "config":
		runConfig(ctx, cfg, st, logger)
	case "track":
		runTrack(ctx, st, logger, args, label)
	case "untrack":
		runUntrack(ctx, st, logger, args)
	case "list":
		runList(ctx, st, logger)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(1)
	}
}

type checkOutput struct {
	Timestamp time.Time                `json:"timestamp"`
	NewItems  map[string][]notify.Item `json:"new_items"`
	Total     int                      `json:"total"`
	APIBase   string                   `json:"api_base"`
}

func runCheck(ctx context.Context, cfg config.Notify, st store.Store, logger *slog.Logger, args []string, jsonOutput, quiet bool) {
	target := "all"
	if len(args) > 0 {
		target = args[0]
	}
	switch target {
	case "all", "posts", "dms", "feed":
	default:
		fmt.Fprintf(os.Stderr, "Unknown check target: %s\n", target)
		os.Exit(1)
	}

	creds, err := moltbook.LoadCredentials(cfg.Credentials)
	if err != nil {
		if errors.Is(err, moltbook.ErrNoCredentials) {
			fmt.Fprintf(os.Stderr, "Error: no credentials found at %s\n", cfg.Credentials)
			fmt.Fprintln(os.Stderr, "Run the moltbook skill first to authenticate.")
			os.Exit(1)
		}
		logger.Error("Failed to load credentials", "error", err)
		os.Exit(1)
	}

	state := loadState(ctx, st, logger)
	trackerCfg := loadConfig(ctx, st, logger)

	client := moltbook.NewClient(cfg.APIBase, creds.APIKey, logger)
	tracker := notify.New(client, logger)

	results := make(map[string][]notify.Item)

	if target == "all" || target == "posts" {
		results["comments"] = tracker.CheckPosts(ctx, state, trackerCfg.TrackedPosts)
		if !jsonOutput && !quiet {
			printItems("Post comments", results["comments"])
		}
	}
	if target == "all" || target == "dms" {
		results["dms"] = tracker.CheckDMs(ctx, state)
		if !jsonOutput && !quiet {
			printItems("DMs", results["dms"])
		}
	}
	if target == "all" || target == "feed" {
		results["feed"] = tracker.CheckFeed(ctx, state)
		if !jsonOutput && !quiet {
			printItems("Feed", results["feed"])
		}
	}

	// One save for the whole multi-source poll.
	state.Touch(time.Now().UTC())
	if err := st.Save(ctx, notify.StateKey, state); err != nil {
		logger.Error("Failed to save state", "error", err)
		os.Exit(1)
	}

	total := 0
	for _, items := range results {
		total += len(items)
	}

	if jsonOutput {
		out := checkOutput{
			Timestamp: time.Now().UTC(),
			NewItems:  results,
			Total:     total,
			APIBase:   cfg.APIBase,
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			logger.Error("Failed to encode output", "error", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	} else if !quiet {
		fmt.Printf("\nTotal: %d new notifications\n", total)
		if total == 0 {
			fmt.Println("Nothing new since last check.")
		}
	}
}

func runReset(ctx context.Context, st store.Store, logger *slog.Logger, quiet bool) {
	state := notify.NewState()
	state.Touch(time.Now().UTC())
	if err := st.Save(ctx, notify.StateKey, state); err != nil {
		logger.Error("Failed to save state", "error", err)
		os.Exit(1)
	}
	if !quiet {
		fmt.Println("Notification state reset.")
	}
}

func runConfig(ctx context.Context, cfg config.Notify, st store.Store, logger *slog.Logger) {
	// Write the default config on first use so operators have a file to edit.
	var existing notify.Config
	if err := st.Load(ctx, notify.ConfigKey, &existing); errors.Is(err, store.ErrNotExist) {
		if err := st.Save(ctx, notify.ConfigKey, notify.DefaultConfig()); err != nil {
			logger.Error("Failed to save default config", "error", err)
			os.Exit(1)
		}
		fmt.Println("Created default config.")
	}

	if cfg.StateBucket != "" {
		fmt.Printf("State bucket: %s\n", cfg.StateBucket)
	} else {
		fmt.Printf("Config file: %s/%s\n", cfg.StateDir, notify.ConfigKey)
		fmt.Printf("State file: %s/%s\n", cfg.StateDir, notify.StateKey)
	}
	fmt.Printf("API base: %s\n", cfg.APIBase)
}

func runTrack(ctx context.Context, st store.Store, logger *slog.Logger, args []string, label string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: moltbook-notify track <post_id> [--label 'description']")
		os.Exit(1)
	}
	postID := args[0]

	trackerCfg := loadConfig(ctx, st, logger)
	if !trackerCfg.Track(postID, label) {
		fmt.Printf("Post %s is already tracked.\n", postID)
		return
	}
	if err := st.Save(ctx, notify.ConfigKey, trackerCfg); err != nil {
		logger.Error("Failed to save config", "error", err)
		os.Exit(1)
	}
	if label != "" {
		fmt.Printf("Now tracking post: %s (%s)\n", postID, label)
	} else {
		fmt.Printf("Now tracking post: %s\n", postID)
	}
}

func runUntrack(ctx context.Context, st store.Store, logger *slog.Logger, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: moltbook-notify untrack <post_id>")
		os.Exit(1)
	}
	postID := args[0]

	trackerCfg := loadConfig(ctx, st, logger)
	if !trackerCfg.Untrack(postID) {
		fmt.Printf("Post %s was not being tracked.\n", postID)
		return
	}
	if err := st.Save(ctx, notify.ConfigKey, trackerCfg); err != nil {
		logger.Error("Failed to save config", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Stopped tracking post: %s\n", postID)
}

func runList(ctx context.Context, st store.Store, logger *slog.Logger) {
	trackerCfg := loadConfig(ctx, st, logger)
	if len(trackerCfg.TrackedPosts) == 0 {
		fmt.Println("No posts being tracked.")
		return
	}
	fmt.Printf("Tracking %d posts:\n", len(trackerCfg.TrackedPosts))
	for _, p := range trackerCfg.TrackedPosts {
		if p.Label != "" {
			fmt.Printf("  %s  # %s\n", p.ID, p.Label)
		} else {
			fmt.Printf("  %s\n", p.ID)
		}
	}
}

func loadState(ctx context.Context, st store.Store, logger *slog.Logger) *notify.State {
	state := notify.NewState()
	if err := st.Load(ctx, notify.StateKey, state); err != nil && !errors.Is(err, store.ErrNotExist) {
		logger.Error("Failed to load state", "error", err)
		os.Exit(1)
	}
	state.Normalize()
	return state
}

func loadConfig(ctx context.Context, st store.Store, logger *slog.Logger) *notify.Config {
	var cfg notify.Config
	err := st.Load(ctx, notify.ConfigKey, &cfg)
	if errors.Is(err, store.ErrNotExist) {
		return notify.DefaultConfig()
	}
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	return &cfg
}

func printItems(label string, items []notify.Item) {
	if len(items) == 0 {
		fmt.Printf("\n%s: (none)\n", label)
		return
	}

	fmt.Printf("\n%s: (%d new)\n", label, len(items))
	for _, item := range items {
		who := item.Author
		if who == "" {
			who = item.From
		}
		text := item.Content
		if text == "" {
			text = item.Preview
		}
		if runes := []rune(text); len(runes) > 80 {
			text = string(runes[:80])
		}
		fmt.Printf("  - %s: %s\n", who, text)
	}
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}

func flagValue(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// positionalArgs filters out flags and the label value.
func positionalArgs(args []string, label string) []string {
	var out []string
	skipNext := false
	for _, a := range args {
		if skipNext {
			skipNext = false
			continue
		}
		if a == "--label" {
			skipNext = label != ""
			continue
		}
		if strings.HasPrefix(a, "-") {
			continue
		}
		out = append(out, a)
	}
	return out
}
