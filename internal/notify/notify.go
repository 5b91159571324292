// Package notify computes which Moltbook items the agent has not been shown
// yet: new comments on tracked posts, new DM conversations, and new posts on
// the following feed. Each check mutates the watermark state in place; the
// caller persists it once after all checks complete.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hermit-skills/internal/moltbook"
)

// FeedPageSize bounds the feed check to the newest N posts. Anything older
// than the Nth-newest is permanently unobservable.
const FeedPageSize = 20

// Preview truncation lengths, in runes.
const (
	postTitlePreviewLen = 50
	dmPreviewLen        = 100
	feedPreviewLen      = 200
)

// API is the slice of the Moltbook client the tracker needs.
type API interface {
	Post(ctx context.Context, id string) (*moltbook.Post, error)
	DMConversations(ctx context.Context) ([]moltbook.Conversation, error)
	Feed(ctx context.Context, limit int) ([]moltbook.FeedPost, error)
}

// Item is one newly surfaced notification. Only the fields relevant to the
// item's source are set.
type Item struct {
	PostID    string     `json:"post_id,omitempty"`
	PostLabel string     `json:"post_label,omitempty"`
	PostTitle string     `json:"post_title,omitempty"`
	Author    string     `json:"author,omitempty"`
	From      string     `json:"from,omitempty"`
	Content   string     `json:"content,omitempty"`
	Preview   string     `json:"preview,omitempty"`
	CreatedAt *time.Time `json:"created_at"`
}

// Tracker runs the per-source delta checks.
type Tracker struct {
	api    API
	logger *slog.Logger
}

// New creates a tracker.
func New(api API, logger *slog.Logger) *Tracker {
	return &Tracker{api: api, logger: logger}
}

// CheckPosts returns comments on tracked posts beyond each post's watermark
// and advances the watermarks. A deleted post is skipped without error; a
// failed fetch is logged and skipped so the remaining posts still run.
func (t *Tracker) CheckPosts(ctx context.Context, state *State, tracked []TrackedPost) []Item {
	var items []Item

	for _, tp := range tracked {
		post, err := t.api.Post(ctx, tp.ID)
		if errors.Is(err, moltbook.ErrNotFound) {
			t.logger.Debug("Tracked post no longer exists, skipping", "post_id", tp.ID)
			continue
		}
		if err != nil {
			t.logger.Warn("Post check failed, skipping", "post_id", tp.ID, "error", err)
			continue
		}

		seen := state.Posts[tp.ID]
		if len(post.Comments) <= seen {
			// Count equal or temporarily smaller than the watermark: no-op,
			// never a reset.
			continue
		}

		for _, c := range post.Comments[seen:] {
			items = append(items, Item{
				PostID:    tp.ID,
				PostLabel: tp.Label,
				PostTitle: truncate(post.Content, postTitlePreviewLen),
				Author:    authorName(c.Author),
				Content:   c.Content,
				CreatedAt: timePtr(c.CreatedAt.Time),
			})
		}
		state.Posts[tp.ID] = len(post.Comments)

		t.logger.Info("New comments found",
			"post_id", tp.ID,
			"new", len(post.Comments)-seen,
			"watermark", len(post.Comments))
	}

	return items
}

// CheckDMs returns conversations whose latest activity is strictly newer
// than the DM watermark and advances it to the newest timestamp observed.
// A conversation whose timestamp equals the watermark is not new: this
// bounds re-delivery at the cost of possibly missing same-instant messages.
func (t *Tracker) CheckDMs(ctx context.Context, state *State) []Item {
	convs, err := t.api.DMConversations(ctx)
	if err != nil {
		t.logger.Warn("DM check failed", "error", err)
		return nil
	}

	lastSeen := state.dmsLastSeen()
	newest := lastSeen
	var items []Item

	for _, conv := range convs {
		at := conv.ActivityAt()
		if !at.IsZero() && !lastSeen.IsZero() && !at.After(lastSeen) {
			continue
		}
		items = append(items, Item{
			From:      authorName(conv.OtherAgent),
			Preview:   truncate(conv.LastMessage, dmPreviewLen),
			CreatedAt: timePtr(at),
		})
		if at.After(newest) {
			newest = at
		}
	}

	if !newest.IsZero() {
		state.DMsLastSeen = &newest
	}
	return items
}

// CheckFeed applies the same strictly-newer rule to the newest FeedPageSize
// posts of the following feed. The watermark advances to the maximum
// timestamp seen, combined with the prior value, so out-of-order pages
// still advance correctly.
func (t *Tracker) CheckFeed(ctx context.Context, state *State) []Item {
	posts, err := t.api.Feed(ctx, FeedPageSize)
	if err != nil {
		t.logger.Warn("Feed check failed", "error", err)
		return nil
	}

	lastSeen := state.feedLastSeen()
	newest := lastSeen
	var items []Item

	for _, post := range posts {
		at := post.CreatedAt.Time
		if !at.IsZero() && !lastSeen.IsZero() && !at.After(lastSeen) {
			continue
		}
		items = append(items, Item{
			Author:    authorName(post.Author),
			Content:   truncate(post.Content, feedPreviewLen),
			PostID:    post.ID,
			CreatedAt: timePtr(at),
		})
		if at.After(newest) {
			newest = at
		}
	}

	if !newest.IsZero() {
		state.FeedLastSeen = &newest
	}
	return items
}

func authorName(a moltbook.Author) string {
	if a.Name == "" {
		return "unknown"
	}
	return a.Name
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
