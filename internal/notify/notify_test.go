package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermit-skills/internal/moltbook"
)

// fakeAPI serves canned responses per post ID and fixed DM/feed lists.
type fakeAPI struct {
	posts     map[string]*moltbook.Post
	postErrs  map[string]error
	convs     []moltbook.Conversation
	convsErr  error
	feed      []moltbook.FeedPost
	feedErr   error
	feedLimit int
}

func (f *fakeAPI) Post(_ context.Context, id string) (*moltbook.Post, error) {
	if err, ok := f.postErrs[id]; ok {
		return nil, err
	}
	post, ok := f.posts[id]
	if !ok {
		return nil, moltbook.ErrNotFound
	}
	return post, nil
}

func (f *fakeAPI) DMConversations(_ context.Context) ([]moltbook.Conversation, error) {
	return f.convs, f.convsErr
}

func (f *fakeAPI) Feed(_ context.Context, limit int) ([]moltbook.FeedPost, error) {
	f.feedLimit = limit
	return f.feed, f.feedErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ts(hour int) moltbook.Timestamp {
	return moltbook.Timestamp{Time: time.Date(2026, 2, 1, hour, 0, 0, 0, time.UTC)}
}

func commentsN(n int) []moltbook.Comment {
	comments := make([]moltbook.Comment, n)
	for i := range comments {
		comments[i] = moltbook.Comment{
			Author:  moltbook.Author{Name: fmt.Sprintf("agent-%d", i)},
			Content: fmt.Sprintf("comment %d", i),
		}
	}
	return comments
}

func TestCheckPostsCommentDelta(t *testing.T) {
	api := &fakeAPI{posts: map[string]*moltbook.Post{
		"p1": {ID: "p1", Content: "the post body", Comments: commentsN(7)},
	}}
	tracker := New(api, testLogger())

	state := NewState()
	state.Posts["p1"] = 3

	items := tracker.CheckPosts(context.Background(), state, []TrackedPost{{ID: "p1", Label: "watched"}})

	// Watermark 3, 7 fetched: exactly positions 3..6 are new.
	require.Len(t, items, 4)
	assert.Equal(t, "comment 3", items[0].Content)
	assert.Equal(t, "comment 6", items[3].Content)
	assert.Equal(t, "watched", items[0].PostLabel)
	assert.Equal(t, 7, state.Posts["p1"])
}

func TestCheckPostsIdempotent(t *testing.T) {
	api := &fakeAPI{posts: map[string]*moltbook.Post{
		"p1": {ID: "p1", Comments: commentsN(5)},
	}}
	tracker := New(api, testLogger())
	state := NewState()
	tracked := []TrackedPost{{ID: "p1"}}

	first := tracker.CheckPosts(context.Background(), state, tracked)
	require.Len(t, first, 5)
	require.Equal(t, 5, state.Posts["p1"])

	second := tracker.CheckPosts(context.Background(), state, tracked)
	assert.Empty(t, second)
	assert.Equal(t, 5, state.Posts["p1"])
}

func TestCheckPostsWatermarkNeverDecreases(t *testing.T) {
	api := &fakeAPI{posts: map[string]*moltbook.Post{
		"p1": {ID: "p1", Comments: commentsN(2)},
	}}
	tracker := New(api, testLogger())

	state := NewState()
	state.Posts["p1"] = 6 // remote count temporarily appears smaller

	items := tracker.CheckPosts(context.Background(), state, []TrackedPost{{ID: "p1"}})
	assert.Empty(t, items)
	assert.Equal(t, 6, state.Posts["p1"], "shrunken remote count must be a no-op, not a reset")
}

func TestCheckPostsNotFoundIsSoftSkip(t *testing.T) {
	api := &fakeAPI{
		posts: map[string]*moltbook.Post{
			"alive": {ID: "alive", Comments: commentsN(1)},
		},
		postErrs: map[string]error{"deleted": moltbook.ErrNotFound},
	}
	tracker := New(api, testLogger())

	state := NewState()
	state.Posts["deleted"] = 4

	items := tracker.CheckPosts(context.Background(), state, []TrackedPost{
		{ID: "deleted"}, {ID: "alive"},
	})

	// Deleted post skipped, watermark untouched, later posts still checked.
	require.Len(t, items, 1)
	assert.Equal(t, "alive", items[0].PostID)
	assert.Equal(t, 4, state.Posts["deleted"])
}

func TestCheckPostsFetchErrorSkipsOnePost(t *testing.T) {
	api := &fakeAPI{
		posts: map[string]*moltbook.Post{
			"ok": {ID: "ok", Comments: commentsN(2)},
		},
		postErrs: map[string]error{"broken": errors.New("HTTP 500")},
	}
	tracker := New(api, testLogger())
	state := NewState()

	items := tracker.CheckPosts(context.Background(), state, []TrackedPost{
		{ID: "broken"}, {ID: "ok"},
	})

	require.Len(t, items, 2)
	assert.NotContains(t, state.Posts, "broken")
}

func TestCheckDMsStrictlyGreaterThan(t *testing.T) {
	watermark := ts(10).Time
	api := &fakeAPI{convs: []moltbook.Conversation{
		{OtherAgent: moltbook.Author{Name: "same-instant"}, LastMessageAt: ts(10)},
		{OtherAgent: moltbook.Author{Name: "newer"}, LastMessageAt: ts(11)},
		{OtherAgent: moltbook.Author{Name: "older"}, LastMessageAt: ts(9)},
	}}
	tracker := New(api, testLogger())

	state := NewState()
	state.DMsLastSeen = &watermark

	items := tracker.CheckDMs(context.Background(), state)

	// Ties are not new; only the strictly newer conversation qualifies.
	require.Len(t, items, 1)
	assert.Equal(t, "newer", items[0].From)
	assert.Equal(t, ts(11).Time, *state.DMsLastSeen)
}

func TestCheckDMsFirstPollSeesEverything(t *testing.T) {
	api := &fakeAPI{convs: []moltbook.Conversation{
		{OtherAgent: moltbook.Author{Name: "a"}, LastMessageAt: ts(8)},
		{OtherAgent: moltbook.Author{Name: "b"}, CreatedAt: ts(12)},
	}}
	tracker := New(api, testLogger())
	state := NewState()

	items := tracker.CheckDMs(context.Background(), state)
	require.Len(t, items, 2)
	assert.Equal(t, ts(12).Time, *state.DMsLastSeen)
}

func TestCheckDMsOutOfOrderBatchAdvancesToMax(t *testing.T) {
	api := &fakeAPI{convs: []moltbook.Conversation{
		{OtherAgent: moltbook.Author{Name: "late"}, LastMessageAt: ts(15)},
		{OtherAgent: moltbook.Author{Name: "early"}, LastMessageAt: ts(13)},
	}}
	tracker := New(api, testLogger())
	state := NewState()

	tracker.CheckDMs(context.Background(), state)
	assert.Equal(t, ts(15).Time, *state.DMsLastSeen, "watermark is the max across the batch, not the last item")
}

func TestCheckDMsErrorLeavesWatermark(t *testing.T) {
	watermark := ts(10).Time
	api := &fakeAPI{convsErr: errors.New("rate limited")}
	tracker := New(api, testLogger())

	state := NewState()
	state.DMsLastSeen = &watermark

	items := tracker.CheckDMs(context.Background(), state)
	assert.Empty(t, items)
	assert.Equal(t, watermark, *state.DMsLastSeen)
}

func TestCheckFeedDelta(t *testing.T) {
	watermark := ts(10).Time
	api := &fakeAPI{feed: []moltbook.FeedPost{
		{ID: "new", Author: moltbook.Author{Name: "gull"}, CreatedAt: ts(14)},
		{ID: "tie", CreatedAt: ts(10)},
		{ID: "old", CreatedAt: ts(6)},
	}}
	tracker := New(api, testLogger())

	state := NewState()
	state.FeedLastSeen = &watermark

	items := tracker.CheckFeed(context.Background(), state)

	require.Len(t, items, 1)
	assert.Equal(t, "new", items[0].PostID)
	assert.Equal(t, ts(14).Time, *state.FeedLastSeen)
	assert.Equal(t, FeedPageSize, api.feedLimit)
}

func TestCheckFeedIdempotent(t *testing.T) {
	api := &fakeAPI{feed: []moltbook.FeedPost{
		{ID: "p1", CreatedAt: ts(9)},
		{ID: "p2", CreatedAt: ts(11)},
	}}
	tracker := New(api, testLogger())
	state := NewState()

	first := tracker.CheckFeed(context.Background(), state)
	require.Len(t, first, 2)

	second := tracker.CheckFeed(context.Background(), state)
	assert.Empty(t, second)
}

func TestItemPreviewTruncation(t *testing.T) {
	long := make([]rune, 500)
	for i := range long {
		long[i] = 'x'
	}
	api := &fakeAPI{feed: []moltbook.FeedPost{
		{ID: "p1", Content: string(long), CreatedAt: ts(9)},
	}}
	tracker := New(api, testLogger())

	items := tracker.CheckFeed(context.Background(), NewState())
	require.Len(t, items, 1)
	assert.Len(t, []rune(items[0].Content), 200)
}

func TestTrackedPostUnmarshalLegacyShapes(t *testing.T) {
	var cfg Config
	input := `{"tracked_posts":["bare-id",{"id":"obj-id","label":"described"}]}`
	require.NoError(t, json.Unmarshal([]byte(input), &cfg))

	require.Len(t, cfg.TrackedPosts, 2)
	assert.Equal(t, TrackedPost{ID: "bare-id"}, cfg.TrackedPosts[0])
	assert.Equal(t, TrackedPost{ID: "obj-id", Label: "described"}, cfg.TrackedPosts[1])
}

func TestConfigTrackUntrackRoundTrip(t *testing.T) {
	cfg := &Config{}

	require.True(t, cfg.Track("p1", "my label"))
	require.Len(t, cfg.TrackedPosts, 1)
	assert.Equal(t, "my label", cfg.TrackedPosts[0].Label)

	// Tracking again is a no-op.
	assert.False(t, cfg.Track("p1", "other label"))
	assert.Len(t, cfg.TrackedPosts, 1)
	assert.Equal(t, "my label", cfg.TrackedPosts[0].Label)

	require.True(t, cfg.Untrack("p1"))
	assert.Empty(t, cfg.TrackedPosts)

	// Untracking a never-tracked ID reports false and mutates nothing.
	assert.False(t, cfg.Untrack("p1"))
}

func TestStateNormalize(t *testing.T) {
	var state State
	require.NoError(t, json.Unmarshal([]byte(`{"last_check":null}`), &state))
	state.Normalize()
	assert.NotNil(t, state.Posts)
}
