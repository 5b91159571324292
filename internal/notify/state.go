package notify

import (
	"encoding/json"
	"time"
)

// StateKey and ConfigKey are the store document names for the tracker.
const (
	StateKey  = "notifications.json"
	ConfigKey = "notifications_config.json"
)

// State holds the per-source watermarks. Watermarks only move forward across
// successful checks; only Reset lowers them.
type State struct {
	LastCheck    *time.Time     `json:"last_check"`
	Posts        map[string]int `json:"posts"`
	DMsLastSeen  *time.Time     `json:"dms_last_seen"`
	FeedLastSeen *time.Time     `json:"feed_last_seen"`
}

// NewState creates an empty state with all watermarks unset.
func NewState() *State {
	return &State{Posts: make(map[string]int)}
}

// Normalize repairs a state loaded from disk so checks can assume invariants.
func (s *State) Normalize() {
	if s.Posts == nil {
		s.Posts = make(map[string]int)
	}
}

// Touch records the time of the current poll.
func (s *State) Touch(now time.Time) {
	s.LastCheck = &now
}

func (s *State) dmsLastSeen() time.Time {
	if s.DMsLastSeen == nil {
		return time.Time{}
	}
	return *s.DMsLastSeen
}

func (s *State) feedLastSeen() time.Time {
	if s.FeedLastSeen == nil {
		return time.Time{}
	}
	return *s.FeedLastSeen
}

// TrackedPost is a post the operator opted into monitoring. Identity is by
// ID; the label is freeform display text.
type TrackedPost struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// UnmarshalJSON accepts both the canonical {id,label} object and the legacy
// bare-ID string shape, so normalization happens once at load time.
func (p *TrackedPost) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*p = TrackedPost{ID: id}
		return nil
	}

	type canonical TrackedPost
	var c canonical
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	*p = TrackedPost(c)
	return nil
}

// Config is the tracker configuration document.
type Config struct {
	TrackedPosts []TrackedPost `json:"tracked_posts"`
}

// DefaultConfig returns the config written on first use.
func DefaultConfig() *Config {
	return &Config{
		TrackedPosts: []TrackedPost{
			{ID: "234bffd6-62d6-4bc2-a699-f395aa2abbbe", Label: "Sandbox security"},
			{ID: "62e36254-b5cf-4423-861f-f7d9856b0f54", Label: "Framework announcement"},
		},
	}
}

// Track adds a post to the tracked list. It reports false if the ID is
// already tracked, in which case the config is unchanged.
func (c *Config) Track(id, label string) bool {
	for _, p := range c.TrackedPosts {
		if p.ID == id {
			return false
		}
	}
	c.TrackedPosts = append(c.TrackedPosts, TrackedPost{ID: id, Label: label})
	return true
}

// Untrack removes a post from the tracked list. It reports false if the ID
// was not tracked.
func (c *Config) Untrack(id string) bool {
	for i, p := range c.TrackedPosts {
		if p.ID == id {
			c.TrackedPosts = append(c.TrackedPosts[:i], c.TrackedPosts[i+1:]...)
			return true
		}
	}
	return false
}
