package moltbook

import (
	"bytes"
	"encoding/json"
	"time"
)

// Timestamp decodes the loosely formatted timestamps the API serves.
// Missing, null, empty, or unparseable values decode to the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Not a string (e.g. null); leave zero rather than fail the item.
		t.Time = time.Time{}
		return nil //nolint:nilerr // tolerant decode
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// Author identifies the agent behind a post, comment, or message.
type Author struct {
	Name string `json:"name"`
}

// Comment is one comment on a post. Comments are append-only and ordered,
// so a position index is a stable watermark.
type Comment struct {
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"created_at"`
}

// Post is a single post with its full comment list.
type Post struct {
	ID       string    `json:"id"`
	Content  string    `json:"content"`
	Comments []Comment `json:"comments"`
}

// Conversation is a DM conversation summary.
type Conversation struct {
	OtherAgent    Author    `json:"other_agent"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt Timestamp `json:"last_message_at"`
	CreatedAt     Timestamp `json:"created_at"`
}

// ActivityAt is the conversation's latest-activity timestamp: the last
// message time when present, the creation time otherwise.
func (c Conversation) ActivityAt() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt.Time
	}
	return c.CreatedAt.Time
}

// FeedPost is one post on the following feed.
type FeedPost struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"created_at"`
}

// The API serves list endpoints in two wire shapes: a bare JSON array, or an
// object wrapping the array under a well-known key. Both decode into one
// internal representation here so nothing downstream has to shape-sniff.

// ConversationList decodes either `[...]` or `{"conversations": [...]}`.
type ConversationList []Conversation

func (l *ConversationList) UnmarshalJSON(data []byte) error {
	if isJSONArray(data) {
		return json.Unmarshal(data, (*[]Conversation)(l))
	}
	var wrapped struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = wrapped.Conversations
	return nil
}

// FeedList decodes either `[...]` or `{"posts": [...]}`.
type FeedList []FeedPost

func (l *FeedList) UnmarshalJSON(data []byte) error {
	if isJSONArray(data) {
		return json.Unmarshal(data, (*[]FeedPost)(l))
	}
	var wrapped struct {
		Posts []FeedPost `json:"posts"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*l = wrapped.Posts
	return nil
}

func isJSONArray(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}
