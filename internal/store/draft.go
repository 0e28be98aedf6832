package store

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/comigor/herald-go/internal/reflection"
)

// Status is the publication state of a draft.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// ParseStatus validates s.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusDraft, StatusPublished, StatusArchived:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

const (
	maxTitleLen   = 200
	derivedTitle  = 60
	previewLength = 100
)

// PostDraft is a generated post saved by its owner.
type PostDraft struct {
	ID             int64              `json:"id"`
	Title          string             `json:"title"`
	Content        string             `json:"content"`
	OriginalPrompt string             `json:"original_prompt"`
	Status         Status             `json:"status"`
	Transcript     []reflection.Entry `json:"conversation_history"`
	Metadata       map[string]any     `json:"generation_metadata,omitempty"`
	Owner          string             `json:"owner"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// WordCount returns the number of whitespace separated words in Content.
func (p PostDraft) WordCount() int {
	return len(strings.Fields(p.Content))
}

// Preview returns Content cut to 100 characters.
func (p PostDraft) Preview() string {
	return truncate(p.Content, previewLength)
}

// HTML renders Content as markdown.
func (p PostDraft) HTML() (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(p.Content), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// titleFromContent uses the first non-empty line, without markdown heading
// marks.
func titleFromContent(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if line != "" {
			return truncate(line, derivedTitle)
		}
	}
	return "Untitled post"
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
