package reflection

import "slices"

// Role tags a transcript message.
type Role string

const (
	// RoleUser is the prompt that opened the run.
	RoleUser       Role = "user"
	RoleGeneration Role = "generation"
	RoleFeedback   Role = "feedback"
)

// feedbackPrefix marks critique text inside the conversation fed back to the generator.
const feedbackPrefix = "Feedback: "

// Message is one entry of a run's transcript. Messages are never modified once
// appended.
type Message struct {
	Role Role
	Text string
}

func (m Message) IsFeedback() bool { return m.Role == RoleFeedback }

// Entry is the external view of a transcript message, as returned to callers
// and persisted with drafts.
type Entry struct {
	Text       string `json:"content"`
	IsFeedback bool   `json:"is_feedback"`
}

// Result is the outcome of a successful run.
type Result struct {
	// RunID identifies the run in logs and in saved drafts.
	RunID string
	// Rounds is the number of completed critique rounds.
	Rounds    int
	FinalText string
	// Transcript holds every generation and feedback message in order. The
	// user prompt is not included.
	Transcript []Entry
}

// FinalText returns the text of the most recent message that is not feedback.
// When every message is feedback it falls back to the last message; an empty
// transcript yields "".
func FinalText(transcript []Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if !transcript[i].IsFeedback() {
			return transcript[i].Text
		}
	}
	if len(transcript) == 0 {
		return ""
	}
	return transcript[len(transcript)-1].Text
}

// Entries converts messages to their external representation, dropping the
// user prompt.
func Entries(transcript []Message) []Entry {
	out := make([]Entry, 0, len(transcript))
	for _, m := range transcript {
		if m.Role == RoleUser {
			continue
		}
		out = append(out, Entry{Text: m.Text, IsFeedback: m.IsFeedback()})
	}
	return out
}

func cloneTranscript(t []Message) []Message {
	return slices.Clone(t)
}
