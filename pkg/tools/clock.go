package tools

import (
	"context"
	"encoding/json"
	"time"
)

// ClockTool reports the current date and time.
type ClockTool struct {
	provider Provider
}

func NewClockTool(p Provider) *ClockTool { return &ClockTool{provider: p} }

// Name returns the name of the tool
func (t *ClockTool) Name() string { return "get_current_time" }

// Description returns the description of the tool
func (t *ClockTool) Description() string {
	return "Returns the current date and time in ISO-8601 format."
}

func (t *ClockTool) Parameters() json.RawMessage { return emptySchema }

// Run runs the tool; arguments are ignored.
func (t *ClockTool) Run(ctx context.Context, _ string) (string, error) {
	now, err := t.provider.Now(ctx)
	if err != nil {
		return "", err
	}
	return now.Format(time.RFC3339), nil
}
