package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	reply string
	err   error
	query string
}

func (f *fakeSearcher) Search(_ context.Context, q string) (string, error) {
	f.query = q
	return f.reply, f.err
}

func TestToolManager(t *testing.T) {
	m := NewToolManagerFor(NewToolbox(nil, nil))

	names := []string{}
	for _, tool := range m.List() {
		names = append(names, tool.Name())
	}
	require.Equal(t, []string{"get_current_time", "search"}, names)

	_, err := m.GetTool("search")
	require.NoError(t, err)
	_, err = m.GetTool("home_assistant")
	require.EqualError(t, err, "tool not found: home_assistant")
}

func TestSearchTool_Run(t *testing.T) {
	fs := &fakeSearcher{reply: "1. Perseverance finds organics"}
	tool := NewSearchTool(NewToolbox(fs, nil))

	out, err := tool.Run(context.Background(), `{"query": " mars rover "}`)
	require.NoError(t, err)
	require.Equal(t, "1. Perseverance finds organics", out)
	require.Equal(t, "mars rover", fs.query)
	require.JSONEq(t, `{"type":"object","properties":{"query":{"type":"string","description":"What to search for"}},"required":["query"]}`, string(tool.Parameters()))
}

func TestSearchTool_Errors(t *testing.T) {
	tool := NewSearchTool(NewToolbox(&fakeSearcher{}, nil))

	_, err := tool.Run(context.Background(), `not json`)
	require.Error(t, err)

	_, err = tool.Run(context.Background(), `{"query": ""}`)
	require.Error(t, err)

	boom := errors.New("upstream down")
	tool = NewSearchTool(NewToolbox(&fakeSearcher{err: boom}, nil))
	_, err = tool.Run(context.Background(), `{"query": "x"}`)
	require.ErrorIs(t, err, boom)
}

func TestNoSearch(t *testing.T) {
	box := NewToolbox(nil, nil)
	_, err := box.Search(context.Background(), "anything")
	require.ErrorIs(t, err, ErrSearchDisabled)
}

func TestClockTool(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	tool := NewClockTool(NewToolbox(nil, func() time.Time { return fixed }))

	out, err := tool.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "2026-03-14T15:09:26Z", out)
	require.JSONEq(t, `{"type":"object","properties":{}}`, string(tool.Parameters()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tool.Run(ctx, "")
	require.ErrorIs(t, err, context.Canceled)
}
