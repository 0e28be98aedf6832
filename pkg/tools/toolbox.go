package tools

import (
	"context"
	"errors"
	"time"
)

// ErrSearchDisabled is returned by NoSearch.
var ErrSearchDisabled = errors.New("web search is not configured")

// NoSearch is the Searcher used when no search backend is configured.
type NoSearch struct{}

func (NoSearch) Search(context.Context, string) (string, error) {
	return "", ErrSearchDisabled
}

// Toolbox composes a Searcher and a clock into a Provider.
type Toolbox struct {
	searcher Searcher
	now      func() time.Time
}

// NewToolbox creates a Toolbox. A nil searcher disables search; a nil now
// uses the wall clock.
func NewToolbox(searcher Searcher, now func() time.Time) *Toolbox {
	if searcher == nil {
		searcher = NoSearch{}
	}
	if now == nil {
		now = time.Now
	}
	return &Toolbox{searcher: searcher, now: now}
}

func (b *Toolbox) Search(ctx context.Context, query string) (string, error) {
	return b.searcher.Search(ctx, query)
}

func (b *Toolbox) Now(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	return b.now(), nil
}
