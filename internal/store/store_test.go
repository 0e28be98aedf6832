package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/herald-go/internal/reflection"
)

// openTestStore opens a store whose clock advances one minute per call.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "drafts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tick := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	return s
}

func newDraft(owner, content string) *PostDraft {
	return &PostDraft{Owner: owner, Content: content, OriginalPrompt: "prompt for " + content}
}

func TestCreateAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := &PostDraft{
		Owner:          "ada",
		Content:        "# Artemis II is go\n\nFour astronauts, one Moon.",
		OriginalPrompt: "Artemis II news",
		Transcript: []reflection.Entry{
			{Text: "draft"},
			{Text: "Feedback: shorter", IsFeedback: true},
			{Text: "# Artemis II is go\n\nFour astronauts, one Moon."},
		},
		Metadata: map[string]any{"run_id": "abc", "rounds": float64(1)},
	}
	require.NoError(t, s.Create(ctx, d))
	require.NotZero(t, d.ID)
	require.Equal(t, StatusDraft, d.Status)
	require.Equal(t, "Artemis II is go", d.Title)

	got, err := s.Get(ctx, "ada", d.ID)
	require.NoError(t, err)
	require.Equal(t, d.Title, got.Title)
	require.Equal(t, d.Content, got.Content)
	require.Equal(t, d.OriginalPrompt, got.OriginalPrompt)
	require.Equal(t, d.Transcript, got.Transcript)
	require.Equal(t, d.Metadata, got.Metadata)
	require.True(t, d.CreatedAt.Equal(got.CreatedAt))
	require.Equal(t, 9, got.WordCount())

	_, err = s.Get(ctx, "mallory", d.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "ada", d.ID+100)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_Validation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.ErrorIs(t, s.Create(ctx, &PostDraft{Content: "x"}), ErrInvalidDraft)
	require.ErrorIs(t, s.Create(ctx, &PostDraft{Owner: "ada", Content: "  "}), ErrInvalidDraft)
	require.ErrorIs(t, s.Create(ctx, &PostDraft{Owner: "ada", Content: "x", Status: "deleted"}), ErrInvalidStatus)

	long := &PostDraft{Owner: "ada", Content: "x", Title: strings.Repeat("t", 250)}
	require.NoError(t, s.Create(ctx, long))
	require.Len(t, long.Title, maxTitleLen)
}

func TestUpdateAndStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := newDraft("ada", "first version")
	require.NoError(t, s.Create(ctx, d))

	title, body := "Launch day", "second version"
	got, err := s.Update(ctx, "ada", d.ID, Update{Title: &title, Content: &body})
	require.NoError(t, err)
	require.Equal(t, "Launch day", got.Title)
	require.Equal(t, "second version", got.Content)
	require.True(t, got.UpdatedAt.After(d.UpdatedAt))

	got, err = s.Publish(ctx, "ada", d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPublished, got.Status)

	got, err = s.Archive(ctx, "ada", d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusArchived, got.Status)

	reloaded, err := s.Get(ctx, "ada", d.ID)
	require.NoError(t, err)
	require.Equal(t, StatusArchived, reloaded.Status)
	require.Equal(t, "second version", reloaded.Content)

	_, err = s.SetStatus(ctx, "ada", d.ID, "gone")
	require.ErrorIs(t, err, ErrInvalidStatus)

	empty := ""
	_, err = s.Update(ctx, "ada", d.ID, Update{Content: &empty})
	require.ErrorIs(t, err, ErrInvalidDraft)

	_, err = s.Publish(ctx, "mallory", d.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := newDraft("ada", "bye")
	require.NoError(t, s.Create(ctx, d))

	require.ErrorIs(t, s.Delete(ctx, "mallory", d.ID), ErrNotFound)
	require.NoError(t, s.Delete(ctx, "ada", d.ID))
	require.ErrorIs(t, s.Delete(ctx, "ada", d.ID), ErrNotFound)
	_, err := s.Get(ctx, "ada", d.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		require.NoError(t, s.Create(ctx, newDraft("ada", fmt.Sprintf("post %02d about mars", i))))
	}
	require.NoError(t, s.Create(ctx, newDraft("ada", "a post about the moon")))
	require.NoError(t, s.Create(ctx, newDraft("grace", "not yours, mars")))

	page, err := s.List(ctx, Filter{Owner: "ada"})
	require.NoError(t, err)
	require.Equal(t, 13, page.Total)
	require.Equal(t, 2, page.Pages)
	require.Equal(t, 1, page.Page)
	require.Len(t, page.Posts, 10)
	require.Equal(t, "a post about the moon", page.Posts[0].Content, "newest first")

	page, err = s.List(ctx, Filter{Owner: "ada", Page: 2})
	require.NoError(t, err)
	require.Len(t, page.Posts, 3)
	require.Equal(t, "post 01 about mars", page.Posts[2].Content)

	page, err = s.List(ctx, Filter{Owner: "ada", Query: "moon"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	page, err = s.List(ctx, Filter{Owner: "ada", Query: "prompt for post 0"})
	require.NoError(t, err)
	require.Equal(t, 9, page.Total)

	_, err = s.Publish(ctx, "ada", page.Posts[0].ID)
	require.NoError(t, err)
	page, err = s.List(ctx, Filter{Owner: "ada", Status: StatusPublished})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	page, err = s.List(ctx, Filter{Owner: "ada", Page: math.MaxInt})
	require.NoError(t, err)
	require.Equal(t, 13, page.Total)
	require.Empty(t, page.Posts)

	page, err = s.List(ctx, Filter{Owner: "nobody"})
	require.NoError(t, err)
	require.Zero(t, page.Total)
	require.NotNil(t, page.Posts)

	_, err = s.List(ctx, Filter{Owner: "ada", Status: "bogus"})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestFromResult(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	loop, err := reflection.New(
		reflection.GeneratorFunc(func(context.Context, []reflection.Message) (reflection.Message, error) {
			return reflection.Message{Role: reflection.RoleGeneration, Text: "final"}, nil
		}),
		reflection.CriticFunc(func(context.Context, string) (string, error) { return "fine", nil }),
		reflection.WithMaxRounds(1),
	)
	require.NoError(t, err)
	res, err := loop.Run(ctx, "topic")
	require.NoError(t, err)

	d := FromResult("ada", "topic", res)
	require.Equal(t, "final", d.Content)
	require.Equal(t, "topic", d.OriginalPrompt)
	require.Equal(t, StatusDraft, d.Status)
	require.Equal(t, res.Transcript, d.Transcript)
	require.Equal(t, res.RunID, d.Metadata["run_id"])

	require.NoError(t, s.Create(ctx, &d))
	saved, err := s.Get(ctx, "ada", d.ID)
	require.NoError(t, err)
	require.NotEmpty(t, saved.Metadata["run_id"])
	require.Equal(t, res.RunID, saved.Metadata["run_id"])
	require.Equal(t, float64(1), saved.Metadata["rounds"])
}

func TestDraftHelpers(t *testing.T) {
	d := PostDraft{Content: "**Liftoff!** " + strings.Repeat("a", 120)}
	require.Equal(t, 103, len([]rune(d.Preview())))
	require.True(t, strings.HasSuffix(d.Preview(), "..."))

	html, err := d.HTML()
	require.NoError(t, err)
	require.Contains(t, html, "<strong>Liftoff!</strong>")

	require.Equal(t, "Untitled post", titleFromContent("\n  \n"))
	require.Equal(t, "Big news", titleFromContent("\n## Big news\nbody"))

	st, err := ParseStatus(" Published ")
	require.NoError(t, err)
	require.Equal(t, StatusPublished, st)
	_, err = ParseStatus("deleted")
	require.ErrorIs(t, err, ErrInvalidStatus)
}
