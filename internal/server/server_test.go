package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/herald-go/internal/reflection"
	"github.com/comigor/herald-go/internal/store"
)

type runnerFunc func(ctx context.Context, prompt string) (reflection.Result, error)

func (f runnerFunc) Run(ctx context.Context, prompt string) (reflection.Result, error) {
	return f(ctx, prompt)
}

func newTestServer(t *testing.T, runner Runner) http.Handler {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "drafts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(runner, st, time.Second).Handler()
}

func do(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func fixedRunner() Runner {
	return runnerFunc(func(_ context.Context, prompt string) (reflection.Result, error) {
		if prompt == "" {
			return reflection.Result{}, reflection.ErrEmptyInput
		}
		return reflection.Result{
			RunID:     "run-" + prompt,
			Rounds:    1,
			FinalText: "FINAL about " + prompt,
			Transcript: []reflection.Entry{
				{Text: "DRAFT1"},
				{Text: "Feedback: punchier", IsFeedback: true},
				{Text: "FINAL about " + prompt},
			},
		}, nil
	})
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, fixedRunner())
	rec := do(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProcess(t *testing.T) {
	h := newTestServer(t, fixedRunner())

	rec := do(t, h, http.MethodPost, "/api/process", "ada", map[string]string{"prompt": " Mars rover "})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[processResponse](t, rec)
	require.True(t, resp.Success)
	require.Equal(t, "FINAL about Mars rover", resp.FinalPost)
	require.Len(t, resp.ConversationHistory, 3)
	require.True(t, resp.ConversationHistory[1].IsFeedback)
	require.Equal(t, "run-Mars rover", resp.RunID)
	require.Equal(t, 1, resp.Rounds)
	require.Zero(t, resp.DraftID)

	rec = do(t, h, http.MethodGet, "/api/drafts", "ada", nil)
	require.Zero(t, decode[listResponse](t, rec).Total)
}

func TestProcess_SaveDraft(t *testing.T) {
	h := newTestServer(t, fixedRunner())

	rec := do(t, h, http.MethodPost, "/api/process", "ada", map[string]any{"prompt": "Mars rover", "save": true})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[processResponse](t, rec)
	require.NotZero(t, resp.DraftID)

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/api/drafts/%d", resp.DraftID), "ada", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[draftView](t, rec)
	require.Equal(t, "FINAL about Mars rover", saved.Content)
	require.Equal(t, "Mars rover", saved.OriginalPrompt)
	require.Equal(t, "run-Mars rover", saved.Metadata["run_id"])
	require.Equal(t, float64(1), saved.Metadata["rounds"])
	require.Len(t, saved.Transcript, 3)
}

func TestProcess_Errors(t *testing.T) {
	h := newTestServer(t, fixedRunner())

	rec := do(t, h, http.MethodPost, "/api/process", "", map[string]string{"prompt": "x"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/process", "ada", map[string]string{"prompt": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"success":false,"error":"Please enter a prompt."}`, rec.Body.String())

	failing := newTestServer(t, runnerFunc(func(context.Context, string) (reflection.Result, error) {
		return reflection.Result{}, &reflection.GenerationError{Err: errors.New("secret upstream detail")}
	}))
	rec = do(t, failing, http.MethodPost, "/api/process", "ada", map[string]string{"prompt": "x"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret upstream detail")

	slow := newTestServer(t, runnerFunc(func(ctx context.Context, _ string) (reflection.Result, error) {
		<-ctx.Done()
		return reflection.Result{}, &reflection.GenerationError{Err: ctx.Err()}
	}))
	rec = do(t, slow, http.MethodPost, "/api/process", "ada", map[string]string{"prompt": "x"})
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestDraftLifecycle(t *testing.T) {
	h := newTestServer(t, fixedRunner())

	rec := do(t, h, http.MethodPost, "/api/drafts", "ada", draftRequest{
		Content:             "**Perseverance** found something.",
		OriginalPrompt:      "Mars rover",
		ConversationHistory: []reflection.Entry{{Text: "**Perseverance** found something."}},
		GenerationMetadata:  map[string]any{"rounds": 3},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[draftView](t, rec)
	require.NotZero(t, created.ID)
	require.Equal(t, store.StatusDraft, created.Status)
	require.Equal(t, "**Perseverance** found something.", created.Title)
	require.Equal(t, 3, created.WordCount)

	path := fmt.Sprintf("/api/drafts/%d", created.ID)

	rec = do(t, h, http.MethodGet, path, "ada", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[draftView](t, rec)
	require.Contains(t, got.HTML, "<strong>Perseverance</strong>")
	require.Len(t, got.Transcript, 1)

	rec = do(t, h, http.MethodGet, path, "grace", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, path, "ada", map[string]string{"title": "Rover news"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Rover news", decode[draftView](t, rec).Title)

	rec = do(t, h, http.MethodPost, path+"/status", "ada", map[string]string{"status": "published"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"status":"published"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, path+"/status", "ada", map[string]string{"status": "archived"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"status":"archived"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, path+"/status", "ada", map[string]string{"status": "published"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, path+"/status", "ada", map[string]string{"status": "deleted"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, path, "ada", map[string]string{"status": "bogus"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/drafts?status=published", "ada", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listResponse](t, rec)
	require.Equal(t, 1, list.Total)
	require.Equal(t, 1, list.Pages)
	require.Len(t, list.Posts, 1)
	require.Equal(t, "Rover news", list.Posts[0].Title)

	rec = do(t, h, http.MethodGet, "/api/drafts?q=nothing-matches", "ada", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, decode[listResponse](t, rec).Total)

	rec = do(t, h, http.MethodDelete, path, "ada", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, path, "ada", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDraftBadInput(t *testing.T) {
	h := newTestServer(t, fixedRunner())

	rec := do(t, h, http.MethodPost, "/api/drafts", "ada", draftRequest{Content: "  "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/drafts/abc", "ada", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/drafts?page=0", "ada", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/drafts?page=9223372036854775807", "ada", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[listResponse](t, rec).Posts)

	rec = do(t, h, http.MethodGet, "/api/drafts?status=gone", "ada", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
