package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/comigor/herald-go/internal/logger"
	"github.com/comigor/herald-go/internal/reflection"
	"github.com/comigor/herald-go/internal/store"
)

// UserHeader carries the name of the user a request acts for.
const UserHeader = "X-Herald-User"

const maxBodyBytes = 1 << 20

// Runner runs one reflection loop.
type Runner interface {
	Run(ctx context.Context, prompt string) (reflection.Result, error)
}

// Drafts is the persistence used by the draft endpoints.
type Drafts interface {
	Create(ctx context.Context, d *store.PostDraft) error
	Get(ctx context.Context, owner string, id int64) (store.PostDraft, error)
	Update(ctx context.Context, owner string, id int64, u store.Update) (store.PostDraft, error)
	SetStatus(ctx context.Context, owner string, id int64, status store.Status) (store.PostDraft, error)
	Publish(ctx context.Context, owner string, id int64) (store.PostDraft, error)
	Archive(ctx context.Context, owner string, id int64) (store.PostDraft, error)
	Delete(ctx context.Context, owner string, id int64) error
	List(ctx context.Context, f store.Filter) (store.Page, error)
}

// Server exposes the reflection loop and the draft store over JSON HTTP.
type Server struct {
	runner  Runner
	drafts  Drafts
	timeout time.Duration
	router  *httprouter.Router
}

// New creates a Server. timeout bounds each /api/process call when positive.
func New(runner Runner, drafts Drafts, timeout time.Duration) *Server {
	s := &Server{
		runner:  runner,
		drafts:  drafts,
		timeout: timeout,
		router:  httprouter.New(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	s.router.POST("/api/process", s.withUser(s.handleProcess))

	s.router.GET("/api/drafts", s.withUser(s.handleDraftList))
	s.router.POST("/api/drafts", s.withUser(s.handleDraftCreate))
	s.router.GET("/api/drafts/:id", s.withUser(s.handleDraftGet))
	s.router.PUT("/api/drafts/:id", s.withUser(s.handleDraftUpdate))
	s.router.DELETE("/api/drafts/:id", s.withUser(s.handleDraftDelete))
	s.router.POST("/api/drafts/:id/status", s.withUser(s.handleDraftStatus))
}

// Handler returns the routed handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return logMiddleware(s.router)
}

type userHandle func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, owner string)

func (s *Server) withUser(h userHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		owner := strings.TrimSpace(r.Header.Get(UserHeader))
		if owner == "" {
			writeError(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
			return
		}
		h(w, r, ps, owner)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type processRequest struct {
	Prompt string `json:"prompt"`
	// Save stores the final post as a draft owned by the caller.
	Save bool `json:"save"`
}

type processResponse struct {
	Success             bool               `json:"success"`
	RunID               string             `json:"run_id"`
	Rounds              int                `json:"rounds"`
	FinalPost           string             `json:"final_post"`
	ConversationHistory []reflection.Entry `json:"conversation_history"`
	DraftID             int64              `json:"draft_id,omitempty"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request, _ httprouter.Params, owner string) {
	var req processRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	prompt := strings.TrimSpace(req.Prompt)

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger.L.Info("processing prompt", "owner", owner, "prompt", truncate(prompt, 100))
	res, err := s.runner.Run(ctx, prompt)
	if errors.Is(err, reflection.ErrEmptyInput) {
		writeError(w, http.StatusBadRequest, "Please enter a prompt.")
		return
	}
	if err != nil {
		logger.L.Error("process error", "owner", owner, "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, "Error processing your request. Please try again.")
		return
	}

	resp := processResponse{
		Success:             true,
		RunID:               res.RunID,
		Rounds:              res.Rounds,
		FinalPost:           res.FinalText,
		ConversationHistory: res.Transcript,
	}
	if req.Save {
		d := store.FromResult(owner, prompt, res)
		if err := s.drafts.Create(r.Context(), &d); err != nil {
			s.storeError(w, err)
			return
		}
		resp.DraftID = d.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

type draftRequest struct {
	Title               string             `json:"title"`
	Content             string             `json:"content"`
	OriginalPrompt      string             `json:"original_prompt"`
	ConversationHistory []reflection.Entry `json:"conversation_history"`
	GenerationMetadata  map[string]any     `json:"generation_metadata"`
}

// draftView adds the derived fields to a stored draft.
type draftView struct {
	store.PostDraft
	WordCount int    `json:"word_count"`
	Preview   string `json:"preview"`
	HTML      string `json:"html,omitempty"`
}

func viewOf(d store.PostDraft) draftView {
	return draftView{PostDraft: d, WordCount: d.WordCount(), Preview: d.Preview()}
}

func (s *Server) handleDraftCreate(w http.ResponseWriter, r *http.Request, _ httprouter.Params, owner string) {
	var req draftRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	d := &store.PostDraft{
		Title:          req.Title,
		Content:        req.Content,
		OriginalPrompt: req.OriginalPrompt,
		Status:         store.StatusDraft,
		Transcript:     req.ConversationHistory,
		Metadata:       req.GenerationMetadata,
		Owner:          owner,
	}
	if err := s.drafts.Create(r.Context(), d); err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(*d))
}

type listResponse struct {
	store.Page
	Posts []draftView `json:"posts"`
}

func (s *Server) handleDraftList(w http.ResponseWriter, r *http.Request, _ httprouter.Params, owner string) {
	q := r.URL.Query()
	f := store.Filter{Owner: owner, Query: q.Get("q")}
	if st := q.Get("status"); st != "" {
		status, err := store.ParseStatus(st)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Status = status
	}
	if p := q.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		f.Page = n
	}

	page, err := s.drafts.List(r.Context(), f)
	if err != nil {
		s.storeError(w, err)
		return
	}
	resp := listResponse{Page: page, Posts: make([]draftView, 0, len(page.Posts))}
	for _, d := range page.Posts {
		resp.Posts = append(resp.Posts, viewOf(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDraftGet(w http.ResponseWriter, r *http.Request, ps httprouter.Params, owner string) {
	id, ok := draftID(w, ps)
	if !ok {
		return
	}
	d, err := s.drafts.Get(r.Context(), owner, id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	view := viewOf(d)
	if html, err := d.HTML(); err == nil {
		view.HTML = html
	} else {
		logger.L.Warn("failed to render draft", "id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, view)
}

type updateRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Status  *string `json:"status"`
}

func (s *Server) handleDraftUpdate(w http.ResponseWriter, r *http.Request, ps httprouter.Params, owner string) {
	id, ok := draftID(w, ps)
	if !ok {
		return
	}
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u := store.Update{Title: req.Title, Content: req.Content}
	if req.Status != nil {
		st := store.Status(*req.Status)
		u.Status = &st
	}
	d, err := s.drafts.Update(r.Context(), owner, id, u)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(d))
}

func (s *Server) handleDraftStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params, owner string) {
	id, ok := draftID(w, ps)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	st, err := store.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var d store.PostDraft
	switch st {
	case store.StatusPublished:
		d, err = s.drafts.Publish(r.Context(), owner, id)
	case store.StatusArchived:
		d, err = s.drafts.Archive(r.Context(), owner, id)
	default:
		d, err = s.drafts.SetStatus(r.Context(), owner, id, st)
	}
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": d.Status})
}

func (s *Server) handleDraftDelete(w http.ResponseWriter, r *http.Request, ps httprouter.Params, owner string) {
	id, ok := draftID(w, ps)
	if !ok {
		return
	}
	if err := s.drafts.Delete(r.Context(), owner, id); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidStatus), errors.Is(err, store.ErrInvalidDraft):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.L.Error("store error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func draftID(w http.ResponseWriter, ps httprouter.Params) (int64, bool) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid draft id")
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.L.Info("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
