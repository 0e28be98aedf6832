// Package store provides SQLite-based persistence for post drafts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/herald-go/internal/logger"
	"github.com/comigor/herald-go/internal/reflection"
)

var (
	ErrNotFound      = errors.New("draft not found")
	ErrInvalidStatus = errors.New("invalid status")
	ErrInvalidDraft  = errors.New("invalid draft")
)

const defaultPerPage = 10

// timestamps are stored as fixed-width UTC text so they sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store persists drafts in a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS drafts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		original_prompt TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'draft',
		conversation_history TEXT,
		generation_metadata TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_drafts_owner_created ON drafts(owner, created_at);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.L.Info("sqlite draft store initialized", "path", path)

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Create inserts d, filling ID, Status, Title and the timestamps.
func (s *Store) Create(ctx context.Context, d *PostDraft) error {
	if strings.TrimSpace(d.Owner) == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidDraft)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidDraft)
	}
	if d.Status == "" {
		d.Status = StatusDraft
	}
	st, err := ParseStatus(string(d.Status))
	if err != nil {
		return err
	}
	d.Status = st
	d.Title = normalizeTitle(d.Title, d.Content)

	transcript, err := json.Marshal(d.Transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	metadata, err := json.Marshal(d.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO drafts
		(owner, title, content, original_prompt, status, conversation_history, generation_metadata, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?);`,
		d.Owner, d.Title, d.Content, d.OriginalPrompt, string(d.Status), string(transcript), string(metadata),
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	if d.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	d.CreatedAt, d.UpdatedAt = now, now
	logger.L.Info("draft created", "id", d.ID, "owner", d.Owner)
	return nil
}

const selectColumns = `SELECT id, owner, title, content, original_prompt, status, conversation_history, generation_metadata, created_at, updated_at FROM drafts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (PostDraft, error) {
	var (
		d                    PostDraft
		status               string
		transcript, metadata sql.NullString
		created, updated     string
	)
	if err := row.Scan(&d.ID, &d.Owner, &d.Title, &d.Content, &d.OriginalPrompt, &status, &transcript, &metadata, &created, &updated); err != nil {
		return PostDraft{}, err
	}
	d.Status = Status(status)
	if transcript.Valid && transcript.String != "" && transcript.String != "null" {
		if err := json.Unmarshal([]byte(transcript.String), &d.Transcript); err != nil {
			return PostDraft{}, fmt.Errorf("decode transcript of draft %d: %w", d.ID, err)
		}
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &d.Metadata); err != nil {
			return PostDraft{}, fmt.Errorf("decode metadata of draft %d: %w", d.ID, err)
		}
	}
	var err error
	if d.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return PostDraft{}, err
	}
	if d.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return PostDraft{}, err
	}
	return d, nil
}

// Get returns the draft id owned by owner.
func (s *Store) Get(ctx context.Context, owner string, id int64) (PostDraft, error) {
	return getDraft(ctx, s.db, owner, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDraft(ctx context.Context, q querier, owner string, id int64) (PostDraft, error) {
	d, err := scanDraft(q.QueryRowContext(ctx, selectColumns+` WHERE id = ? AND owner = ?;`, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return PostDraft{}, ErrNotFound
	}
	if err != nil {
		return PostDraft{}, fmt.Errorf("get draft %d: %w", id, err)
	}
	return d, nil
}

// Update holds the editable fields of a draft; nil fields are left unchanged.
type Update struct {
	Title   *string
	Content *string
	Status  *Status
}

// Update applies u to the draft inside a transaction and returns the result.
func (s *Store) Update(ctx context.Context, owner string, id int64, u Update) (PostDraft, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PostDraft{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	d, err := getDraft(ctx, tx, owner, id)
	if err != nil {
		return PostDraft{}, err
	}

	if u.Content != nil {
		if strings.TrimSpace(*u.Content) == "" {
			return PostDraft{}, fmt.Errorf("%w: content is required", ErrInvalidDraft)
		}
		d.Content = *u.Content
	}
	if u.Title != nil {
		d.Title = normalizeTitle(*u.Title, d.Content)
	}
	if u.Status != nil {
		st, err := ParseStatus(string(*u.Status))
		if err != nil {
			return PostDraft{}, err
		}
		d.Status = st
	}
	d.UpdatedAt = s.now().UTC()

	if _, err := tx.ExecContext(ctx, `UPDATE drafts SET title = ?, content = ?, status = ?, updated_at = ? WHERE id = ? AND owner = ?;`,
		d.Title, d.Content, string(d.Status), d.UpdatedAt.Format(timeLayout), id, owner); err != nil {
		return PostDraft{}, fmt.Errorf("update draft %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return PostDraft{}, fmt.Errorf("commit update: %w", err)
	}
	logger.L.Info("draft updated", "id", id, "owner", owner, "status", d.Status)
	return d, nil
}

// SetStatus moves the draft to status.
func (s *Store) SetStatus(ctx context.Context, owner string, id int64, status Status) (PostDraft, error) {
	return s.Update(ctx, owner, id, Update{Status: &status})
}

// Publish marks the draft published.
func (s *Store) Publish(ctx context.Context, owner string, id int64) (PostDraft, error) {
	return s.SetStatus(ctx, owner, id, StatusPublished)
}

// Archive marks the draft archived.
func (s *Store) Archive(ctx context.Context, owner string, id int64) (PostDraft, error) {
	return s.SetStatus(ctx, owner, id, StatusArchived)
}

// Delete removes the draft.
func (s *Store) Delete(ctx context.Context, owner string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ? AND owner = ?;`, id, owner)
	if err != nil {
		return fmt.Errorf("delete draft %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete draft %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	logger.L.Info("draft deleted", "id", id, "owner", owner)
	return nil
}

// Filter selects drafts for List. Owner is required; Page starts at 1.
type Filter struct {
	Owner   string
	Status  Status
	Query   string
	Page    int
	PerPage int
}

// Page is one page of List results.
type Page struct {
	Posts []PostDraft `json:"posts"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Pages int         `json:"pages"`
}

// List returns the owner's drafts, newest first.
func (s *Store) List(ctx context.Context, f Filter) (Page, error) {
	if f.Status != "" {
		if _, err := ParseStatus(string(f.Status)); err != nil {
			return Page{}, err
		}
	}
	if f.PerPage <= 0 {
		f.PerPage = defaultPerPage
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	where := []string{"owner = ?"}
	args := []any{f.Owner}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + q + "%"
		where = append(where, "(title LIKE ? OR content LIKE ? OR original_prompt LIKE ?)")
		args = append(args, like, like, like)
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM drafts`+clause+`;`, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count drafts: %w", err)
	}

	out := Page{Posts: []PostDraft{}, Total: total, Page: f.Page, Pages: (total + f.PerPage - 1) / f.PerPage}
	// pages past the end are empty and never reach the OFFSET computation
	if f.Page > out.Pages {
		return out, nil
	}

	pageArgs := append(append([]any{}, args...), f.PerPage, (f.Page-1)*f.PerPage)
	rows, err := s.db.QueryContext(ctx, selectColumns+clause+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?;`, pageArgs...)
	if err != nil {
		return Page{}, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return Page{}, err
		}
		out.Posts = append(out.Posts, d)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("list drafts: %w", err)
	}
	return out, nil
}

// FromResult builds an unsaved draft from a finished reflection run. The run
// id and round count go into the generation metadata.
func FromResult(owner, prompt string, res reflection.Result) PostDraft {
	return PostDraft{
		Content:        res.FinalText,
		OriginalPrompt: prompt,
		Status:         StatusDraft,
		Transcript:     res.Transcript,
		Metadata: map[string]any{
			"run_id": res.RunID,
			"rounds": res.Rounds,
		},
		Owner: owner,
	}
}

func normalizeTitle(title, content string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return titleFromContent(content)
	}
	if r := []rune(title); len(r) > maxTitleLen {
		return string(r[:maxTitleLen])
	}
	return title
}
