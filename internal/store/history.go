// Package store keeps commands, finished runs and scheduled commands in sqlite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"go.uber.org/zap"

	"github.com/rahul/autopilot/internal/engine"
)

// writeTimeout bounds writes made from engine callbacks.
const writeTimeout = 5 * time.Second

type HistoryStore struct {
	DB     *sql.DB
	logger *zap.Logger
}

var _ engine.Observer = (*HistoryStore)(nil)

// NewHistoryStore opens (creating if needed) the database at dbPath.
// ":memory:" gives a private in-memory database.
func NewHistoryStore(dbPath string, logger *zap.Logger) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection also keeps :memory: shared
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			text TEXT NOT NULL,
			modality TEXT NOT NULL,
			template_id TEXT,
			score REAL,
			run_id TEXT,
			outcome TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			plan_id TEXT,
			template_id TEXT,
			input TEXT,
			state TEXT NOT NULL,
			error TEXT,
			failure_screenshot TEXT,
			started_at INTEGER,
			ended_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS step_outcomes (
			run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			action TEXT NOT NULL,
			target TEXT,
			state TEXT NOT NULL,
			artifact TEXT,
			note TEXT,
			error TEXT,
			duration_ms INTEGER,
			PRIMARY KEY (run_id, idx)
		);`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			command TEXT NOT NULL,
			interval_seconds INTEGER NOT NULL,
			last_run INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active'
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryStore{DB: db, logger: logger.Named("store")}, nil
}

func (h *HistoryStore) Close() error { return h.DB.Close() }

// AddCommand records a received command and returns its id.
func (h *HistoryStore) AddCommand(ctx context.Context, c Command) (int64, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	res, err := h.DB.ExecContext(ctx,
		`INSERT INTO commands (chat_id, text, modality, template_id, score, run_id, outcome, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ChatID, c.Text, c.Modality, c.TemplateID, c.Score, c.RunID, c.Outcome, c.CreatedAt.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Commands returns the latest commands of chatID, newest first. An empty
// chatID returns commands from every chat.
func (h *HistoryStore) Commands(ctx context.Context, chatID string, limit int) ([]Command, error) {
	rows, err := h.DB.QueryContext(ctx,
		`SELECT id, chat_id, text, modality, COALESCE(template_id, ''), COALESCE(score, 0),
		        COALESCE(run_id, ''), outcome, created_at
		 FROM commands WHERE (? = '' OR chat_id = ?) ORDER BY id DESC LIMIT ?`,
		chatID, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Command
	for rows.Next() {
		var c Command
		var created int64
		if err := rows.Scan(&c.ID, &c.ChatID, &c.Text, &c.Modality, &c.TemplateID, &c.Score, &c.RunID, &c.Outcome, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, created)
		out = append(out, c)
	}
	return out, rows.Err()
}

// OnStatus persists runs when they reach a terminal state.
func (h *HistoryStore) OnStatus(s engine.Status) {
	if !s.State.Terminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := h.SaveRun(ctx, s); err != nil {
		h.logger.Error("Failed to persist run.", zap.String("run_id", s.RunID), zap.Error(err))
	}
}

// SaveRun writes a run and its step outcomes, replacing an earlier copy.
func (h *HistoryStore) SaveRun(ctx context.Context, s engine.Status) error {
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var errText string
	if s.Err != nil {
		errText = s.Err.Error()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, plan_id, template_id, input, state, error, failure_screenshot, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.PlanID, s.TemplateID, s.Input, string(s.State), errText, s.FailureScreenshot,
		s.StartedAt.UnixNano(), s.EndedAt.UnixNano()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM step_outcomes WHERE run_id = ?`, s.RunID); err != nil {
		return err
	}
	for _, o := range s.Steps {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO step_outcomes (run_id, idx, action, target, state, artifact, note, error, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.RunID, o.Index, string(o.Action), o.Target, string(o.State), o.Artifact, o.Note, o.Error,
			o.Duration().Milliseconds()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// History returns the latest finished runs, newest first, with their steps.
func (h *HistoryStore) History(ctx context.Context, limit int) ([]Run, error) {
	rows, err := h.DB.QueryContext(ctx,
		`SELECT run_id, plan_id, template_id, input, state, COALESCE(error, ''), COALESCE(failure_screenshot, ''),
		        started_at, ended_at
		 FROM runs ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	var runs []Run
	for rows.Next() {
		var r Run
		var started, ended int64
		if err := rows.Scan(&r.RunID, &r.PlanID, &r.TemplateID, &r.Input, &r.State, &r.Error, &r.FailureScreenshot, &started, &ended); err != nil {
			rows.Close()
			return nil, err
		}
		r.StartedAt = time.Unix(0, started)
		r.EndedAt = time.Unix(0, ended)
		runs = append(runs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// steps are read after the runs cursor is closed; the pool has one connection
	for i := range runs {
		steps, err := h.steps(ctx, runs[i].RunID)
		if err != nil {
			return nil, err
		}
		runs[i].Steps = steps
	}
	return runs, nil
}

func (h *HistoryStore) steps(ctx context.Context, runID string) ([]Step, error) {
	rows, err := h.DB.QueryContext(ctx,
		`SELECT idx, action, COALESCE(target, ''), state, COALESCE(artifact, ''), COALESCE(note, ''),
		        COALESCE(error, ''), COALESCE(duration_ms, 0)
		 FROM step_outcomes WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		var s Step
		if err := rows.Scan(&s.Index, &s.Action, &s.Target, &s.State, &s.Artifact, &s.Note, &s.Error, &s.DurationMS); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
