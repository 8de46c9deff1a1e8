package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rahul/autopilot/internal/catalog"
	"github.com/rahul/autopilot/internal/engine"
)

func newStore(t *testing.T) *HistoryStore {
	t.Helper()
	h, err := NewHistoryStore(filepath.Join(t.TempDir(), "history.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestCommands(t *testing.T) {
	h := newStore(t)
	ctx := context.Background()

	_, err := h.AddCommand(ctx, Command{ChatID: "cli", Text: "search golang", Modality: "text", TemplateID: "web_search", Score: 0.6, Outcome: "matched"})
	require.NoError(t, err)
	_, err = h.AddCommand(ctx, Command{ChatID: "tg-1", Text: "weather", Modality: "text", Outcome: "no_match"})
	require.NoError(t, err)

	all, err := h.Commands(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "weather", all[0].Text)

	cli, err := h.Commands(ctx, "cli", 10)
	require.NoError(t, err)
	require.Len(t, cli, 1)
	assert.Equal(t, "web_search", cli[0].TemplateID)
	assert.InDelta(t, 0.6, cli[0].Score, 1e-9)
}

func TestOnStatus_PersistsTerminalRuns(t *testing.T) {
	h := newStore(t)
	start := time.Now().Add(-time.Second)

	running := engine.Status{RunID: "r1", State: engine.StateRunning}
	h.OnStatus(running)
	runs, err := h.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	final := engine.Status{
		RunID:      "r1",
		PlanID:     "p1",
		TemplateID: "email_compose",
		Input:      "send an email to bob@example.com",
		State:      engine.StateFailed,
		Err:        &engine.StepExecutionError{StepIndex: 1, Action: catalog.ActionClick, Cause: errors.New("element not found")},
		StartedAt:  start,
		EndedAt:    time.Now(),
		Steps: []engine.StepOutcome{
			{Index: 0, Action: catalog.ActionNavigate, State: engine.StepSucceeded, StartedAt: start, EndedAt: start.Add(150 * time.Millisecond)},
			{Index: 1, Action: catalog.ActionClick, Target: "compose_button", State: engine.StepFailed, Error: "element not found"},
			{Index: 2, Action: catalog.ActionType, State: engine.StepPending},
		},
	}
	h.OnStatus(final)
	h.OnStatus(final) // replacing is harmless

	runs, err = h.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	r := runs[0]
	assert.Equal(t, "failed", r.State)
	assert.Contains(t, r.Error, "step 1 (click)")
	require.Len(t, r.Steps, 3)
	assert.Equal(t, "succeeded", r.Steps[0].State)
	assert.Equal(t, int64(150), r.Steps[0].DurationMS)
	assert.Equal(t, "compose_button", r.Steps[1].Target)
	assert.Equal(t, "pending", r.Steps[2].State)
}

func TestSchedules(t *testing.T) {
	h := newStore(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	_, err := h.AddSchedule(ctx, "cli", "search golang", 10*time.Second)
	assert.ErrorIs(t, err, ErrIntervalTooShort)

	hourly, err := h.AddSchedule(ctx, "cli", "search golang", time.Hour)
	require.NoError(t, err)
	once, err := h.AddSchedule(ctx, "tg-1", "open example.com", 0)
	require.NoError(t, err)

	due, err := h.DueSchedules(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.False(t, due[0].OneShot())
	assert.True(t, due[1].OneShot())

	require.NoError(t, h.MarkScheduleRun(ctx, hourly, now))
	due, err = h.DueSchedules(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, once, due[0].ID)

	due, err = h.DueSchedules(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 2)

	mine, err := h.ListSchedules(ctx, "cli")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, now, mine[0].LastRun)

	deleted, err := h.DeleteSchedule(ctx, "cli", once)
	require.NoError(t, err)
	assert.False(t, deleted, "schedule belongs to another chat")

	deleted, err = h.DeleteSchedule(ctx, "", once)
	require.NoError(t, err)
	assert.True(t, deleted)

	require.NoError(t, h.ClearSchedules(ctx, "cli"))
	all, err := h.ListSchedules(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}
