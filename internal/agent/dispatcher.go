package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/autopilot/internal/engine"
	"github.com/rahul/autopilot/internal/input"
	"github.com/rahul/autopilot/internal/matcher"
	"github.com/rahul/autopilot/internal/planner"
	"github.com/rahul/autopilot/internal/store"
)

// Brain answers a chat message with a reply text.
type Brain interface {
	Think(ctx context.Context, chatID string, input string) (string, error)
}

// Match outcomes recorded in the command log and the metrics.
const (
	OutcomeMatched          = "matched"
	OutcomeNoMatch          = "no_match"
	OutcomeExtractionFailed = "extraction_failed"
)

// CommandLog persists received commands.
type CommandLog interface {
	AddCommand(ctx context.Context, c store.Command) (int64, error)
}

// MatchObserver counts match outcomes.
type MatchObserver interface {
	ObserveMatch(outcome string)
}

// Reply is what became of one command. Exactly one of Run, Suggestions or
// Extraction describes the result; Run is nil unless Outcome is matched.
type Reply struct {
	Outcome     string
	Match       matcher.Match
	Plan        *planner.ExecutionPlan
	Run         *engine.Run
	Suggestions []matcher.Match
	Extraction  *planner.ExtractionError
}

// Text renders the reply for a chat user. A started run is described by its
// current status.
func (r Reply) Text() string {
	switch r.Outcome {
	case OutcomeNoMatch:
		if len(r.Suggestions) == 0 {
			return "I don't know how to do that yet."
		}
		var b strings.Builder
		b.WriteString("I'm not sure what you mean. Did you want one of these?\n")
		for _, s := range r.Suggestions {
			fmt.Fprintf(&b, "- %s (%s, %.2f)\n", s.Template.Name, s.Template.ID, s.Score)
		}
		return strings.TrimRight(b.String(), "\n")
	case OutcomeExtractionFailed:
		return fmt.Sprintf("I matched %q but could not find a %s in your message for {%s}. Please rephrase.",
			r.Match.Template.Name, kindOrValue(r.Extraction), r.Extraction.Placeholder)
	}
	if r.Run == nil {
		return ""
	}
	return Summarize(r.Run.Status())
}

func kindOrValue(e *planner.ExtractionError) string {
	if e == nil || e.Kind == "" {
		return "value"
	}
	return string(e.Kind)
}

// Summarize describes a run in one or two lines.
func Summarize(s engine.Status) string {
	switch s.State {
	case engine.StateSucceeded:
		return fmt.Sprintf("✅ %s done: %d steps in %s.", s.TemplateID, len(s.Steps),
			s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond))
	case engine.StateFailed:
		msg := fmt.Sprintf("❌ %s failed: %v", s.TemplateID, s.Err)
		if s.FailureScreenshot != "" {
			msg += "\nScreenshot: " + s.FailureScreenshot
		}
		return msg
	}
	return fmt.Sprintf("⚙️ %s %s (%d steps).", s.TemplateID, s.State, len(s.Steps))
}

// Dispatcher turns commands into runs: match, build a plan, hand it to the
// engine.
type Dispatcher struct {
	matcher *matcher.Matcher
	engine  *engine.Engine
	log     CommandLog
	metrics MatchObserver
	logger  *zap.Logger
}

type DispatcherOption func(*Dispatcher)

func WithCommandLog(l CommandLog) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

func WithMatchObserver(o MatchObserver) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = o }
}

func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

func NewDispatcher(m *matcher.Matcher, e *engine.Engine, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{matcher: m, engine: e, logger: zap.NewNop()}
	for _, o := range opts {
		o(d)
	}
	d.logger = d.logger.Named("dispatcher")
	return d
}

// Handle matches cmd and, on a match with all values extracted, starts a run.
// No match and missing values are ordinary replies, not errors.
func (d *Dispatcher) Handle(ctx context.Context, chatID string, cmd input.UserCommand) (Reply, error) {
	log := d.logger.With(zap.String("chat_id", chatID), zap.String("input", cmd.RawText))

	best, ok := d.matcher.FindBest(cmd.RawText)
	if !ok {
		reply := Reply{Outcome: OutcomeNoMatch, Match: best, Suggestions: d.matcher.Rank(cmd.RawText, 0)}
		log.Info("No template matched.", zap.String("event", "match"),
			zap.Float64("best_score", best.Score), zap.Int("suggestions", len(reply.Suggestions)))
		d.record(ctx, chatID, cmd, reply)
		return reply, nil
	}

	plan, err := planner.Build(cmd.RawText, best.Template)
	if err != nil {
		var ee *planner.ExtractionError
		if !errors.As(err, &ee) {
			return Reply{}, fmt.Errorf("build plan for %s: %w", best.Template.ID, err)
		}
		reply := Reply{Outcome: OutcomeExtractionFailed, Match: best, Extraction: ee}
		log.Info("Extraction failed.", zap.String("event", "plan"), zap.Error(err))
		d.record(ctx, chatID, cmd, reply)
		return reply, nil
	}

	log.Info("Plan built.", zap.String("event", "plan"),
		zap.String("template", best.Template.ID),
		zap.Float64("score", best.Score),
		zap.String("plan_id", plan.ID()),
		zap.Int("steps", plan.Len()))

	run := d.engine.Execute(ctx, plan)
	reply := Reply{Outcome: OutcomeMatched, Match: best, Plan: plan, Run: run}
	d.record(ctx, chatID, cmd, reply)
	return reply, nil
}

func (d *Dispatcher) record(ctx context.Context, chatID string, cmd input.UserCommand, r Reply) {
	if d.metrics != nil {
		d.metrics.ObserveMatch(r.Outcome)
	}
	if d.log == nil {
		return
	}
	c := store.Command{
		ChatID:     chatID,
		Text:       cmd.RawText,
		Modality:   string(cmd.Modality),
		TemplateID: r.Match.Template.ID,
		Score:      r.Match.Score,
		Outcome:    r.Outcome,
		CreatedAt:  cmd.ReceivedAt,
	}
	if r.Run != nil {
		c.RunID = r.Run.ID()
	}
	if _, err := d.log.AddCommand(ctx, c); err != nil {
		d.logger.Warn("Failed to record command.", zap.Error(err))
	}
}

// Think handles a chat message end to end and waits for the run to finish.
func (d *Dispatcher) Think(ctx context.Context, chatID string, text string) (string, error) {
	cmd, err := input.FromText(text)
	if err != nil {
		return "", err
	}
	reply, err := d.Handle(ctx, chatID, cmd)
	if err != nil {
		return "", err
	}
	if reply.Run != nil {
		if _, err := reply.Run.Wait(ctx); err != nil {
			return "", err
		}
	}
	return reply.Text(), nil
}
