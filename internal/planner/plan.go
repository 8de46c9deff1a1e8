// Package planner turns a matched template and the user's text into an
// immutable execution plan.
package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/rahul/autopilot/internal/catalog"
)

// DynamicValues maps placeholder names to the text extracted for them.
type DynamicValues map[string]string

// ResolvedStep is a StepSpec with every placeholder substituted.
type ResolvedStep struct {
	Index       int                `json:"index"`
	Order       int                `json:"order"`
	Action      catalog.ActionKind `json:"action"`
	Target      string             `json:"target,omitempty"`
	Value       string             `json:"value,omitempty"`
	Description string             `json:"description,omitempty"`
}

// ExecutionPlan is built once per matched command and never changes.
// Accessors return copies.
type ExecutionPlan struct {
	id           string
	templateID   string
	templateName string
	input        string
	values       DynamicValues
	steps        []ResolvedStep

	claimed atomic.Bool
}

// NewPlan assembles a plan directly from resolved steps. Used by callers that
// already have concrete steps, and by tests.
func NewPlan(templateID, input string, values DynamicValues, steps []ResolvedStep) *ExecutionPlan {
	p := &ExecutionPlan{
		templateID: templateID,
		input:      input,
		values:     make(DynamicValues, len(values)),
		steps:      append([]ResolvedStep(nil), steps...),
	}
	for k, v := range values {
		p.values[k] = v
	}
	for i := range p.steps {
		p.steps[i].Index = i
	}
	p.id = p.hash()
	return p
}

func (p *ExecutionPlan) hash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", p.templateID, p.input)
	for _, s := range p.steps {
		fmt.Fprintf(h, "%d\x00%s\x00%s\x00%s\x00", s.Order, s.Action, s.Target, s.Value)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (p *ExecutionPlan) ID() string           { return p.id }
func (p *ExecutionPlan) TemplateID() string   { return p.templateID }
func (p *ExecutionPlan) TemplateName() string { return p.templateName }
func (p *ExecutionPlan) Input() string        { return p.input }
func (p *ExecutionPlan) Len() int             { return len(p.steps) }

// Steps returns the resolved steps in execution order.
func (p *ExecutionPlan) Steps() []ResolvedStep {
	return append([]ResolvedStep(nil), p.steps...)
}

// Step returns the i-th step.
func (p *ExecutionPlan) Step(i int) ResolvedStep { return p.steps[i] }

// Values returns a copy of the extracted dynamic values.
func (p *ExecutionPlan) Values() DynamicValues {
	out := make(DynamicValues, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Claim marks the plan as handed to an engine. It returns false if the plan
// was claimed before; a plan is executed at most once.
func (p *ExecutionPlan) Claim() bool {
	return p.claimed.CompareAndSwap(false, true)
}

type planJSON struct {
	ID           string         `json:"id"`
	TemplateID   string         `json:"template_id"`
	TemplateName string         `json:"template_name,omitempty"`
	Input        string         `json:"input"`
	Values       DynamicValues  `json:"values"`
	Steps        []ResolvedStep `json:"steps"`
}

func (p *ExecutionPlan) MarshalJSON() ([]byte, error) {
	return json.Marshal(planJSON{
		ID:           p.id,
		TemplateID:   p.templateID,
		TemplateName: p.templateName,
		Input:        p.input,
		Values:       p.values,
		Steps:        p.steps,
	})
}

// Build extracts the template's declared parameters from input and resolves
// every step. It has no side effects: equal arguments give equal plans.
func Build(input string, tpl catalog.TaskTemplate) (*ExecutionPlan, error) {
	profile := ProfileFor(tpl.Category)

	specs := append([]catalog.StepSpec(nil), tpl.Steps...)
	sort.SliceStable(specs, func(a, b int) bool { return specs[a].Order < specs[b].Order })

	values := make(DynamicValues)
	for _, s := range specs {
		names := make([]string, 0, len(s.Parameters))
		for name := range s.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, done := values[name]; done {
				continue
			}
			kind := s.Parameters[name]
			v := profile.Extract(kind, input)
			if v == "" {
				return nil, &ExtractionError{Placeholder: name, Kind: kind, TemplateID: tpl.ID}
			}
			values[name] = v
		}
	}

	steps := make([]ResolvedStep, len(specs))
	for i, s := range specs {
		target, missing := catalog.Substitute(s.Target, values)
		if missing == "" {
			var value string
			value, missing = catalog.Substitute(s.Value, values)
			steps[i].Value = value
		}
		if missing != "" {
			return nil, &ExtractionError{Placeholder: missing, TemplateID: tpl.ID, StepOrder: s.Order}
		}
		steps[i].Order = s.Order
		steps[i].Action = s.Action
		steps[i].Target = target
		steps[i].Description = s.Description
	}

	p := NewPlan(tpl.ID, input, values, steps)
	p.templateName = tpl.Name
	return p, nil
}

// Templates is the lookup Builder needs; both *catalog.Catalog and
// *catalog.Store satisfy it.
type Templates interface {
	Template(id string) (catalog.TaskTemplate, error)
}

// Builder resolves template ids before building.
type Builder struct {
	templates Templates
}

func NewBuilder(t Templates) *Builder {
	return &Builder{templates: t}
}

// BuildFor looks templateID up and builds a plan for input.
func (b *Builder) BuildFor(input, templateID string) (*ExecutionPlan, error) {
	tpl, err := b.templates.Template(templateID)
	if err != nil {
		return nil, err
	}
	return Build(input, tpl)
}
