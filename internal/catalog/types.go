package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// ActionKind is the closed set of actions a step can perform.
type ActionKind string

const (
	ActionNavigate   ActionKind = "navigate"
	ActionClick      ActionKind = "click"
	ActionType       ActionKind = "type"
	ActionWait       ActionKind = "wait"
	ActionScreenshot ActionKind = "screenshot"
)

// Actions lists every ActionKind in declaration order.
var Actions = []ActionKind{ActionNavigate, ActionClick, ActionType, ActionWait, ActionScreenshot}

// Valid reports whether a is one of the known action kinds.
func (a ActionKind) Valid() bool {
	switch a {
	case ActionNavigate, ActionClick, ActionType, ActionWait, ActionScreenshot:
		return true
	}
	return false
}

// ParseActionKind normalises s and rejects unknown kinds.
func ParseActionKind(s string) (ActionKind, error) {
	a := ActionKind(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown action kind %q", s)
	}
	return a, nil
}

// ValueKind names the kind of value a placeholder expects.
type ValueKind string

const (
	KindURL        ValueKind = "url"
	KindEmail      ValueKind = "email"
	KindQuery      ValueKind = "query"
	KindSubject    ValueKind = "subject"
	KindBody       ValueKind = "body"
	KindText       ValueKind = "text"
	KindSelectorID ValueKind = "selector-id"
)

// Valid reports whether k is a known value kind.
func (k ValueKind) Valid() bool {
	switch k {
	case KindURL, KindEmail, KindQuery, KindSubject, KindBody, KindText, KindSelectorID:
		return true
	}
	return false
}

// Strategy is how an element selector is evaluated.
type Strategy string

const (
	StrategyXPath Strategy = "xpath"
	StrategyCSS   Strategy = "css"
)

// Valid reports whether s is a supported strategy.
func (s Strategy) Valid() bool {
	return s == StrategyXPath || s == StrategyCSS
}

// StepSpec is one step of a task template. Target and Value may contain
// {placeholder} references that are resolved when a plan is built.
type StepSpec struct {
	Order       int                  `json:"order" yaml:"order"`
	Action      ActionKind           `json:"action" yaml:"action"`
	Target      string               `json:"target" yaml:"target"`
	Value       string               `json:"value,omitempty" yaml:"value,omitempty"`
	Parameters  map[string]ValueKind `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
}

// Placeholders returns the placeholder names referenced by Target and Value,
// in order of first appearance.
func (s StepSpec) Placeholders() []string {
	var names []string
	seen := make(map[string]bool)
	for _, field := range []string{s.Target, s.Value} {
		for _, name := range Placeholders(field) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

func (s StepSpec) clone() StepSpec {
	if s.Parameters != nil {
		params := make(map[string]ValueKind, len(s.Parameters))
		for k, v := range s.Parameters {
			params[k] = v
		}
		s.Parameters = params
	}
	return s
}

// TaskTemplate is a named, reusable definition of an automatable goal.
type TaskTemplate struct {
	ID          string     `json:"id" yaml:"id"`
	Category    string     `json:"category,omitempty" yaml:"category,omitempty"`
	Name        string     `json:"name" yaml:"name"`
	Keywords    []string   `json:"keywords" yaml:"keywords"`
	Description string     `json:"description" yaml:"description"`
	Steps       []StepSpec `json:"steps" yaml:"-"`
}

// Document is the matchable text of the template.
func (t TaskTemplate) Document() string {
	parts := make([]string, 0, len(t.Keywords)+2)
	parts = append(parts, t.Name)
	parts = append(parts, t.Keywords...)
	parts = append(parts, t.Description)
	return strings.Join(parts, " ")
}

func (t TaskTemplate) clone() TaskTemplate {
	t.Keywords = append([]string(nil), t.Keywords...)
	steps := make([]StepSpec, len(t.Steps))
	for i, s := range t.Steps {
		steps[i] = s.clone()
	}
	t.Steps = steps
	return t
}

// ElementSelector locates a UI element.
type ElementSelector struct {
	ElementID   string   `json:"element_id" yaml:"element_id"`
	Strategy    Strategy `json:"strategy" yaml:"strategy"`
	Value       string   `json:"value" yaml:"value"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Placeholders returns every {name} reference in s, in order, with duplicates.
func Placeholders(s string) []string {
	matches := placeholderRe.FindAllStringSubmatch(s, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Substitute replaces each {name} in s with values[name]. The first name with
// no entry in values is returned as missing and s is left unchanged.
func Substitute(s string, values map[string]string) (out string, missing string) {
	for _, name := range Placeholders(s) {
		if _, ok := values[name]; !ok {
			return s, name
		}
	}
	out = placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		return values[m[1:len(m)-1]]
	})
	return out, ""
}
