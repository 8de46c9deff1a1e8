// Package catalog holds the task templates and element selectors that commands
// are matched against. A Catalog is immutable once built; Store swaps whole
// catalogs when the source changes.
package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Table is one sheet of tabular catalog data. Header names are matched
// case-insensitively.
type Table struct {
	Header []string
	Rows   [][]string
}

// Tables is the full tabular form of a catalog.
type Tables struct {
	Templates Table
	Steps     Table
	Selectors Table
}

// Source yields catalog tables.
type Source interface {
	Name() string
	Read() (Tables, error)
}

var (
	templateColumns = []string{"id", "name", "keywords", "description"}
	stepColumns     = []string{"template_id", "order", "action", "target", "parameters"}
	selectorColumns = []string{"element_id", "strategy", "value"}
)

// Catalog is a read-only set of templates and selectors. Safe for concurrent use.
type Catalog struct {
	source    string
	templates []TaskTemplate
	byID      map[string]int
	selectors map[string]ElementSelector
	selOrder  []string
}

// Load reads src and builds a Catalog from it.
func Load(src Source) (*Catalog, error) {
	tables, err := src.Read()
	if err != nil {
		return nil, &LoadError{Source: src.Name(), Err: err}
	}
	return fromTables(src.Name(), tables)
}

// New builds a Catalog from already-typed records, applying the same checks as Load.
func New(templates []TaskTemplate, selectors []ElementSelector) (*Catalog, error) {
	const source = "memory"
	if len(templates) == 0 {
		return nil, &LoadError{Source: source, Err: ErrEmpty}
	}
	seen := make(map[string]bool)
	for i, t := range templates {
		if t.ID == "" {
			return nil, &LoadError{Source: source, Table: "templates", Row: i + 1, Err: fmt.Errorf("%w: empty id", ErrInvalidRow)}
		}
		if seen[t.ID] {
			return nil, &LoadError{Source: source, Table: "templates", Row: i + 1, Err: fmt.Errorf("%w: template %q", ErrDuplicateID, t.ID)}
		}
		seen[t.ID] = true
		orders := make(map[int]bool)
		for _, s := range t.Steps {
			if !s.Action.Valid() {
				return nil, &LoadError{Source: source, Table: "steps", Err: fmt.Errorf("%w: template %q: unknown action kind %q", ErrInvalidRow, t.ID, s.Action)}
			}
			if orders[s.Order] {
				return nil, &LoadError{Source: source, Table: "steps", Err: fmt.Errorf("%w: template %q step order %d", ErrDuplicateID, t.ID, s.Order)}
			}
			orders[s.Order] = true
			for name, kind := range s.Parameters {
				if !kind.Valid() {
					return nil, &LoadError{Source: source, Table: "steps", Err: fmt.Errorf("%w: parameter %q has unknown kind %q", ErrInvalidRow, name, kind)}
				}
			}
		}
	}
	selSeen := make(map[string]bool)
	for i, s := range selectors {
		if s.ElementID == "" || !s.Strategy.Valid() {
			return nil, &LoadError{Source: source, Table: "selectors", Row: i + 1, Err: fmt.Errorf("%w: selector %q", ErrInvalidRow, s.ElementID)}
		}
		if selSeen[s.ElementID] {
			return nil, &LoadError{Source: source, Table: "selectors", Row: i + 1, Err: fmt.Errorf("%w: selector %q", ErrDuplicateID, s.ElementID)}
		}
		selSeen[s.ElementID] = true
	}

	cloned := make([]TaskTemplate, len(templates))
	for i, t := range templates {
		cloned[i] = t.clone()
	}
	return assemble(source, cloned, append([]ElementSelector(nil), selectors...)), nil
}

func assemble(source string, templates []TaskTemplate, selectors []ElementSelector) *Catalog {
	c := &Catalog{
		source:    source,
		templates: templates,
		byID:      make(map[string]int, len(templates)),
		selectors: make(map[string]ElementSelector, len(selectors)),
	}
	for i := range c.templates {
		sort.SliceStable(c.templates[i].Steps, func(a, b int) bool {
			return c.templates[i].Steps[a].Order < c.templates[i].Steps[b].Order
		})
		c.byID[c.templates[i].ID] = i
	}
	for _, s := range selectors {
		c.selectors[s.ElementID] = s
		c.selOrder = append(c.selOrder, s.ElementID)
	}
	return c
}

// Source names where the catalog was loaded from.
func (c *Catalog) Source() string { return c.source }

// Len is the number of templates.
func (c *Catalog) Len() int { return len(c.templates) }

// Templates returns all templates in load order.
func (c *Catalog) Templates() []TaskTemplate {
	out := make([]TaskTemplate, len(c.templates))
	for i, t := range c.templates {
		out[i] = t.clone()
	}
	return out
}

// Template returns the template with the given id.
func (c *Catalog) Template(id string) (TaskTemplate, error) {
	i, ok := c.byID[id]
	if !ok {
		return TaskTemplate{}, &NotFoundError{Kind: "template", ID: id}
	}
	return c.templates[i].clone(), nil
}

// Steps returns the steps of a template sorted by order.
func (c *Catalog) Steps(templateID string) ([]StepSpec, error) {
	t, err := c.Template(templateID)
	if err != nil {
		return nil, err
	}
	return t.Steps, nil
}

// Selector returns the selector registered under elementID.
func (c *Catalog) Selector(elementID string) (ElementSelector, error) {
	s, ok := c.selectors[elementID]
	if !ok {
		return ElementSelector{}, &NotFoundError{Kind: "selector", ID: elementID}
	}
	return s, nil
}

// Selectors returns all selectors in load order.
func (c *Catalog) Selectors() []ElementSelector {
	out := make([]ElementSelector, 0, len(c.selOrder))
	for _, id := range c.selOrder {
		out = append(out, c.selectors[id])
	}
	return out
}

type columns map[string]int

func indexColumns(source, table string, header []string, required []string) (columns, error) {
	cols := make(columns, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, &LoadError{Source: source, Table: table, Err: fmt.Errorf("%w %q", ErrMissingColumn, name)}
		}
	}
	return cols, nil
}

func (c columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func fromTables(source string, t Tables) (*Catalog, error) {
	tcols, err := indexColumns(source, "templates", t.Templates.Header, templateColumns)
	if err != nil {
		return nil, err
	}
	scols, err := indexColumns(source, "steps", t.Steps.Header, stepColumns)
	if err != nil {
		return nil, err
	}
	ecols, err := indexColumns(source, "selectors", t.Selectors.Header, selectorColumns)
	if err != nil {
		return nil, err
	}

	var templates []TaskTemplate
	byID := make(map[string]int)
	for i, row := range t.Templates.Rows {
		id := tcols.get(row, "id")
		if id == "" {
			return nil, &LoadError{Source: source, Table: "templates", Row: i + 1, Err: fmt.Errorf("%w: empty id", ErrInvalidRow)}
		}
		if _, dup := byID[id]; dup {
			return nil, &LoadError{Source: source, Table: "templates", Row: i + 1, Err: fmt.Errorf("%w: template %q", ErrDuplicateID, id)}
		}
		byID[id] = len(templates)
		templates = append(templates, TaskTemplate{
			ID:          id,
			Category:    strings.ToLower(tcols.get(row, "category")),
			Name:        tcols.get(row, "name"),
			Keywords:    splitKeywords(tcols.get(row, "keywords")),
			Description: tcols.get(row, "description"),
		})
	}
	if len(templates) == 0 {
		return nil, &LoadError{Source: source, Table: "templates", Err: ErrEmpty}
	}

	orders := make(map[string]map[int]bool)
	for i, row := range t.Steps.Rows {
		rowErr := func(err error) error {
			return &LoadError{Source: source, Table: "steps", Row: i + 1, Err: err}
		}
		tid := scols.get(row, "template_id")
		idx, ok := byID[tid]
		if !ok {
			return nil, rowErr(fmt.Errorf("%w: unknown template %q", ErrInvalidRow, tid))
		}
		order, err := strconv.Atoi(scols.get(row, "order"))
		if err != nil {
			return nil, rowErr(fmt.Errorf("%w: order: %v", ErrInvalidRow, err))
		}
		if orders[tid] == nil {
			orders[tid] = make(map[int]bool)
		}
		if orders[tid][order] {
			return nil, rowErr(fmt.Errorf("%w: template %q step order %d", ErrDuplicateID, tid, order))
		}
		orders[tid][order] = true
		action, err := ParseActionKind(scols.get(row, "action"))
		if err != nil {
			return nil, rowErr(fmt.Errorf("%w: %v", ErrInvalidRow, err))
		}
		params, err := ParseParameters(scols.get(row, "parameters"))
		if err != nil {
			return nil, rowErr(fmt.Errorf("%w: %v", ErrInvalidRow, err))
		}
		templates[idx].Steps = append(templates[idx].Steps, StepSpec{
			Order:       order,
			Action:      action,
			Target:      scols.get(row, "target"),
			Value:       scols.get(row, "value"),
			Parameters:  params,
			Description: scols.get(row, "description"),
		})
	}

	var selectors []ElementSelector
	seen := make(map[string]bool)
	for i, row := range t.Selectors.Rows {
		id := ecols.get(row, "element_id")
		if id == "" {
			return nil, &LoadError{Source: source, Table: "selectors", Row: i + 1, Err: fmt.Errorf("%w: empty element_id", ErrInvalidRow)}
		}
		if seen[id] {
			return nil, &LoadError{Source: source, Table: "selectors", Row: i + 1, Err: fmt.Errorf("%w: selector %q", ErrDuplicateID, id)}
		}
		seen[id] = true
		strategy := Strategy(strings.ToLower(ecols.get(row, "strategy")))
		if !strategy.Valid() {
			return nil, &LoadError{Source: source, Table: "selectors", Row: i + 1, Err: fmt.Errorf("%w: unknown strategy %q", ErrInvalidRow, strategy)}
		}
		selectors = append(selectors, ElementSelector{
			ElementID:   id,
			Strategy:    strategy,
			Value:       ecols.get(row, "value"),
			Description: ecols.get(row, "description"),
		})
	}

	return assemble(source, templates, selectors), nil
}

// splitKeywords accepts "a, b, c" as well as "a b c".
func splitKeywords(cell string) []string {
	var raw []string
	if strings.Contains(cell, ",") {
		raw = strings.Split(cell, ",")
	} else {
		raw = strings.Fields(cell)
	}
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// ParseParameters parses "name:kind;name:kind". Commas work as separators too,
// and "=" is accepted in place of ":".
func ParseParameters(cell string) (map[string]ValueKind, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil, nil
	}
	fields := strings.FieldsFunc(cell, func(r rune) bool { return r == ';' || r == ',' })
	params := make(map[string]ValueKind, len(fields))
	for _, f := range fields {
		name, kind, ok := strings.Cut(f, ":")
		if !ok {
			name, kind, ok = strings.Cut(f, "=")
		}
		name = strings.TrimSpace(name)
		k := ValueKind(strings.ToLower(strings.TrimSpace(kind)))
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed parameter %q", f)
		}
		if !k.Valid() {
			return nil, fmt.Errorf("parameter %q has unknown kind %q", name, kind)
		}
		params[name] = k
	}
	return params, nil
}

// FormatParameters is the inverse of ParseParameters, with names sorted.
func FormatParameters(params map[string]ValueKind) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ":" + string(params[name])
	}
	return strings.Join(parts, ";")
}
