package catalog

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// CSV file names inside a catalog directory.
const (
	TemplatesFile = "templates.csv"
	StepsFile     = "steps.csv"
	SelectorsFile = "selectors.csv"
)

// FileSource picks a source for path: a directory is read as CSV tables, a
// .yaml/.yml file as a YAML document.
func FileSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return DirSource{Dir: path}, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAMLFile{Path: path}, nil
	}
	return nil, fmt.Errorf("unsupported catalog file %q", path)
}

// DirSource reads templates.csv, steps.csv and selectors.csv from Dir.
type DirSource struct {
	Dir string
}

func (d DirSource) Name() string { return d.Dir }

func (d DirSource) Read() (Tables, error) {
	var t Tables
	var err error
	if t.Templates, err = readCSVFile(filepath.Join(d.Dir, TemplatesFile)); err != nil {
		return t, err
	}
	if t.Steps, err = readCSVFile(filepath.Join(d.Dir, StepsFile)); err != nil {
		return t, err
	}
	if t.Selectors, err = readCSVFile(filepath.Join(d.Dir, SelectorsFile)); err != nil {
		return t, err
	}
	return t, nil
}

func readCSVFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads one table whose first record is the header.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return Table{}, err
	}
	if len(records) == 0 {
		return Table{}, nil
	}
	return Table{Header: records[0], Rows: records[1:]}, nil
}

// keywordList accepts either a YAML sequence or a single string.
type keywordList []string

func (k *keywordList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*k = splitKeywords(node.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*k = items
		return nil
	}
	return fmt.Errorf("line %d: keywords must be a string or a list", node.Line)
}

type yamlTemplate struct {
	ID          string      `yaml:"id"`
	Category    string      `yaml:"category,omitempty"`
	Name        string      `yaml:"name"`
	Keywords    keywordList `yaml:"keywords"`
	Description string      `yaml:"description"`
}

type yamlStep struct {
	TemplateID  string            `yaml:"template_id"`
	Order       int               `yaml:"order"`
	Action      string            `yaml:"action"`
	Target      string            `yaml:"target"`
	Value       string            `yaml:"value,omitempty"`
	Parameters  map[string]string `yaml:"parameters,omitempty"`
	Description string            `yaml:"description,omitempty"`
}

type yamlDocument struct {
	Templates []yamlTemplate    `yaml:"templates"`
	Steps     []yamlStep        `yaml:"steps"`
	Selectors []ElementSelector `yaml:"selectors"`
}

// YAMLFile reads a catalog from a single YAML document.
type YAMLFile struct {
	Path string
}

func (y YAMLFile) Name() string { return y.Path }

func (y YAMLFile) Read() (Tables, error) {
	data, err := os.ReadFile(y.Path)
	if err != nil {
		return Tables{}, err
	}
	return YAMLBytes(data).Read()
}

// YAMLBytes is an in-memory YAML catalog.
type YAMLBytes []byte

func (YAMLBytes) Name() string { return "yaml" }

func (b YAMLBytes) Read() (Tables, error) {
	var doc yamlDocument
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return Tables{}, fmt.Errorf("decode yaml: %w", err)
	}

	t := Tables{
		Templates: Table{Header: []string{"id", "category", "name", "keywords", "description"}},
		Steps:     Table{Header: []string{"template_id", "order", "action", "target", "value", "parameters", "description"}},
		Selectors: Table{Header: []string{"element_id", "strategy", "value", "description"}},
	}
	for _, tpl := range doc.Templates {
		t.Templates.Rows = append(t.Templates.Rows, []string{
			tpl.ID, tpl.Category, tpl.Name, strings.Join(tpl.Keywords, ","), tpl.Description,
		})
	}
	for _, s := range doc.Steps {
		t.Steps.Rows = append(t.Steps.Rows, []string{
			s.TemplateID, strconv.Itoa(s.Order), s.Action, s.Target, s.Value, formatRawParameters(s.Parameters), s.Description,
		})
	}
	for _, s := range doc.Selectors {
		t.Selectors.Rows = append(t.Selectors.Rows, []string{
			s.ElementID, string(s.Strategy), s.Value, s.Description,
		})
	}
	return t, nil
}

func formatRawParameters(params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ":" + params[name]
	}
	return strings.Join(parts, ";")
}

// WriteYAML serialises c in the format YAMLFile reads.
func WriteYAML(w io.Writer, c *Catalog) error {
	var doc yamlDocument
	for _, tpl := range c.templates {
		doc.Templates = append(doc.Templates, yamlTemplate{
			ID:          tpl.ID,
			Category:    tpl.Category,
			Name:        tpl.Name,
			Keywords:    keywordList(tpl.Keywords),
			Description: tpl.Description,
		})
		for _, s := range tpl.Steps {
			var params map[string]string
			if len(s.Parameters) > 0 {
				params = make(map[string]string, len(s.Parameters))
				for name, kind := range s.Parameters {
					params[name] = string(kind)
				}
			}
			doc.Steps = append(doc.Steps, yamlStep{
				TemplateID:  tpl.ID,
				Order:       s.Order,
				Action:      string(s.Action),
				Target:      s.Target,
				Value:       s.Value,
				Parameters:  params,
				Description: s.Description,
			})
		}
	}
	doc.Selectors = c.Selectors()

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
