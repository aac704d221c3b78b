// Package prompt renders the prompt templates listed in a catalog.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"text/template"

	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"gopkg.in/yaml.v3"
)

// CatalogFile is the name of the catalog inside a template file system.
const CatalogFile = "catalog.yaml"

//go:embed templates/*
var embedded embed.FS

type catalog struct {
	Templates []struct {
		Name        string   `yaml:"name"`
		File        string   `yaml:"file"`
		Description string   `yaml:"description"`
		Variables   []string `yaml:"variables"`
	} `yaml:"templates"`
}

// Info describes a catalog entry.
type Info struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Variables   []string `json:"variables"`
}

// Template is a parsed catalog entry.
type Template struct {
	Info
	tmpl *template.Template
}

// Manager holds the parsed templates. It is immutable after construction and
// safe for concurrent use.
type Manager struct {
	templates map[string]*Template
}

// NewManager parses the catalog and every template it lists from fsys.
func NewManager(fsys fs.FS) (*Manager, error) {
	raw, err := fs.ReadFile(fsys, CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("prompt: read catalog: %w", err)
	}
	var cat catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("prompt: parse catalog: %w", err)
	}

	m := &Manager{templates: make(map[string]*Template, len(cat.Templates))}
	for _, entry := range cat.Templates {
		if entry.Name == "" || entry.File == "" {
			return nil, fmt.Errorf("prompt: catalog entry needs a name and a file")
		}
		if _, dup := m.templates[entry.Name]; dup {
			return nil, fmt.Errorf("prompt: duplicate template %q", entry.Name)
		}
		body, err := fs.ReadFile(fsys, entry.File)
		if err != nil {
			return nil, fmt.Errorf("prompt: read %s: %w", entry.File, err)
		}
		tmpl, err := template.New(entry.Name).Option("missingkey=zero").Parse(string(body))
		if err != nil {
			return nil, fmt.Errorf("prompt: parse %s: %w", entry.File, err)
		}
		m.templates[entry.Name] = &Template{
			Info: Info{Name: entry.Name, Description: entry.Description, Variables: entry.Variables},
			tmpl: tmpl,
		}
	}
	return m, nil
}

// Load returns a manager for dir, or for the built-in templates when dir is empty.
func Load(dir string) (*Manager, error) {
	if dir != "" {
		return NewManager(os.DirFS(dir))
	}
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, err
	}
	return NewManager(sub)
}

// Get returns the named template or a NotFoundError.
func (m *Manager) Get(name string) (*Template, error) {
	t, ok := m.templates[name]
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "prompt template", ID: name}
	}
	return t, nil
}

// List returns every template sorted by name.
func (m *Manager) List() []Info {
	out := make([]Info, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, t.Info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Render executes the named template. Missing required variables and
// execution failures are reported as ValidationError.
func (m *Manager) Render(name string, vars map[string]any) (string, error) {
	t, err := m.Get(name)
	if err != nil {
		return "", err
	}
	var missing []string
	for _, v := range t.Variables {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return "", &registrystore.ValidationError{Field: "variables", Message: "missing " + strings.Join(missing, ", ")}
	}
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, vars); err != nil {
		return "", &registrystore.ValidationError{Field: "variables", Message: err.Error()}
	}
	return buf.String(), nil
}
