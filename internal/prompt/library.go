// Package prompt - Template library for agent stages.
// Templates are YAML files baked into the binary with go:embed; an optional
// override directory replaces templates by id at startup and on change.
package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/TNAHOM/project-x-ai-service/internal/logging"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// embeddedTemplates contains all YAML files from templates/.
//
//go:embed templates
var embeddedTemplates embed.FS

// ErrTemplateNotFound is returned when no template has the requested id.
var ErrTemplateNotFound = errors.New("template not found")

// MissingVariablesError reports template variables absent from the render input.
type MissingVariablesError struct {
	TemplateID string
	Missing    []string
}

func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("template %s: missing variables %s", e.TemplateID, strings.Join(e.Missing, ", "))
}

// yamlTemplate matches the YAML structure in templates/*.yaml.
type yamlTemplate struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description,omitempty"`
	Variables   []string `yaml:"variables"`
	System      string   `yaml:"system"`
	User        string   `yaml:"user"`
}

// Template is a parsed prompt with its declared variables.
type Template struct {
	ID          string
	Description string
	Variables   []string
	Source      string // "embedded" or the override file path

	system *template.Template
	user   *template.Template
}

// Rendered is a template filled with variables.
type Rendered struct {
	System string
	User   string
}

// Library holds templates by id. It is safe for concurrent use.
type Library struct {
	mu        sync.RWMutex
	templates map[string]*Template
	embedded  map[string]*Template
}

// LoadEmbedded builds a library from the templates compiled into the binary.
func LoadEmbedded() (*Library, error) {
	timer := logging.StartTimer(logging.CategoryPrompt, "LoadEmbedded")
	defer timer.Stop()

	lib := &Library{templates: make(map[string]*Template)}

	err := fs.WalkDir(embeddedTemplates, "templates", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(p) {
			return nil
		}
		data, err := embeddedTemplates.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read embedded template: %w", err)
		}
		t, err := parseTemplate(data, "embedded")
		if err != nil {
			return fmt.Errorf("%s: %w", path.Base(p), err)
		}
		if _, dup := lib.templates[t.ID]; dup {
			return fmt.Errorf("%s: duplicate template id %q", path.Base(p), t.ID)
		}
		lib.templates[t.ID] = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded templates: %w", err)
	}

	lib.embedded = make(map[string]*Template, len(lib.templates))
	for id, t := range lib.templates {
		lib.embedded[id] = t
	}

	logging.Prompt("Loaded %d embedded templates", len(lib.templates))
	return lib, nil
}

// LoadOverrides replaces templates with the YAML files found anywhere under
// dir. Templates removed from dir fall back to the embedded version.
// A file that fails to parse is skipped with a warning.
func (l *Library) LoadOverrides(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	if _, err := os.Stat(dir); err != nil {
		return 0, fmt.Errorf("override dir: %w", err)
	}

	matches, err := doublestar.FilepathGlob(filepath.Join(dir, "**", "*.{yaml,yml}"))
	if err != nil {
		return 0, fmt.Errorf("glob error: %w", err)
	}
	sort.Strings(matches)

	next := make(map[string]*Template, len(l.embedded))
	for id, t := range l.embedded {
		next[id] = t
	}

	loaded := 0
	for _, file := range matches {
		data, err := os.ReadFile(file)
		if err != nil {
			logging.PromptWarn("Failed to read override %s: %v", file, err)
			continue
		}
		t, err := parseTemplate(data, file)
		if err != nil {
			logging.PromptWarn("Skipping invalid override %s: %v", file, err)
			continue
		}
		next[t.ID] = t
		loaded++
	}

	l.mu.Lock()
	l.templates = next
	l.mu.Unlock()

	logging.Prompt("Applied %d template overrides from %s", loaded, dir)
	return loaded, nil
}

// Get returns the template with id.
func (l *Library) Get(id string) (*Template, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t, nil
}

// IDs returns all template ids, sorted.
func (l *Library) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.templates))
	for id := range l.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render fills template id with vars. Every declared variable must be a key
// of vars; its value may be nil.
func (l *Library) Render(id string, vars map[string]any) (Rendered, error) {
	t, err := l.Get(id)
	if err != nil {
		return Rendered{}, err
	}
	return t.Render(vars)
}

// Render fills the template with vars.
func (t *Template) Render(vars map[string]any) (Rendered, error) {
	var missing []string
	for _, v := range t.Variables {
		if _, ok := vars[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return Rendered{}, &MissingVariablesError{TemplateID: t.ID, Missing: missing}
	}

	data, err := normalize(vars)
	if err != nil {
		return Rendered{}, fmt.Errorf("template %s: %w", t.ID, err)
	}

	var sys, usr bytes.Buffer
	if err := t.system.Execute(&sys, data); err != nil {
		return Rendered{}, fmt.Errorf("template %s system: %w", t.ID, err)
	}
	if err := t.user.Execute(&usr, data); err != nil {
		return Rendered{}, fmt.Errorf("template %s user: %w", t.ID, err)
	}
	return Rendered{System: strings.TrimSpace(sys.String()), User: strings.TrimSpace(usr.String())}, nil
}

func parseTemplate(data []byte, source string) (*Template, error) {
	var raw yamlTemplate
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if raw.ID == "" {
		return nil, errors.New("template id is required")
	}
	if strings.TrimSpace(raw.User) == "" {
		return nil, fmt.Errorf("template %s: user text is required", raw.ID)
	}

	sys, err := template.New(raw.ID + ".system").Funcs(funcs).Option("missingkey=error").Parse(raw.System)
	if err != nil {
		return nil, fmt.Errorf("template %s system: %w", raw.ID, err)
	}
	usr, err := template.New(raw.ID + ".user").Funcs(funcs).Option("missingkey=error").Parse(raw.User)
	if err != nil {
		return nil, fmt.Errorf("template %s user: %w", raw.ID, err)
	}

	return &Template{
		ID:          raw.ID,
		Description: raw.Description,
		Variables:   raw.Variables,
		Source:      source,
		system:      sys,
		user:        usr,
	}, nil
}

// normalize round-trips vars through JSON so templates address fields by
// their JSON names regardless of the Go types passed in.
func normalize(vars map[string]any) (map[string]any, error) {
	data, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("failed to encode variables: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode variables: %w", err)
	}
	return out, nil
}

var funcs = template.FuncMap{
	"json": func(v any) string {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "null"
		}
		return string(data)
	},
	"join": func(v any, sep string) string {
		switch items := v.(type) {
		case []string:
			return strings.Join(items, sep)
		case []any:
			parts := make([]string, 0, len(items))
			for _, it := range items {
				parts = append(parts, fmt.Sprint(it))
			}
			return strings.Join(parts, sep)
		case nil:
			return ""
		default:
			return fmt.Sprint(items)
		}
	},
}

func isYAML(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	return ext == ".yaml" || ext == ".yml"
}
