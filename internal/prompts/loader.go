// Package prompts loads and renders the text/template prompt files that
// accompany each model request.
package prompts

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"text/template"

	"github.com/ZanzyTHEbar/review-relay/internal/config"
)

// DefaultAction is the fallback template key for an event type
const DefaultAction = "default"

// Loader resolves (event type, action) pairs to template files under a base
// directory. Parsed templates are cached after first use.
type Loader struct {
	baseDir   string
	templates map[string]map[string]string

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// NewLoader creates a loader from prompt configuration
func NewLoader(cfg config.PromptsConfig) *Loader {
	templates := make(map[string]map[string]string, len(cfg.Templates))
	for ev, actions := range cfg.Templates {
		templates[ev] = make(map[string]string, len(actions))
		for action, file := range actions {
			templates[ev][action] = file
		}
	}
	return &Loader{
		baseDir:   cfg.BaseDir,
		templates: templates,
		cache:     make(map[string]*template.Template),
	}
}

// Resolve returns the template file configured for the pair, falling back to
// the event's default entry
func (l *Loader) Resolve(eventType, action string) (string, bool) {
	actions, ok := l.templates[eventType]
	if !ok {
		return "", false
	}
	if file, ok := actions[action]; ok && file != "" {
		return file, true
	}
	if file, ok := actions[DefaultAction]; ok && file != "" {
		return file, true
	}
	return "", false
}

// Render executes the template for the pair against data. It reports false
// when no template is configured or the file cannot be loaded.
func (l *Loader) Render(eventType, action string, data map[string]any) (string, bool) {
	file, ok := l.Resolve(eventType, action)
	if !ok {
		slog.Warn("No prompt template found", "event_type", eventType, "action", action)
		return "", false
	}

	tmpl, err := l.load(file)
	if err != nil {
		slog.Error("Failed to load prompt template", "file", file, "error", err)
		return "", false
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		// A template that fails against this payload still carries the
		// instructions, so the raw text is sent rather than nothing.
		slog.Error("Failed to render prompt template", "file", file, "error", err)
		raw, readErr := os.ReadFile(l.path(file))
		if readErr != nil {
			return "", false
		}
		return string(raw), true
	}

	return buf.String(), true
}

func (l *Loader) path(file string) string {
	return filepath.Join(l.baseDir, file)
}

func (l *Loader) load(file string) (*template.Template, error) {
	l.mu.RLock()
	tmpl, ok := l.cache[file]
	l.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	raw, err := os.ReadFile(l.path(file))
	if err != nil {
		return nil, err
	}

	tmpl, err = template.New(file).Option("missingkey=zero").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}

	l.mu.Lock()
	l.cache[file] = tmpl
	l.mu.Unlock()

	return tmpl, nil
}

// TemplateStatus describes one configured template file
type TemplateStatus struct {
	EventType string `json:"event_type"`
	Action    string `json:"action"`
	File      string `json:"file"`
	Exists    bool   `json:"exists"`
}

// Available lists every configured template and whether its file exists
func (l *Loader) Available() []TemplateStatus {
	var out []TemplateStatus
	for ev, actions := range l.templates {
		for action, file := range actions {
			_, err := os.Stat(l.path(file))
			out = append(out, TemplateStatus{EventType: ev, Action: action, File: file, Exists: err == nil})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventType != out[j].EventType {
			return out[i].EventType < out[j].EventType
		}
		return out[i].Action < out[j].Action
	})
	return out
}
