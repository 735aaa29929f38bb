// Package policy answers which repositories and event types the service acts on.
package policy

import (
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/review-relay/internal/config"
)

// Ignore reasons reported when a delivery is filtered out
const (
	ReasonRepositoryNotConfigured = "repository not configured"
	ReasonEventNotEnabled         = "event type not enabled"
)

// Setting keys understood by the handlers
const (
	SettingPostComments     = "post_analysis_comments"
	SettingApplyLabels      = "apply_labels"
	SettingAutoCloseInvalid = "auto_close_invalid"
)

// Entry is one configured repository
type Entry struct {
	Name     string
	Events   map[string]struct{}
	Settings map[string]any
}

// Enabled reports whether eventType is switched on for the repository
func (e Entry) Enabled(eventType string) bool {
	_, ok := e.Events[eventType]
	return ok
}

// Bool reads a boolean setting. YAML strings such as "true" are accepted.
func (e Entry) Bool(key string, def bool) bool {
	v, ok := e.Settings[key]
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(b) {
		case "true", "yes", "on", "1":
			return true
		case "false", "no", "off", "0":
			return false
		}
	}
	return def
}

// PostComments reports whether analysis comments go back to the host
func (e Entry) PostComments() bool { return e.Bool(SettingPostComments, true) }

// ApplyLabels reports whether extracted labels are added to the item
func (e Entry) ApplyLabels() bool { return e.Bool(SettingApplyLabels, true) }

// AutoCloseInvalid reports whether issues the analysis flags as invalid are closed
func (e Entry) AutoCloseInvalid() bool { return e.Bool(SettingAutoCloseInvalid, false) }

// Policy is read-only after construction and safe for concurrent use
type Policy struct {
	entries map[string]Entry
}

// New builds a Policy from repository configuration
func New(repos []config.RepositoryConfig) *Policy {
	p := &Policy{entries: make(map[string]Entry, len(repos))}
	for _, repo := range repos {
		events := make(map[string]struct{}, len(repo.Events))
		for _, ev := range repo.Events {
			events[ev] = struct{}{}
		}
		settings := make(map[string]any, len(repo.Settings))
		for k, v := range repo.Settings {
			settings[k] = v
		}
		p.entries[repo.Name] = Entry{Name: repo.Name, Events: events, Settings: settings}
	}
	return p
}

// Lookup returns the entry for a repository full name
func (p *Policy) Lookup(fullName string) (Entry, bool) {
	e, ok := p.entries[fullName]
	return e, ok
}

// EventEnabled reports whether eventType is enabled for the repository
func (p *Policy) EventEnabled(fullName, eventType string) bool {
	e, ok := p.entries[fullName]
	return ok && e.Enabled(eventType)
}

// Check returns false and the ignore reason when the delivery should not be dispatched
func (p *Policy) Check(fullName, eventType string) (bool, string) {
	e, ok := p.entries[fullName]
	if !ok {
		return false, ReasonRepositoryNotConfigured
	}
	if !e.Enabled(eventType) {
		return false, ReasonEventNotEnabled
	}
	return true, ""
}

// Names lists configured repositories in sorted order
func (p *Policy) Names() []string {
	names := make([]string, 0, len(p.entries))
	for name := range p.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
