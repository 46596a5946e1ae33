// Package prompt renders versioned extraction prompt templates with
// variable substitution and simple conditional blocks.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

var varPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)
var ifPattern = regexp.MustCompile(`(?s)\{\{#if\s+(\w+)\}\}(.*?)\{\{/if\}\}`)
var unlessPattern = regexp.MustCompile(`(?s)\{\{#unless\s+(\w+)\}\}(.*?)\{\{/unless\}\}`)

// Template is a prompt template with {{var}} substitution and
// {{#if var}}...{{/if}} / {{#unless var}}...{{/unless}} conditionals.
type Template struct {
	Name     string
	Version  string
	Text     string
	Vars     []string
}

// NewTemplate parses template text and extracts its variable names.
func NewTemplate(name, version, text string) *Template {
	seen := make(map[string]struct{})
	var vars []string
	for _, m := range varPattern.FindAllStringSubmatch(text, -1) {
		if _, ok := seen[m[1]]; !ok {
			seen[m[1]] = struct{}{}
			vars = append(vars, m[1])
		}
	}
	return &Template{Name: name, Version: version, Text: text, Vars: vars}
}

// Render substitutes context values into the template, resolving
// conditional blocks first. Missing variables render as [MISSING:name].
func (t *Template) Render(context map[string]any) string {
	rendered := t.processConditionals(t.Text, context)

	for _, v := range t.Vars {
		placeholder := "{{" + v + "}}"
		value, ok := context[v]
		if !ok {
			rendered = strings.ReplaceAll(rendered, placeholder, "[MISSING:"+v+"]")
			continue
		}
		rendered = strings.ReplaceAll(rendered, placeholder, stringify(value))
	}

	return strings.TrimSpace(rendered)
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case map[string]any, []any, []string:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (t *Template) processConditionals(text string, context map[string]any) string {
	text = ifPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := ifPattern.FindStringSubmatch(m)
		if truthy(context[sub[1]]) {
			return sub[2]
		}
		return ""
	})
	text = unlessPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := unlessPattern.FindStringSubmatch(m)
		if !truthy(context[sub[1]]) {
			return sub[2]
		}
		return ""
	})
	return text
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case float64:
		return x != 0
	case []string:
		return len(x) > 0
	case []any:
		return len(x) > 0
	default:
		return true
	}
}

// MissingVars reports which template variables context does not supply.
func (t *Template) MissingVars(context map[string]any) []string {
	var missing []string
	for _, v := range t.Vars {
		if _, ok := context[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}

// VersionInfo tracks metadata about one registered template version.
type VersionInfo struct {
	Version             string
	CreatedAt           time.Time
	Description         string
	Author              string
	TemplateHash        string
	PerformanceMetrics  map[string]float64
	Active              bool
	DeprecatedAt        *time.Time
}

// Registry holds versioned templates, grouped by template name, with one
// active version selected per name.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]map[string]*Template
	versions  map[string]map[string]*VersionInfo
	active    map[string]string
}

// NewRegistry returns an empty template registry.
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]map[string]*Template),
		versions:  make(map[string]map[string]*VersionInfo),
		active:    make(map[string]string),
	}
}

func templateHash(t *Template) string {
	sum := sha256.Sum256([]byte(t.Text + t.Name + t.Version))
	return hex.EncodeToString(sum[:])[:16]
}

// Register adds a new template version, activating it if it is the first
// or the newest version known for that name. Re-registering the same
// version with changed content is an error.
func (r *Registry) Register(t *Template, description, author string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[t.Name]; !ok {
		r.templates[t.Name] = make(map[string]*Template)
		r.versions[t.Name] = make(map[string]*VersionInfo)
	}

	hash := templateHash(t)
	if existing, ok := r.versions[t.Name][t.Version]; ok {
		if existing.TemplateHash != hash {
			return fmt.Errorf("prompt: version %q of %q already exists with different content", t.Version, t.Name)
		}
		return nil
	}

	r.versions[t.Name][t.Version] = &VersionInfo{
		Version:            t.Version,
		CreatedAt:          time.Now(),
		Description:        description,
		Author:             author,
		TemplateHash:       hash,
		PerformanceMetrics: make(map[string]float64),
		Active:             true,
	}
	r.templates[t.Name][t.Version] = t

	current, ok := r.active[t.Name]
	if !ok || isNewerVersion(t.Version, current) {
		r.active[t.Name] = t.Version
	}
	return nil
}

// Get returns a specific version of a template, or the active version if
// version is empty.
func (r *Registry) Get(name, version string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.templates[name]
	if !ok {
		return nil, false
	}
	if version == "" {
		version, ok = r.active[name]
		if !ok {
			return nil, false
		}
	}
	t, ok := versions[version]
	return t, ok
}

// Active returns the active version of a template by name.
func (r *Registry) Active(name string) (*Template, bool) {
	return r.Get(name, "")
}

// SetActive pins the active version for a template name.
func (r *Registry) SetActive(name, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.versions[name]
	if !ok {
		return fmt.Errorf("prompt: template %q not found", name)
	}
	if _, ok := versions[version]; !ok {
		return fmt.Errorf("prompt: version %q not found for template %q", version, name)
	}
	r.active[name] = version
	return nil
}

// Deprecate marks a version inactive and, if it was the active version,
// promotes the newest remaining active version in its place.
func (r *Registry) Deprecate(name, version, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.versions[name]
	if !ok {
		return fmt.Errorf("prompt: template version %q:%q not found", name, version)
	}
	info, ok := versions[version]
	if !ok {
		return fmt.Errorf("prompt: template version %q:%q not found", name, version)
	}

	now := time.Now()
	info.Active = false
	info.DeprecatedAt = &now
	if reason != "" {
		info.Description += " [DEPRECATED: " + reason + "]"
	}

	if r.active[name] == version {
		var best string
		var bestTime time.Time
		for v, vi := range versions {
			if v == version || !vi.Active {
				continue
			}
			if best == "" || vi.CreatedAt.After(bestTime) {
				best = v
				bestTime = vi.CreatedAt
			}
		}
		if best != "" {
			r.active[name] = best
		} else {
			delete(r.active, name)
		}
	}
	return nil
}

// UpdatePerformanceMetrics merges metrics into a version's recorded stats.
func (r *Registry) UpdatePerformanceMetrics(name, version string, metrics map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.versions[name]
	if !ok {
		return fmt.Errorf("prompt: template version %q:%q not found", name, version)
	}
	info, ok := versions[version]
	if !ok {
		return fmt.Errorf("prompt: template version %q:%q not found", name, version)
	}
	for k, v := range metrics {
		info.PerformanceMetrics[k] = v
	}
	return nil
}

// History returns version metadata for a template, oldest first.
func (r *Registry) History(name string) []VersionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.versions[name]
	if !ok {
		return nil
	}
	out := make([]VersionInfo, 0, len(versions))
	for _, info := range versions {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Compare reports the differences between two versions of a template.
type Comparison struct {
	TemplateChanged bool
	VariablesChanged bool
	NewerVersion    string
}

// Compare diffs two versions of a named template.
func (r *Registry) Compare(name, v1, v2 string) (Comparison, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.versions[name]
	if !ok {
		return Comparison{}, fmt.Errorf("prompt: template %q not found", name)
	}
	info1, ok1 := versions[v1]
	info2, ok2 := versions[v2]
	if !ok1 || !ok2 {
		return Comparison{}, fmt.Errorf("prompt: one or both versions not found")
	}
	t1 := r.templates[name][v1]
	t2 := r.templates[name][v2]

	newer := v1
	if isNewerVersion(v2, v1) {
		newer = v2
	}

	return Comparison{
		TemplateChanged:  info1.TemplateHash != info2.TemplateHash,
		VariablesChanged: !sameVars(t1.Vars, t2.Vars),
		NewerVersion:     newer,
	}, nil
}

func sameVars(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}

func isNewerVersion(a, b string) bool {
	pa, oka := parseVersion(a)
	pb, okb := parseVersion(b)
	if !oka || !okb {
		return a > b
	}
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if x != y {
			return x > y
		}
	}
	return false
}

func parseVersion(v string) ([]int, bool) {
	parts := strings.Split(v, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n := 0
		for _, c := range p {
			if c < '0' || c > '9' {
				return nil, false
			}
			n = n*10 + int(c-'0')
		}
		out[i] = n
	}
	return out, true
}
