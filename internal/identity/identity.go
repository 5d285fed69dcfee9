// Package identity turns operator-supplied names into gallery-safe identities
// and maps them to the integer labels the classifier trains on.
package identity

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Fallback is used when sanitization leaves nothing behind.
const Fallback = "user"

var disallowed = regexp.MustCompile(`[^a-z0-9_]+`)

var lower = cases.Lower(language.Und)

// Sanitize lowercases name, collapses every run of characters outside
// [a-z0-9_] into a single underscore and trims underscores from both ends.
func Sanitize(name string) string {
	s := lower.String(name)
	s = disallowed.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return Fallback
	}
	return s
}

// Registry is an immutable two-way mapping between labels and identity names
// produced by one training run. Labels are only meaningful within that run.
type Registry struct {
	names  []string       // label -> name
	labels map[string]int // lowercased name -> label
}

// Builder assigns labels in first-seen order, starting at 0.
type Builder struct {
	r *Registry
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{r: &Registry{labels: make(map[string]int)}}
}

// Add returns the label for name, assigning the next one if the name is new.
// Names that differ only in case share a label; the first spelling wins.
func (b *Builder) Add(name string) int {
	key := strings.ToLower(name)
	if label, ok := b.r.labels[key]; ok {
		return label
	}
	label := len(b.r.names)
	b.r.names = append(b.r.names, name)
	b.r.labels[key] = label
	return label
}

// Build returns the finished registry. The builder must not be used afterwards.
func (b *Builder) Build() *Registry {
	r := b.r
	b.r = nil
	return r
}

// Empty is a registry with no identities.
var Empty = NewBuilder().Build()

// Name resolves a label.
func (r *Registry) Name(label int) (string, bool) {
	if r == nil || label < 0 || label >= len(r.names) {
		return "", false
	}
	return r.names[label], true
}

// Label resolves a name, ignoring case.
func (r *Registry) Label(name string) (int, bool) {
	if r == nil {
		return 0, false
	}
	label, ok := r.labels[strings.ToLower(name)]
	return label, ok
}

// Len is the number of identities.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Names returns the identities ordered by label.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
