package websearch

import (
	"context"
	"fmt"
)

// Query carries all parameters for one source search.
type Query struct {
	Terms      string
	MaxResults int
	TimeFilter string // "day", "week", "month", "year" or empty
}

// Result is a single hit returned by a web source.
type Result struct {
	Title   string
	URL     string
	Snippet string
	Source  string
	Score   float64
}

// Source captures a single search strategy (Google, YouTube, Reddit, ...).
type Source interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Result, error)
}

// Registry keeps a mapping from source names to their implementations,
// preserving registration order for deterministic fan-out.
type Registry struct {
	sources map[string]Source
	order   []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(source Source) {
	if r.sources == nil {
		r.sources = map[string]Source{}
	}
	if _, ok := r.sources[source.Name()]; !ok {
		r.order = append(r.order, source.Name())
	}
	r.sources[source.Name()] = source
}

// Resolve returns a source by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Source, error) {
	if source, ok := r.sources[name]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("source %s is not registered", name)
}

// Names lists registered sources in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
