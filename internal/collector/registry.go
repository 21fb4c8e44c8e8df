package collector

import (
	"fmt"

	"HypeScanner/internal/domain"
	"HypeScanner/internal/ports"
)

// Registry keeps a mapping from source names to their collector implementations.
type Registry struct {
	collectors map[domain.Source]ports.Collector
}

// NewRegistry builds a registry holding the given collectors.
func NewRegistry(cs ...ports.Collector) *Registry {
	r := &Registry{collectors: map[domain.Source]ports.Collector{}}
	for _, c := range cs {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a collector implementation.
func (r *Registry) Register(c ports.Collector) {
	if r.collectors == nil {
		r.collectors = map[domain.Source]ports.Collector{}
	}
	r.collectors[c.Source()] = c
}

// Resolve returns a collector by source or an error if it is absent.
func (r *Registry) Resolve(source domain.Source) (ports.Collector, error) {
	if c, ok := r.collectors[source]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("collector %s is not registered", source)
}
