// Package chain parses chain specifications and assembles the named plugins
// into a single composite plugin.
package chain

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/kagent-dev/pipohost/internal/metrics"
	"github.com/kagent-dev/pipohost/internal/registry"
	"github.com/kagent-dev/pipohost/pkg/pipo"
)

var (
	// ErrAssembly is matched by every failure to build a parsed chain
	ErrAssembly = errors.New("chain assembly failed")

	// ErrAttribute is returned when an attribute assignment cannot be applied
	ErrAttribute = errors.New("invalid attribute assignment")
)

// Instantiator creates plugin instances by name
type Instantiator interface {
	Instantiate(name, instance string) (pipo.Plugin, *registry.Module, error)
}

// Resolver builds a chain in steps: Parse, Instantiate, Connect,
// ApplyAttributes and finally Chain. A failing step releases every instance
// created so far.
type Resolver struct {
	source  Instantiator
	logger  logr.Logger
	metrics *metrics.Metrics
	parent  pipo.Parent

	spec      string
	stages    []Stage
	modules   []*registry.Module
	connected bool
}

// Option configures a Resolver
type Option func(*Resolver)

// WithParent sets the parent of every plugin in resolved chains
func WithParent(p pipo.Parent) Option {
	return func(r *Resolver) {
		r.parent = p
	}
}

// WithMetrics records chain creations in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a resolver instantiating plugins from source
func NewResolver(source Instantiator, logger logr.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		source: source,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Parse parses spec and returns the number of stages. Any chain in progress
// is aborted.
func (r *Resolver) Parse(spec string) (int, error) {
	r.Abort()

	stages, err := Parse(spec)
	if err != nil {
		return 0, err
	}
	r.spec = spec
	r.stages = stages
	return len(stages), nil
}

// Stages returns the parsed stages
func (r *Resolver) Stages() []Stage {
	return append([]Stage(nil), r.stages...)
}

// Instantiate creates one instance per parsed stage, in order
func (r *Resolver) Instantiate() error {
	if len(r.stages) == 0 {
		return fmt.Errorf("%w: nothing parsed", ErrAssembly)
	}
	if len(r.modules) > 0 {
		return fmt.Errorf("%w: already instantiated", ErrAssembly)
	}

	for i, st := range r.stages {
		_, m, err := r.source.Instantiate(st.Name, st.Instance)
		if err != nil {
			r.Abort()
			return fmt.Errorf("%w: stage %d (%s): %w", ErrAssembly, i+1, st.Name, err)
		}
		r.modules = append(r.modules, m)
	}
	return nil
}

// Connect links each instance to the next one and the last one to next,
// which may be nil
func (r *Resolver) Connect(next pipo.Receiver) error {
	if len(r.modules) == 0 || len(r.modules) != len(r.stages) {
		r.Abort()
		return fmt.Errorf("%w: stages are not instantiated", ErrAssembly)
	}

	last := len(r.modules) - 1
	for i, m := range r.modules {
		p := m.Plugin()
		if r.parent != nil {
			p.SetParent(r.parent)
		}
		if i < last {
			p.SetReceiver(r.modules[i+1].Plugin())
		} else {
			p.SetReceiver(next)
		}
	}
	r.connected = true
	return nil
}

// ApplyAttributes applies the assignments of the specification. An unknown
// attribute or an invalid value fails the whole chain.
func (r *Resolver) ApplyAttributes() error {
	if !r.connected {
		r.Abort()
		return fmt.Errorf("%w: stages are not connected", ErrAssembly)
	}

	for i, st := range r.stages {
		attrs := r.modules[i].Plugin().Attrs()
		for _, param := range st.Params {
			if err := attrs.Set(param.Name, param.Values...); err != nil {
				r.Abort()
				return fmt.Errorf("%w: %w: %s.%s: %v", ErrAssembly, ErrAttribute, st.Instance, param.Name, err)
			}
		}
	}
	return nil
}

// Chain hands the connected instances over to a new Chain, which the caller
// now owns, and resets the resolver.
func (r *Resolver) Chain() (*Chain, error) {
	if !r.connected {
		r.Abort()
		return nil, fmt.Errorf("%w: stages are not connected", ErrAssembly)
	}

	for _, m := range r.modules {
		m.Detach()
	}
	c := newChain(r.modules)

	r.logger.V(1).Info("Created chain", "spec", r.spec, "instances", c.Instances())
	r.reset()
	return c, nil
}

// Abort releases every instance created for the chain in progress
func (r *Resolver) Abort() {
	if len(r.modules) > 0 {
		if err := release(r.modules); err != nil {
			r.logger.Error(err, "Failed to release partially created chain", "spec", r.spec)
		}
	}
	r.reset()
}

func (r *Resolver) reset() {
	r.spec = ""
	r.stages = nil
	r.modules = nil
	r.connected = false
}

// Create runs every step for spec. It never returns a partial chain.
func (r *Resolver) Create(spec string) (*Chain, error) {
	c, err := r.create(spec)
	if err != nil {
		r.metrics.RecordChain(0, false)
		r.logger.Info("Failed to create chain", "spec", spec, "error", err.Error())
		return nil, err
	}
	r.metrics.RecordChain(c.Len(), true)
	return c, nil
}

func (r *Resolver) create(spec string) (*Chain, error) {
	if _, err := r.Parse(spec); err != nil {
		return nil, err
	}
	if err := r.Instantiate(); err != nil {
		return nil, err
	}
	if err := r.Connect(nil); err != nil {
		return nil, err
	}
	if err := r.ApplyAttributes(); err != nil {
		return nil, err
	}
	return r.Chain()
}
