// Package registry keeps the name-keyed table of plugin creators and tracks
// every plugin instance it issues until ownership is released or transferred.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/sets"

	perrors "github.com/kagent-dev/pipohost/internal/errors"
	"github.com/kagent-dev/pipohost/internal/metrics"
	"github.com/kagent-dev/pipohost/pkg/pipo"
)

var (
	// ErrNotFound is returned when no creator is registered under a name
	ErrNotFound = errors.New("plugin not found")

	// ErrCreateFailed is returned when a registered creator cannot produce an instance
	ErrCreateFailed = errors.New("plugin creation failed")
)

// Sources of registrations that are not library paths
const (
	SourceManual = "manual"
	SourcePreset = "preset"
)

type entry struct {
	creator pipo.Creator
	source  string
}

// Registry maps plugin names to creators
type Registry struct {
	logger  logr.Logger
	metrics *metrics.Metrics

	mu          sync.RWMutex
	creators    map[string]entry
	outstanding map[uuid.UUID]*Module
	live        int
	seq         uint64
}

// Option configures a Registry
type Option func(*Registry)

// WithMetrics records registry activity in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New creates an empty registry
func New(logger logr.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:      logger,
		creators:    make(map[string]entry),
		outstanding: make(map[uuid.UUID]*Module),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts or replaces the creator for name. A nil creator is ignored.
func (r *Registry) Register(name string, creator pipo.Creator, source string) {
	if creator == nil {
		r.logger.Info("Ignoring nil creator", "name", name, "source", source)
		return
	}

	r.mu.Lock()
	previous, exists := r.creators[name]
	r.creators[name] = entry{creator: creator, source: source}
	count := len(r.creators)
	r.mu.Unlock()

	if exists {
		r.logger.Info("Replacing registered plugin", "name", name, "previous", previous.source, "source", source)
	} else {
		r.logger.V(1).Info("Registered plugin", "name", name, "source", source)
	}
	r.metrics.RecordRegistration(source)
	r.metrics.SetCreators(count)
}

// Instantiate creates a new instance of the named plugin. The returned Module
// owns the instance and is tracked by the registry until released or detached.
// The instance name defaults to the plugin name.
func (r *Registry) Instantiate(name, instance string) (pipo.Plugin, *Module, error) {
	r.mu.RLock()
	e, ok := r.creators[name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	p, err := create(e.creator)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrCreateFailed, name, err)
	}

	if instance == "" {
		instance = name
	}

	r.mu.Lock()
	r.seq++
	m := &Module{
		id:       uuid.New(),
		seq:      r.seq,
		name:     name,
		instance: instance,
		source:   e.source,
		plugin:   p,
		registry: r,
	}
	r.outstanding[m.id] = m
	r.live++
	r.mu.Unlock()

	r.metrics.InstanceCreated()
	r.logger.V(1).Info("Instantiated plugin", "name", name, "instance", instance, "id", m.id)
	return p, m, nil
}

// create invokes the creator, turning panics and nil instances into errors
func create(c pipo.Creator) (p pipo.Plugin, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p = nil
			err = fmt.Errorf("creator panicked: %v", rec)
		}
	}()

	p, err = c.Create()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("creator returned no instance")
	}
	return p, nil
}

// Has reports whether a creator is registered under name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.creators[name]
	return ok
}

// Source returns where the creator registered under name came from
func (r *Registry) Source(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.creators[name]
	return e.source, ok
}

// Names returns the registered plugin names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sets.List(sets.KeySet(r.creators))
}

// Len returns the number of registered creators
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.creators)
}

// Outstanding returns the number of modules still owned by the registry
func (r *Registry) Outstanding() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.outstanding)
}

// Live returns the number of issued instances not yet released, whoever owns them
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.live
}

// Close releases every module still owned by the registry, newest first, and
// clears the creator table. Detached modules are left to their owners.
// Closing an empty registry is a no-op.
func (r *Registry) Close() error {
	r.mu.Lock()
	modules := make([]*Module, 0, len(r.outstanding))
	for _, m := range r.outstanding {
		modules = append(modules, m)
	}
	r.creators = make(map[string]entry)
	r.mu.Unlock()

	sort.Slice(modules, func(i, j int) bool {
		return modules[i].seq > modules[j].seq
	})

	errs := perrors.NewFailures("registry teardown")
	for _, m := range modules {
		errs.Add(m.instance, m.Release())
	}

	r.metrics.SetCreators(0)
	if len(modules) > 0 {
		r.logger.Info("Released outstanding plugin instances", "count", len(modules))
	}
	return errs.Err()
}

func (r *Registry) untrack(m *Module, released bool) {
	r.mu.Lock()
	delete(r.outstanding, m.id)
	if released {
		r.live--
	}
	r.mu.Unlock()

	if released {
		r.metrics.InstanceReleased()
	}
}
