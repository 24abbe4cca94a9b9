// Package collection is the entry point of a plugin host: it owns the
// registry and the libraries loaded into it, and creates chains on demand.
package collection

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/kagent-dev/pipohost/internal/chain"
	perrors "github.com/kagent-dev/pipohost/internal/errors"
	"github.com/kagent-dev/pipohost/internal/loader"
	"github.com/kagent-dev/pipohost/internal/metrics"
	"github.com/kagent-dev/pipohost/internal/preset"
	"github.com/kagent-dev/pipohost/internal/registry"
	"github.com/kagent-dev/pipohost/pkg/pipo"
	"github.com/kagent-dev/pipohost/pkg/pipo/builtin"
)

// ErrNotInitialized is returned by operations that need a prior Init
var ErrNotInitialized = errors.New("plugin collection is not initialized")

// PluginInfo describes one registered plugin
type PluginInfo struct {
	Name        string `json:"name" yaml:"name"`
	Source      string `json:"source" yaml:"source"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type options struct {
	directory   string
	extension   string
	opener      loader.Opener
	presetsFile string
	metrics     *metrics.Metrics
}

// Option configures a Collection
type Option func(*options)

// WithPluginDirectory scans dir for plugin libraries
func WithPluginDirectory(dir string) Option {
	return func(o *options) {
		o.directory = dir
	}
}

// WithExtension sets the file extension of plugin libraries
func WithExtension(ext string) Option {
	return func(o *options) {
		o.extension = ext
	}
}

// WithOpener replaces the library opener
func WithOpener(opener loader.Opener) Option {
	return func(o *options) {
		o.opener = opener
	}
}

// WithPresetsFile registers the chain presets of a manifest on Init
func WithPresetsFile(path string) Option {
	return func(o *options) {
		o.presetsFile = path
	}
}

// WithMetrics records collection activity in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Collection owns a registry and the libraries that contributed to it. It is
// not safe for concurrent use.
type Collection struct {
	logger logr.Logger
	opts   options

	registry *registry.Registry
	loader   *loader.Loader
	presets  *preset.Loader
	scan     *loader.Result
}

// New creates an uninitialized collection
func New(logger logr.Logger, opts ...Option) *Collection {
	c := &Collection{logger: logger}
	for _, opt := range opts {
		opt(&c.opts)
	}
	return c
}

// Init discards any previous state and fills a fresh registry with the
// built-in plugins when useBuiltins is set, then the presets, then the
// plugins found in libraries. Later sources replace earlier ones of the same
// name.
func (c *Collection) Init(useBuiltins bool) error {
	if err := c.Deinit(); err != nil {
		c.logger.Error(err, "Errors while tearing down previous plugin collection")
	}

	c.registry = registry.New(c.logger.WithName("registry"), registry.WithMetrics(c.opts.metrics))

	if useBuiltins {
		names := builtin.Register(c.registry)
		c.logger.Info("Registered built-in plugins", "names", names)
	}

	if c.opts.presetsFile != "" {
		c.registerPresets()
	}

	loaderOpts := []loader.Option{loader.WithMetrics(c.opts.metrics)}
	if c.opts.directory != "" {
		loaderOpts = append(loaderOpts, loader.WithDirectory(c.opts.directory))
	}
	if c.opts.extension != "" {
		loaderOpts = append(loaderOpts, loader.WithExtension(c.opts.extension))
	}
	if c.opts.opener != nil {
		loaderOpts = append(loaderOpts, loader.WithOpener(c.opts.opener))
	}
	c.loader = loader.New(c.logger.WithName("loader"), loaderOpts...)
	c.scan = c.loader.Scan(c.registry)
	for _, failure := range c.scan.Failures.Failures() {
		c.logger.V(1).Info("Plugin library not usable", "path", failure.Item, "error", failure.Err.Error())
	}

	c.logger.Info("Plugin collection initialized",
		"plugins", c.registry.Len(),
		"libraries", len(c.scan.Retained),
		"unused", len(c.scan.Unused))
	return nil
}

func (c *Collection) registerPresets() {
	c.presets = preset.NewLoader(c.logger.WithName("preset"))
	if err := c.presets.Load(c.opts.presetsFile); err != nil {
		c.logger.Error(err, "Failed to load chain presets", "file", c.opts.presetsFile)
		return
	}
	names, err := c.presets.Register(c.registry)
	if err != nil {
		c.logger.Error(err, "Some chain presets were rejected")
	}
	if len(names) > 0 {
		c.logger.Info("Registered chain presets", "names", names)
	}
}

// Deinit releases every instance still owned by the registry, then unloads
// the libraries in reverse load order. Calling it again does nothing.
func (c *Collection) Deinit() error {
	if c.registry == nil {
		return nil
	}

	errs := perrors.NewFailures("plugin collection teardown")
	errs.Add("registry", c.registry.Close())
	if c.loader != nil {
		errs.Add("loader", c.loader.Close())
	}

	c.registry = nil
	c.loader = nil
	c.presets = nil
	c.scan = nil

	c.logger.Info("Plugin collection torn down")
	return errs.Err()
}

// Initialized reports whether Init has been called since the last Deinit
func (c *Collection) Initialized() bool {
	return c.registry != nil
}

// AddToCollection registers a creator under name
func (c *Collection) AddToCollection(name string, creator pipo.Creator) error {
	if c.registry == nil {
		return ErrNotInitialized
	}
	if creator == nil {
		return fmt.Errorf("creator for %s is nil", name)
	}
	c.registry.Register(name, creator, registry.SourceManual)
	return nil
}

// Create builds the chain described by spec. The caller owns the result and
// must Close it; no partial chain is ever returned.
func (c *Collection) Create(spec string) (pipo.Plugin, error) {
	if c.registry == nil {
		return nil, ErrNotInitialized
	}

	resolver := chain.NewResolver(c.registry, c.logger.WithName("chain"), chain.WithMetrics(c.opts.metrics))
	ch, err := resolver.Create(spec)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Names returns the registered plugin names in sorted order
func (c *Collection) Names() []string {
	if c.registry == nil {
		return nil
	}
	return c.registry.Names()
}

// Catalog describes every registered plugin in name order
func (c *Collection) Catalog() []PluginInfo {
	if c.registry == nil {
		return nil
	}

	names := c.registry.Names()
	infos := make([]PluginInfo, 0, len(names))
	for _, name := range names {
		source, _ := c.registry.Source(name)
		info := PluginInfo{Name: name, Source: source}
		if source == registry.SourcePreset && c.presets != nil {
			if p, ok := c.presets.Get(name); ok {
				info.Description = p.Spec.Description
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// Libraries returns the paths of the libraries held open
func (c *Collection) Libraries() []string {
	if c.loader == nil {
		return nil
	}
	return c.loader.Libraries()
}

// LastScan returns the result of the library scan of the last Init
func (c *Collection) LastScan() *loader.Result {
	return c.scan
}

// Registry returns the current registry, nil before Init
func (c *Collection) Registry() *registry.Registry {
	return c.registry
}
