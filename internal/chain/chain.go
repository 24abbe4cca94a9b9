package chain

import (
	"errors"

	perrors "github.com/kagent-dev/pipohost/internal/errors"
	"github.com/kagent-dev/pipohost/internal/registry"
	"github.com/kagent-dev/pipohost/pkg/pipo"
)

var _ pipo.Plugin = (*Chain)(nil)

// ErrClosed is returned when a closed chain receives stream calls
var ErrClosed = errors.New("chain is closed")

// Chain is an ordered sequence of connected plugins that behaves as a single
// plugin. It owns the modules of its plugins.
type Chain struct {
	modules []*registry.Module
	plugins []pipo.Plugin
	attrs   *pipo.AttrSet
	closed  bool
}

func newChain(modules []*registry.Module) *Chain {
	c := &Chain{
		modules: modules,
		plugins: make([]pipo.Plugin, len(modules)),
		attrs:   pipo.NewAttrSet(),
	}
	for i, m := range modules {
		p := m.Plugin()
		c.plugins[i] = p
		// qualify by set key so nested chains keep every level
		attrs := p.Attrs()
		for _, name := range attrs.Names() {
			a, _ := attrs.Get(name)
			c.attrs.AddAs(m.Instance()+"."+name, a)
		}
	}
	return c
}

// Len returns the number of plugins in the chain
func (c *Chain) Len() int {
	return len(c.plugins)
}

// Plugin returns the i-th plugin in pipeline order
func (c *Chain) Plugin(i int) pipo.Plugin {
	if i < 0 || i >= len(c.plugins) {
		return nil
	}
	return c.plugins[i]
}

// Lookup returns the plugin with the given instance name
func (c *Chain) Lookup(instance string) (pipo.Plugin, bool) {
	for i, m := range c.modules {
		if m.Instance() == instance {
			return c.plugins[i], true
		}
	}
	return nil, false
}

// Instances returns the instance names in pipeline order
func (c *Chain) Instances() []string {
	names := make([]string, len(c.modules))
	for i, m := range c.modules {
		names[i] = m.Instance()
	}
	return names
}

// Modules returns the owned modules in pipeline order
func (c *Chain) Modules() []*registry.Module {
	return append([]*registry.Module(nil), c.modules...)
}

// Attrs returns the attributes of every plugin, qualified as instance.attribute
func (c *Chain) Attrs() *pipo.AttrSet {
	return c.attrs
}

// SetReceiver connects the last plugin to r
func (c *Chain) SetReceiver(r pipo.Receiver) {
	if len(c.plugins) > 0 {
		c.plugins[len(c.plugins)-1].SetReceiver(r)
	}
}

// SetParent sets the parent of every plugin
func (c *Chain) SetParent(p pipo.Parent) {
	for _, plugin := range c.plugins {
		plugin.SetParent(p)
	}
}

// StreamAttributes implements pipo.Receiver
func (c *Chain) StreamAttributes(attrs pipo.StreamAttributes) error {
	if c.closed {
		return ErrClosed
	}
	return c.plugins[0].StreamAttributes(attrs)
}

// Frames implements pipo.Receiver
func (c *Chain) Frames(time, weight float64, values []float32, size, num int) error {
	if c.closed {
		return ErrClosed
	}
	return c.plugins[0].Frames(time, weight, values, size, num)
}

// Reset implements pipo.Receiver
func (c *Chain) Reset() error {
	if c.closed {
		return ErrClosed
	}
	return c.plugins[0].Reset()
}

// Finalize implements pipo.Receiver
func (c *Chain) Finalize(inputEnd float64) error {
	if c.closed {
		return ErrClosed
	}
	return c.plugins[0].Finalize(inputEnd)
}

// Close releases every plugin, last stage first. Subsequent calls do nothing.
func (c *Chain) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return release(c.modules)
}

func release(modules []*registry.Module) error {
	errs := perrors.NewFailures("chain release")
	for i := len(modules) - 1; i >= 0; i-- {
		m := modules[i]
		if p := m.Plugin(); p != nil {
			p.SetReceiver(nil)
		}
		errs.Add(m.Instance(), m.Release())
	}
	return errs.Err()
}
