package registry

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kagent-dev/pipohost/pkg/pipo"
)

// Module binds one plugin instance to the bookkeeping of the registry that
// issued it. Releasing the module closes the instance exactly once.
type Module struct {
	id       uuid.UUID
	seq      uint64
	name     string
	instance string
	source   string
	plugin   pipo.Plugin
	registry *Registry

	released bool
	detached bool
}

// ID returns the unique identifier of this module
func (m *Module) ID() uuid.UUID {
	return m.id
}

// Name returns the registry name the instance was created from
func (m *Module) Name() string {
	return m.name
}

// Instance returns the instance name used inside a chain
func (m *Module) Instance() string {
	return m.instance
}

// Source returns where the creator came from
func (m *Module) Source() string {
	return m.source
}

// Plugin returns the owned instance, nil once released
func (m *Module) Plugin() pipo.Plugin {
	if m.released {
		return nil
	}
	return m.plugin
}

// Released reports whether the instance has been closed
func (m *Module) Released() bool {
	return m.released
}

// Detach transfers ownership of the module from the registry to the caller.
// The caller must Release it.
func (m *Module) Detach() {
	if m.detached || m.released {
		return
	}
	m.detached = true
	m.registry.untrack(m, false)
}

// Release closes the instance. Subsequent calls do nothing.
func (m *Module) Release() error {
	if m.released {
		return nil
	}
	m.released = true
	m.registry.untrack(m, true)

	p := m.plugin
	m.plugin = nil
	if err := p.Close(); err != nil {
		return fmt.Errorf("failed to close plugin %s: %w", m.instance, err)
	}
	return nil
}
