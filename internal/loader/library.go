package loader

import (
	"errors"
	"fmt"
	"plugin"

	"github.com/kagent-dev/pipohost/pkg/pipo"
)

// Symbols every plugin library must export
const (
	CreatorSymbol = "GetPiPoCreator"
	NameSymbol    = "GetPiPoName"
)

var (
	// ErrOpen is returned when a file cannot be opened as a library
	ErrOpen = errors.New("failed to open library")

	// ErrSymbol is returned when a library does not provide a usable plugin
	ErrSymbol = errors.New("library does not export a plugin")
)

// Library is an opened shared library
type Library interface {
	Path() string
	Lookup(symbol string) (any, error)
	Close() error
}

// Opener opens libraries
type Opener interface {
	Open(path string) (Library, error)
}

// OpenerFunc adapts a function to the Opener interface
type OpenerFunc func(path string) (Library, error)

// Open implements Opener
func (f OpenerFunc) Open(path string) (Library, error) {
	return f(path)
}

// GoPluginOpener opens libraries built with -buildmode=plugin
func GoPluginOpener() Opener {
	return OpenerFunc(func(path string) (Library, error) {
		p, err := plugin.Open(path)
		if err != nil {
			return nil, err
		}
		return &goPlugin{path: path, plugin: p}, nil
	})
}

type goPlugin struct {
	path   string
	plugin *plugin.Plugin
}

func (g *goPlugin) Path() string {
	return g.path
}

func (g *goPlugin) Lookup(symbol string) (any, error) {
	return g.plugin.Lookup(symbol)
}

// Close does nothing: the Go runtime never unmaps a plugin once opened.
func (g *goPlugin) Close() error {
	return nil
}

// Probe resolves the creator and the name exported by lib
func Probe(lib Library) (string, pipo.Creator, error) {
	sym, err := lib.Lookup(CreatorSymbol)
	if err != nil {
		return "", nil, fmt.Errorf("%w: missing %s: %v", ErrSymbol, CreatorSymbol, err)
	}
	var creatorFn func() pipo.Creator
	switch fn := sym.(type) {
	case func() pipo.Creator:
		creatorFn = fn
	case *func() pipo.Creator:
		if fn != nil {
			creatorFn = *fn
		}
	default:
		return "", nil, fmt.Errorf("%w: %s has incorrect signature %T", ErrSymbol, CreatorSymbol, sym)
	}
	creator, err := call(CreatorSymbol, creatorFn)
	if err != nil {
		return "", nil, err
	}
	if creator == nil {
		return "", nil, fmt.Errorf("%w: %s returned no creator", ErrSymbol, CreatorSymbol)
	}

	sym, err = lib.Lookup(NameSymbol)
	if err != nil {
		return "", nil, fmt.Errorf("%w: missing %s: %v", ErrSymbol, NameSymbol, err)
	}
	var nameFn func() string
	switch fn := sym.(type) {
	case func() string:
		nameFn = fn
	case *func() string:
		if fn != nil {
			nameFn = *fn
		}
	default:
		return "", nil, fmt.Errorf("%w: %s has incorrect signature %T", ErrSymbol, NameSymbol, sym)
	}
	name, err := call(NameSymbol, nameFn)
	if err != nil {
		return "", nil, err
	}
	if name == "" {
		return "", nil, fmt.Errorf("%w: %s returned an empty name", ErrSymbol, NameSymbol)
	}

	return name, creator, nil
}

// call invokes an exported entry point, reporting a panic as ErrSymbol
func call[T any](symbol string, fn func() T) (v T, err error) {
	if fn == nil {
		return v, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			v = zero
			err = fmt.Errorf("%w: %s panicked: %v", ErrSymbol, symbol, rec)
		}
	}()
	return fn(), nil
}
