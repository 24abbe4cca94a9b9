// Package loader discovers plugin libraries in a directory, registers the
// plugins they export and keeps the libraries open until it is closed.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-logr/logr"

	perrors "github.com/kagent-dev/pipohost/internal/errors"
	"github.com/kagent-dev/pipohost/internal/metrics"
	"github.com/kagent-dev/pipohost/pkg/pipo"
)

// DirectoryName is the name of the plugin directory next to the executable
const DirectoryName = "pipo"

// Registrar receives the plugins found in libraries
type Registrar interface {
	Register(name string, creator pipo.Creator, source string)
}

// Result describes one scan
type Result struct {
	Directory  string
	Registered []string
	Retained   []string
	Unused     []string
	Failures   *perrors.Failures
}

type handle struct {
	lib    Library
	plugin string
}

// Loader owns every library it opened
type Loader struct {
	logger    logr.Logger
	metrics   *metrics.Metrics
	directory string
	extension string
	opener    Opener

	libs []*handle
}

// Option configures a Loader
type Option func(*Loader)

// WithDirectory scans dir instead of the default plugin directory
func WithDirectory(dir string) Option {
	return func(l *Loader) {
		l.directory = dir
	}
}

// WithExtension matches files with ext instead of the platform default
func WithExtension(ext string) Option {
	return func(l *Loader) {
		l.extension = ext
	}
}

// WithOpener replaces the library opener
func WithOpener(o Opener) Option {
	return func(l *Loader) {
		l.opener = o
	}
}

// WithMetrics records load activity in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// New creates a loader
func New(logger logr.Logger, opts ...Option) *Loader {
	l := &Loader{
		logger:    logger,
		extension: DefaultExtension(),
		opener:    GoPluginOpener(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.extension != "" && !strings.HasPrefix(l.extension, ".") {
		l.extension = "." + l.extension
	}
	return l
}

// Scan opens every library in the plugin directory and registers the plugins
// they export. Individual failures are collected in the result and never stop
// the scan; a missing directory yields an empty result.
func (l *Loader) Scan(reg Registrar) *Result {
	result := &Result{
		Failures: perrors.NewFailures("plugin library scan"),
	}

	dir := l.directory
	if dir == "" {
		var err error
		dir, err = DefaultDirectory()
		if err != nil {
			l.logger.Error(err, "Failed to resolve plugin directory")
			result.Failures.Add(dir, err)
			return result
		}
	}
	result.Directory = dir

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.V(1).Info("Plugin directory does not exist", "directory", dir)
		} else {
			l.logger.Error(err, "Failed to read plugin directory", "directory", dir)
			result.Failures.Add(dir, err)
		}
		return result
	}

	l.logger.Info("Scanning plugin directory", "directory", dir, "extension", l.extension)

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != l.extension {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		lib, err := l.opener.Open(path)
		if err != nil {
			l.metrics.RecordLoad(false)
			l.logger.Info("Skipping library that failed to open", "path", path, "error", err.Error())
			result.Failures.Add(path, fmt.Errorf("%w: %v", ErrOpen, err))
			continue
		}
		l.metrics.RecordLoad(true)

		h := &handle{lib: lib}
		l.libs = append(l.libs, h)
		result.Retained = append(result.Retained, path)

		name, creator, err := Probe(lib)
		if err != nil {
			l.logger.Info("Library does not export a plugin, keeping it loaded", "path", path, "error", err.Error())
			result.Failures.Add(path, err)
			result.Unused = append(result.Unused, path)
			continue
		}

		reg.Register(name, creator, path)
		h.plugin = name
		result.Registered = append(result.Registered, name)
	}

	l.metrics.SetLibraries(l.counts())
	if len(result.Registered) > 0 {
		l.logger.Info("Loaded plugins", "names", strings.Join(result.Registered, " | "))
	}
	return result
}

func (l *Loader) counts() (used, unused int) {
	for _, h := range l.libs {
		if h.plugin != "" {
			used++
		} else {
			unused++
		}
	}
	return used, unused
}

// Libraries returns the paths of the retained libraries in load order
func (l *Loader) Libraries() []string {
	paths := make([]string, len(l.libs))
	for i, h := range l.libs {
		paths[i] = h.lib.Path()
	}
	return paths
}

// Close closes every retained library in reverse load order. Closing an
// empty loader is a no-op.
func (l *Loader) Close() error {
	errs := perrors.NewFailures("plugin library unload")
	for i := len(l.libs) - 1; i >= 0; i-- {
		lib := l.libs[i].lib
		if err := lib.Close(); err != nil {
			errs.Add(lib.Path(), err)
		}
	}
	if len(l.libs) > 0 {
		l.logger.Info("Unloaded plugin libraries", "count", len(l.libs))
	}
	l.libs = nil
	l.metrics.SetLibraries(0, 0)
	return errs.Err()
}

// DefaultDirectory resolves the plugin directory from the running executable
func DefaultDirectory() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return directoryFor(exe), nil
}

// directoryFor maps X.app/Contents/MacOS/exe to X.app/Contents/Resources/pipo
// and any other executable to a pipo directory beside it.
func directoryFor(exe string) string {
	dir := filepath.Dir(exe)
	contents := filepath.Dir(dir)
	if filepath.Base(dir) == "MacOS" && filepath.Base(contents) == "Contents" {
		return filepath.Join(contents, "Resources", DirectoryName)
	}
	return filepath.Join(dir, DirectoryName)
}

// DefaultExtension returns the shared library extension of the platform
func DefaultExtension() string {
	if runtime.GOOS == "darwin" {
		return ".dylib"
	}
	return ".so"
}
