package test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/pipohost/internal/loader"
	"github.com/kagent-dev/pipohost/pkg/pipo"
)

// FakeOpener serves in-memory libraries keyed by file name. Files it does not
// know fail to open like a file that is not a shared object.
type FakeOpener struct {
	mu     sync.Mutex
	libs   map[string]map[string]any
	opened []string
	closed []string
}

// NewFakeOpener creates an opener without libraries
func NewFakeOpener() *FakeOpener {
	return &FakeOpener{libs: map[string]map[string]any{}}
}

// AddPlugin serves file as a library exporting a plugin
func (f *FakeOpener) AddPlugin(file, name string, creator pipo.Creator) {
	getCreator := func() pipo.Creator { return creator }
	getName := func() string { return name }
	f.AddLibrary(file, map[string]any{
		loader.CreatorSymbol: &getCreator,
		loader.NameSymbol:    &getName,
	})
}

// AddLibrary serves file as a library exporting symbols
func (f *FakeOpener) AddLibrary(file string, symbols map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.libs[file] = symbols
}

// Open implements loader.Opener
func (f *FakeOpener) Open(path string) (loader.Library, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file := filepath.Base(path)
	symbols, ok := f.libs[file]
	if !ok {
		return nil, fmt.Errorf("%s: invalid ELF header", path)
	}
	f.opened = append(f.opened, file)
	return &fakeLibrary{opener: f, path: path, symbols: symbols}, nil
}

// Opened returns the file names opened so far, in order
func (f *FakeOpener) Opened() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.opened...)
}

// Closed returns the file names closed so far, in order
func (f *FakeOpener) Closed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

type fakeLibrary struct {
	opener  *FakeOpener
	path    string
	symbols map[string]any
}

func (l *fakeLibrary) Path() string {
	return l.path
}

func (l *fakeLibrary) Lookup(symbol string) (any, error) {
	if sym, ok := l.symbols[symbol]; ok {
		return sym, nil
	}
	return nil, errors.New("plugin: symbol " + symbol + " not found")
}

func (l *fakeLibrary) Close() error {
	l.opener.mu.Lock()
	defer l.opener.mu.Unlock()
	l.opener.closed = append(l.opener.closed, filepath.Base(l.path))
	return nil
}

// TouchFiles creates empty files in dir
func TouchFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
}
