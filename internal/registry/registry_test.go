package registry

import (
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/pipohost/internal/metrics"
	"github.com/kagent-dev/pipohost/pkg/pipo"
)

type testPlugin struct {
	pipo.Base
	label  string
	closed int
}

func newTestPlugin(label string) *testPlugin {
	p := &testPlugin{label: label}
	p.Base = pipo.NewBase(p)
	return p
}

func (p *testPlugin) Close() error {
	p.closed++
	return nil
}

type mockCreator struct {
	mock.Mock
}

func (m *mockCreator) Create() (pipo.Plugin, error) {
	args := m.Called()
	if p := args.Get(0); p != nil {
		return p.(pipo.Plugin), args.Error(1)
	}
	return nil, args.Error(1)
}

func creatorFor(label string) pipo.Creator {
	return pipo.CreatorFunc(func() (pipo.Plugin, error) { return newTestPlugin(label), nil })
}

func TestInstantiateDistinctInstances(t *testing.T) {
	r := New(logr.Discard())
	r.Register("a", creatorFor("a"), SourceManual)
	r.Register("b", creatorFor("b"), SourceManual)

	pa, ma, err := r.Instantiate("a", "")
	require.NoError(t, err)
	pb, _, err := r.Instantiate("b", "second")
	require.NoError(t, err)
	pa2, _, err := r.Instantiate("a", "")
	require.NoError(t, err)

	assert.NotSame(t, pa, pb)
	assert.NotSame(t, pa, pa2)
	assert.Equal(t, "a", ma.Name())
	assert.Equal(t, "a", ma.Instance(), "instance name defaults to the plugin name")
	assert.Equal(t, SourceManual, ma.Source())
	assert.Same(t, pa, ma.Plugin())
	assert.Equal(t, 3, r.Outstanding())
}

func TestRegisterReplaces(t *testing.T) {
	first := &mockCreator{}
	second := &mockCreator{}
	second.On("Create").Return(newTestPlugin("second"), nil).Once()

	r := New(logr.Discard())
	r.Register("x", first, "builtin")
	r.Register("x", second, "/plugins/x.so")

	p, _, err := r.Instantiate("x", "")
	require.NoError(t, err)
	assert.Equal(t, "second", p.(*testPlugin).label)

	source, ok := r.Source("x")
	assert.True(t, ok)
	assert.Equal(t, "/plugins/x.so", source)
	assert.Equal(t, 1, r.Len())

	first.AssertNotCalled(t, "Create")
	second.AssertExpectations(t)
}

func TestInstantiateUnknown(t *testing.T) {
	r := New(logr.Discard())
	r.Register("a", creatorFor("a"), SourceManual)

	p, m, err := r.Instantiate("nope", "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, errors.Is(err, ErrCreateFailed))
	assert.Nil(t, p)
	assert.Nil(t, m)
	assert.Equal(t, 0, r.Live())
}

func TestInstantiateCreateFailures(t *testing.T) {
	tests := []struct {
		name    string
		creator pipo.Creator
	}{
		{
			name: "creator error",
			creator: pipo.CreatorFunc(func() (pipo.Plugin, error) {
				return nil, errors.New("out of memory")
			}),
		},
		{
			name:    "nil instance",
			creator: pipo.CreatorFunc(func() (pipo.Plugin, error) { return nil, nil }),
		},
		{
			name: "panic",
			creator: pipo.CreatorFunc(func() (pipo.Plugin, error) {
				panic("boom")
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(logr.Discard())
			r.Register("bad", tt.creator, SourceManual)

			p, m, err := r.Instantiate("bad", "")
			assert.ErrorIs(t, err, ErrCreateFailed)
			assert.False(t, errors.Is(err, ErrNotFound))
			assert.Nil(t, p)
			assert.Nil(t, m)
			assert.Equal(t, 0, r.Outstanding())
		})
	}
}

func TestRegisterNilCreatorIgnored(t *testing.T) {
	r := New(logr.Discard())
	r.Register("nil", nil, SourceManual)
	assert.False(t, r.Has("nil"))
}

func TestNamesSorted(t *testing.T) {
	r := New(logr.Discard())
	for _, name := range []string{"scale", "rms", "thru"} {
		r.Register(name, creatorFor(name), SourceManual)
	}
	assert.Equal(t, []string{"rms", "scale", "thru"}, r.Names())
	assert.True(t, r.Has("rms"))
}

func TestModuleReleaseAndDetach(t *testing.T) {
	r := New(logr.Discard())
	r.Register("a", creatorFor("a"), SourceManual)

	p, m, err := r.Instantiate("a", "")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Live())

	require.NoError(t, m.Release())
	require.NoError(t, m.Release())
	assert.Equal(t, 1, p.(*testPlugin).closed, "instance is closed exactly once")
	assert.True(t, m.Released())
	assert.Nil(t, m.Plugin())
	assert.Equal(t, 0, r.Outstanding())
	assert.Equal(t, 0, r.Live())

	p2, m2, err := r.Instantiate("a", "")
	require.NoError(t, err)
	m2.Detach()
	assert.Equal(t, 0, r.Outstanding())
	assert.Equal(t, 1, r.Live())

	require.NoError(t, r.Close())
	assert.Equal(t, 0, p2.(*testPlugin).closed, "detached modules belong to their new owner")

	require.NoError(t, m2.Release())
	assert.Equal(t, 1, p2.(*testPlugin).closed)
	assert.Equal(t, 0, r.Live())
}

func TestCloseReleasesOutstanding(t *testing.T) {
	m := metrics.New()
	require.NoError(t, m.Register(prometheus.NewRegistry()))

	r := New(logr.Discard(), WithMetrics(m))
	r.Register("a", creatorFor("a"), SourceManual)

	var plugins []*testPlugin
	for i := 0; i < 3; i++ {
		p, _, err := r.Instantiate("a", "")
		require.NoError(t, err)
		plugins = append(plugins, p.(*testPlugin))
	}

	require.NoError(t, r.Close())
	for _, p := range plugins {
		assert.Equal(t, 1, p.closed)
	}
	assert.Equal(t, 0, r.Outstanding())
	assert.Empty(t, r.Names())

	require.NoError(t, r.Close(), "second close is a no-op")
	for _, p := range plugins {
		assert.Equal(t, 1, p.closed)
	}
}

type failingClose struct {
	pipo.Base
}

func (f *failingClose) Close() error {
	return errors.New("close failed")
}

func TestCloseCollectsErrors(t *testing.T) {
	r := New(logr.Discard())
	r.Register("bad", pipo.CreatorFunc(func() (pipo.Plugin, error) {
		f := &failingClose{}
		f.Base = pipo.NewBase(f)
		return f, nil
	}), SourceManual)

	_, _, err := r.Instantiate("bad", "one")
	require.NoError(t, err)
	_, _, err = r.Instantiate("bad", "two")
	require.NoError(t, err)

	err = r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry teardown (2 errors)")
	assert.Equal(t, 0, r.Live())
}
