package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/pipohost/pkg/pipo"
)

type fakeRegistrar struct {
	creators map[string]pipo.Creator
	sources  map[string]string
}

func (f *fakeRegistrar) Register(name string, creator pipo.Creator, source string) {
	f.creators[name] = creator
	f.sources[name] = source
}

type collector struct {
	attrs  pipo.StreamAttributes
	frames [][]float32
	sizes  []int
}

func (c *collector) StreamAttributes(attrs pipo.StreamAttributes) error {
	c.attrs = attrs
	return nil
}

func (c *collector) Frames(time, weight float64, values []float32, size, num int) error {
	c.frames = append(c.frames, append([]float32(nil), values...))
	c.sizes = append(c.sizes, size)
	return nil
}

func (c *collector) Reset() error { return nil }
func (c *collector) Finalize(inputEnd float64) error { return nil }

func TestRegister(t *testing.T) {
	reg := &fakeRegistrar{creators: map[string]pipo.Creator{}, sources: map[string]string{}}
	names := Register(reg)

	assert.Equal(t, []string{ThruName, ScaleName, RMSName}, names)
	for _, name := range names {
		assert.Equal(t, SourceBuiltin, reg.sources[name])
		a, err := reg.creators[name].Create()
		require.NoError(t, err)
		b, err := reg.creators[name].Create()
		require.NoError(t, err)
		assert.NotSame(t, a, b, "every create must return a new instance of %s", name)
	}
}

func TestThru(t *testing.T) {
	p := NewThru()
	out := &collector{}
	p.SetReceiver(out)

	require.NoError(t, p.StreamAttributes(pipo.DefaultStreamAttributes()))
	require.NoError(t, p.Frames(0, 1, []float32{3, 4}, 2, 1))
	assert.Equal(t, [][]float32{{3, 4}}, out.frames)
	assert.Equal(t, 0, p.Attrs().Len())
}

func TestScale(t *testing.T) {
	p := NewScale()
	out := &collector{}
	p.SetReceiver(out)

	require.NoError(t, p.Attrs().Set("factor", "2"))
	require.NoError(t, p.Attrs().Set("offset", "0.5"))
	require.NoError(t, p.Frames(0, 1, []float32{1, -1}, 2, 1))

	assert.Equal(t, [][]float32{{2.5, -1.5}}, out.frames)
	assert.Equal(t, []string{"factor", "offset"}, p.Attrs().Names())
}

func TestRMS(t *testing.T) {
	p := NewRMS()
	out := &collector{}
	p.SetReceiver(out)

	in := pipo.DefaultStreamAttributes()
	in.Width = 4
	require.NoError(t, p.StreamAttributes(in))
	assert.Equal(t, 1, out.attrs.Width)
	assert.Equal(t, []string{"rms"}, out.attrs.Labels)

	require.NoError(t, p.Frames(0, 1, []float32{3, 3, 3, 3, 1, 1, 1, 1}, 4, 2))
	require.Len(t, out.frames, 1)
	assert.InDeltaSlice(t, []float32{3, 1}, out.frames[0], 1e-6)
	assert.Equal(t, []int{1}, out.sizes)
}

func TestRMSRejectsShortBuffer(t *testing.T) {
	p := NewRMS()
	out := &collector{}
	p.SetReceiver(out)

	require.NoError(t, p.Frames(0, 1, []float32{1}, 4, 1))
	require.NoError(t, p.Frames(0, 1, nil, 0, 0))
	assert.Empty(t, out.frames)
}
