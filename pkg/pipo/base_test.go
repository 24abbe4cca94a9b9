package pipo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passThrough struct {
	Base
}

func newPassThrough() *passThrough {
	p := &passThrough{}
	p.Base = NewBase(p)
	return p
}

type sink struct {
	attrs  StreamAttributes
	frames [][]float32
	resets int
	end    float64
}

func (s *sink) StreamAttributes(attrs StreamAttributes) error {
	s.attrs = attrs
	return nil
}

func (s *sink) Frames(time, weight float64, values []float32, size, num int) error {
	s.frames = append(s.frames, append([]float32(nil), values...))
	return nil
}

func (s *sink) Reset() error {
	s.resets++
	return nil
}

func (s *sink) Finalize(inputEnd float64) error {
	s.end = inputEnd
	return nil
}

type recordingParent struct {
	changed  []string
	errors   []string
	warnings []string
}

func (r *recordingParent) StreamAttributesChanged(p Plugin, attr *Attr) {
	r.changed = append(r.changed, attr.Name)
}

func (r *recordingParent) SignalError(p Plugin, msg string) {
	r.errors = append(r.errors, msg)
}

func (r *recordingParent) SignalWarning(p Plugin, msg string) {
	r.warnings = append(r.warnings, msg)
}

func TestBaseForwardsStream(t *testing.T) {
	p := newPassThrough()
	out := &sink{}

	// unconnected plugins swallow everything
	require.NoError(t, p.StreamAttributes(DefaultStreamAttributes()))
	require.NoError(t, p.Frames(0, 1, []float32{1}, 1, 1))

	p.SetReceiver(out)
	assert.Equal(t, out, p.Receiver())

	attrs := DefaultStreamAttributes()
	attrs.Width = 2
	require.NoError(t, p.StreamAttributes(attrs))
	require.NoError(t, p.Frames(0, 1, []float32{1, 2}, 2, 1))
	require.NoError(t, p.Reset())
	require.NoError(t, p.Finalize(42))

	assert.Equal(t, 2, out.attrs.Width)
	assert.Equal(t, [][]float32{{1, 2}}, out.frames)
	assert.Equal(t, 1, out.resets)
	assert.Equal(t, 42.0, out.end)
	assert.NoError(t, p.Close())
}

func TestBaseNotifiesParent(t *testing.T) {
	p := newPassThrough()
	parent := &recordingParent{}

	p.SignalError("ignored without parent")
	p.SetParent(parent)
	assert.Equal(t, parent, p.Parent())

	p.SignalError("bad input")
	p.SignalWarning("clipping")
	p.AttrChanged(&Attr{Name: "size", ChangesStream: true})
	p.AttrChanged(&Attr{Name: "gain"})

	assert.Equal(t, []string{"bad input"}, parent.errors)
	assert.Equal(t, []string{"clipping"}, parent.warnings)
	assert.Equal(t, []string{"size"}, parent.changed)
}

func TestStreamAttributesDefaultsAndClone(t *testing.T) {
	attrs := DefaultStreamAttributes()
	assert.Equal(t, 1000.0, attrs.Rate)
	assert.Equal(t, 1, attrs.Size())
	assert.Equal(t, 1, attrs.MaxFrames)

	attrs.Labels = []string{"a"}
	clone := attrs.Clone()
	clone.Labels[0] = "b"
	assert.Equal(t, "a", attrs.Labels[0])
}

func TestCreatorFunc(t *testing.T) {
	var c Creator = CreatorFunc(func() (Plugin, error) { return newPassThrough(), nil })
	a, err := c.Create()
	require.NoError(t, err)
	b, err := c.Create()
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}
