package test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/pipohost/pkg/pipo"
)

// PluginTestFramework provides utilities for testing plugins
type PluginTestFramework struct {
	t      *testing.T
	logger logr.Logger
}

// NewPluginTestFramework creates a new plugin test framework
func NewPluginTestFramework(t *testing.T) *PluginTestFramework {
	return &PluginTestFramework{
		t:      t,
		logger: logr.Discard(), // Use discard logger for tests
	}
}

// TestCreator verifies that a creator is usable as a registry entry
func (ptf *PluginTestFramework) TestCreator(name string, creator pipo.Creator) {
	ptf.t.Helper()

	assert.Regexp(ptf.t, `^[a-z][a-z0-9_-]*$`, name, "Plugin name should be lowercase without chain separators")
	require.NotNil(ptf.t, creator, "Creator should not be nil")

	a, err := creator.Create()
	require.NoError(ptf.t, err, "First create should succeed")
	require.NotNil(ptf.t, a)
	b, err := creator.Create()
	require.NoError(ptf.t, err, "Second create should succeed")
	require.NotNil(ptf.t, b)
	assert.NotSame(ptf.t, a, b, "Every create should return a new instance")

	seen := map[string]bool{}
	for _, attrName := range a.Attrs().Names() {
		assert.NotEmpty(ptf.t, attrName, "Attribute name should not be empty")
		assert.False(ptf.t, seen[attrName], "Attribute %s should be declared once", attrName)
		seen[attrName] = true
	}

	assert.NoError(ptf.t, a.Close())
	assert.NoError(ptf.t, b.Close())
}

// TestStreamContract connects p to a sink, sends in followed by every frame
// and checks what comes out. Output frames must match the size announced by
// the output stream attributes and carry non-decreasing times.
func (ptf *PluginTestFramework) TestStreamContract(p pipo.Plugin, in pipo.StreamAttributes, frames [][]float32) *Sink {
	ptf.t.Helper()

	sink := NewSink()
	p.SetReceiver(sink)
	require.NoError(ptf.t, p.StreamAttributes(in), "Plugin should accept the input stream")
	require.True(ptf.t, sink.Configured, "Plugin should announce its output stream")

	period := 1000.0 / in.Rate
	for i, frame := range frames {
		require.NoError(ptf.t, p.Frames(float64(i)*period, 1, frame, in.Size(), 1), "frame[%d]", i)
	}
	require.NoError(ptf.t, p.Finalize(float64(len(frames))*period))
	assert.True(ptf.t, sink.Finalized, "Finalize should reach the end of the chain")

	last := -1.0
	for i, f := range sink.Recorded {
		ptf.ValidateFrame(f, sink.Attrs, fmt.Sprintf("output[%d]", i))
		assert.GreaterOrEqual(ptf.t, f.Time, last, "output[%d] time should not go backwards", i)
		last = f.Time
	}
	return sink
}

// ValidateFrame validates that an output frame matches its stream attributes
func (ptf *PluginTestFramework) ValidateFrame(f Frame, attrs pipo.StreamAttributes, context string) {
	ptf.t.Helper()

	assert.Greater(ptf.t, f.Size, 0, "%s size should be positive", context)
	assert.Len(ptf.t, f.Values, f.Size, "%s should carry exactly one frame of values", context)
	if !attrs.HasVarSize {
		assert.Equal(ptf.t, attrs.Size(), f.Size, "%s size should match the announced stream", context)
	}
}

// AttrTestCase represents an attribute assignment test case
type AttrTestCase struct {
	Name          string
	Attr          string
	Values        []string
	ExpectError   bool
	ErrorContains string
}

// TestAttributeConfiguration tests attribute validation of a plugin
func (ptf *PluginTestFramework) TestAttributeConfiguration(p pipo.Plugin, testCases []AttrTestCase) {
	ptf.t.Helper()

	for _, tc := range testCases {
		ptf.t.Run(tc.Name, func(t *testing.T) {
			err := p.Attrs().Set(tc.Attr, tc.Values...)

			if tc.ExpectError {
				assert.Error(t, err, "Expected attribute error for: %s", tc.Name)
				if tc.ErrorContains != "" {
					assert.Contains(t, err.Error(), tc.ErrorContains, "Error should contain expected message")
				}
			} else {
				assert.NoError(t, err, "Attribute should be valid for: %s", tc.Name)
			}
		})
	}
}

// TestPluginResourceCleanup tests that plugins can be closed more than once
func (ptf *PluginTestFramework) TestPluginResourceCleanup(creator pipo.Creator) {
	ptf.t.Helper()

	p, err := creator.Create()
	require.NoError(ptf.t, err)

	require.NoError(ptf.t, p.Close())
	assert.NoError(ptf.t, p.Close(), "Multiple closes should be safe")
}

// TestPluginConcurrency drives separate instances from separate goroutines.
// Instances must not share mutable state.
func (ptf *PluginTestFramework) TestPluginConcurrency(creator pipo.Creator, in pipo.StreamAttributes, frame []float32, goroutines int) {
	ptf.t.Helper()

	sinks := make([]*Sink, goroutines)
	errs := make([]error, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			p, err := creator.Create()
			if err != nil {
				errs[id] = err
				return
			}
			defer p.Close()

			sink := NewSink()
			p.SetReceiver(sink)
			if err := p.StreamAttributes(in); err != nil {
				errs[id] = err
				return
			}
			for j := 0; j < 10; j++ {
				if err := p.Frames(float64(j), 1, frame, in.Size(), 1); err != nil {
					errs[id] = err
					return
				}
			}
			sinks[id] = sink
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		require.NoError(ptf.t, errs[i], "goroutine %d", i)
		assert.Equal(ptf.t, sinks[0].Recorded, sinks[i].Recorded, "goroutine %d should see the same output", i)
	}
}

// PerformanceMetrics contains performance test results
type PerformanceMetrics struct {
	Duration        time.Duration
	FrameCount      int
	OutputCount     int
	FramesPerSecond float64
}

// TestPluginPerformance pushes count copies of frame through p
func (ptf *PluginTestFramework) TestPluginPerformance(p pipo.Plugin, in pipo.StreamAttributes, frame []float32, count int) PerformanceMetrics {
	ptf.t.Helper()

	sink := NewSink()
	sink.Discard = true
	p.SetReceiver(sink)
	require.NoError(ptf.t, p.StreamAttributes(in))

	start := time.Now()
	for i := 0; i < count; i++ {
		require.NoError(ptf.t, p.Frames(float64(i), 1, frame, in.Size(), 1))
	}
	metrics := PerformanceMetrics{
		Duration:    time.Since(start),
		FrameCount:  count,
		OutputCount: sink.Count,
	}
	if metrics.Duration > 0 {
		metrics.FramesPerSecond = float64(count) / metrics.Duration.Seconds()
	}

	ptf.t.Logf("Performance metrics: %+v", metrics)

	return metrics
}

// Frame is one frame received by a Sink
type Frame struct {
	Time   float64
	Weight float64
	Values []float32
	Size   int
}

// Sink is a receiver recording everything it gets
type Sink struct {
	Attrs      pipo.StreamAttributes
	Configured bool
	Recorded   []Frame
	Count      int
	Resets     int
	Finalized  bool
	End        float64

	// Discard counts frames without keeping them
	Discard bool
}

// NewSink creates an empty sink
func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) StreamAttributes(attrs pipo.StreamAttributes) error {
	s.Attrs = attrs.Clone()
	s.Configured = true
	return nil
}

func (s *Sink) Frames(time, weight float64, values []float32, size, num int) error {
	if size <= 0 {
		return nil
	}
	for f := 0; f < num && (f+1)*size <= len(values); f++ {
		s.Count++
		if s.Discard {
			continue
		}
		s.Recorded = append(s.Recorded, Frame{
			Time:   time + float64(f)*1000.0/s.rate(),
			Weight: weight,
			Values: append([]float32(nil), values[f*size:(f+1)*size]...),
			Size:   size,
		})
	}
	return nil
}

func (s *Sink) rate() float64 {
	if s.Attrs.Rate > 0 {
		return s.Attrs.Rate
	}
	return 1000.0
}

func (s *Sink) Reset() error {
	s.Resets++
	s.Recorded = nil
	s.Count = 0
	return nil
}

func (s *Sink) Finalize(inputEnd float64) error {
	s.Finalized = true
	s.End = inputEnd
	return nil
}

// Values returns the values of every recorded frame
func (s *Sink) Values() [][]float32 {
	out := make([][]float32, len(s.Recorded))
	for i, f := range s.Recorded {
		out[i] = f.Values
	}
	return out
}

// MockPlugin is a pass-through plugin recording its lifecycle
type MockPlugin struct {
	pipo.Base
	Gain   *pipo.Attr
	closes int
	frames int
}

// NewMockPlugin creates a new mock plugin with a float "gain" attribute
func NewMockPlugin() *MockPlugin {
	m := &MockPlugin{}
	m.Base = pipo.NewBase(m)
	m.Gain = pipo.NewAttr("gain", "multiplier", pipo.AttrFloat, "1")
	m.Attrs().Add(m.Gain)
	return m
}

// MockCreator returns a creator handing out MockPlugins, recording each one
func MockCreator(created *[]*MockPlugin) pipo.Creator {
	return pipo.CreatorFunc(func() (pipo.Plugin, error) {
		m := NewMockPlugin()
		if created != nil {
			*created = append(*created, m)
		}
		return m, nil
	})
}

func (m *MockPlugin) Frames(time, weight float64, values []float32, size, num int) error {
	m.frames += num
	gain := float32(m.Gain.Float(0))
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = v * gain
	}
	return m.PropagateFrames(time, weight, out, size, num)
}

func (m *MockPlugin) Close() error {
	m.closes++
	return nil
}

// IsClosed returns whether the mock was closed
func (m *MockPlugin) IsClosed() bool { return m.closes > 0 }

// CloseCount returns how many times the mock was closed
func (m *MockPlugin) CloseCount() int { return m.closes }

// FrameCount returns how many frames the mock received
func (m *MockPlugin) FrameCount() int { return m.frames }
