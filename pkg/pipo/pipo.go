// Package pipo defines the contract every PiPo processing module satisfies.
//
// Plugins compiled as shared libraries import this package, so it is kept free
// of host-side dependencies.
package pipo

// Receiver accepts a stream: its attributes first, then frames.
type Receiver interface {
	// StreamAttributes announces the shape of the frames that will follow
	StreamAttributes(attrs StreamAttributes) error

	// Frames delivers num frames of size values each, packed in values
	Frames(time, weight float64, values []float32, size, num int) error

	// Reset clears any internal state accumulated from previous frames
	Reset() error

	// Finalize signals the end of the input stream
	Finalize(inputEnd float64) error
}

// Plugin is a processing module that receives a stream and forwards its
// output to another Receiver.
type Plugin interface {
	Receiver

	// Attrs returns the plugin's attributes
	Attrs() *AttrSet

	// SetReceiver sets where the plugin's output goes; nil disconnects it
	SetReceiver(r Receiver)

	// SetParent sets the host that receives notifications
	SetParent(p Parent)

	// Close releases the instance; it is called exactly once by its owner
	Close() error
}

// Parent is notified synchronously by plugins on the calling goroutine.
type Parent interface {
	StreamAttributesChanged(p Plugin, attr *Attr)
	SignalError(p Plugin, msg string)
	SignalWarning(p Plugin, msg string)
}

// Creator produces a new plugin instance on every call.
type Creator interface {
	Create() (Plugin, error)
}

// CreatorFunc adapts a function to the Creator interface.
type CreatorFunc func() (Plugin, error)

// Create implements Creator
func (f CreatorFunc) Create() (Plugin, error) {
	return f()
}

// StreamAttributes describes the frames flowing between plugins
type StreamAttributes struct {
	HasTimeTags bool     `json:"hasTimeTags" yaml:"hasTimeTags"`
	Rate        float64  `json:"rate" yaml:"rate"`
	Offset      float64  `json:"offset" yaml:"offset"`
	Width       int      `json:"width" yaml:"width"`
	Height      int      `json:"height" yaml:"height"`
	Labels      []string `json:"labels,omitempty" yaml:"labels,omitempty"`
	HasVarSize  bool     `json:"hasVarSize" yaml:"hasVarSize"`
	Domain      float64  `json:"domain" yaml:"domain"`
	MaxFrames   int      `json:"maxFrames" yaml:"maxFrames"`
}

// DefaultStreamAttributes returns the attributes of a single-value stream at 1 kHz
func DefaultStreamAttributes() StreamAttributes {
	return StreamAttributes{
		Rate:      1000.0,
		Width:     1,
		Height:    1,
		MaxFrames: 1,
	}
}

// Size returns the number of values in one frame
func (s StreamAttributes) Size() int {
	return s.Width * s.Height
}

// Clone returns a copy that does not share the labels slice
func (s StreamAttributes) Clone() StreamAttributes {
	out := s
	if s.Labels != nil {
		out.Labels = append([]string(nil), s.Labels...)
	}
	return out
}
