package pipo

// Base provides the bookkeeping shared by most plugins: attributes, the
// downstream receiver and the parent. Embedding plugins override the stream
// methods they transform; the defaults forward everything unchanged.
type Base struct {
	self     Plugin
	attrs    *AttrSet
	receiver Receiver
	parent   Parent
}

// NewBase creates a Base for the plugin that embeds it
func NewBase(self Plugin) Base {
	return Base{
		self:  self,
		attrs: NewAttrSet(),
	}
}

// Attrs implements Plugin
func (b *Base) Attrs() *AttrSet {
	if b.attrs == nil {
		b.attrs = NewAttrSet()
	}
	return b.attrs
}

// SetReceiver implements Plugin
func (b *Base) SetReceiver(r Receiver) {
	b.receiver = r
}

// Receiver returns the downstream receiver, nil when unconnected
func (b *Base) Receiver() Receiver {
	return b.receiver
}

// SetParent implements Plugin
func (b *Base) SetParent(p Parent) {
	b.parent = p
}

// Parent returns the parent, nil when none is set
func (b *Base) Parent() Parent {
	return b.parent
}

// StreamAttributes forwards the attributes unchanged
func (b *Base) StreamAttributes(attrs StreamAttributes) error {
	return b.PropagateStreamAttributes(attrs)
}

// Frames forwards frames unchanged
func (b *Base) Frames(time, weight float64, values []float32, size, num int) error {
	return b.PropagateFrames(time, weight, values, size, num)
}

// Reset forwards the reset
func (b *Base) Reset() error {
	return b.PropagateReset()
}

// Finalize forwards the end of stream
func (b *Base) Finalize(inputEnd float64) error {
	return b.PropagateFinalize(inputEnd)
}

// Close implements Plugin
func (b *Base) Close() error {
	return nil
}

// PropagateStreamAttributes sends attrs downstream if connected
func (b *Base) PropagateStreamAttributes(attrs StreamAttributes) error {
	if b.receiver == nil {
		return nil
	}
	return b.receiver.StreamAttributes(attrs)
}

// PropagateFrames sends frames downstream if connected
func (b *Base) PropagateFrames(time, weight float64, values []float32, size, num int) error {
	if b.receiver == nil {
		return nil
	}
	return b.receiver.Frames(time, weight, values, size, num)
}

// PropagateReset sends a reset downstream if connected
func (b *Base) PropagateReset() error {
	if b.receiver == nil {
		return nil
	}
	return b.receiver.Reset()
}

// PropagateFinalize sends the end of stream downstream if connected
func (b *Base) PropagateFinalize(inputEnd float64) error {
	if b.receiver == nil {
		return nil
	}
	return b.receiver.Finalize(inputEnd)
}

// SignalError notifies the parent of an error
func (b *Base) SignalError(msg string) {
	if b.parent != nil {
		b.parent.SignalError(b.self, msg)
	}
}

// SignalWarning notifies the parent of a warning
func (b *Base) SignalWarning(msg string) {
	if b.parent != nil {
		b.parent.SignalWarning(b.self, msg)
	}
}

// AttrChanged notifies the parent that a stream-changing attribute was modified
func (b *Base) AttrChanged(a *Attr) {
	if b.parent != nil && a != nil && a.ChangesStream {
		b.parent.StreamAttributesChanged(b.self, a)
	}
}
