// Package host runs one chain at a time: it feeds the chain with input frames
// described by the host's input stream attributes and collects what comes out
// of the last plugin.
package host

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/kagent-dev/pipohost/internal/deduplication"
	"github.com/kagent-dev/pipohost/pkg/pipo"
)

// ErrNoChain is returned by stream operations while no chain is set
var ErrNoChain = errors.New("no chain is set")

// ChainFactory creates chains from specifications
type ChainFactory interface {
	Create(spec string) (pipo.Plugin, error)
}

// FrameFunc is called with every frame leaving the chain. The frame is only
// valid during the call.
type FrameFunc func(time float64, frame []float32)

// Host owns the current chain. It is not safe for concurrent use.
type Host struct {
	logger  logr.Logger
	factory ChainFactory

	chain pipo.Plugin
	spec  string
	out   *outputter

	input  pipo.StreamAttributes
	output pipo.StreamAttributes

	onFrame   FrameFunc
	lastFrame []float32
	lastErr   error

	// diagnostics are keyed per chain generation; pending keys the chain being
	// set until it replaces the current one
	diagnostics *deduplication.Manager
	generation  uint64
	diagKey     string
	pending     *pendingChain
}

type pendingChain struct {
	spec string
	key  string
}

var _ pipo.Parent = (*Host)(nil)

// New creates a host without a chain
func New(factory ChainFactory, logger logr.Logger) *Host {
	h := &Host{
		logger:  logger,
		factory: factory,
		input:   pipo.DefaultStreamAttributes(),
		output:  pipo.DefaultStreamAttributes(),

		diagnostics: deduplication.NewManager(),
	}
	h.out = &outputter{host: h}
	return h
}

// SetChain replaces the current chain with the one described by spec and
// sends it the input stream attributes. On failure the previous chain is
// kept.
func (h *Host) SetChain(spec string) (pipo.Plugin, error) {
	p, err := h.factory.Create(spec)
	if err != nil {
		h.lastErr = err
		return nil, fmt.Errorf("failed to create chain %q: %w", spec, err)
	}

	h.generation++
	key := fmt.Sprintf("%d/%s", h.generation, spec)

	p.SetParent(h)
	p.SetReceiver(h.out)
	h.pending = &pendingChain{spec: spec, key: key}
	err = p.StreamAttributes(h.input.Clone())
	h.pending = nil
	if err != nil {
		h.diagnostics.Forget(key)
		if cerr := p.Close(); cerr != nil {
			h.logger.Error(cerr, "Failed to close rejected chain", "spec", spec)
		}
		h.lastErr = err
		return nil, fmt.Errorf("chain %q rejected the input stream: %w", spec, err)
	}

	if err := h.ClearChain(); err != nil {
		h.logger.Error(err, "Failed to close previous chain", "spec", h.spec)
	}
	h.chain = p
	h.spec = spec
	h.diagKey = key
	h.logger.Info("Chain set", "spec", spec)
	return p, nil
}

// ClearChain closes the current chain, if any
func (h *Host) ClearChain() error {
	if h.chain == nil {
		return nil
	}
	p := h.chain
	h.diagnostics.Forget(h.diagKey)
	h.chain = nil
	h.spec = ""
	h.diagKey = ""
	h.lastFrame = nil
	return p.Close()
}

// Chain returns the current chain, nil when none is set
func (h *Host) Chain() pipo.Plugin {
	return h.chain
}

// Spec returns the specification of the current chain
func (h *Host) Spec() string {
	return h.spec
}

// PropagateInputAttributes sends the input stream attributes through the chain
func (h *Host) PropagateInputAttributes() error {
	if h.chain == nil {
		return nil
	}
	return h.chain.StreamAttributes(h.input.Clone())
}

func (h *Host) changed(propagate bool) error {
	if !propagate {
		return nil
	}
	return h.PropagateInputAttributes()
}

// SetInputDims sets the frame width and height
func (h *Host) SetInputDims(width, height int, propagate bool) error {
	if width < 1 || height < 1 {
		return fmt.Errorf("invalid input dimensions %dx%d", width, height)
	}
	h.input.Width = width
	h.input.Height = height
	return h.changed(propagate)
}

// SetInputHasTimeTags sets whether input frames carry their own time tags
func (h *Host) SetInputHasTimeTags(hasTimeTags bool, propagate bool) error {
	h.input.HasTimeTags = hasTimeTags
	return h.changed(propagate)
}

// SetInputFrameRate sets the input frame rate in Hz
func (h *Host) SetInputFrameRate(rate float64, propagate bool) error {
	if rate <= 0 {
		return fmt.Errorf("invalid input frame rate %g", rate)
	}
	h.input.Rate = rate
	return h.changed(propagate)
}

// SetInputFrameOffset sets the time offset of the input in milliseconds
func (h *Host) SetInputFrameOffset(offset float64, propagate bool) error {
	h.input.Offset = offset
	return h.changed(propagate)
}

// SetInputMaxFrames sets the maximum number of frames per call
func (h *Host) SetInputMaxFrames(maxFrames int, propagate bool) error {
	if maxFrames < 1 {
		return fmt.Errorf("invalid input max frames %d", maxFrames)
	}
	h.input.MaxFrames = maxFrames
	return h.changed(propagate)
}

// SetInputLabels names the input columns
func (h *Host) SetInputLabels(labels []string, propagate bool) error {
	h.input.Labels = append([]string(nil), labels...)
	return h.changed(propagate)
}

// Input returns the input stream attributes
func (h *Host) Input() pipo.StreamAttributes {
	return h.input.Clone()
}

// Output returns the stream attributes announced by the last plugin
func (h *Host) Output() pipo.StreamAttributes {
	return h.output.Clone()
}

// SetAttr sets a chain attribute by its qualified name, such as
// "scale.factor". Attributes that change the stream re-propagate the input
// attributes.
func (h *Host) SetAttr(name string, values ...string) error {
	if h.chain == nil {
		return ErrNoChain
	}
	if err := h.chain.Attrs().Set(name, values...); err != nil {
		return err
	}
	if a, ok := h.chain.Attrs().Get(name); ok && a.ChangesStream {
		return h.PropagateInputAttributes()
	}
	return nil
}

// Frames sends num frames of the input size into the chain
func (h *Host) Frames(time, weight float64, values []float32, num int) error {
	if h.chain == nil {
		return ErrNoChain
	}
	return h.chain.Frames(time, weight, values, h.input.Size(), num)
}

// Reset resets the chain
func (h *Host) Reset() error {
	if h.chain == nil {
		return ErrNoChain
	}
	return h.chain.Reset()
}

// Finalize signals the end of the input
func (h *Host) Finalize(inputEnd float64) error {
	if h.chain == nil {
		return ErrNoChain
	}
	return h.chain.Finalize(inputEnd)
}

// OnFrame sets the callback receiving output frames
func (h *Host) OnFrame(cb FrameFunc) {
	h.onFrame = cb
}

// LastFrame returns a copy of the last output frame
func (h *Host) LastFrame() []float32 {
	return append([]float32(nil), h.lastFrame...)
}

// LastError returns the last error signalled by a plugin or chain creation
func (h *Host) LastError() error {
	return h.lastErr
}

// StreamAttributesChanged implements pipo.Parent
func (h *Host) StreamAttributesChanged(p pipo.Plugin, attr *pipo.Attr) {
	h.logger.V(1).Info("Stream attributes changed", "attribute", attr.Name)
	if err := h.PropagateInputAttributes(); err != nil {
		h.lastErr = err
		h.logger.Error(err, "Failed to propagate input attributes")
	}
}

// SignalError implements pipo.Parent. Repeated errors are logged once per
// suppression window but always retained as LastError.
func (h *Host) SignalError(p pipo.Plugin, msg string) {
	h.lastErr = errors.New(msg)
	d := deduplication.Diagnostic{Severity: deduplication.SeverityError, Source: fmt.Sprintf("%T", p), Message: msg}
	if n, report := h.diagnose(d); report {
		h.logger.Error(h.lastErr, "Plugin error", "spec", h.signallingSpec(), "plugin", d.Source, "occurrences", n)
	}
}

// SignalWarning implements pipo.Parent
func (h *Host) SignalWarning(p pipo.Plugin, msg string) {
	d := deduplication.Diagnostic{Severity: deduplication.SeverityWarning, Source: fmt.Sprintf("%T", p), Message: msg}
	if n, report := h.diagnose(d); report {
		h.logger.Info("Plugin warning", "spec", h.signallingSpec(), "plugin", d.Source, "warning", msg, "occurrences", n)
	}
}

// signallingSpec is the spec of the chain a signal is attributed to
func (h *Host) signallingSpec() string {
	if h.pending != nil {
		return h.pending.spec
	}
	return h.spec
}

func (h *Host) diagnose(d deduplication.Diagnostic) (int, bool) {
	key := h.diagKey
	if h.pending != nil {
		key = h.pending.key
	}
	report := h.diagnostics.ShouldReport(key, d)
	n := h.diagnostics.RecordDiagnostic(key, d)
	if report {
		h.diagnostics.MarkReported(key, d)
	}
	return n, report
}

// Diagnostics returns the warnings and errors signalled by the current chain
func (h *Host) Diagnostics() []deduplication.ActiveDiagnostic {
	h.diagnostics.CleanupExpired(h.diagKey)
	return h.diagnostics.GetActiveDiagnostics(h.diagKey)
}

// outputter is the receiver of the last plugin
type outputter struct {
	host *Host
}

func (o *outputter) StreamAttributes(attrs pipo.StreamAttributes) error {
	o.host.output = attrs.Clone()
	return nil
}

func (o *outputter) Frames(time, weight float64, values []float32, size, num int) error {
	if size <= 0 || num <= 0 {
		return nil
	}
	period := 0.0
	if o.host.output.Rate > 0 {
		period = 1000.0 / o.host.output.Rate
	}
	for f := 0; f < num && (f+1)*size <= len(values); f++ {
		frame := values[f*size : (f+1)*size]
		o.host.lastFrame = append(o.host.lastFrame[:0], frame...)
		if o.host.onFrame != nil {
			o.host.onFrame(time+float64(f)*period, o.host.lastFrame)
		}
	}
	return nil
}

func (o *outputter) Reset() error {
	o.host.lastFrame = nil
	return nil
}

func (o *outputter) Finalize(inputEnd float64) error {
	return nil
}
