package builtin

import (
	"math"

	"github.com/kagent-dev/pipohost/pkg/pipo"
)

// RMSName is the registry name of the root-mean-square plugin
const RMSName = "rms"

// RMS reduces each frame to its root mean square
type RMS struct {
	pipo.Base
	buf []float32
}

// NewRMS creates a root-mean-square plugin
func NewRMS() *RMS {
	r := &RMS{}
	r.Base = pipo.NewBase(r)
	return r
}

// StreamAttributes implements pipo.Receiver
func (r *RMS) StreamAttributes(attrs pipo.StreamAttributes) error {
	out := attrs.Clone()
	out.Width = 1
	out.Height = 1
	out.Labels = []string{"rms"}
	out.HasVarSize = false
	return r.PropagateStreamAttributes(out)
}

// Frames implements pipo.Receiver
func (r *RMS) Frames(time, weight float64, values []float32, size, num int) error {
	if size <= 0 || num <= 0 {
		r.SignalWarning("rms: empty frame")
		return nil
	}
	if len(values) < size*num {
		r.SignalError("rms: frame buffer shorter than size*num")
		return nil
	}
	if cap(r.buf) < num {
		r.buf = make([]float32, num)
	}
	out := r.buf[:num]
	for f := 0; f < num; f++ {
		var sum float64
		for _, v := range values[f*size : (f+1)*size] {
			sum += float64(v) * float64(v)
		}
		out[f] = float32(math.Sqrt(sum / float64(size)))
	}
	return r.PropagateFrames(time, weight, out, 1, num)
}
