package builtin

import "github.com/kagent-dev/pipohost/pkg/pipo"

// ScaleName is the registry name of the scaling plugin
const ScaleName = "scale"

// Scale multiplies every value by factor and adds offset
type Scale struct {
	pipo.Base
	factor *pipo.Attr
	offset *pipo.Attr
	buf    []float32
}

// NewScale creates a scaling plugin with factor 1 and offset 0
func NewScale() *Scale {
	s := &Scale{
		factor: pipo.NewAttr("factor", "multiplier applied to every value", pipo.AttrFloat, "1"),
		offset: pipo.NewAttr("offset", "value added after scaling", pipo.AttrFloat, "0"),
	}
	s.Base = pipo.NewBase(s)
	s.Attrs().Add(s.factor, s.offset)
	return s
}

// Frames implements pipo.Receiver
func (s *Scale) Frames(time, weight float64, values []float32, size, num int) error {
	if cap(s.buf) < len(values) {
		s.buf = make([]float32, len(values))
	}
	out := s.buf[:len(values)]
	factor := float32(s.factor.Float(0))
	offset := float32(s.offset.Float(0))
	for i, v := range values {
		out[i] = v*factor + offset
	}
	return s.PropagateFrames(time, weight, out, size, num)
}
