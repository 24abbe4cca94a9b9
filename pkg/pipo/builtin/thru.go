package builtin

import "github.com/kagent-dev/pipohost/pkg/pipo"

// ThruName is the registry name of the pass-through plugin
const ThruName = "thru"

// Thru forwards its input unchanged
type Thru struct {
	pipo.Base
}

// NewThru creates a pass-through plugin
func NewThru() *Thru {
	t := &Thru{}
	t.Base = pipo.NewBase(t)
	return t
}
