// Package builtin provides the plugins that are always available to a host
// without loading any library.
package builtin

import (
	"github.com/kagent-dev/pipohost/pkg/pipo"
)

// SourceBuiltin identifies creators registered by this package
const SourceBuiltin = "builtin"

// Registrar is the subset of a registry needed to install built-in creators
type Registrar interface {
	Register(name string, creator pipo.Creator, source string)
}

// Creators returns the built-in creators keyed by plugin name
func Creators() map[string]pipo.Creator {
	return map[string]pipo.Creator{
		ThruName:  pipo.CreatorFunc(func() (pipo.Plugin, error) { return NewThru(), nil }),
		ScaleName: pipo.CreatorFunc(func() (pipo.Plugin, error) { return NewScale(), nil }),
		RMSName:   pipo.CreatorFunc(func() (pipo.Plugin, error) { return NewRMS(), nil }),
	}
}

// Register installs every built-in creator and returns their names
func Register(r Registrar) []string {
	names := make([]string, 0, 3)
	for _, name := range []string{ThruName, ScaleName, RMSName} {
		r.Register(name, Creators()[name], SourceBuiltin)
		names = append(names, name)
	}
	return names
}
