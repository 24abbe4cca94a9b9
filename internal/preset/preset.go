// Package preset loads named chain presets and registers each of them as a
// plugin that expands to its chain.
package preset

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"ocm.software/open-component-model/bindings/go/dag"
	"sigs.k8s.io/yaml"

	"github.com/kagent-dev/pipohost/api/v1alpha1"
	"github.com/kagent-dev/pipohost/internal/chain"
	perrors "github.com/kagent-dev/pipohost/internal/errors"
	"github.com/kagent-dev/pipohost/internal/registry"
	"github.com/kagent-dev/pipohost/pkg/pipo"
)

// ErrPresetCycle is returned for presets that reference themselves, directly
// or through other presets
var ErrPresetCycle = errors.New("preset references itself")

// Registry is where presets are registered and instantiate their stages from
type Registry interface {
	chain.Instantiator
	Register(name string, creator pipo.Creator, source string)
}

// Loader holds the presets read from manifests
type Loader struct {
	logger  logr.Logger
	presets map[string]*v1alpha1.ChainPreset
	order   []string
}

// NewLoader creates an empty preset loader
func NewLoader(logger logr.Logger) *Loader {
	return &Loader{
		logger:  logger,
		presets: make(map[string]*v1alpha1.ChainPreset),
	}
}

// Load replaces the loaded presets with those of a ChainPresetList manifest.
// Invalid presets are logged and skipped.
func (l *Loader) Load(filePath string) error {
	l.logger.Info("Loading chain presets", "file", filePath)

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read preset file %s: %w", filePath, err)
	}

	var list v1alpha1.ChainPresetList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to parse preset file %s: %w", filePath, err)
	}

	if list.APIVersion != "" && list.APIVersion != v1alpha1.GroupVersion.String() {
		return fmt.Errorf("preset file %s: unsupported apiVersion %s", filePath, list.APIVersion)
	}
	if list.Kind != "" && list.Kind != v1alpha1.ChainPresetListKind {
		return fmt.Errorf("preset file %s: unexpected kind %s", filePath, list.Kind)
	}

	l.presets = make(map[string]*v1alpha1.ChainPreset)
	l.order = nil

	for i := range list.Items {
		p := &list.Items[i]
		if err := l.Add(p); err != nil {
			l.logger.Error(err, "Invalid chain preset", "name", p.Name)
			continue
		}
	}

	l.logger.Info("Successfully loaded chain presets", "count", len(l.presets), "file", filePath)
	return nil
}

// Add validates a preset and adds it, replacing one with the same name
func (l *Loader) Add(p *v1alpha1.ChainPreset) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := chain.Parse(p.Spec.Chain); err != nil {
		return fmt.Errorf("preset %s: %w", p.Name, err)
	}

	if _, exists := l.presets[p.Name]; exists {
		l.logger.Info("Replacing chain preset", "name", p.Name)
	} else {
		l.order = append(l.order, p.Name)
	}
	l.presets[p.Name] = p.DeepCopy()

	l.logger.V(1).Info("Loaded chain preset", "name", p.Name, "chain", p.Spec.Chain)
	return nil
}

// Get returns the preset with the given name
func (l *Loader) Get(name string) (*v1alpha1.ChainPreset, bool) {
	p, ok := l.presets[name]
	return p, ok
}

// Presets returns the loaded presets in load order
func (l *Loader) Presets() []*v1alpha1.ChainPreset {
	out := make([]*v1alpha1.ChainPreset, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.presets[name])
	}
	return out
}

// Register registers every preset that does not reference itself. The
// returned error collects the rejected presets.
func (l *Loader) Register(reg Registry) ([]string, error) {
	graph := dag.NewDirectedAcyclicGraph[string]()
	for _, name := range l.order {
		if err := graph.AddVertex(name); err != nil {
			return nil, fmt.Errorf("failed to build preset graph: %w", err)
		}
	}

	errs := perrors.NewFailures("preset registration")
	var names []string

	for _, name := range l.order {
		p := l.presets[name]
		if err := l.addEdges(graph, p); err != nil {
			l.logger.Error(err, "Skipping chain preset", "name", name)
			errs.Add(name, err)
			continue
		}

		reg.Register(name, &creator{
			name:   name,
			spec:   p.Spec.Chain,
			source: reg,
			logger: l.logger,
		}, registry.SourcePreset)
		names = append(names, name)
	}

	return names, errs.Err()
}

// addEdges links a preset to the presets its chain uses
func (l *Loader) addEdges(graph *dag.DirectedAcyclicGraph[string], p *v1alpha1.ChainPreset) error {
	stages, err := chain.Parse(p.Spec.Chain)
	if err != nil {
		return fmt.Errorf("preset %s: %w", p.Name, err)
	}
	from := graph.Vertices[p.Name]
	var added []string
	for _, st := range stages {
		if _, isPreset := l.presets[st.Name]; !isPreset {
			continue
		}
		_, existed := from.Edges[st.Name]
		if err := graph.AddEdge(p.Name, st.Name); err != nil {
			removeEdges(graph, p.Name, added)
			return fmt.Errorf("%w: %s uses %s: %v", ErrPresetCycle, p.Name, st.Name, err)
		}
		if !existed {
			added = append(added, st.Name)
		}
	}
	return nil
}

// removeEdges drops the edges of a rejected preset so they cannot reject
// presets registered after it
func removeEdges(graph *dag.DirectedAcyclicGraph[string], from string, to []string) {
	v := graph.Vertices[from]
	for _, name := range to {
		delete(v.Edges, name)
		v.OutDegree--
		graph.Vertices[name].InDegree--
	}
}

// creator builds a fresh chain for its preset on every call
type creator struct {
	name   string
	spec   string
	source chain.Instantiator
	logger logr.Logger
}

func (c *creator) Create() (pipo.Plugin, error) {
	ch, err := chain.NewResolver(c.source, c.logger).Create(c.spec)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", c.name, err)
	}
	return ch, nil
}
