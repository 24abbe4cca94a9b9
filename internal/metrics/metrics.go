// Package metrics exposes Prometheus collectors for plugin registration,
// library loading and chain assembly.
package metrics

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	// SourceLibrary replaces library paths in the source label
	SourceLibrary = "library"
)

// Metrics holds the collectors of one collection. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registrations *prometheus.CounterVec
	creators      prometheus.Gauge
	instances     prometheus.Gauge
	libraries     *prometheus.GaugeVec
	loads         *prometheus.CounterVec
	chains        *prometheus.CounterVec
	chainLength   prometheus.Histogram
}

// New creates the collectors without registering them
func New() *Metrics {
	return &Metrics{
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipo_registrations_total",
				Help: "Total number of creator registrations by source",
			},
			[]string{"source"},
		),
		creators: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipo_registry_creators",
				Help: "Number of creators currently registered",
			},
		),
		instances: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipo_outstanding_instances",
				Help: "Number of plugin instances issued by the registry and not yet released",
			},
		),
		libraries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipo_libraries_loaded",
				Help: "Number of shared libraries held open, by whether they registered a plugin",
			},
			[]string{"state"},
		),
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipo_library_loads_total",
				Help: "Total number of library load attempts by result",
			},
			[]string{"result"},
		),
		chains: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipo_chains_created_total",
				Help: "Total number of chain creations by result",
			},
			[]string{"result"},
		),
		chainLength: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pipo_chain_length",
				Help:    "Number of plugin instances in successfully created chains",
				Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
			},
		),
	}
}

// Register registers every collector with r
func (m *Metrics) Register(r prometheus.Registerer) error {
	return errors.Join(
		r.Register(m.registrations),
		r.Register(m.creators),
		r.Register(m.instances),
		r.Register(m.libraries),
		r.Register(m.loads),
		r.Register(m.chains),
		r.Register(m.chainLength),
	)
}

// MustRegister registers every collector with r and panics on failure
func (m *Metrics) MustRegister(r prometheus.Registerer) {
	if err := m.Register(r); err != nil {
		panic(err)
	}
}

// RecordRegistration counts a creator registration
func (m *Metrics) RecordRegistration(source string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(sourceLabel(source)).Inc()
}

func sourceLabel(source string) string {
	if strings.ContainsRune(source, filepath.Separator) || filepath.Ext(source) != "" {
		return SourceLibrary
	}
	return source
}

// SetCreators sets the number of registered creators
func (m *Metrics) SetCreators(n int) {
	if m == nil {
		return
	}
	m.creators.Set(float64(n))
}

// InstanceCreated increments the outstanding instance gauge
func (m *Metrics) InstanceCreated() {
	if m == nil {
		return
	}
	m.instances.Inc()
}

// InstanceReleased decrements the outstanding instance gauge
func (m *Metrics) InstanceReleased() {
	if m == nil {
		return
	}
	m.instances.Dec()
}

// RecordLoad counts a library load attempt
func (m *Metrics) RecordLoad(success bool) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(result(success)).Inc()
}

// SetLibraries sets the number of retained libraries
func (m *Metrics) SetLibraries(used, unused int) {
	if m == nil {
		return
	}
	m.libraries.WithLabelValues("used").Set(float64(used))
	m.libraries.WithLabelValues("unused").Set(float64(unused))
}

// RecordChain counts a chain creation and observes its length on success
func (m *Metrics) RecordChain(length int, success bool) {
	if m == nil {
		return
	}
	m.chains.WithLabelValues(result(success)).Inc()
	if success {
		m.chainLength.Observe(float64(length))
	}
}

func result(success bool) string {
	if success {
		return ResultSuccess
	}
	return ResultFailure
}
