package deduplication

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	// DiagnosticTimeoutDuration is the duration after which a diagnostic is considered resolved
	DiagnosticTimeoutDuration = time.Minute
	// ReportSuppressionDuration is the window during which a reported diagnostic is not reported again
	ReportSuppressionDuration = 10 * time.Second

	// StatusActive indicates a diagnostic is still being signalled
	StatusActive = "active"

	// StatusResolved indicates a diagnostic has not been seen for a while
	StatusResolved = "resolved"

	// SeverityWarning and SeverityError classify diagnostics
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Diagnostic is one warning or error signalled by a plugin
type Diagnostic struct {
	Severity string
	Source   string
	Message  string
}

// ActiveDiagnostic tracks the occurrences of one diagnostic
type ActiveDiagnostic struct {
	Severity       string
	Source         string
	Message        string
	FirstSeen      time.Time
	LastSeen       time.Time
	Count          int
	LastReportedAt *time.Time
	Status         string
}

// Manager suppresses repeated plugin diagnostics per chain with in-memory storage
type Manager struct {
	// chains maps chain specifications to their active diagnostics
	// chain -> diagnosticKey -> ActiveDiagnostic
	chains map[string]map[string]*ActiveDiagnostic
	mutex  sync.RWMutex
	now    func() time.Time
}

// NewManager creates a new Manager instance
func NewManager() *Manager {
	return &Manager{
		chains: make(map[string]map[string]*ActiveDiagnostic),
		now:    time.Now,
	}
}

// diagnosticKey generates a unique key for a diagnostic
func (m *Manager) diagnosticKey(d Diagnostic) string {
	return fmt.Sprintf("%s:%s:%s", d.Severity, d.Source, d.Message)
}

// ShouldReport determines if a diagnostic should be logged
func (m *Manager) ShouldReport(chain string, d Diagnostic) bool {
	logger := log.Log.WithName("dedup").WithValues("chain", chain, "severity", d.Severity, "source", d.Source)
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	active, exists := m.chains[chain][m.diagnosticKey(d)]
	if !exists {
		return true
	}

	now := m.now()
	if now.Sub(active.LastSeen) > DiagnosticTimeoutDuration {
		logger.V(1).Info("Diagnostic expired; will report as new", "lastSeen", active.LastSeen)
		return true
	}

	if active.LastReportedAt != nil && now.Sub(*active.LastReportedAt) < ReportSuppressionDuration {
		logger.V(2).Info("Within report suppression window; will ignore", "lastReportedAt", *active.LastReportedAt)
		return false
	}

	return true
}

// RecordDiagnostic records an occurrence and returns how often the
// diagnostic has been seen since it became active
func (m *Manager) RecordDiagnostic(chain string, d Diagnostic) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.chains[chain] == nil {
		m.chains[chain] = make(map[string]*ActiveDiagnostic)
	}

	key := m.diagnosticKey(d)
	now := m.now()

	if existing, exists := m.chains[chain][key]; exists && now.Sub(existing.LastSeen) <= DiagnosticTimeoutDuration {
		existing.LastSeen = now
		existing.Count++
		existing.Status = StatusActive
		return existing.Count
	}

	m.chains[chain][key] = &ActiveDiagnostic{
		Severity:  d.Severity,
		Source:    d.Source,
		Message:   d.Message,
		FirstSeen: now,
		LastSeen:  now,
		Count:     1,
		Status:    StatusActive,
	}
	return 1
}

// MarkReported marks that the diagnostic was logged now
func (m *Manager) MarkReported(chain string, d Diagnostic) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if active, ok := m.chains[chain][m.diagnosticKey(d)]; ok {
		now := m.now()
		active.LastReportedAt = &now
	}
}

// CleanupExpired removes diagnostics of chain not seen within the timeout
// and returns how many were removed
func (m *Manager) CleanupExpired(chain string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	diagnostics, exists := m.chains[chain]
	if !exists {
		return 0
	}

	now := m.now()
	removed := 0
	for key, active := range diagnostics {
		if now.Sub(active.LastSeen) > DiagnosticTimeoutDuration {
			delete(diagnostics, key)
			removed++
		}
	}

	if len(diagnostics) == 0 {
		delete(m.chains, chain)
	}

	return removed
}

// Forget drops every diagnostic of chain
func (m *Manager) Forget(chain string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.chains, chain)
}

// GetActiveDiagnostics returns copies of the diagnostics of chain, oldest first
func (m *Manager) GetActiveDiagnostics(chain string) []ActiveDiagnostic {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	diagnostics, exists := m.chains[chain]
	if !exists {
		return []ActiveDiagnostic{}
	}

	now := m.now()
	out := make([]ActiveDiagnostic, 0, len(diagnostics))
	for _, active := range diagnostics {
		// Copy to avoid returning pointers to internal data
		c := *active
		if now.Sub(active.LastSeen) > DiagnosticTimeoutDuration {
			c.Status = StatusResolved
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].Message < out[j].Message
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	return out
}

// GetDiagnosticCount returns the number of tracked diagnostics across all chains
func (m *Manager) GetDiagnosticCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	count := 0
	for _, diagnostics := range m.chains {
		count += len(diagnostics)
	}
	return count
}
