package deduplication

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager() (*Manager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager()
	m.now = clock.Now
	return m, clock
}

var emptyFrame = Diagnostic{Severity: SeverityWarning, Source: "*builtin.RMS", Message: "rms: empty frame"}

func TestNewManager(t *testing.T) {
	manager := NewManager()
	assert.NotNil(t, manager)
	assert.NotNil(t, manager.chains)
	assert.Equal(t, 0, manager.GetDiagnosticCount())
}

func TestDiagnosticKey(t *testing.T) {
	manager := NewManager()
	assert.Equal(t, "warning:*builtin.RMS:rms: empty frame", manager.diagnosticKey(emptyFrame))
}

func TestShouldReport_NewDiagnostic(t *testing.T) {
	manager, _ := newTestManager()
	assert.True(t, manager.ShouldReport("rms", emptyFrame))
}

func TestShouldReport_SuppressedAfterReport(t *testing.T) {
	manager, clock := newTestManager()

	assert.Equal(t, 1, manager.RecordDiagnostic("rms", emptyFrame))
	manager.MarkReported("rms", emptyFrame)

	clock.Advance(time.Second)
	assert.False(t, manager.ShouldReport("rms", emptyFrame))
	assert.Equal(t, 2, manager.RecordDiagnostic("rms", emptyFrame))

	clock.Advance(ReportSuppressionDuration)
	assert.True(t, manager.ShouldReport("rms", emptyFrame), "reported again once the window has passed")
}

func TestShouldReport_UnreportedDiagnostic(t *testing.T) {
	manager, _ := newTestManager()

	manager.RecordDiagnostic("rms", emptyFrame)
	assert.True(t, manager.ShouldReport("rms", emptyFrame))
}

func TestShouldReport_PerChainAndKey(t *testing.T) {
	manager, _ := newTestManager()
	manager.RecordDiagnostic("rms", emptyFrame)
	manager.MarkReported("rms", emptyFrame)

	assert.True(t, manager.ShouldReport("thru:rms", emptyFrame))
	other := emptyFrame
	other.Severity = SeverityError
	assert.True(t, manager.ShouldReport("rms", other))
}

func TestRecordDiagnostic_ExpiredStartsOver(t *testing.T) {
	manager, clock := newTestManager()

	manager.RecordDiagnostic("rms", emptyFrame)
	manager.RecordDiagnostic("rms", emptyFrame)
	manager.MarkReported("rms", emptyFrame)

	clock.Advance(DiagnosticTimeoutDuration + time.Second)
	assert.True(t, manager.ShouldReport("rms", emptyFrame))
	assert.Equal(t, 1, manager.RecordDiagnostic("rms", emptyFrame))

	active := manager.GetActiveDiagnostics("rms")
	require.Len(t, active, 1)
	assert.Nil(t, active[0].LastReportedAt)
	assert.Equal(t, clock.now, active[0].FirstSeen)
}

func TestCleanupExpired(t *testing.T) {
	manager, clock := newTestManager()

	manager.RecordDiagnostic("rms", emptyFrame)
	clock.Advance(DiagnosticTimeoutDuration / 2)
	short := Diagnostic{Severity: SeverityError, Source: "*builtin.RMS", Message: "rms: frame buffer shorter than size*num"}
	manager.RecordDiagnostic("rms", short)

	clock.Advance(DiagnosticTimeoutDuration/2 + time.Second)
	assert.Equal(t, 1, manager.CleanupExpired("rms"))
	active := manager.GetActiveDiagnostics("rms")
	require.Len(t, active, 1)
	assert.Equal(t, short.Message, active[0].Message)

	clock.Advance(DiagnosticTimeoutDuration)
	assert.Equal(t, 1, manager.CleanupExpired("rms"))
	assert.Equal(t, 0, manager.GetDiagnosticCount())
	assert.Equal(t, 0, manager.CleanupExpired("missing"))
}

func TestGetActiveDiagnostics(t *testing.T) {
	manager, clock := newTestManager()

	assert.Empty(t, manager.GetActiveDiagnostics("rms"))

	manager.RecordDiagnostic("rms", emptyFrame)
	clock.Advance(time.Second)
	second := Diagnostic{Severity: SeverityWarning, Source: "*builtin.Scale", Message: "clipping"}
	manager.RecordDiagnostic("rms", second)
	manager.RecordDiagnostic("rms", second)

	active := manager.GetActiveDiagnostics("rms")
	require.Len(t, active, 2)
	assert.Equal(t, emptyFrame.Message, active[0].Message)
	assert.Equal(t, 2, active[1].Count)
	assert.Equal(t, StatusActive, active[1].Status)

	// copies must not alias internal state
	active[1].Count = 100
	assert.Equal(t, 2, manager.GetActiveDiagnostics("rms")[1].Count)

	clock.Advance(DiagnosticTimeoutDuration + time.Second)
	for _, d := range manager.GetActiveDiagnostics("rms") {
		assert.Equal(t, StatusResolved, d.Status)
	}
}

func TestForget(t *testing.T) {
	manager, _ := newTestManager()
	manager.RecordDiagnostic("rms", emptyFrame)
	manager.RecordDiagnostic("thru", emptyFrame)

	manager.Forget("rms")
	assert.Empty(t, manager.GetActiveDiagnostics("rms"))
	assert.Equal(t, 1, manager.GetDiagnosticCount())
}

func TestConcurrentRecording(t *testing.T) {
	manager := NewManager()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d := Diagnostic{Severity: SeverityWarning, Source: "plugin", Message: fmt.Sprintf("warning-%d", id%3)}
			for j := 0; j < 20; j++ {
				if manager.ShouldReport("chain", d) {
					manager.MarkReported("chain", d)
				}
				manager.RecordDiagnostic("chain", d)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, d := range manager.GetActiveDiagnostics("chain") {
		total += d.Count
	}
	assert.Equal(t, 200, total)
	assert.Equal(t, 3, manager.GetDiagnosticCount())
}
