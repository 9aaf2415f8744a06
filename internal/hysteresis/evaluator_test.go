package hysteresis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MacRimi/proxmon/internal/config"
	"github.com/MacRimi/proxmon/internal/types"
)

func testThreshold() config.MetricThreshold {
	return config.MetricThreshold{
		Warn: 85, Crit: 95,
		WarnDuration: 300 * time.Second, CritDuration: 300 * time.Second,
		Recover: 75, RecoverDuration: 120 * time.Second,
		MinSamples: 3,
	}
}

func TestEvaluateRequiresSustainedCritical(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	th := testThreshold()

	e := New(600 * time.Second)
	e.RecordSample("cpu", 96, base)
	e.RecordSample("cpu", 96, base.Add(100*time.Second))

	// Two breaching samples are not enough for min_samples=3
	got := e.Evaluate("cpu", th, base.Add(100*time.Second))
	assert.Equal(t, types.StatusOK, got, "two samples must not trigger CRITICAL")

	e.RecordSample("cpu", 96, base.Add(200*time.Second))
	got = e.Evaluate("cpu", th, base.Add(200*time.Second))
	assert.Equal(t, types.StatusCritical, got, "three sustained samples must trigger CRITICAL")
}

func TestEvaluateWarningPath(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	th := testThreshold()

	e := New(600 * time.Second)
	for i := 0; i < 3; i++ {
		e.RecordSample("cpu", 88, base.Add(time.Duration(i)*60*time.Second))
	}

	got := e.Evaluate("cpu", th, base.Add(120*time.Second))
	assert.Equal(t, types.StatusWarning, got)
}

func TestEvaluateRecoveryGatesWarning(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	th := testThreshold()

	e := New(600 * time.Second)
	// Three warn-level samples early in the window...
	for i := 0; i < 3; i++ {
		e.RecordSample("cpu", 88, base.Add(time.Duration(i)*30*time.Second))
	}
	// ...followed by two recovery samples below the recover threshold.
	e.RecordSample("cpu", 60, base.Add(100*time.Second))
	e.RecordSample("cpu", 55, base.Add(130*time.Second))

	got := e.Evaluate("cpu", th, base.Add(130*time.Second))
	assert.Equal(t, types.StatusOK, got, "two recovery samples must clear the warning")
}

func TestEvaluateCriticalBeatsRecovery(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	th := testThreshold()

	e := New(600 * time.Second)
	for i := 0; i < 3; i++ {
		e.RecordSample("cpu", 97, base.Add(time.Duration(i)*30*time.Second))
	}
	e.RecordSample("cpu", 50, base.Add(100*time.Second))
	e.RecordSample("cpu", 50, base.Add(110*time.Second))

	// Recovery samples do not gate the CRITICAL branch.
	got := e.Evaluate("cpu", th, base.Add(110*time.Second))
	assert.Equal(t, types.StatusCritical, got)
}

func TestEvaluateIgnoresStaleSamples(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	th := testThreshold()

	e := New(600 * time.Second)
	e.RecordSample("cpu", 97, base)
	e.RecordSample("cpu", 97, base.Add(30*time.Second))
	e.RecordSample("cpu", 97, base.Add(60*time.Second))

	// Ten minutes later the breaching samples are outside both the crit
	// duration and the retention window.
	got := e.Evaluate("cpu", th, base.Add(700*time.Second))
	assert.Equal(t, types.StatusOK, got)
	assert.Empty(t, e.Snapshot("cpu"), "stale samples should be pruned")
}

func TestEvaluateIndependentMetricKeys(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	th := testThreshold()

	e := New(600 * time.Second)
	for i := 0; i < 3; i++ {
		e.RecordSample("cpu", 97, base.Add(time.Duration(i)*30*time.Second))
	}

	assert.Equal(t, types.StatusCritical, e.Evaluate("cpu", th, base.Add(60*time.Second)))
	assert.Equal(t, types.StatusOK, e.Evaluate("memory", th, base.Add(60*time.Second)))
}

func TestPruneDropsEmptyWindows(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	e := New(600 * time.Second)
	e.RecordSample("cpu", 50, base)
	e.RecordSample("memory", 50, base.Add(500*time.Second))

	e.Prune(base.Add(700 * time.Second))
	assert.Empty(t, e.Snapshot("cpu"))
	assert.Len(t, e.Snapshot("memory"), 1)
}

func TestMinSamplesDefaultsToThree(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	th := testThreshold()
	th.MinSamples = 0 // zero-value config falls back to 3

	e := New(600 * time.Second)
	e.RecordSample("cpu", 97, base)
	e.RecordSample("cpu", 97, base.Add(30*time.Second))
	assert.Equal(t, types.StatusOK, e.Evaluate("cpu", th, base.Add(30*time.Second)))

	e.RecordSample("cpu", 97, base.Add(60*time.Second))
	assert.Equal(t, types.StatusCritical, e.Evaluate("cpu", th, base.Add(60*time.Second)))
}
