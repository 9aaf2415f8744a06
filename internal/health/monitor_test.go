package health

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MacRimi/proxmon/internal/config"
	"github.com/MacRimi/proxmon/internal/probe"
	"github.com/MacRimi/proxmon/internal/storage"
	"github.com/MacRimi/proxmon/internal/types"
)

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time {
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestMonitor wires a monitor to an in-memory store and a pinned clock.
func newTestMonitor(t *testing.T, provider probe.Provider) (*Monitor, *testClock) {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = ":memory:"

	store, err := storage.NewStore(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := New(cfg, provider, store, discardLogger())
	clk := &testClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m.SetClock(clk.now)
	return m, clk
}

func healthyProvider() *probe.StaticProvider {
	return &probe.StaticProvider{
		CPUStats:    probe.CPUStats{UsagePercent: 12, Load1: 0.4},
		MemoryStats: probe.MemoryStats{Total: 16 << 30, Available: 10 << 30},
	}
}

func TestDetailedStatusAllCategoriesPresent(t *testing.T) {
	// Every probe fails. The breakdown must still contain every category,
	// each degraded to UNKNOWN, and the evaluation itself must not fail.
	errs := make(map[string]error)
	for _, name := range []string{
		"cpu", "memory", "temperature", "filesystems", "zfs", "lvm",
		"storages", "vms", "interfaces", "latency", "logs", "units",
		"updates", "certificates", "logins",
	} {
		errs[name] = fmt.Errorf("probe offline")
	}
	m := New(nil, &probe.StaticProvider{Errs: errs}, nil, discardLogger())

	detailed, err := m.GetDetailedStatus(context.Background())
	require.NoError(t, err)

	assert.Len(t, detailed.Details, len(Categories))
	for _, category := range Categories {
		result, ok := detailed.Details[category]
		require.True(t, ok, "category %s missing from breakdown", category)
		assert.Equal(t, types.StatusUnknown, result.Status, "category %s", category)
		assert.Contains(t, result.Reason, "check failed")
	}
}

func TestHealthyHostReportsOK(t *testing.T) {
	m, _ := newTestMonitor(t, healthyProvider())

	overall, err := m.GetOverallStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusOK, overall.Status)
	assert.Equal(t, "all checks passed", overall.Summary)
	assert.Equal(t, 0, overall.CriticalCount)
	assert.Equal(t, 0, overall.WarningCount)
	assert.Equal(t, len(Categories), overall.OKCount)
}

func TestOverallMergeCriticalWins(t *testing.T) {
	provider := healthyProvider()
	provider.Units = []probe.UnitState{
		{Unit: "pveproxy", Active: false, State: "failed"},
	}
	provider.Links = []probe.Interface{
		{Name: "vmbr0", Up: false},
	}
	m, _ := newTestMonitor(t, provider)

	overall, err := m.GetOverallStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusCritical, overall.Status)
	assert.Equal(t, 1, overall.CriticalCount)
	assert.Equal(t, 1, overall.WarningCount)
	assert.Contains(t, overall.Summary, "pveproxy")
	assert.NotContains(t, overall.Summary, "vmbr0", "summary reports the critical tier only")
}

func TestFailedServicePersistsAndAckSuppresses(t *testing.T) {
	provider := healthyProvider()
	provider.Units = []probe.UnitState{
		{Unit: "pveproxy", Active: false, State: "failed"},
	}
	m, clk := newTestMonitor(t, provider)
	ctx := context.Background()

	_, err := m.GetDetailedStatus(ctx)
	require.NoError(t, err)

	active, err := m.GetActiveErrors(ctx, "")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "service_pveproxy", active[0].ErrorKey)
	assert.Equal(t, types.SeverityCritical, active[0].Severity)

	require.NoError(t, m.AcknowledgeError(ctx, "service_pveproxy"))

	// The memo was invalidated: the next request re-detects the failed
	// unit, but the acknowledged record suppresses re-insertion.
	clk.advance(time.Minute)
	detailed, err := m.GetDetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCritical, detailed.Details["services"].Status,
		"acknowledging mutes the record, not the live verdict")

	active, err = m.GetActiveErrors(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestServiceRecoveryResolvesRecord(t *testing.T) {
	provider := healthyProvider()
	provider.Units = []probe.UnitState{
		{Unit: "pvestatd", Active: false, State: "inactive"},
	}
	m, clk := newTestMonitor(t, provider)
	ctx := context.Background()

	_, err := m.GetDetailedStatus(ctx)
	require.NoError(t, err)
	active, err := m.GetActiveErrors(ctx, "services")
	require.NoError(t, err)
	require.Len(t, active, 1)

	provider.Units = []probe.UnitState{
		{Unit: "pvestatd", Active: true, State: "active"},
	}
	clk.advance(2 * time.Minute)
	_, err = m.GetDetailedStatus(ctx)
	require.NoError(t, err)

	active, err = m.GetActiveErrors(ctx, "services")
	require.NoError(t, err)
	assert.Empty(t, active)

	events, err := m.GetRecentEvents(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, types.EventResolved, events[0].Type)
	assert.Equal(t, "service_pvestatd", events[0].ErrorKey)
}

// countingProvider counts CPU probe invocations to observe memoization.
type countingProvider struct {
	probe.StaticProvider
	cpuCalls atomic.Int32
}

func (p *countingProvider) CPU(ctx context.Context) (probe.CPUStats, error) {
	p.cpuCalls.Add(1)
	return p.StaticProvider.CPU(ctx)
}

func TestStatusMemoizedWithinTTL(t *testing.T) {
	provider := &countingProvider{StaticProvider: *healthyProvider()}
	m, clk := newTestMonitor(t, provider)
	ctx := context.Background()

	_, err := m.GetDetailedStatus(ctx)
	require.NoError(t, err)
	_, err = m.GetDetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), provider.cpuCalls.Load(), "second request within the TTL must be served from the memo")

	clk.advance(61 * time.Second)
	_, err = m.GetDetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), provider.cpuCalls.Load())
}

func TestSustainedCPUCritical(t *testing.T) {
	provider := healthyProvider()
	provider.CPUStats = probe.CPUStats{UsagePercent: 97}
	m, clk := newTestMonitor(t, provider)
	ctx := context.Background()

	// The default threshold needs 3 samples inside the breach window; each
	// pass past the aggregate TTL contributes one sample.
	for pass := 1; pass <= 2; pass++ {
		detailed, err := m.GetDetailedStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.StatusOK, detailed.Details["cpu"].Status,
			"pass %d must not alert on an unsustained breach", pass)
		clk.advance(70 * time.Second)
	}

	detailed, err := m.GetDetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCritical, detailed.Details["cpu"].Status)
	assert.Contains(t, detailed.Details["cpu"].Reason, "CPU usage sustained")
	assert.Equal(t, types.StatusCritical, detailed.Overall)
}

func TestLogCascadePersists(t *testing.T) {
	provider := healthyProvider()
	line := "pveproxy[1234]: connection error to node3"
	for i := 0; i < 10; i++ {
		provider.RecentLogs = append(provider.RecentLogs, line)
	}
	m, _ := newTestMonitor(t, provider)
	ctx := context.Background()

	detailed, err := m.GetDetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusWarning, detailed.Details["logs"].Status)
	assert.Contains(t, detailed.Details["logs"].Reason, "error cascade")

	active, err := m.GetActiveErrors(ctx, "logs")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, strings.HasPrefix(active[0].ErrorKey, "log_cascade_"),
		"cascade key %q must be pattern-hash based", active[0].ErrorKey)
	assert.Equal(t, types.SeverityWarning, active[0].Severity)
}

func TestGuestUnexpectedStateWarns(t *testing.T) {
	provider := healthyProvider()
	provider.Guests = []probe.VMState{
		{ID: 100, Name: "web", Kind: "qemu", Status: "running"},
		{ID: 101, Name: "db", Kind: "qemu", Status: "paused"},
		{ID: 200, Name: "cache", Kind: "lxc", Status: "stopped"},
	}
	m, clk := newTestMonitor(t, provider)
	ctx := context.Background()

	detailed, err := m.GetDetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusWarning, detailed.Details["vms"].Status)
	assert.Contains(t, detailed.Details["vms"].Reason, "paused")

	active, err := m.GetActiveErrors(ctx, "vms")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "vm_101", active[0].ErrorKey)

	// Back to running: the record resolves and stopped guests fold into an
	// informational verdict.
	provider.Guests[1].Status = "running"
	clk.advance(2 * time.Minute)
	detailed, err = m.GetDetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInfo, detailed.Details["vms"].Status)
	assert.Contains(t, detailed.Details["vms"].Reason, "1 guests stopped")

	active, err = m.GetActiveErrors(ctx, "vms")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestReadOnlyFilesystemCritical(t *testing.T) {
	provider := healthyProvider()
	provider.FS = []probe.Filesystem{
		{Mount: "/", UsedPercent: 42, ReadOnly: true},
		{Mount: "/var", UsedPercent: 88},
	}
	m, _ := newTestMonitor(t, provider)
	ctx := context.Background()

	detailed, err := m.GetDetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCritical, detailed.Details["disks"].Status)
	assert.Contains(t, detailed.Details["disks"].Reason, "read-only")

	active, err := m.GetActiveErrors(ctx, "disks")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "filesystem_readonly_/", active[0].ErrorKey)
}

func TestSecurityUpdatesWarn(t *testing.T) {
	provider := healthyProvider()
	provider.Updates = probe.UpdateStats{Pending: 12, Security: 3}
	m, _ := newTestMonitor(t, provider)

	detailed, err := m.GetDetailedStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusWarning, detailed.Details["updates"].Status)
	assert.Equal(t, "3 security updates pending", detailed.Details["updates"].Reason)
}

func TestExpiredCertificateCritical(t *testing.T) {
	provider := healthyProvider()
	m, clk := newTestMonitor(t, provider)
	provider.Certs = []probe.Certificate{
		{Name: "pve-ssl.pem", ExpiresAt: clk.now().Add(-24 * time.Hour)},
	}
	ctx := context.Background()

	detailed, err := m.GetDetailedStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCritical, detailed.Details["security"].Status)
	assert.Contains(t, detailed.Details["security"].Reason, "expired")

	active, err := m.GetActiveErrors(ctx, "security")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "cert_expiry_pve-ssl.pem", active[0].ErrorKey)
}

func TestSensorFailureVisibleWithoutMaskingCPU(t *testing.T) {
	provider := healthyProvider()
	provider.Errs = map[string]error{"temperature": fmt.Errorf("hwmon read: permission denied")}
	m, _ := newTestMonitor(t, provider)

	detailed, err := m.GetDetailedStatus(context.Background())
	require.NoError(t, err)

	cpu := detailed.Details["cpu"]
	assert.Equal(t, types.StatusOK, cpu.Status, "a broken sensor probe must not change the CPU verdict")
	require.Contains(t, cpu.Details, "temperature")
	assert.Contains(t, cpu.Details["temperature"], "temperature check failed")
}

// panicProvider panics on the CPU probe to exercise the recover shim.
type panicProvider struct {
	probe.StaticProvider
}

func (p *panicProvider) CPU(context.Context) (probe.CPUStats, error) {
	panic("probe went sideways")
}

func TestCheckPanicDegradesToUnknown(t *testing.T) {
	provider := &panicProvider{StaticProvider: *healthyProvider()}
	m := New(nil, provider, nil, discardLogger())

	detailed, err := m.GetDetailedStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnknown, detailed.Details["cpu"].Status)
	assert.Contains(t, detailed.Details["cpu"].Reason, "cpu check failed")
	assert.Equal(t, types.StatusOK, detailed.Details["memory"].Status,
		"one panicking check must not poison the others")
}

func TestNilStoreDegradesGracefully(t *testing.T) {
	provider := healthyProvider()
	provider.Units = []probe.UnitState{
		{Unit: "pveproxy", Active: false, State: "failed"},
	}
	m := New(nil, provider, nil, discardLogger())

	detailed, err := m.GetDetailedStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusCritical, detailed.Details["services"].Status)

	_, err = m.GetActiveErrors(context.Background(), "")
	assert.Error(t, err)
	assert.Error(t, m.AcknowledgeError(context.Background(), "service_pveproxy"))
}
