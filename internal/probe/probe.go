// Package probe defines the typed sample sources the health engine
// consumes. The engine treats every probe as a black box: a probe returns a
// typed value or a typed failure, and a failure only ever degrades the
// affected category, never aborts an evaluation.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrToolAbsent marks an optional external tool (zpool, lvs, pvesm, ...)
// that is not installed on this host. Not an error condition: the caller
// short-circuits the category to OK ("not applicable").
var ErrToolAbsent = errors.New("tool not installed")

// Failure wraps a probe error with the operation that produced it.
type Failure struct {
	Op  string
	Err error
}

func (f *Failure) Error() string { return fmt.Sprintf("probe %s: %v", f.Op, f.Err) }
func (f *Failure) Unwrap() error { return f.Err }

// CPUStats is one CPU sample.
type CPUStats struct {
	UsagePercent float64
	Load1        float64
	Load5        float64
	Load15       float64
}

// MemoryStats is one memory/swap sample, in bytes.
type MemoryStats struct {
	Total     uint64
	Available uint64
	SwapTotal uint64
	SwapUsed  uint64
}

// UsedPercent is RAM usage as a percentage of total.
func (m MemoryStats) UsedPercent() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Total-m.Available) / float64(m.Total) * 100
}

// SwapPercentOfRAM is swap usage expressed against total RAM, the ratio the
// swap threshold gates on. Swap sized against RAM catches thrashing better
// than swap-against-swap on hosts with small swap partitions.
func (m MemoryStats) SwapPercentOfRAM() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.SwapUsed) / float64(m.Total) * 100
}

// SensorTemp is one temperature reading.
type SensorTemp struct {
	Sensor  string
	Celsius float64
}

// Filesystem is one mounted filesystem's state.
type Filesystem struct {
	Mount       string
	UsedPercent float64
	ReadOnly    bool
}

// ZFSPool is one pool's health enum as reported by zpool.
type ZFSPool struct {
	Name  string
	State string // ONLINE, DEGRADED, FAULTED, ...
}

// LVMStats summarizes logical volume activation.
type LVMStats struct {
	TotalVolumes  int
	ActiveVolumes int
}

// StorageStatus is one configured storage backend's availability.
type StorageStatus struct {
	Name    string
	Type    string
	Enabled bool
	Active  bool
}

// VMState is one guest's (QEMU VM or LXC container) reported state.
type VMState struct {
	ID     int
	Name   string
	Kind   string // "qemu" or "lxc"
	Status string // "running", "stopped", ...
}

// Interface is one network interface's link state.
type Interface struct {
	Name string
	Up   bool
}

// UnitState is one systemd unit's reported state.
type UnitState struct {
	Unit   string
	Active bool
	State  string // active, inactive, failed, ...
}

// UpdateStats summarizes pending package updates.
type UpdateStats struct {
	Pending  int
	Security int
}

// Certificate is one certificate's expiry.
type Certificate struct {
	Name      string
	ExpiresAt time.Time
}

// Provider supplies every raw sample the engine consumes. Implementations
// must bound each call with a hard timeout and surface missing tools as
// ErrToolAbsent. All methods are safe for concurrent use.
type Provider interface {
	CPU(ctx context.Context) (CPUStats, error)
	Memory(ctx context.Context) (MemoryStats, error)
	SensorTemperatures(ctx context.Context) ([]SensorTemp, error)
	Filesystems(ctx context.Context) ([]Filesystem, error)
	ZFSPools(ctx context.Context) ([]ZFSPool, error)
	LVMVolumes(ctx context.Context) (LVMStats, error)
	Storages(ctx context.Context) ([]StorageStatus, error)
	VMs(ctx context.Context) ([]VMState, error)
	Interfaces(ctx context.Context) ([]Interface, error)
	GatewayLatency(ctx context.Context) (time.Duration, error)
	LogWindows(ctx context.Context) (recent, previous []string, err error)
	UnitStates(ctx context.Context, units []string) ([]UnitState, error)
	PendingUpdates(ctx context.Context) (UpdateStats, error)
	Certificates(ctx context.Context) ([]Certificate, error)
	FailedLogins(ctx context.Context) (int, error)
}
