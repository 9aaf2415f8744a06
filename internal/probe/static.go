package probe

import (
	"context"
	"time"
)

// StaticProvider returns canned samples. Used by aggregator tests and as a
// fixture provider for dashboard development on non-Proxmox machines. Any
// field left nil/zero yields an empty (healthy) sample; Errs overrides
// individual probes with failures.
type StaticProvider struct {
	CPUStats     CPUStats
	MemoryStats  MemoryStats
	Temps        []SensorTemp
	FS           []Filesystem
	Pools        []ZFSPool
	LVM          LVMStats
	StorageList  []StorageStatus
	Guests       []VMState
	Links        []Interface
	Latency      time.Duration
	RecentLogs   []string
	PreviousLogs []string
	Units        []UnitState
	Updates      UpdateStats
	Certs        []Certificate
	LoginFails   int

	// Errs maps a probe name (cpu, memory, temperature, filesystems, zfs,
	// lvm, storages, vms, interfaces, latency, logs, units, updates,
	// certificates, logins) to the error it should return.
	Errs map[string]error
}

func (p *StaticProvider) err(name string) error {
	if p.Errs == nil {
		return nil
	}
	return p.Errs[name]
}

func (p *StaticProvider) CPU(context.Context) (CPUStats, error) {
	return p.CPUStats, p.err("cpu")
}

func (p *StaticProvider) Memory(context.Context) (MemoryStats, error) {
	return p.MemoryStats, p.err("memory")
}

func (p *StaticProvider) SensorTemperatures(context.Context) ([]SensorTemp, error) {
	return p.Temps, p.err("temperature")
}

func (p *StaticProvider) Filesystems(context.Context) ([]Filesystem, error) {
	return p.FS, p.err("filesystems")
}

func (p *StaticProvider) ZFSPools(context.Context) ([]ZFSPool, error) {
	return p.Pools, p.err("zfs")
}

func (p *StaticProvider) LVMVolumes(context.Context) (LVMStats, error) {
	return p.LVM, p.err("lvm")
}

func (p *StaticProvider) Storages(context.Context) ([]StorageStatus, error) {
	return p.StorageList, p.err("storages")
}

func (p *StaticProvider) VMs(context.Context) ([]VMState, error) {
	return p.Guests, p.err("vms")
}

func (p *StaticProvider) Interfaces(context.Context) ([]Interface, error) {
	return p.Links, p.err("interfaces")
}

func (p *StaticProvider) GatewayLatency(context.Context) (time.Duration, error) {
	return p.Latency, p.err("latency")
}

func (p *StaticProvider) LogWindows(context.Context) ([]string, []string, error) {
	return p.RecentLogs, p.PreviousLogs, p.err("logs")
}

func (p *StaticProvider) UnitStates(_ context.Context, units []string) ([]UnitState, error) {
	if err := p.err("units"); err != nil {
		return nil, err
	}
	if p.Units != nil {
		return p.Units, nil
	}
	// Default: every watched unit reports active.
	states := make([]UnitState, 0, len(units))
	for _, unit := range units {
		states = append(states, UnitState{Unit: unit, Active: true, State: "active"})
	}
	return states, nil
}

func (p *StaticProvider) PendingUpdates(context.Context) (UpdateStats, error) {
	return p.Updates, p.err("updates")
}

func (p *StaticProvider) Certificates(context.Context) ([]Certificate, error) {
	return p.Certs, p.err("certificates")
}

func (p *StaticProvider) FailedLogins(context.Context) (int, error) {
	return p.LoginFails, p.err("logins")
}

var _ Provider = (*StaticProvider)(nil)
