package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacRimi/proxmon/internal/probe"
	"github.com/MacRimi/proxmon/internal/types"
)

// checkServices verifies the watched systemd units. A failed unit is
// critical, a merely inactive one a warning; both persist under
// "service_<unit>" so a flapping unit stays one deduplicated record.
func (m *Monitor) checkServices(ctx context.Context) types.CategoryResult {
	units := m.cfg.Probe.WatchedUnits
	if len(units) == 0 {
		return notApplicable("no watched units configured")
	}

	states, err := m.provider.UnitStates(ctx, units)
	if err != nil {
		if errors.Is(err, probe.ErrToolAbsent) {
			return notApplicable("systemd not available")
		}
		return unknownResult("services", err)
	}

	result := types.CategoryResult{Status: types.StatusOK, Metrics: map[string]any{}}
	var degraded []string
	for _, unit := range states {
		key := "service_" + unit.Unit
		result.Metrics[unit.Unit] = unit.State

		switch {
		case unit.State == "failed":
			degraded = append(degraded, unit.Unit)
			m.raise(&result, types.StatusCritical, fmt.Sprintf("service %s failed", unit.Unit))
			m.recordError(ctx, key, "services", types.SeverityCritical,
				fmt.Sprintf("service %s entered failed state", unit.Unit),
				map[string]any{"unit": unit.Unit, "state": unit.State})
		case !unit.Active:
			degraded = append(degraded, unit.Unit)
			m.raise(&result, types.StatusWarning, fmt.Sprintf("service %s inactive", unit.Unit))
			m.recordError(ctx, key, "services", types.SeverityWarning,
				fmt.Sprintf("service %s is %s", unit.Unit, unit.State),
				map[string]any{"unit": unit.Unit, "state": unit.State})
		default:
			m.resolveError(ctx, key, fmt.Sprintf("service %s active again", unit.Unit))
		}
	}
	if len(degraded) > 1 {
		result.Reason = fmt.Sprintf("%d services degraded (%s)", len(degraded), degraded[0]+", ...")
	}
	return result
}

// checkStorage verifies the configured Proxmox storage backends. An
// enabled backend that is not active is critical: guests depend on it.
func (m *Monitor) checkStorage(ctx context.Context) types.CategoryResult {
	storages, err := m.provider.Storages(ctx)
	if err != nil {
		if errors.Is(err, probe.ErrToolAbsent) {
			return notApplicable("no Proxmox storage backends")
		}
		return unknownResult("storage", err)
	}

	result := types.CategoryResult{Status: types.StatusOK, Metrics: map[string]any{}}
	for _, st := range storages {
		key := "storage_unavailable_" + st.Name
		result.Metrics[st.Name] = map[string]any{"type": st.Type, "active": st.Active}

		if st.Enabled && !st.Active {
			m.raise(&result, types.StatusCritical, fmt.Sprintf("storage %s unavailable", st.Name))
			m.recordError(ctx, key, "storage", types.SeverityCritical,
				fmt.Sprintf("storage %s is enabled but not active", st.Name),
				map[string]any{"storage": st.Name, "type": st.Type})
		} else {
			m.resolveError(ctx, key, fmt.Sprintf("storage %s active again", st.Name))
		}
	}
	return result
}

// checkDisks covers filesystems (usage, read-only remounts), ZFS pool
// health and LVM volume activation. Read-only roots and faulted pools are
// critical; capacity and degraded redundancy warn first.
func (m *Monitor) checkDisks(ctx context.Context) types.CategoryResult {
	result := types.CategoryResult{Status: types.StatusOK, Metrics: map[string]any{}}

	filesystems, err := m.provider.Filesystems(ctx)
	if err != nil {
		return unknownResult("disks", err)
	}
	for _, fs := range filesystems {
		result.Metrics[fs.Mount] = map[string]any{
			"used_percent": fs.UsedPercent,
			"read_only":    fs.ReadOnly,
		}
		roKey := "filesystem_readonly_" + fs.Mount

		if fs.ReadOnly {
			m.raise(&result, types.StatusCritical, fmt.Sprintf("%s remounted read-only", fs.Mount))
			m.recordError(ctx, roKey, "disks", types.SeverityCritical,
				fmt.Sprintf("filesystem %s is mounted read-only", fs.Mount),
				map[string]any{"mount": fs.Mount})
		} else {
			m.resolveError(ctx, roKey, fmt.Sprintf("%s writable again", fs.Mount))
		}

		switch {
		case fs.UsedPercent >= m.cfg.Thresholds.FilesystemCritPercent:
			m.raise(&result, types.StatusCritical, fmt.Sprintf("%s at %.0f%% capacity", fs.Mount, fs.UsedPercent))
		case fs.UsedPercent >= m.cfg.Thresholds.FilesystemWarnPercent:
			m.raise(&result, types.StatusWarning, fmt.Sprintf("%s at %.0f%% capacity", fs.Mount, fs.UsedPercent))
		}
	}

	pools, err := m.provider.ZFSPools(ctx)
	if err != nil && !errors.Is(err, probe.ErrToolAbsent) {
		// ZFS present but unreadable: degrade, but keep filesystem results.
		m.raise(&result, types.StatusUnknown, fmt.Sprintf("disks check failed: %v", err))
	}
	for _, pool := range pools {
		key := "zfs_pool_" + pool.Name
		result.Metrics["zpool_"+pool.Name] = pool.State

		switch pool.State {
		case "ONLINE":
			m.resolveError(ctx, key, fmt.Sprintf("pool %s online again", pool.Name))
		case "DEGRADED":
			m.raise(&result, types.StatusWarning, fmt.Sprintf("zfs pool %s degraded", pool.Name))
			m.recordError(ctx, key, "disks", types.SeverityWarning,
				fmt.Sprintf("zfs pool %s is DEGRADED", pool.Name),
				map[string]any{"pool": pool.Name, "state": pool.State})
		default:
			m.raise(&result, types.StatusCritical, fmt.Sprintf("zfs pool %s %s", pool.Name, pool.State))
			m.recordError(ctx, key, "disks", types.SeverityCritical,
				fmt.Sprintf("zfs pool %s is %s", pool.Name, pool.State),
				map[string]any{"pool": pool.Name, "state": pool.State})
		}
	}

	lvm, err := m.provider.LVMVolumes(ctx)
	if err == nil && lvm.TotalVolumes > 0 {
		result.Metrics["lvm_active"] = lvm.ActiveVolumes
		result.Metrics["lvm_total"] = lvm.TotalVolumes
		if lvm.ActiveVolumes < lvm.TotalVolumes {
			m.raise(&result, types.StatusWarning,
				fmt.Sprintf("%d of %d LVM volumes inactive", lvm.TotalVolumes-lvm.ActiveVolumes, lvm.TotalVolumes))
		}
	} else if err != nil && !errors.Is(err, probe.ErrToolAbsent) {
		m.logger.Warn("lvm probe failed", "err", err)
	}

	return result
}

// checkVMs reports guest states. Stopped guests are informational (an
// operator may have stopped them on purpose); anything else that is not
// running (paused, blocked by a lock, internal error states) warns and
// persists under "vm_<id>".
func (m *Monitor) checkVMs(ctx context.Context) types.CategoryResult {
	guests, err := m.provider.VMs(ctx)
	if err != nil {
		if errors.Is(err, probe.ErrToolAbsent) {
			return notApplicable("no VMs or containers on this host")
		}
		return unknownResult("vms", err)
	}

	result := types.CategoryResult{Status: types.StatusOK, Metrics: map[string]any{}}
	running, stopped := 0, 0
	for _, guest := range guests {
		key := fmt.Sprintf("vm_%d", guest.ID)
		switch guest.Status {
		case "running":
			running++
			m.resolveError(ctx, key, fmt.Sprintf("%s %d running again", guest.Kind, guest.ID))
		case "stopped":
			stopped++
			m.resolveError(ctx, key, fmt.Sprintf("%s %d stopped cleanly", guest.Kind, guest.ID))
		default:
			m.raise(&result, types.StatusWarning,
				fmt.Sprintf("%s %d (%s) is %s", guest.Kind, guest.ID, guest.Name, guest.Status))
			m.recordError(ctx, key, "vms", types.SeverityWarning,
				fmt.Sprintf("%s %d (%s) in unexpected state %s", guest.Kind, guest.ID, guest.Name, guest.Status),
				map[string]any{"vmid": guest.ID, "name": guest.Name, "status": guest.Status})
		}
	}
	result.Metrics["running"] = running
	result.Metrics["stopped"] = stopped
	result.Metrics["total"] = len(guests)

	if result.Status == types.StatusOK && stopped > 0 {
		result.Status = types.StatusInfo
		result.Reason = fmt.Sprintf("%d guests stopped", stopped)
	}
	return result
}

// raise escalates a result to the worse of its current status and the
// given one, keeping the first reason of the highest tier.
func (m *Monitor) raise(result *types.CategoryResult, status types.Status, reason string) {
	if status.Rank() > result.Status.Rank() {
		result.Status = status
		result.Reason = reason
	}
}
