package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacRimi/proxmon/internal/probe"
	"github.com/MacRimi/proxmon/internal/types"
)

// unknownResult wraps a probe failure into the degraded verdict every check
// uses: the category reports UNKNOWN with a diagnostic reason and the
// evaluation continues.
func unknownResult(category string, err error) types.CategoryResult {
	return types.CategoryResult{
		Status: types.StatusUnknown,
		Reason: fmt.Sprintf("%s check failed: %v", category, err),
	}
}

// notApplicable is the verdict for hosts missing an optional tool.
func notApplicable(reason string) types.CategoryResult {
	return types.CategoryResult{Status: types.StatusOK, Reason: reason}
}

// checkCPU samples CPU usage and (on a slower TTL) the hottest temperature
// sensor, feeds both into the hysteresis windows and reports the worse
// verdict. A single hot sample never alerts; the breach must sustain.
func (m *Monitor) checkCPU(ctx context.Context) types.CategoryResult {
	stats, err := m.provider.CPU(ctx)
	if err != nil {
		return unknownResult("cpu", err)
	}
	now := m.now()
	m.eval.RecordSample("cpu", stats.UsagePercent, now)
	status := m.eval.Evaluate("cpu", m.cfg.Thresholds.CPU, now)

	result := types.CategoryResult{
		Status: status,
		Metrics: map[string]any{
			"usage_percent": stats.UsagePercent,
			"load1":         stats.Load1,
			"load5":         stats.Load5,
			"load15":        stats.Load15,
		},
	}
	if status != types.StatusOK {
		result.Reason = fmt.Sprintf("CPU usage sustained at %.0f%%", stats.UsagePercent)
	}

	// Temperature folds into the cpu category. The probe itself runs at
	// most once per temperature TTL; between runs the hysteresis window
	// simply keeps its last samples.
	tempStatus, hottest, tempErr := m.checkTemperature(ctx)
	if tempErr != nil {
		// A broken sensor probe must not mask the CPU verdict, but the
		// failure stays visible in the breakdown.
		result.Details = map[string]any{
			"temperature": fmt.Sprintf("temperature check failed: %v", tempErr),
		}
	}
	if tempStatus.Rank() > result.Status.Rank() {
		result.Status = tempStatus
		result.Reason = fmt.Sprintf("temperature sustained at %.0fC", hottest)
	}
	if hottest > 0 {
		result.Metrics["temperature_c"] = hottest
	}
	return result
}

// checkTemperature returns the hysteresis verdict for the hottest sensor
// and its reading. Absent sensors are OK (many hosts have none); a real
// probe failure returns the error so the caller can surface it without
// letting it outrank the CPU verdict.
func (m *Monitor) checkTemperature(ctx context.Context) (types.Status, float64, error) {
	value, err := m.cache.get("temperature", m.cfg.Cache.Temperature, func() (any, error) {
		temps, err := m.provider.SensorTemperatures(ctx)
		if err != nil {
			return nil, err
		}
		hottest := 0.0
		for _, t := range temps {
			if t.Celsius > hottest {
				hottest = t.Celsius
			}
		}
		if hottest > 0 {
			m.eval.RecordSample("temperature", hottest, m.now())
		}
		return hottest, nil
	})
	if err != nil {
		if errors.Is(err, probe.ErrToolAbsent) {
			return types.StatusOK, 0, nil
		}
		m.logger.Warn("temperature probe failed", "err", err)
		return types.StatusOK, 0, err
	}

	hottest := value.(float64)
	if hottest == 0 {
		return types.StatusOK, 0, nil
	}
	return m.eval.Evaluate("temperature", m.cfg.Thresholds.Temperature, m.now()), hottest, nil
}

// checkMemory evaluates RAM and swap pressure through their hysteresis
// windows. Swap is measured against total RAM: heavy swap on a large-RAM
// host signals thrashing regardless of swap partition size.
func (m *Monitor) checkMemory(ctx context.Context) types.CategoryResult {
	stats, err := m.provider.Memory(ctx)
	if err != nil {
		return unknownResult("memory", err)
	}

	now := m.now()
	usedPct := stats.UsedPercent()
	swapPct := stats.SwapPercentOfRAM()
	m.eval.RecordSample("memory", usedPct, now)
	m.eval.RecordSample("swap", swapPct, now)

	memStatus := m.eval.Evaluate("memory", m.cfg.Thresholds.Memory, now)
	swapStatus := m.eval.Evaluate("swap", m.cfg.Thresholds.Swap, now)

	result := types.CategoryResult{
		Status: memStatus,
		Metrics: map[string]any{
			"used_percent":        usedPct,
			"swap_percent_of_ram": swapPct,
			"total_bytes":         stats.Total,
			"available_bytes":     stats.Available,
		},
	}
	if memStatus != types.StatusOK {
		result.Reason = fmt.Sprintf("memory usage sustained at %.0f%%", usedPct)
	}
	if swapStatus.Rank() > result.Status.Rank() {
		result.Status = swapStatus
		result.Reason = fmt.Sprintf("swap usage sustained at %.0f%% of RAM", swapPct)
	}
	return result
}
