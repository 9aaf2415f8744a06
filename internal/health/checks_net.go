package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MacRimi/proxmon/internal/probe"
	"github.com/MacRimi/proxmon/internal/types"
)

// checkNetwork verifies link states and gateway latency. Latency is probed
// on its own TTL; link states are cheap sysfs reads and run every pass.
func (m *Monitor) checkNetwork(ctx context.Context) types.CategoryResult {
	links, err := m.provider.Interfaces(ctx)
	if err != nil {
		return unknownResult("network", err)
	}

	result := types.CategoryResult{Status: types.StatusOK, Metrics: map[string]any{}}
	for _, link := range links {
		result.Metrics[link.Name] = map[string]any{"up": link.Up}
		if !link.Up {
			m.raise(&result, types.StatusWarning, fmt.Sprintf("interface %s down", link.Name))
		}
	}

	value, err := m.cache.get("latency", m.cfg.Cache.Network, func() (any, error) {
		return m.provider.GatewayLatency(ctx)
	})
	if err != nil {
		if !errors.Is(err, probe.ErrToolAbsent) {
			m.raise(&result, types.StatusUnknown, fmt.Sprintf("network check failed: %v", err))
		}
		return result
	}

	latency := value.(time.Duration)
	millis := float64(latency.Milliseconds())
	result.Metrics["gateway_latency_ms"] = millis
	if millis > m.cfg.Thresholds.LatencyWarnMillis {
		m.raise(&result, types.StatusWarning, fmt.Sprintf("gateway latency %.0fms", millis))
	}
	return result
}

// checkUpdates reports pending package updates on a long TTL. Security
// updates warn; plain updates are informational and fold into OK.
func (m *Monitor) checkUpdates(ctx context.Context) types.CategoryResult {
	value, err := m.cache.get("updates", m.cfg.Cache.Updates, func() (any, error) {
		stats, err := m.provider.PendingUpdates(ctx)
		if err != nil {
			return nil, err
		}
		return stats, nil
	})
	if err != nil {
		if errors.Is(err, probe.ErrToolAbsent) {
			return notApplicable("package manager not available")
		}
		return unknownResult("updates", err)
	}

	stats := value.(probe.UpdateStats)
	result := types.CategoryResult{
		Status: types.StatusOK,
		Metrics: map[string]any{
			"pending":  stats.Pending,
			"security": stats.Security,
		},
	}
	switch {
	case stats.Security > 0:
		result.Status = types.StatusWarning
		result.Reason = fmt.Sprintf("%d security updates pending", stats.Security)
	case stats.Pending > 0:
		result.Status = types.StatusInfo
		result.Reason = fmt.Sprintf("%d updates pending", stats.Pending)
	}
	return result
}

// checkSecurity covers certificate expiry (long TTL; certificates change
// rarely) and recent failed logins. Expired certificates are critical and
// persist under "cert_expiry_<name>" so they survive restarts until
// renewed or acknowledged.
func (m *Monitor) checkSecurity(ctx context.Context) types.CategoryResult {
	result := types.CategoryResult{Status: types.StatusOK, Metrics: map[string]any{}}

	value, err := m.cache.get("certificates", m.cfg.Cache.Certificates, func() (any, error) {
		return m.provider.Certificates(ctx)
	})
	switch {
	case errors.Is(err, probe.ErrToolAbsent):
		// No readable certificates on this host.
	case err != nil:
		m.raise(&result, types.StatusUnknown, fmt.Sprintf("security check failed: %v", err))
	default:
		warnWindow := time.Duration(m.cfg.Thresholds.CertExpiryWarnDays) * 24 * time.Hour
		now := m.now()
		for _, cert := range value.([]probe.Certificate) {
			key := "cert_expiry_" + cert.Name
			daysLeft := int(cert.ExpiresAt.Sub(now).Hours() / 24)
			result.Metrics["cert_"+cert.Name+"_days_left"] = daysLeft

			switch {
			case now.After(cert.ExpiresAt):
				m.raise(&result, types.StatusCritical, fmt.Sprintf("certificate %s expired", cert.Name))
				m.recordError(ctx, key, "security", types.SeverityCritical,
					fmt.Sprintf("certificate %s expired on %s", cert.Name, cert.ExpiresAt.Format("2006-01-02")),
					map[string]any{"certificate": cert.Name})
			case cert.ExpiresAt.Sub(now) < warnWindow:
				m.raise(&result, types.StatusWarning,
					fmt.Sprintf("certificate %s expires in %d days", cert.Name, daysLeft))
				m.recordError(ctx, key, "security", types.SeverityWarning,
					fmt.Sprintf("certificate %s expires in %d days", cert.Name, daysLeft),
					map[string]any{"certificate": cert.Name, "days_left": daysLeft})
			default:
				m.resolveError(ctx, key, fmt.Sprintf("certificate %s renewed", cert.Name))
			}
		}
	}

	failures, err := m.provider.FailedLogins(ctx)
	if err != nil {
		if !errors.Is(err, probe.ErrToolAbsent) {
			m.raise(&result, types.StatusUnknown, fmt.Sprintf("security check failed: %v", err))
		}
		return result
	}
	result.Metrics["failed_logins"] = failures
	if failures >= m.cfg.Thresholds.FailedLoginWarnCount {
		m.raise(&result, types.StatusWarning, fmt.Sprintf("%d failed logins in the last 10 minutes", failures))
	}
	return result
}
