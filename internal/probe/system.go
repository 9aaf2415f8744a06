package probe

import (
	"bufio"
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/MacRimi/proxmon/internal/config"
)

// SystemProvider collects samples from the local host: /proc and /sys for
// metrics, shelled-out tools for Proxmox/ZFS/LVM state. Every external call
// carries a hard timeout; a missing binary surfaces ErrToolAbsent. A rate
// limiter bounds sensor and journal invocations as a second line of defense
// behind the health layer's TTL caches.
type SystemProvider struct {
	cfg    config.ProbeConfig
	logger *slog.Logger

	sensorLimit  *rate.Limiter
	journalLimit *rate.Limiter

	// Last readings serve calls that arrive while a limiter is closed.
	// Stale values are acceptable within one interval; the mutex only
	// guards the slice headers.
	mu           sync.Mutex
	lastTemps    []SensorTemp
	lastRecent   []string
	lastPrevious []string
}

// NewSystemProvider creates a provider bounded by cfg.
func NewSystemProvider(cfg config.ProbeConfig, logger *slog.Logger) *SystemProvider {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.SensorInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &SystemProvider{
		cfg:          cfg,
		logger:       logger.With("component", "probe"),
		sensorLimit:  rate.NewLimiter(rate.Every(interval), 1),
		journalLimit: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// run executes an external tool under the configured timeout. A binary
// missing from PATH returns ErrToolAbsent.
func (p *SystemProvider) run(ctx context.Context, name string, args ...string) (string, error) {
	if _, err := exec.LookPath(name); err != nil {
		return "", fmt.Errorf("%s: %w", name, ErrToolAbsent)
	}

	timeout := p.cfg.CommandTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", &Failure{Op: name, Err: err}
	}
	return string(out), nil
}

// CPU samples /proc/stat twice to compute usage and reads /proc/loadavg.
func (p *SystemProvider) CPU(ctx context.Context) (CPUStats, error) {
	idle1, total1, err := readProcStat()
	if err != nil {
		return CPUStats{}, &Failure{Op: "cpu", Err: err}
	}
	select {
	case <-ctx.Done():
		return CPUStats{}, &Failure{Op: "cpu", Err: ctx.Err()}
	case <-time.After(200 * time.Millisecond):
	}
	idle2, total2, err := readProcStat()
	if err != nil {
		return CPUStats{}, &Failure{Op: "cpu", Err: err}
	}

	stats := CPUStats{}
	if total2 > total1 {
		busy := float64((total2 - total1) - (idle2 - idle1))
		stats.UsagePercent = busy / float64(total2-total1) * 100
	}

	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return stats, &Failure{Op: "loadavg", Err: err}
	}
	fields := strings.Fields(string(data))
	if len(fields) >= 3 {
		stats.Load1, _ = strconv.ParseFloat(fields[0], 64)
		stats.Load5, _ = strconv.ParseFloat(fields[1], 64)
		stats.Load15, _ = strconv.ParseFloat(fields[2], 64)
	}
	return stats, nil
}

func readProcStat() (idle, total uint64, err error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || fields[0] != "cpu" {
			continue
		}
		for i, field := range fields[1:] {
			v, perr := strconv.ParseUint(field, 10, 64)
			if perr != nil {
				return 0, 0, fmt.Errorf("malformed /proc/stat field %q", field)
			}
			total += v
			// idle + iowait
			if i == 3 || i == 4 {
				idle += v
			}
		}
		return idle, total, nil
	}
	return 0, 0, fmt.Errorf("no cpu line in /proc/stat")
}

// Memory parses /proc/meminfo.
func (p *SystemProvider) Memory(ctx context.Context) (MemoryStats, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return MemoryStats{}, &Failure{Op: "memory", Err: err}
	}
	defer f.Close()

	var stats MemoryStats
	var swapFree uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		value, _ := strconv.ParseUint(fields[1], 10, 64)
		value *= 1024 // meminfo reports kB
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			stats.Total = value
		case "MemAvailable":
			stats.Available = value
		case "SwapTotal":
			stats.SwapTotal = value
		case "SwapFree":
			swapFree = value
		}
	}
	if err := scanner.Err(); err != nil {
		return MemoryStats{}, &Failure{Op: "memory", Err: err}
	}
	if stats.SwapTotal >= swapFree {
		stats.SwapUsed = stats.SwapTotal - swapFree
	}
	return stats, nil
}

// SensorTemperatures reads hwmon. Rate limited: within one sensor interval
// the previous reading is served.
func (p *SystemProvider) SensorTemperatures(ctx context.Context) ([]SensorTemp, error) {
	if !p.sensorLimit.Allow() {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.lastTemps, nil
	}

	matches, err := filepath.Glob("/sys/class/hwmon/hwmon*/temp*_input")
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("hwmon: %w", ErrToolAbsent)
	}

	var temps []SensorTemp
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		milli, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil {
			continue
		}
		name := filepath.Base(filepath.Dir(path))
		if label, err := os.ReadFile(filepath.Join(filepath.Dir(path), "name")); err == nil {
			name = strings.TrimSpace(string(label))
		}
		temps = append(temps, SensorTemp{
			Sensor:  fmt.Sprintf("%s/%s", name, strings.TrimSuffix(filepath.Base(path), "_input")),
			Celsius: float64(milli) / 1000,
		})
	}
	p.mu.Lock()
	p.lastTemps = temps
	p.mu.Unlock()
	return temps, nil
}

// Filesystems reports usage and read-only state per mount from
// /proc/mounts, skipping pseudo-filesystems.
func (p *SystemProvider) Filesystems(ctx context.Context) ([]Filesystem, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, &Failure{Op: "filesystems", Err: err}
	}
	defer f.Close()

	var out []Filesystem
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		device, mount, fstype, options := fields[0], fields[1], fields[2], fields[3]
		if !strings.HasPrefix(device, "/dev/") && fstype != "zfs" {
			continue
		}
		if seen[mount] {
			continue
		}
		seen[mount] = true

		var st unix.Statfs_t
		if err := unix.Statfs(mount, &st); err != nil {
			p.logger.Warn("statfs failed", "mount", mount, "err", err)
			continue
		}
		fs := Filesystem{Mount: mount}
		if st.Blocks > 0 {
			fs.UsedPercent = float64(st.Blocks-st.Bavail) / float64(st.Blocks) * 100
		}
		for _, opt := range strings.Split(options, ",") {
			if opt == "ro" {
				fs.ReadOnly = true
			}
		}
		out = append(out, fs)
	}
	return out, scanner.Err()
}

// ZFSPools shells out to zpool. Absent zpool means no ZFS on this host.
func (p *SystemProvider) ZFSPools(ctx context.Context) ([]ZFSPool, error) {
	out, err := p.run(ctx, "zpool", "list", "-H", "-o", "name,health")
	if err != nil {
		return nil, err
	}

	var pools []ZFSPool
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			pools = append(pools, ZFSPool{Name: fields[0], State: fields[1]})
		}
	}
	return pools, nil
}

// LVMVolumes shells out to lvs and counts active logical volumes.
func (p *SystemProvider) LVMVolumes(ctx context.Context) (LVMStats, error) {
	out, err := p.run(ctx, "lvs", "--noheadings", "-o", "lv_name,lv_active")
	if err != nil {
		return LVMStats{}, err
	}

	stats := LVMStats{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		stats.TotalVolumes++
		if fields[1] == "active" {
			stats.ActiveVolumes++
		}
	}
	return stats, nil
}

// Storages shells out to pvesm for configured storage backends.
func (p *SystemProvider) Storages(ctx context.Context) ([]StorageStatus, error) {
	out, err := p.run(ctx, "pvesm", "status")
	if err != nil {
		return nil, err
	}

	var storages []StorageStatus
	for i, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if i == 0 {
			continue // header
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		storages = append(storages, StorageStatus{
			Name:    fields[0],
			Type:    fields[1],
			Enabled: fields[2] != "disabled",
			Active:  fields[2] == "active",
		})
	}
	return storages, nil
}

// VMs lists QEMU VMs (qm) and LXC containers (pct).
func (p *SystemProvider) VMs(ctx context.Context) ([]VMState, error) {
	var guests []VMState

	parse := func(out, kind string) {
		for i, line := range strings.Split(strings.TrimSpace(out), "\n") {
			if i == 0 {
				continue // header
			}
			fields := strings.Fields(line)
			if len(fields) < 3 {
				continue
			}
			id, err := strconv.Atoi(fields[0])
			if err != nil {
				continue
			}
			guests = append(guests, VMState{ID: id, Name: fields[1], Kind: kind, Status: fields[2]})
		}
	}

	qmOut, qmErr := p.run(ctx, "qm", "list")
	if qmErr == nil {
		parse(qmOut, "qemu")
	}
	pctOut, pctErr := p.run(ctx, "pct", "list")
	if pctErr == nil {
		// pct list columns: VMID Status Lock Name; normalize to id/name/status
		for i, line := range strings.Split(strings.TrimSpace(pctOut), "\n") {
			if i == 0 {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			id, err := strconv.Atoi(fields[0])
			if err != nil {
				continue
			}
			name := fields[len(fields)-1]
			guests = append(guests, VMState{ID: id, Name: name, Kind: "lxc", Status: fields[1]})
		}
	}

	if qmErr != nil && pctErr != nil {
		// Neither tool worked; absent tools mean "no guests here".
		if isToolAbsent(qmErr) && isToolAbsent(pctErr) {
			return nil, fmt.Errorf("qm/pct: %w", ErrToolAbsent)
		}
		return nil, qmErr
	}
	return guests, nil
}

// Interfaces reads operstate from /sys/class/net, skipping loopback.
func (p *SystemProvider) Interfaces(ctx context.Context) ([]Interface, error) {
	entries, err := os.ReadDir("/sys/class/net")
	if err != nil {
		return nil, &Failure{Op: "interfaces", Err: err}
	}

	var links []Interface
	for _, entry := range entries {
		name := entry.Name()
		if name == "lo" {
			continue
		}
		state, err := os.ReadFile(filepath.Join("/sys/class/net", name, "operstate"))
		if err != nil {
			continue
		}
		op := strings.TrimSpace(string(state))
		links = append(links, Interface{Name: name, Up: op == "up" || op == "unknown"})
	}
	return links, nil
}

// GatewayLatency pings the default gateway once.
func (p *SystemProvider) GatewayLatency(ctx context.Context) (time.Duration, error) {
	gateway, err := defaultGateway()
	if err != nil {
		return 0, &Failure{Op: "latency", Err: err}
	}

	start := time.Now()
	if _, err := p.run(ctx, "ping", "-c", "1", "-W", "1", gateway); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// defaultGateway parses /proc/net/route for the 0.0.0.0 route.
func defaultGateway() (string, error) {
	f, err := os.Open("/proc/net/route")
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[1] != "00000000" {
			continue
		}
		// Gateway is little-endian hex.
		raw, err := strconv.ParseUint(fields[2], 16, 32)
		if err != nil {
			continue
		}
		return fmt.Sprintf("%d.%d.%d.%d",
			byte(raw), byte(raw>>8), byte(raw>>16), byte(raw>>24)), nil
	}
	return "", fmt.Errorf("no default route")
}

// LogWindows fetches the current trailing window of journal lines and the
// immediately preceding window of equal length. Rate limited alongside the
// health layer's log-check TTL.
func (p *SystemProvider) LogWindows(ctx context.Context) ([]string, []string, error) {
	window := p.cfg.LogWindow
	if window <= 0 {
		window = 3 * time.Minute
	}
	windowMin := int(window.Minutes())
	if windowMin < 1 {
		windowMin = 1
	}

	if !p.journalLimit.Allow() {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.lastRecent, p.lastPrevious, nil
	}

	recent, err := p.run(ctx, "journalctl", "--no-pager", "-q",
		"--since", fmt.Sprintf("-%dmin", windowMin))
	if err != nil {
		return nil, nil, err
	}
	previous, err := p.run(ctx, "journalctl", "--no-pager", "-q",
		"--since", fmt.Sprintf("-%dmin", 2*windowMin),
		"--until", fmt.Sprintf("-%dmin", windowMin))
	if err != nil {
		return nil, nil, err
	}
	recentLines, previousLines := splitLines(recent), splitLines(previous)
	p.mu.Lock()
	p.lastRecent, p.lastPrevious = recentLines, previousLines
	p.mu.Unlock()
	return recentLines, previousLines, nil
}

// UnitStates queries systemctl per unit.
func (p *SystemProvider) UnitStates(ctx context.Context, units []string) ([]UnitState, error) {
	var states []UnitState
	for _, unit := range units {
		out, err := p.run(ctx, "systemctl", "is-active", unit)
		state := strings.TrimSpace(out)
		if err != nil {
			// is-active exits non-zero for inactive/failed units; a missing
			// systemctl is the only real failure.
			if isToolAbsent(err) {
				return nil, err
			}
			state = "inactive"
		}
		states = append(states, UnitState{Unit: unit, Active: state == "active", State: state})
	}
	return states, nil
}

// PendingUpdates counts upgradable packages via apt.
func (p *SystemProvider) PendingUpdates(ctx context.Context) (UpdateStats, error) {
	out, err := p.run(ctx, "apt", "list", "--upgradable")
	if err != nil {
		return UpdateStats{}, err
	}

	stats := UpdateStats{}
	for _, line := range splitLines(out) {
		if !strings.Contains(line, "/") || strings.HasPrefix(line, "Listing") {
			continue
		}
		stats.Pending++
		if strings.Contains(line, "-security") {
			stats.Security++
		}
	}
	return stats, nil
}

// certificatePaths are the host certificates whose expiry feeds the
// security category.
var certificatePaths = map[string]string{
	"pve-ssl":  "/etc/pve/local/pve-ssl.pem",
	"pveproxy": "/etc/pve/local/pveproxy-ssl.pem",
}

// Certificates parses the host's PEM certificates for expiry dates.
// Missing files are skipped: not every host has a custom proxy cert.
func (p *SystemProvider) Certificates(ctx context.Context) ([]Certificate, error) {
	var certs []Certificate
	for name, path := range certificatePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		block, _ := pem.Decode(data)
		if block == nil {
			p.logger.Warn("malformed certificate", "path", path)
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			p.logger.Warn("unparseable certificate", "path", path, "err", err)
			continue
		}
		certs = append(certs, Certificate{Name: name, ExpiresAt: cert.NotAfter})
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("host certificates: %w", ErrToolAbsent)
	}
	return certs, nil
}

// FailedLogins counts recent failed SSH authentications in the journal.
func (p *SystemProvider) FailedLogins(ctx context.Context) (int, error) {
	out, err := p.run(ctx, "journalctl", "--no-pager", "-q",
		"-t", "sshd", "--since", "-10min")
	if err != nil {
		return 0, err
	}

	count := 0
	for _, line := range splitLines(out) {
		if strings.Contains(line, "Failed password") ||
			strings.Contains(line, "Invalid user") {
			count++
		}
	}
	return count, nil
}

func splitLines(out string) []string {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func isToolAbsent(err error) bool {
	return errors.Is(err, ErrToolAbsent)
}

var _ Provider = (*SystemProvider)(nil)
