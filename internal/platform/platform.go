// Package platform reports container-aware CPU and memory usage, used
// only to annotate the /healthz response and to pick a sane default
// ParallelAgent capacity floor when Settings leaves it at zero. It never
// gates or rejects agent work — that would be a transport-level concern.
package platform

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
)

// MemoryLimit returns the container memory limit in bytes, read from the
// cgroup filesystem. It tries cgroup v2 first (/sys/fs/cgroup/memory.max),
// then falls back to cgroup v1
// (/sys/fs/cgroup/memory/memory.limit_in_bytes). Returns 0, nil when
// neither file exists (bare metal, VMs) or cgroup v2 reports "max". The
// cgroup v1 value is returned as read, so an unlimited v1 container
// reports its very large sentinel value, not 0.
func MemoryLimit() (int64, error) {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		limitStr := strings.TrimSpace(string(data))
		if limitStr != "max" {
			return strconv.ParseInt(limitStr, 10, 64)
		}
		return 0, nil
	}

	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	}

	return 0, nil
}

// ContainerCPU reads CPU usage relative to the container's cgroup quota.
type ContainerCPU struct {
	mu             sync.Mutex
	lastCPUUsec    uint64
	lastSampleTime time.Time
	cgroupVersion  int
	cgroupPath     string
	numCPUsAlloc   float64
}

// NewContainerCPU detects the cgroup version/path and initializes the
// first usage sample.
func NewContainerCPU() (*ContainerCPU, error) {
	path, version, err := detectCgroupPath()
	if err != nil {
		return nil, fmt.Errorf("detect cgroup: %w", err)
	}

	quota, period, err := readCPUQuota(path, version)
	if err != nil {
		return nil, fmt.Errorf("read cpu quota: %w", err)
	}

	cc := &ContainerCPU{
		lastSampleTime: time.Now(),
		cgroupPath:     path,
		cgroupVersion:  version,
	}
	if quota > 0 && period > 0 {
		cc.numCPUsAlloc = float64(quota) / float64(period)
	} else {
		cc.numCPUsAlloc = float64(runtime.NumCPU())
	}

	usage, err := readCPUUsage(path, version)
	if err != nil {
		return nil, fmt.Errorf("read initial cpu usage: %w", err)
	}
	cc.lastCPUUsec = usage

	return cc, nil
}

// Percent returns CPU usage as a percentage of the container's allocated
// CPUs, measured since the previous call.
func (cc *ContainerCPU) Percent() (float64, error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	now := time.Now()
	timeDeltaUsec := now.Sub(cc.lastSampleTime).Microseconds()
	if timeDeltaUsec == 0 {
		return 0, fmt.Errorf("time delta too small")
	}

	currentUsec, err := readCPUUsage(cc.cgroupPath, cc.cgroupVersion)
	if err != nil {
		return 0, err
	}
	usageDelta := currentUsec - cc.lastCPUUsec

	rawPercent := (float64(usageDelta) / float64(timeDeltaUsec)) * 100.0
	percent := rawPercent / cc.numCPUsAlloc

	cc.lastCPUUsec = currentUsec
	cc.lastSampleTime = now
	return percent, nil
}

// Allocation returns the number of CPUs allocated to the container.
func (cc *ContainerCPU) Allocation() float64 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.numCPUsAlloc
}

func detectCgroupPath() (path string, version int, err error) {
	f, err := os.Open("/proc/self/cgroup")
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		parts := strings.Split(scanner.Text(), ":")
		if len(parts) != 3 {
			continue
		}
		if parts[0] == "0" && parts[1] == "" {
			return "/sys/fs/cgroup" + parts[2], 2, nil
		}
		if strings.Contains(parts[1], "cpu") {
			return "/sys/fs/cgroup/cpu" + parts[2], 1, nil
		}
	}
	return "", 0, fmt.Errorf("could not detect cgroup path")
}

func readCPUQuota(cgroupPath string, version int) (quota, period int64, err error) {
	if version == 2 {
		data, err := os.ReadFile(cgroupPath + "/cpu.max")
		if err != nil {
			return 0, 0, err
		}
		fields := strings.Fields(string(data))
		if len(fields) != 2 {
			return 0, 0, fmt.Errorf("unexpected cpu.max format: %s", string(data))
		}
		if fields[0] == "max" {
			return -1, 0, nil
		}
		quota, err = strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return 0, 0, err
		}
		period, err = strconv.ParseInt(fields[1], 10, 64)
		return quota, period, err
	}

	quotaData, err := os.ReadFile(cgroupPath + "/cpu.cfs_quota_us")
	if err != nil {
		return 0, 0, err
	}
	periodData, err := os.ReadFile(cgroupPath + "/cpu.cfs_period_us")
	if err != nil {
		return 0, 0, err
	}
	quota, err = strconv.ParseInt(strings.TrimSpace(string(quotaData)), 10, 64)
	if err != nil {
		return 0, 0, err
	}
	period, err = strconv.ParseInt(strings.TrimSpace(string(periodData)), 10, 64)
	return quota, period, err
}

func readCPUUsage(cgroupPath string, version int) (uint64, error) {
	if version == 2 {
		f, err := os.Open(cgroupPath + "/cpu.stat")
		if err != nil {
			return 0, err
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "usage_usec ") {
				fields := strings.Fields(line)
				if len(fields) == 2 {
					return strconv.ParseUint(fields[1], 10, 64)
				}
			}
		}
		return 0, fmt.Errorf("usage_usec not found in cpu.stat")
	}

	data, err := os.ReadFile(cgroupPath + "/cpuacct.usage")
	if err != nil {
		return 0, err
	}
	nsec, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, err
	}
	return nsec / 1000, nil
}

// Monitor provides unified CPU/memory measurement, falling back to host
// measurement via gopsutil when cgroup detection fails (bare metal, VMs,
// non-Linux development environments).
type Monitor struct {
	mode         string
	containerCPU *ContainerCPU
	logger       zerolog.Logger
}

// NewMonitor creates a Monitor, attempting container-aware CPU
// measurement first.
func NewMonitor(logger zerolog.Logger) *Monitor {
	containerCPU, err := NewContainerCPU()
	if err == nil {
		logger.Info().
			Int("cgroup_version", containerCPU.cgroupVersion).
			Float64("cpus_allocated", containerCPU.Allocation()).
			Msg("using container-aware CPU measurement")
		return &Monitor{mode: "container", containerCPU: containerCPU, logger: logger}
	}

	logger.Warn().Err(err).Msg("falling back to host CPU measurement")
	return &Monitor{mode: "host", logger: logger}
}

// CPUPercent returns CPU usage: relative to container allocation in
// container mode, or relative to total host CPUs in host mode.
func (m *Monitor) CPUPercent() (float64, error) {
	if m.mode == "container" {
		return m.containerCPU.Percent()
	}
	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("no cpu data")
	}
	return percents[0], nil
}

// Mode reports "container" or "host".
func (m *Monitor) Mode() string { return m.mode }

// Snapshot is a point-in-time resource reading for /healthz.
type Snapshot struct {
	Mode          string  `json:"mode"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryAlloc   uint64  `json:"memory_alloc_bytes"`
	MemoryLimit   int64   `json:"memory_limit_bytes"`
	NumGoroutines int     `json:"num_goroutines"`
}

// Snapshot gathers a full resource reading, logging but not failing on a
// CPU-read error (first sample, or cgroup file transiently unreadable).
func (m *Monitor) Snapshot() Snapshot {
	cpuPercent, err := m.CPUPercent()
	if err != nil {
		m.logger.Debug().Err(err).Msg("cpu sample unavailable")
	}

	memLimit, err := MemoryLimit()
	if err != nil {
		m.logger.Debug().Err(err).Msg("memory limit unavailable")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return Snapshot{
		Mode:          m.mode,
		CPUPercent:    cpuPercent,
		MemoryAlloc:   mem.Alloc,
		MemoryLimit:   memLimit,
		NumGoroutines: runtime.NumGoroutine(),
	}
}

// DefaultAgentCapacityFloor picks a ParallelAgent capacity floor from
// available memory when Settings leaves GRAPHSERVER_MIN_AGENT_CAPACITY
// unset (0): generous on an unconstrained host, conservative under a
// small container limit.
func DefaultAgentCapacityFloor(memoryLimitBytes int64) int {
	const (
		minFloor = 10
		maxFloor = 500
	)
	if memoryLimitBytes <= 0 {
		return 50
	}
	floor := int(memoryLimitBytes / (8 * 1024 * 1024))
	if floor < minFloor {
		return minFloor
	}
	if floor > maxFloor {
		return maxFloor
	}
	return floor
}
