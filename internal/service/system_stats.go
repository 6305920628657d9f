package service

import (
	"log"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"golang.org/x/sync/errgroup"

	"apache-log-sentinel/internal/config"
)

// HostSnapshot is one live reading of the host the analyzer runs on.
type HostSnapshot struct {
	CPUUsage      float64 `json:"cpu_usage"`
	MemoryUsage   float64 `json:"memory_usage"`
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryUsed    uint64  `json:"memory_used"`
	DiskUsage     float64 `json:"disk_usage"`
	DiskTotal     uint64  `json:"disk_total"`
	DiskUsed      uint64  `json:"disk_used"`
	DiskPath      string  `json:"disk_path"`
	NetworkIn     uint64  `json:"network_in"`
	NetworkOut    uint64  `json:"network_out"`
	UptimeSeconds uint64  `json:"uptime_seconds"`
	Hostname      string  `json:"hostname"`
	OS            string  `json:"os"`
	Platform      string  `json:"platform"`
	KernelVersion string  `json:"kernel_version"`
	GoVersion     string  `json:"go_version"`
	Goroutines    int     `json:"goroutines"`
}

// SystemStatsService reads host resources on demand. Probes that fail leave
// their fields zeroed rather than failing the snapshot.
type SystemStatsService struct {
	startedAt time.Time
	diskPath  string
}

func NewSystemStatsService() *SystemStatsService {
	return &SystemStatsService{
		startedAt: time.Now(),
		diskPath:  "/",
	}
}

// Uptime reports how long this process has been serving.
func (s *SystemStatsService) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// Snapshot probes the host concurrently. The CPU reading samples for
// CPUSamplingDuration, so the remaining probes run in its shadow; each probe
// writes its own fields only.
func (s *SystemStatsService) Snapshot() HostSnapshot {
	snapshot := HostSnapshot{
		DiskPath:   s.diskPath,
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
	}

	var g errgroup.Group

	g.Go(func() error {
		cpuPercent, err := cpu.Percent(config.CPUSamplingDuration, false)
		if err != nil {
			return err
		}
		if len(cpuPercent) > 0 {
			snapshot.CPUUsage = cpuPercent[0]
		}
		return nil
	})

	g.Go(func() error {
		memStats, err := mem.VirtualMemory()
		if err != nil {
			return err
		}
		snapshot.MemoryUsage = memStats.UsedPercent
		snapshot.MemoryTotal = memStats.Total
		snapshot.MemoryUsed = memStats.Used
		return nil
	})

	g.Go(func() error {
		diskStats, err := disk.Usage(s.diskPath)
		if err != nil {
			return err
		}
		snapshot.DiskUsage = diskStats.UsedPercent
		snapshot.DiskTotal = diskStats.Total
		snapshot.DiskUsed = diskStats.Used
		return nil
	})

	g.Go(func() error {
		netStats, err := net.IOCounters(false)
		if err != nil {
			return err
		}
		if len(netStats) > 0 {
			snapshot.NetworkIn = netStats[0].BytesRecv
			snapshot.NetworkOut = netStats[0].BytesSent
		}
		return nil
	})

	g.Go(func() error {
		hostInfo, err := host.Info()
		if err != nil {
			return err
		}
		snapshot.UptimeSeconds = hostInfo.Uptime
		snapshot.Hostname = hostInfo.Hostname
		snapshot.OS = hostInfo.OS
		snapshot.Platform = hostInfo.Platform
		snapshot.KernelVersion = hostInfo.KernelVersion
		return nil
	})

	// A failed probe leaves its fields zeroed, the snapshot still serves
	if err := g.Wait(); err != nil {
		log.Printf("[SystemStats] Partial host snapshot: %v", err)
	}

	return snapshot
}
