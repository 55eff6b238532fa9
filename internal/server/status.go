// Package server: self-telemetry for the NetGraph server process.
// Uses gopsutil for cross-platform system metrics.
package server

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
)

// statusSnapshot is the payload of GET /api/status.
type statusSnapshot struct {
	Hostname       string    `json:"hostname"`
	OS             string    `json:"os"`
	CPUUsage       float64   `json:"cpu_usage"`  // percent 0-100
	MemUsage       float64   `json:"mem_usage"`  // percent 0-100
	DiskUsage      float64   `json:"disk_usage"` // percent 0-100 (largest mount)
	TCPConnections int       `json:"tcp_connections"`
	CollectedAt    time.Time `json:"collected_at"`
}

// handleStatus reports server health: useful when the discovery worker pool
// is suspected of starving the host.
func handleStatus(c *gin.Context) {
	snap := statusSnapshot{CollectedAt: time.Now()}

	if h, err := os.Hostname(); err == nil {
		snap.Hostname = h
	}
	if info, err := host.Info(); err == nil {
		snap.OS = info.Platform
		if info.PlatformVersion != "" {
			snap.OS += " " + info.PlatformVersion
		}
	}
	if pcts, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pcts) > 0 {
		snap.CPUUsage = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemUsage = vm.UsedPercent
	}
	snap.DiskUsage = maxDiskUsage()
	if conns, err := psnet.Connections("tcp"); err == nil {
		snap.TCPConnections = len(conns)
	}

	c.JSON(http.StatusOK, gin.H{"data": snap})
}

// maxDiskUsage returns the used percentage of the partition with highest usage.
func maxDiskUsage() float64 {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return 0
	}
	var max float64
	for _, p := range partitions {
		usage, err := disk.Usage(p.Mountpoint)
		if err != nil {
			continue
		}
		if usage.UsedPercent > max {
			max = usage.UsedPercent
		}
	}
	return max
}
