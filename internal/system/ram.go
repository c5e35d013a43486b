// Package system probes the host the benchmark runs on.
package system

import (
	"fmt"
	"runtime"
)

// RAMInfo contains information about system memory
type RAMInfo struct {
	TotalBytes     int64
	AvailableBytes int64
	UsedBytes      int64
}

// GetRAMInfo returns information about system RAM
func GetRAMInfo() (*RAMInfo, error) {
	return getRAMInfo()
}

// FormatBytes formats bytes as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// HostFootprint is the host memory one run of size float32 elements keeps
// alive: source and destination, plus their host shadows when the run
// copies instead of mapping.
func HostFootprint(size int, copies bool) int64 {
	bytes := int64(size) * 4 * 2
	if copies {
		bytes *= 2
	}
	return bytes
}

// CheckHeadroom reports an error when need exceeds the available RAM.
// Hosts whose memory cannot be probed pass.
func CheckHeadroom(need int64) error {
	info, err := GetRAMInfo()
	if err != nil {
		return nil
	}
	if info.AvailableBytes > 0 && need > info.AvailableBytes {
		return fmt.Errorf("run needs %s of host memory, %s available",
			FormatBytes(need), FormatBytes(info.AvailableBytes))
	}
	return nil
}

// GetPlatform returns the current platform
func GetPlatform() string {
	return runtime.GOOS
}

// GetArchitecture returns the system architecture
func GetArchitecture() string {
	return runtime.GOARCH
}
