package system

import (
	"bytes"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

func getRAMInfo() (*RAMInfo, error) {
	totalOutput, err := exec.Command("sysctl", "-n", "hw.memsize").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to get total memory: %w", err)
	}
	total, err := strconv.ParseInt(strings.TrimSpace(string(totalOutput)), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse total memory: %w", err)
	}

	vmOutput, err := exec.Command("vm_stat").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to get vm_stat: %w", err)
	}
	available, err := parseVMStat(bytes.NewReader(vmOutput))
	if err != nil {
		return nil, err
	}
	available = min(available, total)

	return &RAMInfo{
		TotalBytes:     total,
		AvailableBytes: available,
		UsedBytes:      total - available,
	}, nil
}
