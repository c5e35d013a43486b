package system

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// darwinPageSize is used when vm_stat does not print its page size.
const darwinPageSize = 4096

// parseVMStat returns the available bytes reported by vm_stat output:
// free plus inactive pages.
func parseVMStat(r io.Reader) (int64, error) {
	var freePages, inactivePages int64
	pageSize := int64(darwinPageSize)
	found := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "Pages free:"):
			freePages = vmStatPages(line)
			found = true
		case strings.HasPrefix(line, "Pages inactive:"):
			inactivePages = vmStatPages(line)
		case strings.Contains(line, "page size of"):
			// Mach Virtual Memory Statistics: (page size of 16384 bytes)
			fields := strings.Fields(line[strings.Index(line, "page size of"):])
			if len(fields) >= 4 {
				if n, err := strconv.ParseInt(fields[3], 10, 64); err == nil && n > 0 {
					pageSize = n
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read vm_stat output: %w", err)
	}
	if !found {
		return 0, fmt.Errorf("vm_stat output has no free page count")
	}

	return (freePages + inactivePages) * pageSize, nil
}

func vmStatPages(line string) int64 {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0
	}
	n, _ := strconv.ParseInt(strings.TrimSuffix(fields[len(fields)-1], "."), 10, 64)
	return n
}
