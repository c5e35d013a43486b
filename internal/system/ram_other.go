//go:build !linux && !darwin && !windows

package system

import (
	"errors"
	"runtime"
)

func getRAMInfo() (*RAMInfo, error) {
	return nil, errors.New("host memory probing is not supported on " + runtime.GOOS)
}
