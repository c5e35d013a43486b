//go:build !opencl || !cgo

package opencl

import (
	"github.com/xupit3r/membench/internal/device"
)

// Available reports whether the package was built against OpenCL.
const Available = false

func unavailable(op string) error {
	return device.Errorf(op, device.DeviceNotFound, "OpenCL support requires CGO (build with: go build -tags opencl)")
}

// Platforms reports that OpenCL was not compiled in.
func Platforms() ([]device.PlatformInfo, error) {
	return nil, unavailable("list platforms")
}

// Open reports that OpenCL was not compiled in.
func Open(path string, platform, dev int) (device.Context, error) {
	return nil, unavailable("open device")
}
