package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xupit3r/membench/internal/config"
	"github.com/xupit3r/membench/internal/device"
	"github.com/xupit3r/membench/internal/device/opencl"
	"github.com/xupit3r/membench/internal/device/sim"
)

// Backends names the device backends OpenBackend accepts.
var Backends = []string{"sim", "opencl"}

// OpenBackend opens the device selected by cfg.
func OpenBackend(cfg *config.BenchConfig) (device.Context, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "sim":
		dev, err := sim.Open(cfg.Platform, cfg.Device)
		if err != nil {
			return nil, fmt.Errorf("simulated device: %w", err)
		}
		return dev, nil

	case "opencl":
		dev, err := opencl.Open(cfg.Binary, cfg.Platform, cfg.Device)
		if err != nil {
			if !opencl.Available {
				return nil, fmt.Errorf("%w\nUse --backend sim to run on the simulator", err)
			}
			return nil, fmt.Errorf("OpenCL device %d on platform %d: %w\nRun 'membench devices --backend opencl' to list devices", cfg.Device, cfg.Platform, err)
		}
		return dev, nil
	}
	return nil, config.Errorf("bench.backend", "unknown backend %q (want one of %s)", cfg.Backend, strings.Join(Backends, ", "))
}

// ListPlatforms reports the platforms and devices a backend can open.
func ListPlatforms(backend string) ([]device.PlatformInfo, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "sim":
		return sim.Platforms(), nil
	case "opencl":
		return opencl.Platforms()
	}
	return nil, config.Errorf("bench.backend", "unknown backend %q (want one of %s)", backend, strings.Join(Backends, ", "))
}

// DeviceName returns a display name for a device.
func DeviceName(info device.Info) string {
	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = "unnamed device"
	}
	if info.Vendor != "" {
		name = fmt.Sprintf("%s (%s)", name, strings.TrimSpace(info.Vendor))
	}
	return name
}

func isConfigError(err error) bool {
	var cfgErr *config.Error
	return errors.As(err, &cfgErr)
}
