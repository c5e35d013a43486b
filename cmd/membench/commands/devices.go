package commands

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xupit3r/membench/internal/system"
)

func newDevicesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List platforms and devices",
		Long: `Display the platforms and devices the selected backend can open,
with the platform and device indexes 'membench run' takes, followed by
host system information.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(cmd, o)
		},
	}
}

func runDevices(cmd *cobra.Command, o *options) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		if isConfigError(err) {
			return o.configError(err)
		}
		return err
	}
	out := cmd.OutOrStdout()
	rule := strings.Repeat("═", 55)

	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, "  Membench Devices")
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Backend: %s\n\n", cfg.Bench.Backend)

	platforms, err := ListPlatforms(cfg.Bench.Backend)
	if err != nil {
		fmt.Fprintf(out, "Device Error: %v\n\n", err)
		fmt.Fprintln(out, "Available backends:")
		fmt.Fprintln(out, "  • sim    - In-process simulated accelerator")
		fmt.Fprintln(out, "  • opencl - OpenCL runtime (build with -tags opencl)")
		if isConfigError(err) {
			return o.configError(err)
		}
		return err
	}

	for i, p := range platforms {
		fmt.Fprintf(out, "Platform %d: %s\n", i, p.Name)
		fmt.Fprintf(out, "   Vendor: %s\n", p.Vendor)
		fmt.Fprintf(out, "   Version: %s\n", p.Version)
		if len(p.Devices) == 0 {
			fmt.Fprintln(out, "   (no devices)")
		}
		for j, d := range p.Devices {
			fmt.Fprintf(out, "   Device %d: %s\n", j, DeviceName(d))
			fmt.Fprintf(out, "      Type: %s\n", d.Type)
			if d.Version != "" {
				fmt.Fprintf(out, "      Version: %s\n", d.Version)
			}
			fmt.Fprintf(out, "      Compute units: %d\n", d.ComputeUnits)
			if d.GlobalMemBytes > 0 {
				fmt.Fprintf(out, "      Global memory: %s\n", system.FormatBytes(d.GlobalMemBytes))
			}
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, "System Information:")
	fmt.Fprintf(out, "   OS: %s\n", system.GetPlatform())
	fmt.Fprintf(out, "   Arch: %s\n", system.GetArchitecture())
	fmt.Fprintf(out, "   CPUs: %d\n", runtime.NumCPU())
	if ram, err := system.GetRAMInfo(); err == nil {
		fmt.Fprintf(out, "   RAM: %s total, %s available\n",
			system.FormatBytes(ram.TotalBytes), system.FormatBytes(ram.AvailableBytes))
	} else {
		fmt.Fprintf(out, "   RAM: unknown (%v)\n", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, rule)

	return nil
}
