package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blesync/central"
	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for Bluetooth Low Energy devices in the vicinity.

Text output lists every device seen once the scan ends. JSON output streams one
ble.discover event per line as advertisements arrive.

Examples:
  # Scan for 5 seconds
  blesync scan --duration 5s

  # Only heart rate monitors, every advertisement as JSON
  blesync scan --service 180d --allow-duplicates --format json`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration        time.Duration
	scanFormat          string
	scanService         string
	scanAllowList       []string
	scanBlockList       []string
	scanAllowDuplicates bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default: the configured scan_timeout)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (text, json)")
	scanCmd.Flags().StringVarP(&scanService, "service", "s", "", "Only report devices advertising this service UUID")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only report devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Never report devices with these addresses")
	scanCmd.Flags().BoolVar(&scanAllowDuplicates, "allow-duplicates", false, "Report every advertisement, not only the first per device")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanService != "" {
		if _, err := device.ValidateUUID(scanService); err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	env, err := newCommandEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	format, err := env.outputFormat(scanFormat)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	duration := scanDuration
	if duration <= 0 {
		duration = env.cfg.ScanTimeout
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	sink := central.NewChannelSink(eventBuffer(env.cfg.EventBuffer))
	c := central.New(env.driver, sink, env.logger, env.cfg.QueueOptions())
	defer c.Close()

	opts := scanner.Options{
		ServiceFilter:   scanService,
		AllowDuplicates: scanAllowDuplicates,
		AllowList:       scanAllowList,
		BlockList:       scanBlockList,
	}
	if err := c.StartScanWithOptions(opts); err != nil {
		return err
	}

	var progress *ProgressPrinter
	if format == "text" {
		progress = NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", "Scanning", duration)
		progress.Start()
	}

	scanErr := collectDiscoveries(ctx, c, sink.C(), format, cmd.OutOrStdout())
	c.StopScan()
	if progress != nil {
		progress.Stop()
	}
	if scanErr != nil {
		return scanErr
	}

	if format == "text" {
		return displayDevicesTable(cmd.OutOrStdout(), c.Scanner().Devices())
	}
	return nil
}

// collectDiscoveries consumes events until ctx ends. In json format each discovery is written
// as it arrives. A radio that stops the scan on its own ends collection with an error.
func collectDiscoveries(ctx context.Context, c *central.Central, events <-chan central.Event, format string, w io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			// deadline or Ctrl+C both end a scan normally
			return nil
		case ev := <-events:
			switch e := ev.(type) {
			case central.Discovered:
				if format == "json" {
					if err := writeEvent(w, e); err != nil {
						return err
					}
				}
			case central.StateChange:
				if !c.Scanner().Active() {
					return fmt.Errorf("%w: scan stopped, adapter is %s", device.ErrAdapterUnavailable, e.State)
				}
			}
		}
	}
}

func displayDevicesTable(out io.Writer, devices []scanner.Discovery) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "No devices discovered")
		return err
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].RSSI != devices[j].RSSI {
			return devices[i].RSSI > devices[j].RSSI
		}
		return devices[i].Address < devices[j].Address
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tCONNECTABLE\tSERVICES")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, d := range devices {
		name := d.LocalName
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := strings.Join(d.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		connectable := "no"
		if d.Connectable {
			connectable = "yes"
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s\n", name, d.Address, d.RSSI, connectable, services)
	}

	return w.Flush()
}

func writeEvent(w io.Writer, ev central.Event) error {
	raw, err := central.MarshalEvent(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

func eventBuffer(configured int) int {
	if configured <= 0 {
		return 256
	}
	return configured
}
