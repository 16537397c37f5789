package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blesync/central"
	"github.com/srg/blesync/inspector"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address>",
	Short: "Inspect services, characteristics, and descriptors of a BLE device",
	Long: fmt.Sprintf(`Connects to a BLE device by address and lists its services,
characteristics, and descriptors in discovery order. With --read, readable
characteristics are read one at a time through the operation queue.

Examples:
  blesync inspect %s
  blesync inspect %s --read --format json

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectConnectTimeout time.Duration
	inspectReadValues     bool
	inspectReadTimeout    time.Duration
	inspectFormat         string
)

func init() {
	inspectCmd.Flags().DurationVar(&inspectConnectTimeout, "connect-timeout", 0, "Connection timeout (default: the configured connect_timeout)")
	inspectCmd.Flags().BoolVar(&inspectReadValues, "read", false, "Read the value of every readable characteristic")
	inspectCmd.Flags().DurationVar(&inspectReadTimeout, "timeout", 2*time.Second, "How long to wait for each value with --read")
	inspectCmd.Flags().StringVarP(&inspectFormat, "format", "f", "", "Output format (text, json)")
}

type characteristicReport struct {
	UUID        string         `json:"uuid"`
	Properties  []string       `json:"properties"`
	Descriptors []string       `json:"descriptors"`
	Value       *central.Bytes `json:"value,omitempty"`
	ReadError   string         `json:"readError,omitempty"`
}

type serviceReport struct {
	UUID            string                 `json:"uuid"`
	Characteristics []characteristicReport `json:"characteristics"`
}

type deviceReport struct {
	Address  string          `json:"address"`
	Services []serviceReport `json:"services"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	address := args[0]

	env, err := newCommandEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	format, err := env.outputFormat(inspectFormat)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	opts := inspectOptions(env, inspectConnectTimeout)
	ctx := cmd.Context()

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Inspecting device %s", address), "Connecting", "Processing results", "Failed")
	progress.Start()
	defer progress.Stop()

	report, err := inspector.InspectDevice(ctx, env.driver, address, opts, env.logger, progress.Callback(),
		func(t *inspector.Target) (*deviceReport, error) {
			return collectReport(ctx, t, inspectReadValues, inspectReadTimeout)
		})
	if err != nil {
		return err
	}

	if format == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}
	return displayReport(cmd.OutOrStdout(), report)
}

// collectReport walks the discovered topology. Values are read sequentially; a value that
// never arrives is recorded as a read error and the walk goes on.
func collectReport(ctx context.Context, t *inspector.Target, readValues bool, timeout time.Duration) (*deviceReport, error) {
	report := &deviceReport{Address: t.Address, Services: []serviceReport{}}

	for _, svc := range t.Central.DiscoverServices(t.Address, nil) {
		sr := serviceReport{UUID: svc, Characteristics: []characteristicReport{}}

		for _, ch := range t.Central.DiscoverCharacteristics(t.Address, svc, nil) {
			cr := characteristicReport{
				UUID:        ch.UUID,
				Properties:  ch.Properties,
				Descriptors: t.Central.DiscoverDescriptors(t.Address, svc, ch.UUID),
			}

			if readValues && hasProperty(ch.Properties, "read") {
				value, err := readValue(ctx, t, svc, ch.UUID, timeout)
				switch {
				case ctx.Err() != nil:
					return nil, ctx.Err()
				case err != nil:
					cr.ReadError = err.Error()
				default:
					cr.Value = &value
				}
			}
			sr.Characteristics = append(sr.Characteristics, cr)
		}
		report.Services = append(report.Services, sr)
	}
	return report, nil
}

func displayReport(w io.Writer, report *deviceReport) error {
	serviceColor := color.New(color.FgCyan, color.Bold)
	charColor := color.New(color.FgGreen)
	errColor := color.New(color.FgRed)

	fmt.Fprintf(w, "Device %s\n", report.Address)
	if len(report.Services) == 0 {
		fmt.Fprintln(w, "  No services discovered")
		return nil
	}

	for _, svc := range report.Services {
		serviceColor.Fprintf(w, "  Service %s\n", svc.UUID)
		for _, ch := range svc.Characteristics {
			charColor.Fprintf(w, "    Characteristic %s", ch.UUID)
			fmt.Fprintf(w, " [%s]\n", strings.Join(ch.Properties, ", "))
			for _, desc := range ch.Descriptors {
				fmt.Fprintf(w, "      Descriptor %s\n", desc)
			}
			switch {
			case ch.ReadError != "":
				errColor.Fprintf(w, "      Value: %s\n", ch.ReadError)
			case ch.Value != nil:
				fmt.Fprintf(w, "      Value: %s\n", strings.ToUpper(hex.EncodeToString(*ch.Value)))
			}
		}
	}
	return nil
}

func inspectOptions(env *commandEnv, connectTimeout time.Duration) *inspector.InspectOptions {
	opts := inspector.DefaultInspectOptions()
	opts.ConnectTimeout = env.cfg.ConnectTimeout
	if connectTimeout > 0 {
		opts.ConnectTimeout = connectTimeout
	}
	opts.EventBuffer = eventBuffer(env.cfg.EventBuffer)
	opts.Queue = env.cfg.QueueOptions()
	return opts
}

func hasProperty(props []string, name string) bool {
	for _, p := range props {
		if p == name {
			return true
		}
	}
	return false
}
