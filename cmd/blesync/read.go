package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blesync/central"
	"github.com/srg/blesync/inspector"
	"github.com/srg/blesync/internal/device"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> <service-uuid> <characteristic-uuid>",
	Short: "Read a characteristic value",
	Long: fmt.Sprintf(`Connects to a device, reads one characteristic and prints the value.

Examples:
  # Read Battery Level
  blesync read %s 180f 2a19

  # Output as hex
  blesync read %s 180d 2a37 --hex

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(3),
	RunE: runRead,
}

var (
	readHex     bool
	readTimeout time.Duration
)

func init() {
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Output as hex string (e.g., 'FF01'); raw bytes by default")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 5*time.Second, "How long to wait for the value")
}

func runRead(cmd *cobra.Command, args []string) error {
	address := args[0]
	ids, err := device.ValidateUUID(args[1], args[2])
	if err != nil {
		return err
	}
	service, characteristic := ids[0], ids[1]

	env, err := newCommandEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Reading %s from %s", characteristic, address), "Connecting", "Processing results", "Failed")
	progress.Start()
	defer progress.Stop()

	ctx := cmd.Context()
	value, err := inspector.InspectDevice(ctx, env.driver, address, inspectOptions(env, 0), env.logger, progress.Callback(),
		func(t *inspector.Target) (central.Bytes, error) {
			return readValue(ctx, t, service, characteristic, readTimeout)
		})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if readHex {
		_, err = fmt.Fprintln(out, strings.ToUpper(hex.EncodeToString(value)))
		return err
	}
	_, err = out.Write(value)
	return err
}

// readValue queues a read and waits for its data event.
func readValue(ctx context.Context, t *inspector.Target, service, characteristic string, timeout time.Duration) (central.Bytes, error) {
	if err := t.Central.Read(t.Address, service, characteristic); err != nil {
		return nil, err
	}
	ev, err := t.Await(ctx, timeout, func(ev central.Event) bool {
		d, ok := ev.(central.Data)
		return ok && !d.IsNotification && sameChar(d.Service, d.Characteristic, service, characteristic)
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", characteristic, err)
	}
	return ev.(central.Data).Value, nil
}

func sameChar(gotService, gotChar, service, characteristic string) bool {
	return device.SameID(gotService, service) && device.SameID(gotChar, characteristic)
}
