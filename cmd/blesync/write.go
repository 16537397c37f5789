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

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <service-uuid> <characteristic-uuid> <data>",
	Short: "Write a characteristic value",
	Long: fmt.Sprintf(`Connects to a device and writes data to one characteristic.

Data is taken as UTF-8 text unless --hex is given.

Examples:
  # Write a text command
  blesync write %s ffe0 ffe1 "reset"

  # Write raw bytes
  blesync write %s 180d 2a39 "01 ff" --hex

  # Write without waiting for the peripheral to confirm
  blesync write %s ffe0 ffe1 0x01 --hex --without-response

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(4),
	RunE: runWrite,
}

var (
	writeHex             bool
	writeWithoutResponse bool
	writeTimeout         time.Duration
)

func init() {
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Treat data as hex (spaces, ':', '-' and '0x' are ignored)")
	writeCmd.Flags().BoolVar(&writeWithoutResponse, "without-response", false, "Write without response")
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", 5*time.Second, "How long to wait for the write to be acknowledged")
}

func runWrite(cmd *cobra.Command, args []string) error {
	address := args[0]
	ids, err := device.ValidateUUID(args[1], args[2])
	if err != nil {
		return err
	}
	service, characteristic := ids[0], ids[1]

	data, err := parseWriteData(args[3])
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("no data to write")
	}

	env, err := newCommandEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Writing %s on %s", characteristic, address), "Connecting", "Processing results", "Failed")
	progress.Start()
	defer progress.Stop()

	ctx := cmd.Context()
	_, err = inspector.InspectDevice(ctx, env.driver, address, inspectOptions(env, 0), env.logger, progress.Callback(),
		func(t *inspector.Target) (any, error) {
			return nil, writeValue(ctx, t, service, characteristic, data, writeWithoutResponse, writeTimeout)
		})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", len(data), characteristic)
	return err
}

// parseWriteData decodes the data argument according to --hex.
func parseWriteData(dataStr string) ([]byte, error) {
	if !writeHex {
		return []byte(dataStr), nil
	}

	cleaned := strings.NewReplacer(" ", "", ":", "", "-", "", "0x", "", "0X", "").Replace(dataStr)
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

// writeValue queues a write and waits for the acknowledgement.
func writeValue(ctx context.Context, t *inspector.Target, service, characteristic string, data []byte, withoutResponse bool, timeout time.Duration) error {
	if err := t.Central.Write(t.Address, service, characteristic, data, withoutResponse); err != nil {
		return err
	}
	_, err := t.Await(ctx, timeout, func(ev central.Event) bool {
		ack, ok := ev.(central.WriteAck)
		return ok && sameChar(ack.Service, ack.Characteristic, service, characteristic)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", characteristic, err)
	}
	return nil
}
