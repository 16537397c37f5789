package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blesync/central"
	"github.com/srg/blesync/inspector"
	"github.com/srg/blesync/internal/device"
)

// notifyCmd represents the notify command
var notifyCmd = &cobra.Command{
	Use:   "notify <device-address> <service-uuid> <characteristic-uuid>",
	Short: "Print characteristic notifications",
	Long: fmt.Sprintf(`Subscribes to a characteristic and prints every pushed value until
--count values arrived, --duration elapsed or Ctrl+C is pressed.

Examples:
  # Print ten heart rate measurements
  blesync notify %s 180d 2a37 --count 10

  # Stream values as JSON events for a minute
  blesync notify %s 180d 2a37 --duration 1m --format json

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(3),
	RunE: runNotify,
}

var (
	notifyCount    int
	notifyDuration time.Duration
	notifyTimeout  time.Duration
	notifyFormat   string
)

func init() {
	notifyCmd.Flags().IntVarP(&notifyCount, "count", "n", 0, "Stop after this many notifications (0 for no limit)")
	notifyCmd.Flags().DurationVarP(&notifyDuration, "duration", "d", 0, "Stop after this long (0 for no limit)")
	notifyCmd.Flags().DurationVar(&notifyTimeout, "timeout", 5*time.Second, "How long to wait for the subscription to be acknowledged")
	notifyCmd.Flags().StringVarP(&notifyFormat, "format", "f", "", "Output format (text, json)")
}

func runNotify(cmd *cobra.Command, args []string) error {
	address := args[0]
	ids, err := device.ValidateUUID(args[1], args[2])
	if err != nil {
		return err
	}
	service, characteristic := ids[0], ids[1]
	if notifyCount < 0 {
		return fmt.Errorf("--count must not be negative")
	}

	env, err := newCommandEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	format, err := env.outputFormat(notifyFormat)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if notifyDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, notifyDuration)
		defer cancel()
	}

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Subscribing to %s on %s", characteristic, address), "Connecting", "Processing results", "Failed")
	progress.Start()
	defer progress.Stop()

	out := cmd.OutOrStdout()
	_, err = inspector.InspectDevice(ctx, env.driver, address, inspectOptions(env, 0), env.logger, progress.Callback(),
		func(t *inspector.Target) (any, error) {
			if err := setNotify(ctx, t, service, characteristic, true, notifyTimeout); err != nil {
				return nil, err
			}
			received, err := printNotifications(ctx, t, service, characteristic, notifyCount, format, out)

			// best effort; the link is closed right after anyway
			if !errors.Is(err, ErrConnectionLost) {
				unsubCtx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
				defer cancel()
				if uerr := setNotify(unsubCtx, t, service, characteristic, false, notifyTimeout); uerr != nil {
					env.logger.WithError(uerr).Debug("failed to unsubscribe")
				}
			}
			env.logger.WithField("count", received).Debug("notifications received")
			return nil, err
		})
	return err
}

// setNotify queues a subscription change and waits for the acknowledgement.
func setNotify(ctx context.Context, t *inspector.Target, service, characteristic string, enable bool, timeout time.Duration) error {
	if err := t.Central.Notify(t.Address, service, characteristic, enable); err != nil {
		return err
	}
	_, err := t.Await(ctx, timeout, func(ev central.Event) bool {
		ack, ok := ev.(central.NotifyAck)
		return ok && ack.Enabled == enable && sameChar(ack.Service, ack.Characteristic, service, characteristic)
	})
	if err != nil {
		return fmt.Errorf("notify %s: %w", characteristic, err)
	}
	return nil
}

// printNotifications writes pushed values until count is reached or ctx ends.
// A dropped link ends it with ErrConnectionLost.
func printNotifications(ctx context.Context, t *inspector.Target, service, characteristic string, count int, format string, w io.Writer) (int, error) {
	received := 0
	for count == 0 || received < count {
		select {
		case <-ctx.Done():
			return received, nil
		case ev := <-t.Events():
			switch e := ev.(type) {
			case central.Data:
				if !e.IsNotification || !sameChar(e.Service, e.Characteristic, service, characteristic) {
					continue
				}
				received++
				if err := writeNotification(w, e, format); err != nil {
					return received, err
				}
			case central.Disconnected:
				if e.Error != nil {
					return received, fmt.Errorf("%w: %w", ErrConnectionLost, e.Error)
				}
				return received, ErrConnectionLost
			}
		}
	}
	return received, nil
}

func writeNotification(w io.Writer, d central.Data, format string) error {
	if format == "json" {
		return writeEvent(w, d)
	}
	_, err := fmt.Fprintf(w, "%s %s\n", time.Now().Format("15:04:05.000"), strings.ToUpper(hex.EncodeToString(d.Value)))
	return err
}
