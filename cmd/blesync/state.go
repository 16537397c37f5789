package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/blesync/central"
)

// stateCmd represents the state command
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the Bluetooth adapter state",
	Long: `Queries the local Bluetooth adapter and prints its power state:
unknown, unsupported, poweredOff, poweredOn, turningOff or turningOn.`,
	Args: cobra.NoArgs,
	RunE: runState,
}

var stateFormat string

func init() {
	stateCmd.Flags().StringVarP(&stateFormat, "format", "f", "", "Output format (text, json); defaults to the configured output_format")
}

func runState(cmd *cobra.Command, _ []string) error {
	env, err := newCommandEnv(cmd)
	if err != nil {
		return err
	}
	defer env.close()

	format, err := env.outputFormat(stateFormat)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	c := central.New(env.driver, central.SinkFunc(func(central.Event) {}), env.logger, env.cfg.QueueOptions())
	defer c.Close()

	state := c.AdapterState()

	if format == "json" {
		raw, err := central.MarshalEvent(central.StateChange{State: state.String()})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), state.String())
	return err
}
