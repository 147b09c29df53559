package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildtall-systems/vinopack/internal/config"
	"github.com/buildtall-systems/vinopack/internal/messages"
)

var robotOrderID int64

var robotCmd = &cobra.Command{
	Use:   "robot <command>",
	Short: "Send a command to the packing robot",
	Long:  `Publish {"command": <command>} on the robot command channel, optionally naming an order with --order.`,
	Args:  cobra.ExactArgs(1),
	RunE:  sendRobotCommand,
}

func init() {
	robotCmd.Flags().Int64Var(&robotOrderID, "order", 0, "order id to include")
	rootCmd.AddCommand(robotCmd)
}

func sendRobotCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Transport.Backend == config.BackendMemory {
		return fmt.Errorf("robot commands need a shared broker; the %s backend only reaches this process", config.BackendMemory)
	}

	payload, err := messages.EncodeRobotCommand(messages.RobotCommand{Command: args[0], OrderID: robotOrderID})
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	transport, err := openTransport(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = transport.Close() }()

	if err := transport.Publish(cmd.Context(), cfg.Channels.RobotCommand, payload); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %s to %s\n", payload, cfg.Channels.RobotCommand)
	return nil
}
