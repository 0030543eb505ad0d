package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"nvrexport/internal/models"
	"nvrexport/pkg/utils"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List camera channels on the NVR",
	Long: `List the camera channels configured on the NVR, ordered by channel id.

The connection is taken from configuration unless overridden with flags.`,
	Example: `  # List channels
  nvrexport channels --host 192.168.1.100 --user admin

  # With API debug logging
  nvrexport channels --host 192.168.1.100 --user admin --debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChannels(cmd)
	},
}

func runChannels(cmd *cobra.Command) error {
	timeout, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	client, err := openClient(ctx, cmd)
	if err != nil {
		utils.PrintError(err, "channels")
		return err
	}
	defer client.Session().Close()

	channels, err := client.ListChannels(ctx)
	if err != nil {
		utils.PrintError(err, "channels")
		return err
	}

	result := models.ChannelListResult{
		Host:     client.Session().Host(),
		Channels: channels,
		Total:    len(channels),
	}
	if err := utils.PrintJSON(result); err != nil {
		utils.PrintError(err, "channels")
		return err
	}

	if isVerbose(cmd) {
		cmd.PrintErrf("Found %d channels\n", len(channels))
	}
	return nil
}

func init() {
	channelsCmd.Flags().Int("timeout", 120, "Timeout in seconds for the operation")
}
