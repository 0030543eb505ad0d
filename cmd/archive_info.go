package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"nvrexport/internal/s3client"
	"nvrexport/pkg/utils"
)

var archiveInfoCmd = &cobra.Command{
	Use:   "archive-info",
	Short: "Show archive bucket usage",
	Long: `Report object count, total size and most recent upload for the
configured archive bucket.`,
	Example: `  # Inspect the archive bucket
  nvrexport archive-info`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runArchiveInfo(cmd)
	},
}

func runArchiveInfo(cmd *cobra.Command) error {
	client, err := s3client.New(cfg)
	if err != nil {
		utils.PrintError(err, "archive-info")
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if isVerbose(cmd) {
		cmd.PrintErrf("Getting archive info for bucket: %s\n", cfg.BucketName)
	}

	info, err := client.GetArchiveInfo(ctx)
	if err != nil {
		utils.PrintError(err, "archive-info")
		return err
	}

	if err := utils.PrintJSON(info); err != nil {
		utils.PrintError(err, "archive-info")
		return err
	}
	return nil
}
