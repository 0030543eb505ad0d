package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nvrexport/internal/s3client"
	"nvrexport/pkg/utils"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete archived exports older than a cutoff",
	Long: `Delete uploads in the archive bucket that are older than the given
number of days.

WARNING: This operation is irreversible. Deleted exports cannot be
recovered from the bucket.`,
	Example: `  # Drop everything older than 90 days
  nvrexport prune --days 90

  # Preview what would be deleted under one prefix
  nvrexport prune --days 30 --folder "nvr/2024" --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPrune(cmd)
	},
}

func runPrune(cmd *cobra.Command) error {
	days, _ := cmd.Flags().GetInt("days")
	folder, _ := cmd.Flags().GetString("folder")
	confirm, _ := cmd.Flags().GetBool("confirm")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if days <= 0 {
		err := fmt.Errorf("days must be greater than 0")
		utils.PrintError(err, "prune")
		return err
	}

	if !confirm && !dryRun {
		cutoffDate := time.Now().AddDate(0, 0, -days)
		fmt.Printf("WARNING: This will permanently delete exports older than %d days (%s) from bucket '%s'",
			days, cutoffDate.Format("2006-01-02"), cfg.BucketName)
		if folder != "" {
			fmt.Printf(" under '%s'", folder)
		}
		fmt.Println()
		fmt.Print("Are you sure? (yes/no): ")

		var response string
		fmt.Scanln(&response)
		if response != "yes" && response != "y" && response != "YES" {
			fmt.Println("Operation cancelled.")
			return nil
		}
	}

	client, err := s3client.New(cfg)
	if err != nil {
		utils.PrintError(err, "prune")
		return err
	}

	timeout, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	if isVerbose(cmd) {
		cmd.PrintErrf("Pruning exports older than %d days from bucket %s\n", days, cfg.BucketName)
		if dryRun {
			cmd.PrintErrln("DRY RUN MODE: nothing will actually be deleted")
		}
	}

	result, err := client.PruneOldExports(ctx, folder, days, dryRun)
	if err != nil {
		utils.PrintError(err, "prune")
		return err
	}

	if err := utils.PrintJSON(result); err != nil {
		utils.PrintError(err, "prune")
		return err
	}
	return nil
}

func init() {
	pruneCmd.Flags().Int("days", 0, "Delete exports older than this many days (required)")
	_ = pruneCmd.MarkFlagRequired("days")

	pruneCmd.Flags().String("folder", "", "Prefix to prune (default: entire bucket)")
	pruneCmd.Flags().Bool("confirm", false, "Skip confirmation prompt")
	pruneCmd.Flags().Bool("dry-run", false, "Show what would be deleted without deleting")
	pruneCmd.Flags().Int("timeout", 1800, "Timeout in seconds for the operation")
}
