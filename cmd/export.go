package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nvrexport/internal/models"
	"nvrexport/internal/nvr"
	"nvrexport/pkg/utils"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Search and download recordings for a time range",
	Long: `Search for recorded segments on one channel within a time range and
download them to the output directory, one file per segment.

Filenames are derived from channel, start time and recording type, so
re-running the same export skips segments that are already fully
downloaded. A failed segment does not stop the rest of the batch; the
final summary lists every segment with its outcome.`,
	Example: `  # Export channel 1 for a whole day
  nvrexport export --host 192.168.1.100 --user admin --channel 1 \
      --start 2024-12-28 --end 2024-12-28 --output ./exports

  # Motion events only, with progress detail
  nvrexport export --channel 1 --start "2024-12-28 00:00" --end "2024-12-28 23:59" \
      --type motion --output ./exports --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd)
	},
}

func runExport(cmd *cobra.Command) error {
	channel, tr, filter, err := searchArgs(cmd)
	if err != nil {
		utils.PrintError(err, "export")
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = cfg.OutputDir
	}
	quiet, _ := cmd.Flags().GetBool("quiet")

	timeout, _ := cmd.Flags().GetInt("timeout")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	client, err := openClient(ctx, cmd)
	if err != nil {
		utils.PrintError(err, "export")
		return err
	}
	defer client.Session().Close()

	if !quiet {
		cmd.PrintErrf("Searching recordings: channel %d, %s to %s, type %s\n",
			channel, tr.Start.Format(time.DateTime), tr.End.Format(time.DateTime), filter)
	}

	recordings, err := client.SearchRecordings(ctx, channel, tr, filter)
	if err != nil {
		utils.PrintError(err, "export")
		return err
	}
	if len(recordings) == 0 {
		cmd.PrintErrln("No recordings found for the specified time range.")
		return nil
	}

	var totalSize int64
	for _, rec := range recordings {
		totalSize += rec.SizeBytes
	}
	if !quiet {
		cmd.PrintErrf("Found %d recordings (%s total)\n", len(recordings), utils.FormatBytes(totalSize))
	}

	var onProgress nvr.ProgressFunc
	if !quiet {
		onProgress = terminalProgress(len(recordings))
	}

	downloader := nvr.NewDownloader(client, logger)
	summary, runErr := downloader.Download(ctx, recordings, output, onProgress)
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}

	if err := utils.PrintJSON(summary); err != nil {
		utils.PrintError(err, "export")
		return err
	}

	if runErr != nil {
		utils.PrintError(runErr, "export")
		return runErr
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrPartialExport, summary.Failed, summary.Total)
	}

	if !quiet {
		cmd.PrintErrf("Exported %d recordings to %s (%d skipped as already present)\n",
			summary.Succeeded, output, summary.Skipped)
	}
	return nil
}

// terminalProgress renders one carriage-return line per update on stderr.
// Update rate is already bounded by the pipeline.
func terminalProgress(total int) nvr.ProgressFunc {
	done := 0
	return func(u nvr.ProgressUpdate) {
		switch u.Status {
		case models.JobStreaming:
			if u.Total > 0 {
				fmt.Fprintf(os.Stderr, "\r[%d/%d] ch%d %s  %s / %s (%3.0f%%)   ",
					done+1, total, u.Recording.ChannelID, u.Recording.StartTime.Format("15:04:05"),
					utils.FormatBytes(u.Bytes), utils.FormatBytes(u.Total),
					float64(u.Bytes)/float64(u.Total)*100)
			} else {
				fmt.Fprintf(os.Stderr, "\r[%d/%d] ch%d %s  %s   ",
					done+1, total, u.Recording.ChannelID, u.Recording.StartTime.Format("15:04:05"),
					utils.FormatBytes(u.Bytes))
			}
		case models.JobPreparing:
			fmt.Fprintf(os.Stderr, "\r[%d/%d] ch%d %s  preparing...          ",
				done+1, total, u.Recording.ChannelID, u.Recording.StartTime.Format("15:04:05"))
		case models.JobCompleted, models.JobSkipped:
			done++
			fmt.Fprintf(os.Stderr, "\r[%d/%d] ch%d %s  %s (%s)          \n",
				done, total, u.Recording.ChannelID, u.Recording.StartTime.Format("15:04:05"),
				u.Status, utils.FormatBytes(u.Bytes))
		case models.JobFailed:
			done++
			fmt.Fprintf(os.Stderr, "\r[%d/%d] ch%d %s  failed          \n",
				done, total, u.Recording.ChannelID, u.Recording.StartTime.Format("15:04:05"))
		}
	}
}

func init() {
	addSearchFlags(exportCmd)
	exportCmd.Flags().StringP("output", "o", "", "Output directory (overrides NVR_OUTPUT_DIR)")
	exportCmd.Flags().BoolP("quiet", "q", false, "Suppress progress output")
	exportCmd.Flags().Int("timeout", 3600, "Timeout in seconds for the whole export")
}
