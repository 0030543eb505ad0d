package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"nvrexport/internal/models"
	"nvrexport/internal/nvr"
	"nvrexport/pkg/utils"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search recordings without downloading",
	Long: `Search for recorded segments on one channel within a time range.

Times accept 'YYYY-MM-DD[ HH:MM[:SS]]' or 'DD.MM.YYYY[ HH:MM[:SS]]'.
A date without a time-of-day covers the whole day.`,
	Example: `  # All recordings on channel 1 for one day
  nvrexport search --channel 1 --start 2024-12-28 --end 2024-12-28

  # Motion recordings only, explicit window
  nvrexport search --channel 1 --start "2024-12-28 08:00" --end "2024-12-28 18:00" --type motion`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd)
	},
}

// searchArgs parses and validates the shared search flags before any
// network call happens.
func searchArgs(cmd *cobra.Command) (int, models.TimeRange, models.RecordType, error) {
	channel, _ := cmd.Flags().GetInt("channel")

	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	tr, err := nvr.ParseTimeRange(start, end)
	if err != nil {
		return 0, models.TimeRange{}, "", err
	}

	typeStr, _ := cmd.Flags().GetString("type")
	filter, err := models.ParseRecordType(typeStr)
	if err != nil {
		return 0, models.TimeRange{}, "", &nvr.Error{Kind: nvr.KindValidation, Op: "parse type filter", Err: err}
	}
	return channel, tr, filter, nil
}

func runSearch(cmd *cobra.Command) error {
	channel, tr, filter, err := searchArgs(cmd)
	if err != nil {
		utils.PrintError(err, "search")
		return err
	}

	timeout, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	client, err := openClient(ctx, cmd)
	if err != nil {
		utils.PrintError(err, "search")
		return err
	}
	defer client.Session().Close()

	if isVerbose(cmd) {
		cmd.PrintErrf("Searching recordings: channel %d, %s to %s, type %s\n",
			channel, tr.Start.Format(time.DateTime), tr.End.Format(time.DateTime), filter)
	}

	recordings, err := client.SearchRecordings(ctx, channel, tr, filter)
	if err != nil {
		utils.PrintError(err, "search")
		return err
	}

	var totalSize int64
	var totalDuration time.Duration
	for _, rec := range recordings {
		totalSize += rec.SizeBytes
		totalDuration += rec.Duration()
	}

	result := models.SearchResult{
		Host:           client.Session().Host(),
		ChannelID:      channel,
		Type:           filter,
		TimeRange:      tr,
		Recordings:     recordings,
		Total:          len(recordings),
		TotalSizeBytes: totalSize,
		TotalSizeHuman: utils.FormatBytes(totalSize),
		TotalDuration:  utils.FormatDuration(totalDuration),
	}
	if err := utils.PrintJSON(result); err != nil {
		utils.PrintError(err, "search")
		return err
	}

	if isVerbose(cmd) {
		cmd.PrintErrf("Found %d recordings (%s)\n", len(recordings), utils.FormatBytes(totalSize))
	}
	return nil
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("channel", "c", 0, "Camera channel ID (1-based, required)")
	cmd.Flags().StringP("start", "s", "", "Start time (required)")
	cmd.Flags().StringP("end", "e", "", "End time (required)")
	cmd.Flags().StringP("type", "t", "all", "Recording type filter (all|continuous|motion|alarm)")
	_ = cmd.MarkFlagRequired("channel")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
}

func init() {
	addSearchFlags(searchCmd)
	searchCmd.Flags().Int("timeout", 300, "Timeout in seconds for the operation")
}
