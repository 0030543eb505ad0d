package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"nvrexport/internal/s3client"
	"nvrexport/pkg/utils"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [files/folders...]",
	Short: "Upload finished exports to the archive bucket",
	Long: `Upload exported recordings to the S3-compatible archive bucket.

By default the given files and folders are zipped into one archive before
uploading. Use --no-archive to upload the video files individually.
In-progress .partial files are never uploaded.

The bucket and credentials come from configuration (BUCKET_NAME, REGION,
ACCESS_KEY, SECRET_KEY, API_URL).`,
	Example: `  # Archive and upload one export run
  nvrexport upload ./exports

  # Upload individual files to a dated folder
  nvrexport upload ./exports --destination "nvr/2024-12-28" --no-archive`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpload(cmd, args)
	},
}

func runUpload(cmd *cobra.Command, args []string) error {
	destination, _ := cmd.Flags().GetString("destination")
	noArchive, _ := cmd.Flags().GetBool("no-archive")

	if err := utils.ValidatePaths(args); err != nil {
		utils.PrintError(err, "upload")
		return err
	}

	client, err := s3client.New(cfg)
	if err != nil {
		utils.PrintError(err, "upload")
		return err
	}

	timeout, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	if isVerbose(cmd) {
		cmd.PrintErrf("Uploading %v to bucket %s\n", args, cfg.BucketName)
	}

	result, err := client.UploadExports(ctx, args, destination, !noArchive)
	if err != nil {
		utils.PrintError(err, "upload")
		return err
	}

	if err := utils.PrintJSON(result); err != nil {
		utils.PrintError(err, "upload")
		return err
	}

	if isVerbose(cmd) {
		cmd.PrintErrln("Upload completed successfully")
	}
	return nil
}

func init() {
	uploadCmd.Flags().String("destination", "", "Destination path in the bucket (default: bucket root)")
	uploadCmd.Flags().Bool("no-archive", false, "Upload files individually instead of zipping them")
	uploadCmd.Flags().Int("timeout", 3600, "Timeout in seconds for the operation")
}
