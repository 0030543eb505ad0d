package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nvrexport/config"
	"nvrexport/internal/nvr"
)

// Exit codes distinguish how a run failed.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitConnect    = 2
	ExitAuth       = 3
	ExitValidation = 4
	ExitPartial    = 5
)

// ErrPartialExport marks a run where some segments failed but others
// succeeded.
var ErrPartialExport = errors.New("some segments failed to download")

var (
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "nvrexport",
	Short: "Export recordings from TP-Link Vigi NVRs",
	Long: `nvrexport is a command-line tool for exporting video recordings from
TP-Link Vigi NVRs over the OpenAPI management interface.

Make sure OpenAPI is enabled on the NVR:
Settings > Network > OpenAPI (default port: 20443)

Connection defaults are loaded from a .env file or environment variables
(NVR_HOST, NVR_PORT, NVR_USERNAME, NVR_PASSWORD) and can be overridden
with flags on any command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	},
}

func Execute(config *config.Config) error {
	cfg = config
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(archiveInfoCmd)

	rootCmd.PersistentFlags().String("host", "", "NVR IP address or hostname (overrides NVR_HOST)")
	rootCmd.PersistentFlags().Int("port", 0, "OpenAPI port (overrides NVR_PORT, default 20443)")
	rootCmd.PersistentFlags().StringP("user", "u", "", "Admin username (overrides NVR_USERNAME)")
	rootCmd.PersistentFlags().StringP("password", "P", "", "Admin password (prompted when omitted)")
	rootCmd.PersistentFlags().Bool("tls-verify", false, "Verify the NVR TLS certificate")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Log all device API requests and responses")
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, ErrPartialExport) {
		return ExitPartial
	}
	switch nvr.KindOf(err) {
	case nvr.KindConnect, nvr.KindTimeout:
		return ExitConnect
	case nvr.KindAuth:
		return ExitAuth
	case nvr.KindValidation:
		return ExitValidation
	}
	return ExitFailure
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}

// connectionParams merges config defaults with flags and prompts for a
// missing password when attached to a terminal.
func connectionParams(cmd *cobra.Command) (nvr.ConnectionParams, error) {
	params := nvr.ConnectionParams{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Username:  cfg.Username,
		Password:  cfg.Password,
		VerifyTLS: cfg.VerifyTLS,
	}

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		params.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		params.Port = port
	}
	if user, _ := cmd.Flags().GetString("user"); user != "" {
		params.Username = user
	}
	if password, _ := cmd.Flags().GetString("password"); password != "" {
		params.Password = password
	}
	if cmd.Flags().Changed("tls-verify") {
		verify, _ := cmd.Flags().GetBool("tls-verify")
		params.VerifyTLS = verify
	}
	if timeout, _ := cmd.Flags().GetInt("timeout"); timeout > 0 {
		params.Timeout = time.Duration(timeout) * time.Second
	}

	if params.Port == 0 {
		params.Port = nvr.DefaultPort
	}

	if params.Password == "" {
		password, err := promptPassword(params.Username)
		if err != nil {
			return params, err
		}
		params.Password = password
	}
	return params, nil
}

func promptPassword(username string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("password not provided (use --password or NVR_PASSWORD)")
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(raw), nil
}

// openClient logs in and returns a query client. The caller must close the
// session on every exit path.
func openClient(ctx context.Context, cmd *cobra.Command) (*nvr.Client, error) {
	params, err := connectionParams(cmd)
	if err != nil {
		return nil, err
	}

	if isVerbose(cmd) {
		cmd.PrintErrf("Connecting to NVR at %s:%d...\n", params.Host, params.Port)
	}

	session, err := nvr.Open(ctx, params, nvr.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return nvr.NewClient(session, logger), nil
}
