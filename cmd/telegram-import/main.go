package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/blockedby/carfeed/internal/app"
	"github.com/blockedby/carfeed/internal/config"
	"github.com/blockedby/carfeed/internal/ingest"
	"github.com/blockedby/carfeed/internal/logger"
	"github.com/blockedby/carfeed/internal/models"
	"github.com/blockedby/carfeed/internal/telegram"
)

// exit codes
const (
	exitSuccess = 0
	exitFailed  = 1
	exitPartial = 2
	exitConfig  = 3
)

const remediation = "telegram session is missing or not authorized: run tg-auth and set TG_SESSION_STRING"

var (
	channel   string
	limit     int
	skipMedia bool
	output    string

	rootCmd = &cobra.Command{
		Use:   "telegram-import",
		Short: "Import vehicle listings from a Telegram channel",
		Long: `Fetches messages newer than the channel checkpoint, parses them into listings,
downloads photos and prints the run summary. Exit status: 0 success, 2 partial,
1 failed, 3 configuration error.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			code = runImport(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
			return nil
		},
	}

	code int
)

func init() {
	rootCmd.Flags().StringVar(&channel, "channel", "", "channel username (default TG_CHANNEL)")
	rootCmd.Flags().IntVar(&limit, "limit", 0, "maximum number of messages to fetch (0 = one batch)")
	rootCmd.Flags().BoolVar(&skipMedia, "skip-media", false, "do not download photos")
	rootCmd.Flags().StringVarP(&output, "output", "o", "text", "summary format: text, json or yaml")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitConfig)
	}
	os.Exit(code)
}

func runImport(ctx context.Context, stdout, stderr io.Writer) int {
	switch output {
	case "text", "json", "yaml":
	default:
		fmt.Fprintf(stderr, "Error: unknown output format %q\n", output)
		return exitConfig
	}
	if limit < 0 {
		fmt.Fprintln(stderr, "Error: --limit must be non-negative")
		return exitConfig
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: load config: %v\n", err)
		return exitConfig
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile, cfg.LogFormat); err != nil {
		fmt.Fprintf(stderr, "Error: init logger: %v\n", err)
		return exitConfig
	}
	log := logger.Get()
	defer func() { _ = log.Close() }()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, config.ErrMissingCredentials) {
			fmt.Fprintln(stderr, "set TG_API_ID and TG_API_HASH (https://my.telegram.org), then run tg-auth")
		}
		return exitConfig
	}
	defer a.Close()

	if a.Telegram.GetStatus() != telegram.StatusReady {
		fmt.Fprintln(stderr, "Error: "+remediation)
		return exitConfig
	}

	if channel == "" {
		channel = cfg.TGChannel
	}

	run, err := a.Service.Run(ctx, ingest.Options{
		Channel:   channel,
		Limit:     limit,
		SkipMedia: skipMedia,
	})
	if run == nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return refusedExitCode(err)
	}

	if err := printSummary(stdout, run); err != nil {
		fmt.Fprintf(stderr, "Error: print summary: %v\n", err)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, telegram.ErrNotAuthorized) {
			fmt.Fprintln(stderr, remediation)
			return exitConfig
		}
	}

	return exitCode(run.Status)
}

func exitCode(status models.RunStatus) int {
	switch status {
	case models.RunStatusSuccess:
		return exitSuccess
	case models.RunStatusPartial:
		return exitPartial
	default:
		return exitFailed
	}
}

// refusedExitCode maps an error from a run that never started. Bad options are
// configuration errors; a busy channel or an unreachable database fails the run.
func refusedExitCode(err error) int {
	if errors.Is(err, ingest.ErrChannelRequired) || errors.Is(err, ingest.ErrInvalidLimit) {
		return exitConfig
	}
	return exitFailed
}

func printSummary(w io.Writer, run *models.ImportRun) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(run)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", run.ID)
	fmt.Fprintf(tw, "Channel:\t%s\n", run.Channel)
	fmt.Fprintf(tw, "Status:\t%s\n", run.Status)
	fmt.Fprintf(tw, "Duration:\t%s\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintf(tw, "Fetched:\t%d\n", run.MessagesFetched)
	fmt.Fprintf(tw, "New:\t%d\n", run.MessagesNew)
	fmt.Fprintf(tw, "Duplicate:\t%d\n", run.MessagesDuplicate)
	fmt.Fprintf(tw, "Parsed OK:\t%d\n", run.ParsedOK)
	fmt.Fprintf(tw, "Parsed partial:\t%d\n", run.ParsedPartial)
	fmt.Fprintf(tw, "Failed:\t%d\n", run.MessagesFailed)
	fmt.Fprintf(tw, "Skipped:\t%d\n", run.MessagesSkipped)
	fmt.Fprintf(tw, "Listings:\t%d\n", run.ListingsCreated)
	fmt.Fprintf(tw, "Photos:\t%d\n", run.PhotosDownloaded)
	if run.ErrorMessage != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", run.ErrorMessage)
	}
	return tw.Flush()
}
