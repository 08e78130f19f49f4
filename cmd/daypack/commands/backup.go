package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	daypack "github.com/daypack/daypack"
	"github.com/daypack/daypack/internal/backup"
)

// NewBackupCommand builds the backup subcommand.
func NewBackupCommand() *cobra.Command {
	var (
		source string
		day    string
	)

	cmd := &cobra.Command{
		Use:     "backup",
		Aliases: []string{"run"},
		Short:   "Run one day-run of the backup pipeline",
		Long: `Run one day-run of the backup pipeline

Enumerates the source directory, partitions it into batches, archives and
uploads each batch, and commits the day's manifest entry by entry. If a
manifest for the day already exists, batches it records are skipped, so
re-running after an interruption only uploads what is missing and
re-running after completion uploads nothing.

Cancellation (Ctrl+C) is honored between batches; an in-flight upload is
allowed to finish so the manifest never records an unverified archive.`,

		Example: `  # Back up the configured source for today
  daypack backup

  # Back up a specific directory
  daypack backup --source /srv/photos

  # Re-run (or resume) a specific day
  daypack backup --day 20260829`,

		RunE: func(cmd *cobra.Command, args []string) error {
			quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if source != "" {
				cfg.Source = source
			}
			if cfg.Source == "" {
				return fmt.Errorf("no source directory configured (use --source or set source in the config file)")
			}

			dayKey := day
			if dayKey == "" {
				dayKey = backup.DayKey(time.Now())
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !quiet && isTerminal() {
				fmt.Printf("Source: %s\n", cfg.Source)
				fmt.Printf("Store:  %s\n", storeLabel(cfg))
				fmt.Printf("Day:    %s\n\n", dayKey)
			}

			result, err := daypack.BackupDay(ctx, cfg, dayKey, daypack.WithLogger(getLogger(cmd)))
			if result != nil && !quiet {
				printRunSummary(result)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Source directory (overrides config)")
	cmd.Flags().StringVar(&day, "day", "", "Day key to run, e.g. 20260830 (default: today)")

	return cmd
}

func printRunSummary(r *daypack.RunResult) {
	fmt.Printf("\nStatus:   %s\n", r.Status)
	fmt.Printf("Files:    %d (%d bytes)\n", r.Files, r.TotalBytes)
	fmt.Printf("Batches:  %d total, %d uploaded, %d already committed\n",
		r.Batches, r.UploadedBatch, r.SkippedBatch)
	if r.UploadedBytes > 0 {
		fmt.Printf("Uploaded: %d bytes\n", r.UploadedBytes)
	}
	if len(r.SkippedFiles) > 0 {
		fmt.Printf("Skipped:  %d unreadable files\n", len(r.SkippedFiles))
		for _, s := range r.SkippedFiles {
			fmt.Printf("  - %s (%s)\n", s.Path, s.Reason)
		}
	}
	fmt.Printf("Duration: %s\n", r.Duration.Round(time.Millisecond))
}

func storeLabel(cfg *daypack.Config) string {
	if cfg.Store.Type == "s3" {
		return fmt.Sprintf("s3://%s", cfg.Store.S3.Bucket)
	}
	return cfg.Store.Dir
}
