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
)

// NewRestoreCommand builds the restore subcommand.
func NewRestoreCommand() *cobra.Command {
	var (
		day      string
		dest     string
		patterns []string
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore files from a day's backup",
		Long: `Restore files from a day's backup

Fetches the day's manifest, downloads only the archives that contain
requested files, verifies archive checksums and per-file hashes, and
writes the files under the destination directory preserving their
relative paths. With no patterns the whole day is restored.`,

		Example: `  # Restore everything from a day
  daypack restore --day 20260829 --dest ./recovered

  # Restore a single file
  daypack restore --day 20260829 --dest ./recovered photos/cat.jpg

  # Restore a whole subtree
  daypack restore --day 20260829 --dest ./recovered photos`,

		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")

			if day == "" {
				return fmt.Errorf("--day is required")
			}
			if dest == "" {
				return fmt.Errorf("--dest is required")
			}
			patterns = append(patterns, args...)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			restorer, err := daypack.NewRestorer(cfg, daypack.WithLogger(getLogger(cmd)))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := restorer.Restore(ctx, day, dest, daypack.RestoreOptions{
				Workers:  workers,
				Patterns: patterns,
				Logger:   getLogger(cmd),
			})
			if result != nil && !quiet {
				fmt.Printf("\nRestored %d files (%d bytes) from %d archives in %s\n",
					result.Files, result.Bytes, result.Batches,
					result.Duration.Round(time.Millisecond))
				if len(result.FailedBatches) > 0 {
					fmt.Printf("Failed batches: %v\n", result.FailedBatches)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "Day key to restore, e.g. 20260829 (required)")
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "Destination directory (required)")
	cmd.Flags().StringSliceVarP(&patterns, "pattern", "p", nil, "Path pattern to restore (repeatable; default: everything)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Parallel archive downloads")

	return cmd
}
