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
	"github.com/daypack/daypack/internal/archive"
	"github.com/daypack/daypack/internal/manifest"
	"github.com/daypack/daypack/internal/objstore"
	"github.com/daypack/daypack/internal/types"
)

// NewVerifyCommand builds the verify subcommand.
func NewVerifyCommand() *cobra.Command {
	var day string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a day's archives against its manifest",
		Long: `Verify a day's archives against its manifest

Downloads every archive the day's manifest records, recomputes its
checksum, and checks that each archive contains exactly the member
files the manifest lists. Exits non-zero on the first missing or
corrupt archive.`,

		RunE: func(cmd *cobra.Command, args []string) error {
			quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")

			if day == "" {
				return fmt.Errorf("--day is required")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := daypack.OpenStore(cfg)
			if err != nil {
				return err
			}
			codec, err := archive.ForName(cfg.Backup.Format)
			if err != nil {
				return err
			}
			keys := types.KeyLayout{Prefix: cfg.Backup.Prefix}
			archiver := archive.NewArchiver(codec, getLogger(cmd))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			data, err := store.Get(ctx, keys.ManifestKey(day))
			if err != nil {
				if objstore.IsNotExist(err) {
					return fmt.Errorf("no manifest for day %s", day)
				}
				return fmt.Errorf("failed to fetch manifest: %w", err)
			}
			m, err := manifest.Parse(data)
			if err != nil {
				return err
			}

			start := time.Now()
			verified := 0
			for _, entry := range m.Entries() {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				key := keys.ArchiveKey(day, entry.Index, codec.Extension())
				blob, err := store.Get(ctx, key)
				if err != nil {
					return fmt.Errorf("batch %d: failed to download %s: %w", entry.Index, key, err)
				}

				members, err := archiver.Extract(blob, entry.ArchiveChecksum)
				if err != nil {
					return fmt.Errorf("batch %d: %w", entry.Index, err)
				}
				for _, f := range entry.Files {
					member, ok := members[f.Name]
					if !ok {
						return fmt.Errorf("batch %d: archive missing entry %s", entry.Index, f.Name)
					}
					if int64(len(member.Data)) != f.Size {
						return fmt.Errorf("batch %d: %s size mismatch: got %d, want %d",
							entry.Index, f.Path, len(member.Data), f.Size)
					}
				}

				verified++
				if !quiet {
					fmt.Printf("Batch %d: OK (%d files, %d bytes)\n",
						entry.Index, len(entry.Files), len(blob))
				}
			}

			if !quiet {
				fmt.Printf("\nVerified %d batches, %d files in %s\n",
					verified, m.FileCount(), time.Since(start).Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "Day key to verify, e.g. 20260829 (required)")

	return cmd
}
