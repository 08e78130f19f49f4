package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	daypack "github.com/daypack/daypack"
	"github.com/daypack/daypack/internal/manifest"
	"github.com/daypack/daypack/internal/objstore"
	"github.com/daypack/daypack/internal/types"
)

// NewInfoCommand builds the info subcommand.
func NewInfoCommand() *cobra.Command {
	var (
		day        string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show a day's manifest summary",
		Long: `Show a day's manifest summary

Fetches the day's manifest from the remote store and prints the
committed batches, their checksums, and file counts. With --json the
raw manifest document is printed instead.`,

		RunE: func(cmd *cobra.Command, args []string) error {
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
			keys := types.KeyLayout{Prefix: cfg.Backup.Prefix}

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

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

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(m)
			}

			fmt.Printf("Day:     %s\n", m.Date)
			fmt.Printf("Schema:  v%d\n", m.SchemaVersion)
			fmt.Printf("Batches: %d\n", m.Count())
			fmt.Printf("Files:   %d\n\n", m.FileCount())

			var total int64
			for _, entry := range m.Entries() {
				var size int64
				for _, f := range entry.Files {
					size += f.Size
				}
				total += size
				fmt.Printf("  batch %d: %d files, %d bytes, sha256:%.12s…\n",
					entry.Index, len(entry.Files), size, entry.ArchiveChecksum)
			}
			fmt.Printf("\nTotal source bytes: %d\n", total)
			return nil
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "Day key to inspect, e.g. 20260829 (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw manifest JSON")

	return cmd
}
