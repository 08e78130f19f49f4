package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/daypack/daypack/internal/config"
)

// NewInitCommand builds the init subcommand.
func NewInitCommand() *cobra.Command {
	var (
		source string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a starter config file

Creates a config file with working defaults (local fs store, batch size
25, zip archives) so the first backup run only needs a source
directory. Refuses to overwrite an existing file unless --force is
given.`,

		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Root().PersistentFlags().GetString("config")

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.Default()
			cfg.Source = source
			if err := cfg.Save(path); err != nil {
				return err
			}

			fmt.Printf("Wrote %s\n", path)
			if source == "" {
				fmt.Println("Set \"source\" in the file (or pass --source to backup) before running.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Source directory to record in the config")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")

	return cmd
}
