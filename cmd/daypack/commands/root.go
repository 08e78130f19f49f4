package commands

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/daypack/daypack/internal/config"
	"github.com/daypack/daypack/internal/types"
)

// NewRootCommand builds the daypack command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "daypack",
		Short: "Batched directory backup to object storage",
		Long: `daypack backs up a directory tree to remote object storage.

Files are enumerated in a stable order, grouped into fixed-size batches,
packed into checksummed archives, and recorded in a per-day manifest.
Interrupted runs resume from the last committed batch, and any subset of
files can be restored without downloading the whole backup.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "daypack.yaml", "Path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	root.PersistentFlags().BoolP("quiet", "q", false, "Suppress non-error output")

	root.AddCommand(
		NewBackupCommand(),
		NewRestoreCommand(),
		NewVerifyCommand(),
		NewInfoCommand(),
		NewInitCommand(),
		NewVersionCommand(),
	)

	return root
}

// loadConfig reads the config file named by the persistent --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// getLogger builds the command logger honoring --verbose and --quiet.
func getLogger(cmd *cobra.Command) types.Logger {
	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	if quiet {
		return silentLogger{}
	}
	return stdLogger{}
}

type stdLogger struct{}

func (stdLogger) Printf(format string, v ...interface{}) { log.Printf(format, v...) }
func (stdLogger) Println(v ...interface{})               { log.Println(v...) }

type silentLogger struct{}

func (silentLogger) Printf(format string, v ...interface{}) {}
func (silentLogger) Println(v ...interface{})               {}

// isTerminal reports whether stdout is attached to a TTY, which decides
// whether live progress lines are printed.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
