// Package cmd wires the cobra CLI of spec.md §6: the `update` and `mount`
// subcommands, plus the persistent --logconf flag, over the
// catalog/scanner/fuseops/plugin packages. Grounded on the teacher's
// internal/cmd package layout (one file per subcommand, a shared rootCmd).
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cghanke/libfs/internal/logging"
	"github.com/cghanke/libfs/internal/plugin"
	"github.com/cghanke/libfs/internal/plugin/audio"
	"github.com/cghanke/libfs/internal/plugin/image"
)

var rootCmd = &cobra.Command{
	Use:   "libfs",
	Short: "Project a tagged-media catalog into a directory hierarchy",
	Long: `libfs projects a catalog of tagged media files into a read-and-rename-only
FUSE filesystem: directories are derived from metadata, and renaming a
virtual file or directory rewrites the underlying file's tags.`,
}

func init() {
	rootCmd.PersistentFlags().String("logconf", "", "path to a logging configuration YAML document")
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

// Execute runs the CLI and returns the process's intended exit code, per
// spec.md §6: 0 success, 1 unusable/missing database, 2 unsupported
// backend scheme.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "libfs:", err)
		return exitCodeFor(err)
	}
	return 0
}

// exitCodeFor classifies a fatal error per spec.md §6's exit code table.
// Everything that isn't an unsupported connection-string scheme counts as
// "unusable/missing database", matching spec.md §7's "fatal conditions
// ... terminate the process with a diagnostic" policy.
func exitCodeFor(err error) int {
	if strings.Contains(err.Error(), "unsupported backend scheme") {
		return 2
	}
	return 1
}

// registry lists every metadata backend libfs ships, for --type resolution
// and for validating a library's magic.Plugin at mount time.
func registry() *plugin.Registry {
	return plugin.NewRegistry(audio.New(), image.New())
}

// newLogger builds the process-wide logger from the persistent --logconf
// flag, which every subcommand inherits.
func newLogger(cmd *cobra.Command) (zerolog.Logger, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("logconf")
	cfg, err := logging.Load(path)
	if err != nil {
		return zerolog.Logger{}, err
	}
	return logging.New(cfg)
}
