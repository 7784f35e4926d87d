package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cghanke/libfs/internal/catalog"
	"github.com/cghanke/libfs/internal/scanner"
	"github.com/cghanke/libfs/internal/store"
)

var updateCmd = &cobra.Command{
	Use:   "update <source_dir> <library>",
	Short: "Scan source_dir and insert/update the library's catalog rows",
	Long: `update walks source_dir, reading every file the library's plugin recognises
and inserting or updating its catalog row in library. library is created
with setup_db semantics the first time update runs against it, bound to the
--type plugin; an existing library always uses the plugin it was created
with, and --type is then ignored.`,
	Args: cobra.ExactArgs(2),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().String("type", "", "metadata plugin to use for a brand-new library (required when library does not yet exist)")
	updateCmd.Flags().Bool("remove_obsolete", false, "remove catalog rows whose source file no longer exists on disk")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	sourceDir, library := args[0], args[1]

	pluginType, _ := cmd.Flags().GetString("type")
	removeObsolete, _ := cmd.Flags().GetBool("remove_obsolete")

	logger, err := newLogger(cmd)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	s, err := store.Open(library)
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}
	defer s.Close()

	cat, err := catalog.Open(s)
	if err != nil {
		if pluginType == "" {
			return fmt.Errorf("library %q does not exist yet and --type was not given: %w", library, err)
		}
		p, err := registry().Get(pluginType)
		if err != nil {
			return err
		}
		magic := catalog.Magic{Plugin: p.Name(), ValidKeys: p.ValidKeys(), DefaultView: catalog.View(p.DefaultView())}
		cat, err = catalog.Bootstrap(s, magic)
		if err != nil {
			return fmt.Errorf("create library %q: %w", library, err)
		}
		logger.Info().Str("library", library).Str("plugin", p.Name()).Msg("created new library")
	}

	p, err := registry().Get(cat.Magic().Plugin)
	if err != nil {
		return fmt.Errorf("library %q: %w", library, err)
	}

	result, err := scanner.New(cat, p, logger).Scan(sourceDir, removeObsolete)
	if err != nil {
		return fmt.Errorf("scan %q: %w", sourceDir, err)
	}

	fmt.Printf("scanned %s files: %s added/updated, %s skipped, %s removed\n",
		humanize.Comma(int64(result.Scanned)), humanize.Comma(int64(result.Added)),
		humanize.Comma(int64(result.Skipped)), humanize.Comma(int64(result.Removed)))
	return nil
}
