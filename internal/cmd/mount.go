package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cghanke/libfs/internal/catalog"
	"github.com/cghanke/libfs/internal/fuseops"
	"github.com/cghanke/libfs/internal/store"
)

var mountCmd = &cobra.Command{
	Use:   "mount <library> <mountpoint>",
	Short: "Attach the engine to mountpoint",
	Long: `mount opens library (read/write: a rename rewrites its tags) and attaches
the virtual directory hierarchy derived from --view (or the library's
default view) at mountpoint.`,
	Args: cobra.ExactArgs(2),
	RunE: runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)
	mountCmd.Flags().Bool("debug_fuse", false, "log every FUSE upcall (go-fuse's own trace, not libfs's structured logging)")
	mountCmd.Flags().String("view", "", "named view to mount (default: the library's default view)")
}

func runMount(cmd *cobra.Command, args []string) error {
	library, mountpoint := args[0], args[1]

	debugFuse, _ := cmd.Flags().GetBool("debug_fuse")
	viewName, _ := cmd.Flags().GetString("view")

	logger, err := newLogger(cmd)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	s, err := store.Open(library)
	if err != nil {
		return fmt.Errorf("open library: %w", err)
	}

	cat, err := catalog.Open(s)
	if err != nil {
		s.Close()
		return fmt.Errorf("open library %q: %w", library, err)
	}

	p, err := registry().Get(cat.Magic().Plugin)
	if err != nil {
		s.Close()
		return fmt.Errorf("library %q: %w", library, err)
	}

	if viewName == "" {
		viewName = catalog.DefaultViewName
	}

	fsys, err := fuseops.New(cat, p, viewName, logger)
	if err != nil {
		s.Close()
		return fmt.Errorf("named view %q: %w", viewName, err)
	}

	if err := os.MkdirAll(mountpoint, 0755); err != nil {
		s.Close()
		return fmt.Errorf("create mountpoint: %w", err)
	}

	server, err := fuseops.Mount(mountpoint, fsys, debugFuse)
	if err != nil {
		s.Close()
		return fmt.Errorf("mount: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("unmounting")
		server.Unmount()
	}()

	fmt.Printf("libfs mounted at %s (view %q). Ctrl+C to unmount.\n", mountpoint, viewName)
	server.Wait()

	return s.Close()
}
