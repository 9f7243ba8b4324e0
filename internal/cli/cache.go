package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vetter/internal/cache"
)

var cacheAll bool

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	cachePurgeCmd.Flags().BoolVar(&cacheAll, "all", false, "Remove every snapshot, not only expired ones")
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Profile cache operations",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired profile snapshots from ~/.vetter/cache.db",
	Args:  cobra.NoArgs,
	RunE:  runCachePurge,
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	dir, err := dataDir()
	if err != nil {
		return err
	}
	opts := cache.DefaultOptions()
	opts.Path = filepath.Join(dir, "cache.db")
	opts.Timeout = cacheLockTimeout
	c, err := cache.Open(opts)
	if err != nil {
		return fmt.Errorf("open cache (is the dashboard running?): %w", err)
	}
	defer c.Close()

	var n int
	if cacheAll {
		n, err = c.Clear()
	} else {
		n, err = c.Purge(time.Now())
	}
	if err != nil {
		return err
	}
	left, err := c.Len()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d snapshots, %d remaining.\n", n, left)
	return nil
}
