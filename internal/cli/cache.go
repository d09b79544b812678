package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"peekraw/internal/thumbcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the thumbnail cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show disk cache usage",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every cached thumbnail",
	Args:  cobra.NoArgs,
	RunE:  runCachePurge,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openCache(cmd *cobra.Command) (*thumbcache.Cache, error) {
	return thumbcache.Open(cmd.Context(), thumbcache.Options{
		MemoryItems: config.MemoryCacheItems,
		Disk:        config.DiskOptions(),
	})
}

func runCacheStats(cmd *cobra.Command, _ []string) (err error) {
	c, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	out := cmd.OutOrStdout()
	s := c.Stats()
	if s.DiskLimit == 0 {
		fmt.Fprintln(out, "disk cache disabled")
		return nil
	}

	used := 0.0
	if s.DiskLimit > 0 {
		used = float64(s.DiskBytes) / float64(s.DiskLimit) * 100
	}
	fmt.Fprintf(out, "directory:  %s\n", config.ThumbnailDir)
	fmt.Fprintf(out, "entries:    %s\n", humanize.Comma(int64(s.DiskEntries)))
	fmt.Fprintf(out, "size:       %s of %s (%.1f%%)\n",
		humanize.IBytes(uint64(s.DiskBytes)), humanize.IBytes(uint64(s.DiskLimit)), used)
	return nil
}

func runCachePurge(cmd *cobra.Command, _ []string) (err error) {
	c, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	before := c.Stats()
	if err := c.Purge(); err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s thumbnails, freed %s\n",
		humanize.Comma(int64(before.DiskEntries)), humanize.IBytes(uint64(before.DiskBytes)))
	return nil
}
