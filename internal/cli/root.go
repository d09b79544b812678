package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"peekraw/internal/logging"
	"peekraw/internal/startup"
)

// flagKeys maps command-line flags to the configuration keys they set.
var flagKeys = map[string]string{
	"cache-dir":       startup.KeyCacheDir,
	"config-dir":      startup.KeyConfigDir,
	"log-level":       startup.KeyLogLevel,
	"log-file":        startup.KeyLogFile,
	"workers":         startup.KeyDecodeWorkers,
	"thumbnail-size":  startup.KeyThumbnailSize,
	"memory-items":    startup.KeyMemoryItems,
	"disk-cache-size": startup.KeyDiskCacheSize,
	"errors":          startup.KeyEnumerationErrors,
	"vips":            startup.KeyVipsEnabled,
	"port":            startup.KeyPort,
}

// config is loaded once flags have been parsed.
var config *startup.Config

var rootCmd = &cobra.Command{
	Use:   "peekraw",
	Short: "Thumbnail gallery for camera RAW files",
	Long: `peekraw browses folders of camera RAW and image files. It extracts
embedded previews in the background and keeps them in a memory and disk
cache so reopening a folder is instant.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = startup.Version

	flags := rootCmd.PersistentFlags()
	flags.String("cache-dir", "", "cache directory (env PEEKRAW_CACHE_DIR)")
	flags.String("config-dir", "", "settings directory (env PEEKRAW_CONFIG_DIR)")
	flags.String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	flags.String("log-file", "", "also log to a rotating file (env LOG_FILE)")
	flags.String("workers", "", "decode workers, a number or auto (env DECODE_WORKERS)")
	flags.Int("thumbnail-size", 0, "thumbnail bounding box in pixels (env THUMBNAIL_SIZE)")
	flags.Int("memory-items", 0, "thumbnails kept in memory (env MEMORY_CACHE_ITEMS)")
	flags.String("disk-cache-size", "", "disk cache budget such as 500MiB, 0 disables (env DISK_CACHE_SIZE)")
	flags.String("errors", "", "unreadable entries: ignore, warn or strict (env ENUMERATION_ERRORS)")
	flags.Bool("vips", false, "decode full-size images with libvips (env VIPS_ENABLED)")
}

// setup binds the command's flags over the environment and loads the
// configuration.
func setup(cmd *cobra.Command, _ []string) error {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return err
	}

	if raw := v.GetString(startup.KeyLogLevel); raw != "" {
		level, ok := logging.ParseLevel(raw)
		if !ok {
			return fmt.Errorf("invalid log level %q", raw)
		}
		logging.SetLevel(level)
	}
	logging.Configure(logging.Options{File: v.GetString(startup.KeyLogFile)})

	cfg, err := startup.LoadConfigFrom(v)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	config = cfg
	return nil
}

// newViper returns the configuration source with every known flag in flags
// bound to its key. Flags given on the command line win over the
// environment.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := startup.NewViper()
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return v, nil
}
