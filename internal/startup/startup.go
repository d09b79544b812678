package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/spf13/viper"

	"peekraw/internal/filesource"
	"peekraw/internal/logging"
	"peekraw/internal/memory"
	"peekraw/internal/thumbcache"
	"peekraw/internal/workers"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Defaults for the environment variables read by LoadConfig.
const (
	DefaultDiskCacheSize = "100MiB"
	DefaultPort          = "8080"
	// MaxAutoWorkers caps DECODE_WORKERS=auto.
	MaxAutoWorkers = 4
)

// Config holds all application configuration
type Config struct {
	CacheDir  string
	ConfigDir string
	Port      string

	MemoryCacheItems     int
	DiskCacheBytes       int64
	DiskCacheCompression bool
	ThumbnailSize        int
	DecodeWorkers        int
	EnumerationPolicy    filesource.Policy
	VipsEnabled          bool

	// Derived paths
	ThumbnailDir string

	// DiskCacheEnabled is false when the cache directory is not writable or
	// DISK_CACHE_SIZE is 0; thumbnails then live in memory only.
	DiskCacheEnabled bool
}

// Configuration keys and the environment variables bound to them.
const (
	KeyCacheDir          = "cache_dir"
	KeyConfigDir         = "config_dir"
	KeyPort              = "port"
	KeyMemoryItems       = "memory_cache_items"
	KeyDiskCacheSize     = "disk_cache_size"
	KeyDiskCompression   = "disk_cache_compression"
	KeyThumbnailSize     = "thumbnail_size"
	KeyDecodeWorkers     = "decode_workers"
	KeyEnumerationErrors = "enumeration_errors"
	KeyVipsEnabled       = "vips_enabled"
	KeyLogLevel          = "log_level"
	KeyLogFile           = "log_file"
)

var envBindings = map[string]string{
	KeyCacheDir:          "PEEKRAW_CACHE_DIR",
	KeyConfigDir:         "PEEKRAW_CONFIG_DIR",
	KeyPort:              "PORT",
	KeyMemoryItems:       "MEMORY_CACHE_ITEMS",
	KeyDiskCacheSize:     "DISK_CACHE_SIZE",
	KeyDiskCompression:   "DISK_CACHE_COMPRESSION",
	KeyThumbnailSize:     "THUMBNAIL_SIZE",
	KeyDecodeWorkers:     workers.EnvOverride,
	KeyEnumerationErrors: "ENUMERATION_ERRORS",
	KeyVipsEnabled:       "VIPS_ENABLED",
	KeyLogLevel:          "LOG_LEVEL",
	KeyLogFile:           "LOG_FILE",
}

// NewViper returns a viper instance with every configuration key bound to
// its environment variable and default. Callers may bind command-line flags
// on top, which then take precedence over the environment.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	v.SetDefault(KeyCacheDir, defaultDir(os.UserCacheDir))
	v.SetDefault(KeyConfigDir, defaultDir(os.UserConfigDir))
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyMemoryItems, thumbcache.DefaultMemoryItems)
	v.SetDefault(KeyDiskCacheSize, DefaultDiskCacheSize)
	v.SetDefault(KeyDiskCompression, false)
	v.SetDefault(KeyThumbnailSize, 400)
	v.SetDefault(KeyDecodeWorkers, "")
	v.SetDefault(KeyEnumerationErrors, "")
	v.SetDefault(KeyVipsEnabled, false)
	v.SetDefault(KeyLogLevel, "")
	v.SetDefault(KeyLogFile, "")
	return v
}

// EnvName returns the environment variable bound to key.
func EnvName(key string) string {
	return envBindings[key]
}

// LoadConfig reads configuration from environment variables, applying
// defaults, and prepares the cache and config directories.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(NewViper())
}

// LoadConfigFrom builds the configuration from v, usually one returned by
// NewViper. Invalid values are errors rather than silently replaced, except
// for booleans.
func LoadConfigFrom(v *viper.Viper) (*Config, error) {
	memoryItems, err := getInt(v, KeyMemoryItems)
	if err != nil {
		return nil, err
	}
	if memoryItems < 1 {
		return nil, fmt.Errorf("%s must be at least 1, got %d", EnvName(KeyMemoryItems), memoryItems)
	}

	diskBytes, err := ParseSize(v.GetString(KeyDiskCacheSize))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvName(KeyDiskCacheSize), err)
	}

	thumbSize, err := getInt(v, KeyThumbnailSize)
	if err != nil {
		return nil, err
	}
	if thumbSize < 16 {
		return nil, fmt.Errorf("%s must be at least 16, got %d", EnvName(KeyThumbnailSize), thumbSize)
	}

	decodeWorkers, err := workers.Parse(v.GetString(KeyDecodeWorkers), MaxAutoWorkers)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvName(KeyDecodeWorkers), err)
	}

	policy, err := filesource.ParsePolicy(v.GetString(KeyEnumerationErrors))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvName(KeyEnumerationErrors), err)
	}

	config := &Config{
		CacheDir:             v.GetString(KeyCacheDir),
		ConfigDir:            v.GetString(KeyConfigDir),
		Port:                 v.GetString(KeyPort),
		MemoryCacheItems:     memoryItems,
		DiskCacheBytes:       diskBytes,
		DiskCacheCompression: getBool(v, KeyDiskCompression),
		ThumbnailSize:        thumbSize,
		DecodeWorkers:        decodeWorkers,
		EnumerationPolicy:    policy,
		VipsEnabled:          getBool(v, KeyVipsEnabled),
	}

	if err := config.Prepare(); err != nil {
		return nil, err
	}
	return config, nil
}

// Prepare resolves directories to absolute paths and checks that they are
// usable. Call it again after changing CacheDir or ConfigDir.
func (c *Config) Prepare() error {
	var err error

	c.CacheDir, err = filepath.Abs(c.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	c.ConfigDir, err = filepath.Abs(c.ConfigDir)
	if err != nil {
		return fmt.Errorf("failed to resolve config directory path: %w", err)
	}
	c.ThumbnailDir = filepath.Join(c.CacheDir, "thumbnails")

	// Settings are required; a broken config directory is an error.
	if err := ensureDirectory(c.ConfigDir, "config"); err != nil {
		return fmt.Errorf("config directory error: %w", err)
	}

	c.DiskCacheEnabled = c.DiskCacheBytes > 0 && setupOptionalDir(c.ThumbnailDir, "disk cache")
	return nil
}

// DiskOptions returns the disk tier configuration, empty when the disk
// cache is disabled.
func (c *Config) DiskOptions() thumbcache.DiskOptions {
	if !c.DiskCacheEnabled {
		return thumbcache.DiskOptions{}
	}
	return thumbcache.DiskOptions{
		Dir:      c.ThumbnailDir,
		MaxBytes: c.DiskCacheBytes,
		Compress: c.DiskCacheCompression,
	}
}

// ParseSize parses a byte size such as "100MiB", "64MB" or "1048576".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return int64(n), nil
}

// LogConfig logs the effective configuration.
func LogConfig(c *Config) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  PEEKRAW_CACHE_DIR:       %s", c.CacheDir)
	logging.Info("  PEEKRAW_CONFIG_DIR:      %s", c.ConfigDir)
	logging.Info("  PORT:                    %s", c.Port)
	logging.Info("  MEMORY_CACHE_ITEMS:      %d", c.MemoryCacheItems)
	logging.Info("  DISK_CACHE_SIZE:         %s", humanize.IBytes(uint64(c.DiskCacheBytes)))
	logging.Info("  DISK_CACHE_COMPRESSION:  %v", c.DiskCacheCompression)
	logging.Info("  THUMBNAIL_SIZE:          %d", c.ThumbnailSize)
	logging.Info("  DECODE_WORKERS:          %d", c.DecodeWorkers)
	logging.Info("  ENUMERATION_ERRORS:      %s", c.EnumerationPolicy)
	logging.Info("  VIPS_ENABLED:            %v", c.VipsEnabled)
	logging.Info("  LOG_LEVEL:               %s", logging.GetLevel())
	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Disk cache:  %s", enabledString(c.DiskCacheEnabled))
	logging.Info("    libvips:     %s", enabledString(c.VipsEnabled))
}

func defaultDir(base func() (string, error)) string {
	dir, err := base()
	if err != nil || dir == "" {
		return filepath.Join(os.TempDir(), "peekraw")
	}
	return filepath.Join(dir, "peekraw")
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogCacheInit logs the thumbnail cache after it has been opened.
func LogCacheInit(duration time.Duration, stats thumbcache.Stats) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("THUMBNAIL CACHE")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Memory tier:  %d items max", stats.MemoryLimit)
	if stats.DiskLimit > 0 {
		logging.Info("  Disk tier:    %s of %s used (%d entries)",
			humanize.IBytes(uint64(stats.DiskBytes)), humanize.IBytes(uint64(stats.DiskLimit)), stats.DiskEntries)
	} else {
		logging.Info("  Disk tier:    DISABLED")
	}
	logging.Info("  [OK] Cache opened in %v", duration.Round(time.Millisecond))
}

// LogDecoderInit logs decoder setup.
func LogDecoderInit(vipsAvailable bool, workerCount, thumbnailSize int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DECODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Thumbnail size:  %dpx", thumbnailSize)
	logging.Info("  Decode workers:  %d", workerCount)
	if vipsAvailable {
		logging.Info("  [OK] libvips is available for full-size decoding")
	} else {
		logging.Info("  Full-size decoding uses pure Go decoders")
	}
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv.
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY")
	logging.Info("------------------------------------------------------------")
	switch result.Source {
	case "GOMEMLIMIT":
		logging.Info("  GOMEMLIMIT:      %s (from environment)", humanize.IBytes(uint64(result.GoMemLimit)))
	case "MEMORY_LIMIT":
		logging.Info("  Container limit: %s", humanize.IBytes(uint64(result.ContainerLimit)))
		logging.Info("  GOMEMLIMIT:      %s (%.0f%%)", humanize.IBytes(uint64(result.GoMemLimit)), result.Ratio*100)
	default:
		logging.Info("  No memory limit configured, decode backpressure disabled")
	}
	logging.Info("")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level
func LogHTTPRoutes(router *mux.Router) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if !logging.IsDebugEnabled() {
		return
	}

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}

	logging.Debug("  Registered routes (%d total):", len(routes))

	groups := make(map[string][]RouteInfo)
	for _, route := range routes {
		prefix := getRouteGroup(route.Path)
		groups[prefix] = append(groups[prefix], route)
	}

	groupKeys := make([]string, 0, len(groups))
	for k := range groups {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)

	for _, group := range groupKeys {
		if group != "" {
			logging.Debug("  [%s]", group)
		} else {
			logging.Debug("  [root]")
		}
		for _, route := range groups[group] {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration.Round(time.Millisecond))
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Gallery API:   http://localhost:%s/api/gallery", config.Port)
	logging.Info("    Metrics:       http://localhost:%s/metrics", config.Port)
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// PrintBanner prints the startup banner and build information.
func PrintBanner() {
	banner := `
------------------------------------------------------------
                    __
    ____  ___  ___ / /__ _________ __      __
   / __ \/ _ \/ _ \/ //_// ___/ __ '/ | /| / /
  / /_/ /  __/  __/ ,<  / /  / /_/ /| |/ |/ /
 / .___/\___/\___/_/|_|/_/   \__,_/ |__/|__/
/_/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

// LogSystemInfo logs runtime details.
func LogSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getBool(v *viper.Viper, key string) bool {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return false
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: false", EnvName(key), value)
		return false
	}
	return parsed
}

func getInt(v *viper.Viper, key string) (int, error) {
	value := strings.TrimSpace(v.GetString(key))
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", EnvName(key), value, err)
	}
	return parsed, nil
}
