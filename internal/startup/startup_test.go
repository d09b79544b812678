package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/spf13/pflag"

	"peekraw/internal/filesource"
	"peekraw/internal/thumbcache"
)

// setEnv points every variable LoadConfig reads at a known value.
func setEnv(t *testing.T, overrides map[string]string) {
	t.Helper()
	base := t.TempDir()
	env := map[string]string{
		"PEEKRAW_CACHE_DIR":      filepath.Join(base, "cache"),
		"PEEKRAW_CONFIG_DIR":     filepath.Join(base, "config"),
		"MEMORY_CACHE_ITEMS":     "",
		"DISK_CACHE_SIZE":        "",
		"DISK_CACHE_COMPRESSION": "",
		"THUMBNAIL_SIZE":         "",
		"DECODE_WORKERS":         "",
		"ENUMERATION_ERRORS":     "",
		"VIPS_ENABLED":           "",
		"PORT":                   "",
	}
	for k, v := range overrides {
		env[k] = v
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	setEnv(t, nil)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.MemoryCacheItems != thumbcache.DefaultMemoryItems {
		t.Errorf("MemoryCacheItems = %d, want %d", cfg.MemoryCacheItems, thumbcache.DefaultMemoryItems)
	}
	if cfg.DiskCacheBytes != 100<<20 {
		t.Errorf("DiskCacheBytes = %d, want %d", cfg.DiskCacheBytes, 100<<20)
	}
	if cfg.ThumbnailSize != 400 {
		t.Errorf("ThumbnailSize = %d, want 400", cfg.ThumbnailSize)
	}
	if cfg.DecodeWorkers != 1 {
		t.Errorf("DecodeWorkers = %d, want 1", cfg.DecodeWorkers)
	}
	if cfg.EnumerationPolicy != filesource.PolicyWarn {
		t.Errorf("EnumerationPolicy = %v, want warn", cfg.EnumerationPolicy)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %s, want %s", cfg.Port, DefaultPort)
	}
	if cfg.DiskCacheCompression || cfg.VipsEnabled {
		t.Error("Expected compression and vips to default to off")
	}
	if !cfg.DiskCacheEnabled {
		t.Error("Expected disk cache to be enabled")
	}
	if _, err := os.Stat(cfg.ThumbnailDir); err != nil {
		t.Errorf("thumbnail directory not created: %v", err)
	}
	if _, err := os.Stat(cfg.ConfigDir); err != nil {
		t.Errorf("config directory not created: %v", err)
	}

	disk := cfg.DiskOptions()
	if disk.Dir != cfg.ThumbnailDir || disk.MaxBytes != cfg.DiskCacheBytes {
		t.Errorf("DiskOptions() = %+v", disk)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	setEnv(t, map[string]string{
		"MEMORY_CACHE_ITEMS":     "250",
		"DISK_CACHE_SIZE":        "1GiB",
		"DISK_CACHE_COMPRESSION": "true",
		"THUMBNAIL_SIZE":         "256",
		"DECODE_WORKERS":         "3",
		"ENUMERATION_ERRORS":     "strict",
		"VIPS_ENABLED":           "1",
		"PORT":                   "9000",
	})

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.MemoryCacheItems != 250 {
		t.Errorf("MemoryCacheItems = %d", cfg.MemoryCacheItems)
	}
	if cfg.DiskCacheBytes != 1<<30 {
		t.Errorf("DiskCacheBytes = %d", cfg.DiskCacheBytes)
	}
	if !cfg.DiskCacheCompression || !cfg.VipsEnabled {
		t.Error("Expected compression and vips to be on")
	}
	if cfg.ThumbnailSize != 256 || cfg.DecodeWorkers != 3 || cfg.Port != "9000" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.EnumerationPolicy != filesource.PolicyStrict {
		t.Errorf("EnumerationPolicy = %v, want strict", cfg.EnumerationPolicy)
	}
	if !cfg.DiskOptions().Compress {
		t.Error("DiskOptions() should carry compression")
	}
}

func TestLoadConfig_DiskCacheDisabledBySize(t *testing.T) {
	setEnv(t, map[string]string{"DISK_CACHE_SIZE": "0"})

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.DiskCacheEnabled {
		t.Error("Expected disk cache to be disabled")
	}
	if cfg.DiskOptions().Dir != "" {
		t.Error("DiskOptions() should be empty when disabled")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"memory items not a number", "MEMORY_CACHE_ITEMS", "many"},
		{"memory items zero", "MEMORY_CACHE_ITEMS", "0"},
		{"disk size", "DISK_CACHE_SIZE", "huge"},
		{"thumbnail size", "THUMBNAIL_SIZE", "8"},
		{"workers", "DECODE_WORKERS", "-2"},
		{"policy", "ENUMERATION_ERRORS", "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, map[string]string{tt.key: tt.val})
			if _, err := LoadConfig(); err == nil {
				t.Errorf("LoadConfig() with %s=%q should fail", tt.key, tt.val)
			}
		})
	}
}

func TestLoadConfigFrom_FlagOverridesEnv(t *testing.T) {
	setEnv(t, map[string]string{"THUMBNAIL_SIZE": "256", "PORT": "9000"})

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("thumbnail-size", 0, "")
	flags.String("port", "", "")
	if err := flags.Parse([]string{"--thumbnail-size", "128"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	v := NewViper()
	for name, key := range map[string]string{"thumbnail-size": KeyThumbnailSize, "port": KeyPort} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			t.Fatalf("BindPFlag(%s) error = %v", name, err)
		}
	}

	cfg, err := LoadConfigFrom(v)
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}
	if cfg.ThumbnailSize != 128 {
		t.Errorf("ThumbnailSize = %d, want the flag value 128", cfg.ThumbnailSize)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want the environment value 9000 when the flag is unset", cfg.Port)
	}
	if cfg.MemoryCacheItems != thumbcache.DefaultMemoryItems {
		t.Errorf("MemoryCacheItems = %d, want default %d", cfg.MemoryCacheItems, thumbcache.DefaultMemoryItems)
	}
}

func TestLoadConfig_ConfigDirIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	setEnv(t, map[string]string{"PEEKRAW_CONFIG_DIR": file})

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() should fail when the config dir is a file")
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"0", 0, false},
		{"1048576", 1 << 20, false},
		{"100MiB", 100 << 20, false},
		{"64MB", 64_000_000, false},
		{" 2 GiB ", 2 << 30, false},
		{"-5", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{"", true, true},
		{"true", false, true},
		{"0", true, false},
		{"maybe", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL_VAR", tt.value)
			if got := getEnvBool("TEST_BOOL_VAR", tt.defaultValue); got != tt.want {
				t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/gallery", func(_ http.ResponseWriter, _ *http.Request) {}).Methods("GET").Name("gallery")
	r.HandleFunc("/api/open", func(_ http.ResponseWriter, _ *http.Request) {}).Methods("POST")
	r.HandleFunc("/healthz", func(_ http.ResponseWriter, _ *http.Request) {})

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("GetRoutes() = %v, want 3 routes", routes)
	}
	if routes[0].Method != "GET" || routes[0].Path != "/api/gallery" || routes[0].Name != "gallery" {
		t.Errorf("routes[0] = %+v", routes[0])
	}
	if routes[2].Method != "*" {
		t.Errorf("route without methods = %+v, want *", routes[2])
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := map[string]string{
		"/api/gallery":        "api/gallery",
		"/api/thumbnail/{id}": "api/thumbnail",
		"/metrics":            "metrics",
		"/":                   "",
	}
	for path, want := range tests {
		if got := getRouteGroup(path); got != want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", path, got, want)
		}
	}
}
