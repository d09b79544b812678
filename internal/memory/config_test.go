package memory

import (
	"math"
	"runtime/debug"
	"testing"
)

// restoreMemoryLimit puts back the process memory limit after a test that
// changes it.
func restoreMemoryLimit(t *testing.T) {
	t.Helper()
	old := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(old) })
}

func TestConfigureFromEnv(t *testing.T) {
	tests := []struct {
		name           string
		memoryLimit    string
		memoryRatio    string
		wantConfigured bool
		wantSource     string
		wantContainer  int64
		wantRatio      float64
	}{
		{
			name:       "nothing set",
			wantSource: "none",
		},
		{
			name:           "plain bytes",
			memoryLimit:    "1073741824",
			wantConfigured: true,
			wantSource:     "MEMORY_LIMIT",
			wantContainer:  1 << 30,
			wantRatio:      DefaultMemoryRatio,
		},
		{
			name:           "size with unit and ratio",
			memoryLimit:    "2GiB",
			memoryRatio:    "0.5",
			wantConfigured: true,
			wantSource:     "MEMORY_LIMIT",
			wantContainer:  2 << 30,
			wantRatio:      0.5,
		},
		{
			name:           "ratio out of range falls back",
			memoryLimit:    "1GiB",
			memoryRatio:    "1.5",
			wantConfigured: true,
			wantSource:     "MEMORY_LIMIT",
			wantContainer:  1 << 30,
			wantRatio:      DefaultMemoryRatio,
		},
		{
			name:        "invalid limit",
			memoryLimit: "lots",
			wantSource:  "none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restoreMemoryLimit(t)
			t.Setenv("GOMEMLIMIT", "")
			t.Setenv("MEMORY_LIMIT", tt.memoryLimit)
			t.Setenv("MEMORY_RATIO", tt.memoryRatio)

			result := ConfigureFromEnv()

			if result.Configured != tt.wantConfigured {
				t.Errorf("Configured = %v, want %v", result.Configured, tt.wantConfigured)
			}
			if result.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", result.Source, tt.wantSource)
			}
			if result.ContainerLimit != tt.wantContainer {
				t.Errorf("ContainerLimit = %d, want %d", result.ContainerLimit, tt.wantContainer)
			}
			if math.Abs(result.Ratio-tt.wantRatio) > 1e-9 {
				t.Errorf("Ratio = %f, want %f", result.Ratio, tt.wantRatio)
			}
			if tt.wantConfigured {
				want := int64(float64(tt.wantContainer) * tt.wantRatio)
				if result.GoMemLimit != want {
					t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, want)
				}
				if got := debug.SetMemoryLimit(-1); got != want {
					t.Errorf("runtime memory limit = %d, want %d", got, want)
				}
			}
		})
	}
}

func TestConfigureFromEnv_GOMEMLIMITWins(t *testing.T) {
	restoreMemoryLimit(t)
	debug.SetMemoryLimit(512 << 20)
	t.Setenv("GOMEMLIMIT", "512MiB")
	t.Setenv("MEMORY_LIMIT", "4GiB")

	result := ConfigureFromEnv()

	if result.Source != "GOMEMLIMIT" {
		t.Errorf("Source = %q, want GOMEMLIMIT", result.Source)
	}
	if result.GoMemLimit != 512<<20 {
		t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, 512<<20)
	}
	if result.ContainerLimit != 0 {
		t.Errorf("ContainerLimit = %d, want 0", result.ContainerLimit)
	}
}
