package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGPUConfig(t *testing.T) {
	c := DefaultGPUConfig()
	assert.False(t, c.UseGPU)
	assert.Equal(t, "kNextPowerOfTwo", c.ArenaExtendStrategy)
	assert.Equal(t, "DEFAULT", c.CUDNNConvAlgoSearch)
	assert.True(t, c.DoCopyInDefaultStream)
	assert.NoError(t, c.Validate())
}

func TestGPUConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*GPUConfig)
		wantErr bool
	}{
		{"cpu ignores bad values", func(c *GPUConfig) { c.DeviceID = -3 }, false},
		{"gpu defaults", func(c *GPUConfig) { c.UseGPU = true }, false},
		{"negative device", func(c *GPUConfig) { c.UseGPU = true; c.DeviceID = -1 }, true},
		{"bad arena", func(c *GPUConfig) { c.UseGPU = true; c.ArenaExtendStrategy = "grow" }, true},
		{"bad cudnn", func(c *GPUConfig) { c.UseGPU = true; c.CUDNNConvAlgoSearch = "FAST" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultGPUConfig()
			tt.mutate(&c)
			if tt.wantErr {
				assert.Error(t, c.Validate())
			} else {
				assert.NoError(t, c.Validate())
			}
		})
	}
}

func TestCUDASettings(t *testing.T) {
	c := DefaultGPUConfig()
	c.DeviceID = 2
	c.GPUMemLimit = 1 << 30
	s := c.cudaSettings()
	assert.Equal(t, "2", s["device_id"])
	assert.Equal(t, "1073741824", s["gpu_mem_limit"])
	assert.Equal(t, "1", s["do_copy_in_default_stream"])

	c.DoCopyInDefaultStream = false
	c.GPUMemLimit = 0
	s = c.cudaSettings()
	assert.Equal(t, "0", s["do_copy_in_default_stream"])
	assert.NotContains(t, s, "gpu_mem_limit")
}

func TestResolveLibraryPrefersExplicitPath(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "libonnxruntime.so")
	require.NoError(t, os.WriteFile(lib, []byte("stub"), 0o600))

	got, err := ResolveLibrary(lib, false)
	require.NoError(t, err)
	assert.Equal(t, lib, got)
}

func TestResolveLibraryFromEnv(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "custom.so")
	require.NoError(t, os.WriteFile(lib, []byte("stub"), 0o600))
	t.Setenv(EnvLibraryPath, lib)

	got, err := ResolveLibrary(filepath.Join(t.TempDir(), "missing.so"), true)
	require.NoError(t, err)
	assert.Equal(t, lib, got)
}

func TestNewSessionRejectsMissingModel(t *testing.T) {
	_, err := NewSession("", SessionConfig{})
	require.Error(t, err)
	_, err = NewSession(filepath.Join(t.TempDir(), "nope.onnx"), SessionConfig{})
	require.Error(t, err)
}
