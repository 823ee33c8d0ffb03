package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/aster/internal/config"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	rt, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 64, rt.FramesMax)
	assert.Equal(t, 2, rt.GCGrowthFactor)
	assert.False(t, rt.GCStress)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("frames_max: 128\ngc_growth_factor: 4\n"), 0600))

	rt, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 128, rt.FramesMax)
	assert.Equal(t, 4, rt.GCGrowthFactor)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aster.yaml")
	require.NoError(t, os.WriteFile(path, []byte("frames_max: 128\n"), 0600))

	t.Setenv("ASTER_FRAMES_MAX", "256")

	rt, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 256, rt.FramesMax)
}
