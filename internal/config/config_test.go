package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValid(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, KernelGaussian, s.Kernel)
	assert.Equal(t, 180.0, s.KernelParamKm)
	assert.Equal(t, 500.0, s.MaxInfluenceKm)
	assert.Equal(t, []float64{1.0, 0.8, 0.6, 0.4}, s.DiminishingWeights)
}

func TestProfiles(t *testing.T) {
	hp, err := Profile("high_precision")
	require.NoError(t, err)
	assert.Equal(t, 120.0, hp.KernelParamKm)
	assert.Equal(t, 600.0, hp.MaxInfluenceKm)

	rl, err := Profile("relaxed")
	require.NoError(t, err)
	assert.Equal(t, KernelLinear, rl.Kernel)
	assert.Equal(t, 500.0, rl.KernelParamKm)

	_, err = Profile("turbo")
	assert.Error(t, err)

	def, err := Profile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), def)
}

func TestValidateRejects(t *testing.T) {
	s := Default()
	s.Kernel = "triangular"
	assert.Error(t, s.Validate())

	s = Default()
	s.KernelParamKm = 0
	assert.Error(t, s.Validate())

	s = Default()
	s.DiminishingWeights = nil
	assert.Error(t, s.Validate())

	s = Default()
	s.DiminishingWeights = []float64{1.0, 1.5}
	assert.Error(t, s.Validate())

	s = Default()
	s.TopKFraction = 0
	assert.Error(t, s.Validate())
}

func TestDiminishingExtendsLast(t *testing.T) {
	s := Default()
	assert.Equal(t, 1.0, s.Diminishing(0))
	assert.Equal(t, 0.8, s.Diminishing(1))
	assert.Equal(t, 0.4, s.Diminishing(3))
	assert.Equal(t, 0.4, s.Diminishing(9))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kernel: exponential\nkernel_param_km: 250\n"), 0o644))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, KernelExponential, s.Kernel)
	assert.Equal(t, 250.0, s.KernelParamKm)
	// 未覆盖字段保留默认
	assert.Equal(t, 500.0, s.MaxInfluenceKm)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SCOUT_PROFILE", "high_precision")
	t.Setenv("SCOUT_MAX_INFLUENCE_KM", "700")
	s := FromEnv()
	assert.Equal(t, 120.0, s.KernelParamKm)
	assert.Equal(t, 700.0, s.MaxInfluenceKm)

	t.Setenv("SCOUT_PROFILE", "bogus")
	t.Setenv("SCOUT_MAX_INFLUENCE_KM", "")
	s = FromEnv()
	assert.Equal(t, Default(), s)
}
