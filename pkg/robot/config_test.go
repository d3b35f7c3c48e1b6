package robot

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Hz:     90,
		Mirror: true,
		Right: ArmConfig{
			Port: "/dev/ttyACM0",
			Calibration: Calibration{
				"shoulder_pitch": ServoCalibration{
					ID: 1, CountsMin: 500, CountsMax: 3600, RadMin: -2.6, RadMax: 2.6,
				},
				"index_distal_curl": ServoCalibration{
					ID: 12, CountsMin: 3100, CountsMax: 900, RadMin: -1.8, RadMax: 0.05,
				},
			},
		},
		Tuning: Tuning{
			SpringStiffness: 48,
			ShapeWindow:     5,
			CurlMethod:      "ratio",
			ContactGraceMs:  200,
		},
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handteleop.json")
	cfg := testConfig()

	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadConfigFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfigMissingFile(t *testing.T) {
	_, err := LoadConfigFrom(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestConfigIsCalibrated(t *testing.T) {
	cfg := testConfig()
	assert.True(t, cfg.Right.IsCalibrated())
	assert.False(t, cfg.Left.IsCalibrated())
}

func TestConfigSide(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, &cfg.Right, cfg.Side("right"))
	assert.Equal(t, &cfg.Left, cfg.Side("left"))
}
