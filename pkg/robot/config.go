package robot

import (
	"encoding/json"
	"os"

	"github.com/gwillem/handteleop/pkg/hand"
)

const DefaultConfigFile = "handteleop.json"

// Config holds the persisted robot setup.
type Config struct {
	Hz     int       `json:"hz,omitempty"`
	Mirror bool      `json:"mirror,omitempty"`
	Left   ArmConfig `json:"left"`
	Right  ArmConfig `json:"right"`
	Tuning Tuning    `json:"tuning"`
}

// ArmConfig holds configuration for a single arm.
type ArmConfig struct {
	Port        string      `json:"port"`
	Calibration Calibration `json:"calibration,omitempty"`
}

// IsCalibrated returns true if the arm has calibration data.
func (a *ArmConfig) IsCalibrated() bool {
	return len(a.Calibration) > 0
}

// Side returns the arm config for one side.
func (c *Config) Side(side hand.Side) *ArmConfig {
	if side == hand.Left {
		return &c.Left
	}
	return &c.Right
}

// Tuning is the flat bag of controller knobs persisted with the
// config. Zero values mean "use the built-in default".
type Tuning struct {
	SpringStiffness      float64 `json:"spring_stiffness,omitempty"`
	SpringDamping        float64 `json:"spring_damping,omitempty"`
	SpringMass           float64 `json:"spring_mass,omitempty"`
	OrientationAlpha     float64 `json:"orientation_alpha,omitempty"`
	ShapeWindow          int     `json:"shape_window,omitempty"`
	AngleWindow          int     `json:"angle_window,omitempty"`
	MaxIterations        int     `json:"max_iterations,omitempty"`
	PositionTolerance    float64 `json:"position_tolerance,omitempty"`
	OrientationTolerance float64 `json:"orientation_tolerance,omitempty"`
	IKDamping            float64 `json:"ik_damping,omitempty"`
	IKMaxStep            float64 `json:"ik_max_step,omitempty"`
	IKRegularization     float64 `json:"ik_regularization,omitempty"` // negative turns the pull off entirely
	CurlMethod           string  `json:"curl_method,omitempty"` // "bend" or "ratio"
	ContactGraceMs       int     `json:"contact_grace_ms,omitempty"`
	SafeBlend            float64 `json:"safe_blend,omitempty"`
}

// LoadConfig loads configuration from the default config file.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save saves configuration to the default config file.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists.
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
