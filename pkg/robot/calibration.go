package robot

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNoCalibration marks an arm whose calibration has not been
// captured yet.
var ErrNoCalibration = errors.New("no servo calibration")

// ServoCalibration maps one joint between servo counts and radians.
// CountsMin is the servo reading at RadMin and CountsMax the reading at
// RadMax; counts may run backwards for inverted servo mounting
// (CountsMin > CountsMax). Conversions clamp at both ends, so a noisy
// read or an out-of-range command never escapes the calibrated span.
type ServoCalibration struct {
	ID        int     `json:"id"`
	CountsMin int     `json:"counts_min"`
	CountsMax int     `json:"counts_max"`
	RadMin    float64 `json:"rad_min"`
	RadMax    float64 `json:"rad_max"`
}

// ToCounts converts an angle in radians to a raw servo position.
func (c ServoCalibration) ToCounts(rad float64) int {
	span := c.RadMax - c.RadMin
	if span == 0 {
		return c.CountsMin
	}
	t := clamp01((rad - c.RadMin) / span)
	return c.CountsMin + int(math.Round(t*float64(c.CountsMax-c.CountsMin)))
}

// ToRadians converts a raw servo position to an angle in radians.
func (c ServoCalibration) ToRadians(counts int) float64 {
	span := float64(c.CountsMax - c.CountsMin)
	if span == 0 {
		return c.RadMin
	}
	t := clamp01(float64(counts-c.CountsMin) / span)
	return c.RadMin + t*(c.RadMax-c.RadMin)
}

// Calibration holds the servo calibrations for one arm, keyed by joint
// name.
type Calibration map[string]ServoCalibration

// ServoIDs returns all servo IDs, sorted ascending.
func (c Calibration) ServoIDs() []int {
	ids := make([]int, 0, len(c))
	for _, sc := range c {
		ids = append(ids, sc.ID)
	}
	sort.Ints(ids)
	return ids
}

// ByID returns the joint name and calibration for a servo ID.
func (c Calibration) ByID(id int) (string, ServoCalibration, bool) {
	for name, sc := range c {
		if sc.ID == id {
			return name, sc, true
		}
	}
	return "", ServoCalibration{}, false
}

// Validate rejects empty tables, duplicate servo IDs and empty
// conversion spans.
func (c Calibration) Validate() error {
	if len(c) == 0 {
		return ErrNoCalibration
	}
	seen := make(map[int]string, len(c))
	for name, sc := range c {
		if prev, dup := seen[sc.ID]; dup {
			return fmt.Errorf("servo id %d assigned to both %s and %s", sc.ID, prev, name)
		}
		seen[sc.ID] = name
		if sc.CountsMin == sc.CountsMax {
			return fmt.Errorf("%s: empty counts range", name)
		}
		if sc.RadMin == sc.RadMax {
			return fmt.Errorf("%s: empty radian range", name)
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
