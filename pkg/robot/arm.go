// Package robot drives the servo hardware: calibration between radians
// and raw counts, the serial arm connection, and the sink the teleop
// controller commits angles through.
package robot

import (
	"context"
	"fmt"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// ServoArm is one serial chain of servos: 7 arm joints plus 7 effector
// joints behind a single bus.
type ServoArm struct {
	bus   *feetech.Bus
	group *feetech.ServoGroup
	cal   Calibration
}

// NewServoArm opens the serial bus and prepares the servo group for
// every calibrated joint.
func NewServoArm(port string, cal Calibration) (*ServoArm, error) {
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	return &ServoArm{
		bus:   bus,
		group: feetech.NewServoGroupByIDs(bus, cal.ServoIDs()...),
		cal:   cal,
	}, nil
}

// Close closes the arm's bus connection.
func (a *ServoArm) Close() error {
	return a.bus.Close()
}

// Enable enables torque on all servos.
func (a *ServoArm) Enable(ctx context.Context) error {
	return a.group.EnableAll(ctx)
}

// Disable disables torque on all servos.
func (a *ServoArm) Disable(ctx context.Context) error {
	return a.group.DisableAll(ctx)
}

// Calibration returns the arm's calibration table.
func (a *ServoArm) Calibration() Calibration {
	return a.cal
}

// ReadAngles reads all servo positions and converts them to radians.
func (a *ServoArm) ReadAngles(ctx context.Context) (map[string]float64, error) {
	raw, err := a.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	angles := make(map[string]float64, len(raw))
	for id, counts := range raw {
		name, sc, ok := a.cal.ByID(id)
		if !ok {
			continue
		}
		angles[name] = sc.ToRadians(counts)
	}
	return angles, nil
}

// ReadCounts reads raw servo positions keyed by joint name.
func (a *ServoArm) ReadCounts(ctx context.Context) (map[string]int, error) {
	raw, err := a.group.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	counts := make(map[string]int, len(raw))
	for id, c := range raw {
		if name, _, ok := a.cal.ByID(id); ok {
			counts[name] = c
		}
	}
	return counts, nil
}

// WriteAngles converts radians to counts and writes every servo in one
// sync-write batch. A joint name without calibration is an error.
func (a *ServoArm) WriteAngles(ctx context.Context, angles map[string]float64) error {
	raw := make(feetech.PositionMap, len(angles))
	for name, rad := range angles {
		sc, ok := a.cal[name]
		if !ok {
			return fmt.Errorf("no calibration for joint %q", name)
		}
		raw[sc.ID] = sc.ToCounts(rad)
	}

	if err := a.group.SetPositions(ctx, raw); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}
