package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/handteleop/pkg/hand"
	"github.com/gwillem/handteleop/pkg/robot"
)

type InfoCommand struct{}

func (c *InfoCommand) Execute(args []string) error {
	cfg, err := robot.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "No configuration found. Run 'handteleop setup' first.")
		os.Exit(1)
	}

	fmt.Println(headerStyle.Render("Hand Teleop Info"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━"))

	shown := false
	for _, side := range hand.Sides() {
		ac := cfg.Side(side)
		if ac.Port == "" {
			continue
		}
		shown = true
		fmt.Println()
		fmt.Println(subHeaderStyle.Render(fmt.Sprintf("%s arm on %s", side, ac.Port)))
		switch err := showArm(ac); {
		case errors.Is(err, robot.ErrNoCalibration):
			fmt.Fprintln(os.Stderr, "  Not calibrated. Run 'handteleop setup' first.")
		case err != nil:
			fmt.Fprintf(os.Stderr, "  Error: %v\n", err)
		}
	}

	if !shown {
		fmt.Println()
		fmt.Println("No arms configured. Run 'handteleop setup' first.")
		os.Exit(1)
	}

	return nil
}

// showArm prints the live joint readings for one arm, a quick check
// that wiring and calibration agree.
func showArm(ac *robot.ArmConfig) error {
	arm, err := robot.NewServoArm(ac.Port, ac.Calibration)
	if err != nil {
		return err
	}
	defer arm.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	angles, err := arm.ReadAngles(ctx)
	if err != nil {
		return fmt.Errorf("read angles: %w", err)
	}
	counts, err := arm.ReadCounts(ctx)
	if err != nil {
		return fmt.Errorf("read counts: %w", err)
	}

	cal := arm.Calibration()
	names := make([]string, 0, len(cal))
	for name := range cal {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return cal[names[i]].ID < cal[names[j]].ID })

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		sc := cal[name]
		rows = append(rows, []string{
			name,
			fmt.Sprintf("%d", sc.ID),
			fmt.Sprintf("%+.3f", angles[name]),
			fmt.Sprintf("%d", counts[name]),
			fmt.Sprintf("%+.2f .. %+.2f", sc.RadMin, sc.RadMax),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "ID", "Radians", "Counts", "Range").
		Rows(rows...)

	fmt.Println(t.Render())
	return nil
}
