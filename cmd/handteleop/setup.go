package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/handteleop/pkg/hand"
	"github.com/gwillem/handteleop/pkg/kinematics"
	"github.com/gwillem/handteleop/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// One arm carries 14 servos: IDs 1-7 drive the arm joints root to tip,
// IDs 8-14 the effector.
const servoCount = 14

type SetupCommand struct{}

type jointServo struct {
	name string
	id   int
}

// jointServoOrder returns every joint with its bus servo ID.
func jointServoOrder() []jointServo {
	var out []jointServo
	for i, name := range kinematics.ArmJointNames() {
		out = append(out, jointServo{name: name, id: i + 1})
	}
	for i, name := range kinematics.HandJointNames() {
		out = append(out, jointServo{name: name, id: i + 8})
	}
	return out
}

// presetLimits returns the hardware radian range for every joint. The
// captured counts range is mapped onto these.
func presetLimits() map[string]kinematics.Limit {
	out := make(map[string]kinematics.Limit, servoCount)
	for _, j := range kinematics.NewArmChain(false).Joints {
		out[j.Name] = kinematics.Limit{Lower: j.Lower, Upper: j.Upper}
	}
	for _, j := range kinematics.NewHandJoints() {
		out[j.Name] = kinematics.Limit{Lower: j.Lower, Upper: j.Upper}
	}
	return out
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Hand Teleop Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	config := scanForArms()

	// Calibrate whichever sides the scan assigned
	for _, side := range hand.Sides() {
		ac := config.Side(side)
		if ac.Port == "" {
			continue
		}
		fmt.Println()
		fmt.Println(subHeaderStyle.Render(fmt.Sprintf("━━━ Calibrating %s arm ━━━", side)))
		fmt.Println()
		calibrateArm(ac, side)

		// Save after each arm so a crash loses at most one calibration
		if err := config.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("All set."))
	fmt.Printf("Config written to %s\n", robot.DefaultConfigFile)
	fmt.Println()
	fmt.Println("Run " + headerStyle.Render("handteleop run") + " to start driving.")

	return nil
}

func scanForArms() *robot.Config {
	fmt.Println("Scanning serial ports...")
	fmt.Println()

	arms := findArms()

	if len(arms) == 0 {
		fmt.Println("No arms found.")
		fmt.Println("Check power and USB, then rerun setup.")
		os.Exit(1)
	}

	fmt.Printf("Found %d arm(s). Now to sort out which side is which.\n\n", len(arms))

	// Nudge each arm in turn; the operator names its side
	config := &robot.Config{}

	for _, arm := range arms {
		side := identifyArmWithWiggle(arm, config.Left.Port == "", config.Right.Port == "")
		switch side {
		case "left":
			config.Left.Port = arm.port
		case "right":
			config.Right.Port = arm.port
		}

		// Both sides assigned
		if config.Left.Port != "" && config.Right.Port != "" {
			break
		}
	}

	fmt.Println()

	if config.Left.Port == "" && config.Right.Port == "" {
		fmt.Println("No arms were identified.")
		os.Exit(1)
	}

	// A single identified arm is enough to continue
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Ports assigned:"))
	if config.Left.Port != "" {
		fmt.Printf("  Left:  %s\n", config.Left.Port)
	}
	if config.Right.Port != "" {
		fmt.Printf("  Right: %s\n", config.Right.Port)
	}

	return config
}

func calibrateArm(armConfig *robot.ArmConfig, side hand.Side) {
	fmt.Printf("Calibrating %s arm on %s\n", side, armConfig.Port)
	fmt.Println()

	bus, servos, err := connectToArm(armConfig.Port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", armConfig.Port, err)
		os.Exit(1)
	}
	defer bus.Close()

	// Servo handles keyed by bus ID
	servoMap := make(map[int]*feetech.Servo)
	for _, s := range servos {
		servoMap[s.ID] = feetech.NewServo(bus, s.ID, s.Model)
	}

	// Disable all servos so the operator can move the arm freely
	ctx := context.Background()
	for _, servo := range servoMap {
		servo.Disable(ctx)
	}

	joints := jointServoOrder()

	fmt.Println(subHeaderStyle.Render("Capture range of motion"))
	fmt.Println("Sweep every joint from one end stop to the other, fingers too.")
	fmt.Println("The Range column turns green once a joint has seen enough travel.")
	fmt.Println()

	// Seed the extremes with the resting pose
	curPositions := make(map[string]int)
	minPositions := make(map[string]int)
	maxPositions := make(map[string]int)
	for _, j := range joints {
		pos, _ := servoMap[j.id].Position(ctx)
		curPositions[j.name] = pos
		minPositions[j.name] = pos
		maxPositions[j.name] = pos
	}

	model := newCalibrationModel(joints, servoMap, curPositions, minPositions, maxPositions)
	p := tea.NewProgram(model)
	finalModel, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Capture UI failed: %v\n", err)
		os.Exit(1)
	}

	// Collect the extremes the ticker accumulated
	cm := finalModel.(calibrationModel)
	for _, j := range joints {
		minPositions[j.name] = cm.minPositions[j.name]
		maxPositions[j.name] = cm.maxPositions[j.name]
	}

	inverted := askInvertedJoints(joints)

	fmt.Println()

	// Build calibration: captured counts mapped onto the preset radian
	// ranges. Inverted mounting swaps the counts ends.
	limits := presetLimits()
	calibration := make(robot.Calibration)
	for _, j := range joints {
		lim := limits[j.name]
		countsMin, countsMax := minPositions[j.name], maxPositions[j.name]
		if inverted[j.name] {
			countsMin, countsMax = countsMax, countsMin
		}
		calibration[j.name] = robot.ServoCalibration{
			ID:        j.id,
			CountsMin: countsMin,
			CountsMax: countsMax,
			RadMin:    lim.Lower,
			RadMax:    lim.Upper,
		}
	}
	if err := calibration.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Calibration invalid: %v\n", err)
		os.Exit(1)
	}

	armConfig.Calibration = calibration
	fmt.Println()
	fmt.Printf("The %s arm is calibrated.\n", side)
}

// askInvertedJoints marks servos whose counts run opposite to the
// joint's radian direction; their counts ends get swapped.
func askInvertedJoints(joints []jointServo) map[string]bool {
	options := make([]huh.Option[string], 0, len(joints))
	for _, j := range joints {
		options = append(options, huh.NewOption(j.name, j.name))
	}

	var names []string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Any joints mounted inverted?").
				Description("Pick joints that read backwards during capture; leave empty if unsure").
				Options(options...).
				Value(&names),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

type armInfo struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

func findArms() []armInfo {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing serial ports: %v\n", err)
		return nil
	}

	var arms []armInfo

	for _, port := range ports {
		// macOS lists Bluetooth endpoints as serial ports
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)

		bus, err := feetech.NewBus(feetech.BusConfig{
			Port:     port,
			BaudRate: 1_000_000,
			Protocol: feetech.ProtocolSTS,
			Timeout:  100 * time.Millisecond,
		})
		if err != nil {
			cancel()
			continue
		}

		servos, err := bus.Scan(ctx, 1, servoCount)
		cancel()

		if err != nil {
			bus.Close()
			continue
		}

		if isTeleopArm(servos) {
			fmt.Printf("  Found %d-servo arm on %s\n", servoCount, port)
			arms = append(arms, armInfo{
				port:   port,
				servos: servos,
				bus:    bus,
			})
		} else {
			bus.Close()
		}
	}

	return arms
}

// isTeleopArm checks for a complete chain: servoCount servos with
// consecutive IDs from 1.
func isTeleopArm(servos []feetech.FoundServo) bool {
	if len(servos) != servoCount {
		return false
	}

	ids := make(map[int]bool)
	for _, s := range servos {
		ids[s.ID] = true
	}

	for i := 1; i <= servoCount; i++ {
		if !ids[i] {
			return false
		}
	}

	return true
}

func identifyArmWithWiggle(arm armInfo, needLeft, needRight bool) string {
	defer arm.bus.Close()

	ctx := context.Background()

	// The nudge runs on the shoulder pitch servo, ID 1
	var servo *feetech.Servo
	for _, s := range arm.servos {
		if s.ID == 1 {
			servo = feetech.NewServo(arm.bus, s.ID, s.Model)
			break
		}
	}

	if servo == nil {
		return ""
	}

	originalPos, err := servo.Position(ctx)
	if err != nil {
		fmt.Printf("  Error reading shoulder position: %v\n", err)
		return ""
	}

	// Torque on for the nudge
	if err := servo.Enable(ctx); err != nil {
		fmt.Printf("  Error enabling torque: %v\n", err)
		return ""
	}

	fmt.Printf("\n  Watch for movement on %s...\n", arm.port)

	// One slow out-and-back nudge
	wiggleAmount := 30
	moveTimeMs := 500
	servo.SetPositionWithTime(ctx, originalPos+wiggleAmount, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)
	servo.SetPositionWithTime(ctx, originalPos-wiggleAmount, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)

	// Settle back to the starting position
	servo.SetPositionWithTime(ctx, originalPos, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)

	// Torque off again
	servo.Disable(ctx)

	// Offer only the sides still unassigned
	var options []huh.Option[string]
	if needLeft {
		options = append(options, huh.NewOption("Left arm", "left"))
	}
	if needRight {
		options = append(options, huh.NewOption("Right arm", "right"))
	}
	options = append(options, huh.NewOption("Skip for now", "skip"))

	var side string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Which side just moved? (%s)", arm.port)).
				Description("Pick the side of the arm that nudged").
				Options(options...).
				Value(&side),
		),
	)

	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	if side == "skip" {
		return ""
	}

	return side
}

func connectToArm(port string) (*feetech.Bus, []feetech.FoundServo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, nil, err
	}

	servos, err := bus.Scan(ctx, 1, servoCount)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}

	if !isTeleopArm(servos) {
		bus.Close()
		return nil, nil, fmt.Errorf("incomplete chain (expected %d servos with IDs 1-%d)", servoCount, servoCount)
	}

	return bus, servos, nil
}

// calibrationModel drives the live min/max capture table.
type calibrationModel struct {
	joints       []jointServo
	servoMap     map[int]*feetech.Servo
	curPositions map[string]int
	minPositions map[string]int
	maxPositions map[string]int
	quitting     bool
}

type tickMsg time.Time

func newCalibrationModel(
	joints []jointServo,
	servoMap map[int]*feetech.Servo,
	curPositions, minPositions, maxPositions map[string]int,
) calibrationModel {
	return calibrationModel{
		joints:       joints,
		servoMap:     servoMap,
		curPositions: curPositions,
		minPositions: minPositions,
		maxPositions: maxPositions,
	}
}

func (m calibrationModel) Init() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		// Poll every servo and stretch the recorded extremes
		ctx := context.Background()
		for _, j := range m.joints {
			pos, err := m.servoMap[j.id].Position(ctx)
			if err != nil {
				continue
			}
			m.curPositions[j.name] = pos
			if pos < m.minPositions[j.name] {
				m.minPositions[j.name] = pos
			}
			if pos > m.maxPositions[j.name] {
				m.maxPositions[j.name] = pos
			}
		}
		return m, tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
			return tickMsg(t)
		})
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableJointStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.joints))
	ranges := make([]int, 0, len(m.joints))
	for _, j := range m.joints {
		rangeSize := m.maxPositions[j.name] - m.minPositions[j.name]
		ranges = append(ranges, rangeSize)
		rows = append(rows, []string{
			j.name,
			fmt.Sprintf("%d", j.id),
			fmt.Sprintf("%d", m.curPositions[j.name]),
			fmt.Sprintf("%d", m.minPositions[j.name]),
			fmt.Sprintf("%d", m.maxPositions[j.name]),
			fmt.Sprintf("%d", rangeSize),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "ID", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableJointStyle
			case 2:
				return tableCurrentStyle
			case 5:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter once every range reads green"))

	return sb.String()
}
