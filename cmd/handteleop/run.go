package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/handteleop/pkg/hand"
	"github.com/gwillem/handteleop/pkg/kinematics"
	"github.com/gwillem/handteleop/pkg/robot"
	"github.com/gwillem/handteleop/pkg/teleop"
	"github.com/gwillem/handteleop/pkg/tracking"
)

type RunCommand struct {
	Hz       int           `long:"hz" description:"Control loop frequency (overrides config)"`
	Mirror   bool          `long:"mirror" description:"Mirror mode: the operator's right hand drives the left arm"`
	Side     string        `long:"side" default:"right" choice:"left" choice:"right" description:"Arm charted in the TUI"`
	Noise    float64       `long:"noise" default:"0.0015" description:"Synthetic tracker jitter, meters"`
	Dropout  time.Duration `long:"dropout" description:"Synthetic tracking dropout interval (0 disables)"`
	Duration time.Duration `long:"duration" description:"Stop after this long (0 runs until quit)"`
}

const (
	headerHeight = 2 // title row plus spacer
	statusHeight = 2 // per-side status row plus spacer
	legendHeight = 2 // joint legend plus spacer
	footerHeight = 7 // log pane
	maxLogs      = 5 // lines kept in the log pane
	borderSize   = 2 // chart frame
)

// One chart color per arm joint, root to tip.
var jointColors = map[string]string{
	kinematics.ShoulderPitch: "196", // red
	kinematics.ShoulderRoll:  "208", // orange
	kinematics.ShoulderYaw:   "226", // yellow
	kinematics.ElbowFlex:     "46",  // green
	kinematics.WristRoll:     "51",  // cyan
	kinematics.WristPitch:    "201", // magenta
	kinematics.WristYaw:      "99",  // purple
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	alertStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

type runModel struct {
	ctrl     *teleop.Controller
	side     hand.Side
	chart    *streamlinechart.Model
	width    int      // terminal width
	height   int      // terminal height
	logs     []string // tail of the controller log
	quitting bool
	state    teleop.State
	lastArm  map[string]float64 // track previous angles to detect movement
}

func (m *runModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement reports whether any joint angle changed since the last
// charted state.
func (m *runModel) hasMovement(angles map[string]float64) bool {
	if m.lastArm == nil {
		return true // nothing charted yet
	}
	for name, a := range angles {
		if last, ok := m.lastArm[name]; !ok || a != last {
			return true
		}
	}
	return false
}

// Controller events surfaced into the update loop
type stateMsg teleop.State
type logMsg string

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize fits the chart to the terminal, holding back room for the
// header, status, legend and log pane.
func (m *runModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // no WindowSizeMsg yet
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - statusHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *runModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialRunModel(ctrl *teleop.Controller, side hand.Side) runModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-3, 3),
	)

	// Set up data set styles for each joint
	for _, name := range kinematics.ArmJointNames() {
		color := jointColors[name]
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	return runModel{
		ctrl:  ctrl,
		side:  side,
		chart: &chart,
	}
}

func (m runModel) Init() tea.Cmd {
	// Subscribe to the controller's state and log streams
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "tab":
			m.side = m.side.Other()
			return m, nil
		}

	case stateMsg:
		state := teleop.State(msg)
		m.state = state
		arm := state.Side(m.side).Arm
		if arm != nil {
			// Idle frames are not pushed so the trace freezes in place
			if m.hasMovement(arm) {
				for name, a := range arm {
					m.chart.PushDataSet(name, a)
				}
				m.chart.DrawAll()
				m.lastArm = arm
			}
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m runModel) View() string {
	if m.quitting {
		return "Teleop stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Hand Teleop"))
	sb.WriteString(fmt.Sprintf(" - %d Hz - %s arm", m.ctrl.Hz(), m.side))
	if m.ctrl.Mirror() {
		sb.WriteString(statusStyle.Render("  [mirror]"))
	}
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Per-side status
	sb.WriteString(sideStatus("left", m.state.Left))
	sb.WriteString("   ")
	sb.WriteString(sideStatus("right", m.state.Right))
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	// Log pane
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit, tab to switch arms")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func sideStatus(label string, s teleop.SideState) string {
	var parts []string
	if s.Tracked {
		parts = append(parts, okStyle.Render("tracking"))
	} else {
		parts = append(parts, warnStyle.Render("lost"))
	}
	if s.Tracked && !s.Reachable {
		parts = append(parts, warnStyle.Render("clamped"))
	}
	if s.Contact {
		parts = append(parts, alertStyle.Render("CONTACT"))
	}
	return statusStyle.Render(label+":") + " " + strings.Join(parts, " ")
}

func renderLegend() string {
	var items []string
	for _, name := range kinematics.ArmJointNames() {
		color := jointColors[name]
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
		item := colorStyle.Render("━━") + " " + name
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

// buildTuning folds the persisted flat knobs onto the controller
// defaults. Zero values keep the default.
func buildTuning(rt robot.Tuning) teleop.Tuning {
	t := teleop.DefaultTuning()
	if rt.SpringStiffness > 0 {
		t.Spring.Stiffness = rt.SpringStiffness
	}
	if rt.SpringDamping > 0 {
		t.Spring.Damping = rt.SpringDamping
	}
	if rt.SpringMass > 0 {
		t.Spring.Mass = rt.SpringMass
	}
	if rt.OrientationAlpha > 0 {
		t.OrientationAlpha = rt.OrientationAlpha
	}
	if rt.ShapeWindow > 0 {
		t.ShapeWindow = rt.ShapeWindow
	}
	if rt.AngleWindow > 0 {
		t.AngleWindow = rt.AngleWindow
	}
	if rt.MaxIterations > 0 {
		t.Solver.MaxIterations = rt.MaxIterations
	}
	if rt.PositionTolerance > 0 {
		t.Solver.PositionTolerance = rt.PositionTolerance
	}
	if rt.OrientationTolerance > 0 {
		t.Solver.OrientationTolerance = rt.OrientationTolerance
	}
	if rt.IKDamping > 0 {
		t.Solver.Damping = rt.IKDamping
	}
	if rt.IKMaxStep > 0 {
		t.Solver.MaxStep = rt.IKMaxStep
	}
	switch {
	case rt.IKRegularization > 0:
		t.Solver.Regularization = rt.IKRegularization
	case rt.IKRegularization < 0:
		// The solver treats 0 as a valid tuning; the flat config can
		// only reach it through the negative sentinel.
		t.Solver.Regularization = 0
	}
	if rt.CurlMethod == "ratio" {
		t.Retarget.Method = hand.CurlDistanceRatio
	}
	if rt.ContactGraceMs > 0 {
		t.ContactGrace = time.Duration(rt.ContactGraceMs) * time.Millisecond
	}
	if rt.SafeBlend > 0 {
		t.SafeBlend = rt.SafeBlend
	}
	return t
}

// buildSink connects every configured, calibrated arm. Returns nil when
// no side has hardware, which leaves the controller running dry.
func buildSink(cfg *robot.Config) (*robot.ServoSink, error) {
	sink := robot.NewServoSink()
	attached := false
	for _, side := range hand.Sides() {
		ac := cfg.Side(side)
		if ac.Port == "" || !ac.IsCalibrated() {
			continue
		}
		arm, err := robot.NewServoArm(ac.Port, ac.Calibration)
		if err != nil {
			sink.Close()
			return nil, fmt.Errorf("connect %s arm: %w", side, err)
		}
		if err := arm.Enable(context.Background()); err != nil {
			arm.Close()
			sink.Close()
			return nil, fmt.Errorf("enable %s arm: %w", side, err)
		}
		sink.Attach(side, arm)
		attached = true
		fmt.Printf("Connected %s arm on %s\n", side, ac.Port)
	}
	if !attached {
		return nil, nil
	}
	return sink, nil
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := robot.LoadConfig()
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = &robot.Config{}
	} else {
		fmt.Printf("Using config %s\n", robot.DefaultConfigFile)
	}

	hz := cfg.Hz
	if c.Hz > 0 {
		hz = c.Hz
	}
	if hz <= 0 {
		hz = 60
	}
	mirror := cfg.Mirror || c.Mirror

	// The tracker bridge is external; the synthetic source stands in
	// for it and follows the control rate.
	scfg := tracking.DefaultSynthConfig()
	scfg.Step = time.Second / time.Duration(hz)
	scfg.Noise = c.Noise
	if c.Dropout > 0 {
		scfg.DropoutEvery = c.Dropout
	}
	source := tracking.NewSynth(scfg)

	sink, err := buildSink(cfg)
	if err != nil {
		log.Fatalf("Failed to connect arms: %v", err)
	}
	if sink == nil {
		fmt.Println("No calibrated arms configured; running without hardware.")
	} else {
		defer func() {
			if err := sink.Shutdown(context.Background()); err != nil {
				fmt.Printf("Warning: arm shutdown: %v\n", err)
			}
		}()
	}

	tcfg := teleop.Config{
		Source: source,
		Hz:     hz,
		Mirror: mirror,
		Tuning: buildTuning(cfg.Tuning),
	}
	if sink != nil {
		tcfg.Sink = sink
	}
	ctrl, err := teleop.NewController(tcfg)
	if err != nil {
		log.Fatalf("Controller setup failed: %v", err)
	}
	defer ctrl.Close()

	// The control loop runs alongside the TUI
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if c.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.Duration)
		defer cancel()
	}

	p := tea.NewProgram(initialRunModel(ctrl, hand.Side(c.Side)), tea.WithAltScreen())

	go func() {
		err := ctrl.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Printf("Control loop: %v", err)
		}
		if c.Duration > 0 {
			p.Quit()
		}
	}()

	if _, err := p.Run(); err != nil {
		log.Fatalf("TUI failed: %v", err)
	}

	return nil
}
