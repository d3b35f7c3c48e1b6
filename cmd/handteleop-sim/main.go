// Command handteleop-sim runs the teleoperation pipeline against the
// synthetic tracking source with no hardware attached: a dry run for
// tuning filters and watching the solver behave.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/handteleop/pkg/hand"
	"github.com/gwillem/handteleop/pkg/kinematics"
	"github.com/gwillem/handteleop/pkg/teleop"
	"github.com/gwillem/handteleop/pkg/tracking"
)

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

type model struct {
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

func (m *model) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement reports whether any joint angle changed since the last
// charted state.
func (m *model) hasMovement(angles map[string]float64) bool {
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
func (m *model) chartSize() (width, height int) {
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

func (m *model) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialModel(ctrl *teleop.Controller, side hand.Side) model {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-3, 3),
	)

	// Set up data set styles for each joint
	for _, name := range kinematics.ArmJointNames() {
		color := jointColors[name]
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	return model{
		ctrl:  ctrl,
		side:  side,
		chart: &chart,
	}
}

func (m model) Init() tea.Cmd {
	// Subscribe to the controller's state and log streams
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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

func (m model) View() string {
	if m.quitting {
		return "Simulation stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Hand Teleop Sim"))
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

func main() {
	var (
		hz       = flag.Int("hz", 60, "Control loop frequency")
		mirror   = flag.Bool("mirror", false, "Mirror mode: the operator's right hand drives the left arm")
		side     = flag.String("side", "right", "Arm charted in the TUI (left or right)")
		noise    = flag.Float64("noise", 0.0015, "Tracker jitter, meters")
		dropout  = flag.Duration("dropout", 0, "Tracking dropout interval (0 disables)")
		duration = flag.Duration("duration", 0, "Stop after this long (0 runs until quit)")
	)
	flag.Parse()

	if *side != "left" && *side != "right" {
		log.Fatalf("Invalid -side %q: must be left or right", *side)
	}
	if *hz <= 0 {
		*hz = 60
	}

	scfg := tracking.DefaultSynthConfig()
	scfg.Step = time.Second / time.Duration(*hz)
	scfg.Noise = *noise
	if *dropout > 0 {
		scfg.DropoutEvery = *dropout
	}

	// Create controller: synthetic source, no sink
	ctrl, err := teleop.NewController(teleop.Config{
		Source: tracking.NewSynth(scfg),
		Hz:     *hz,
		Mirror: *mirror,
	})
	if err != nil {
		log.Fatalf("Failed to create controller: %v", err)
	}
	defer ctrl.Close()

	// Start controller in background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	p := tea.NewProgram(initialModel(ctrl, hand.Side(*side)), tea.WithAltScreen())

	go func() {
		err := ctrl.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Printf("Controller error: %v", err)
		}
		if *duration > 0 {
			p.Quit()
		}
	}()

	// Run TUI
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
}
