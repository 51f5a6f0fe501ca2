// Package dashboard implements the stagectl jog dashboard.
package dashboard

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hdrlab/linstage/pkg/controller"
	"github.com/hdrlab/linstage/pkg/stage"
)

// RefreshInterval is the display refresh period.
const RefreshInterval = 100 * time.Millisecond

// gaugeWidth is the number of cells in the position gauge.
const gaugeWidth = 40

type tickMsg time.Time

// resultMsg reports a finished command.
type resultMsg struct {
	op  string
	ok  bool
	err error
}

// Model is the dashboard state.
type Model struct {
	ctx context.Context
	c   *controller.Controller

	// speed is the jog speed as a fraction of the velocity limit.
	speed float64

	message  string
	busy     string
	quitting bool
}

// New creates a dashboard for c. ctx bounds every issued command.
func New(ctx context.Context, c *controller.Controller) Model {
	return Model{ctx: ctx, c: c, speed: 0.5}
}

// Init implements tea.Model interface.
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model interface.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.key(msg)

	case tickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tick()

	case resultMsg:
		if m.busy == msg.op {
			m.busy = ""
		}
		if msg.ok {
			m.message = msg.op + " ok"
		} else {
			m.message = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
		}
		if m.quitting {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	limit := m.c.Config().MaxVelocity

	switch msg.String() {
	case "ctrl+c", "q", "esc":
		m.quitting = true
		return m, m.run("stop", m.c.Stop)

	case "left", "a":
		v := -limit * m.speed
		return m, m.run("jog", func(ctx context.Context) bool { return m.c.SetVelocity(ctx, v) })

	case "right", "d":
		v := limit * m.speed
		return m, m.run("jog", func(ctx context.Context) bool { return m.c.SetVelocity(ctx, v) })

	case "up", "+":
		m.speed = math.Min(1, m.speed+0.1)

	case "down", "-":
		m.speed = math.Max(0.1, m.speed-0.1)

	case " ", "s":
		return m, m.run("stop", m.c.Stop)

	case "h":
		m.busy = "home"
		return m, m.run("home", m.c.Home)

	case "c":
		m.busy = "connect"
		return m, m.run("connect", m.c.Connect)

	case "[":
		lo := m.c.Config().PositionLimit.Min
		return m, m.run("move", func(ctx context.Context) bool { return m.c.MoveTo(ctx, lo) })

	case "]":
		hi := m.c.Config().PositionLimit.Max
		return m, m.run("move", func(ctx context.Context) bool { return m.c.MoveTo(ctx, hi) })
	}
	return m, nil
}

// run issues a controller command off the update loop.
func (m Model) run(op string, fn func(context.Context) bool) tea.Cmd {
	ctx, c := m.ctx, m.c
	return func() tea.Msg {
		ok := fn(ctx)
		var err error
		if !ok {
			err = c.LastError()
		}
		return resultMsg{op: op, ok: ok, err: err}
	}
}

// Speed returns the jog speed fraction.
func (m Model) Speed() float64 {
	return m.speed
}

// View implements tea.Model interface.
func (m Model) View() string {
	var b strings.Builder
	cfg := m.c.Config()
	snap := m.c.Status()

	b.WriteString("Linear Stage Dashboard\n")
	b.WriteString("======================\n\n")

	fmt.Fprintf(&b, "Port:     %s\n", m.c.Port())
	fmt.Fprintf(&b, "State:    %s", m.c.State())
	if m.busy != "" {
		fmt.Fprintf(&b, " (%s...)", m.busy)
	}
	b.WriteString("\n")
	if reason := m.c.ErrorReason(); reason != nil {
		fmt.Fprintf(&b, "Fault:    %v\n", reason)
	}

	if snap.Known {
		fmt.Fprintf(&b, "Position: %9.4f mm  %s\n", snap.Position, Gauge(snap.Position, cfg.PositionLimit, gaugeWidth))
		fmt.Fprintf(&b, "Velocity: %9.4f mm/s\n", snap.Velocity)
		fmt.Fprintf(&b, "Homed:    %t   Moving: %t   Rate: %.0f Hz\n", snap.IsHomed, snap.IsMoving, m.c.SampleRate())
	} else {
		b.WriteString("Position: unknown\n")
	}
	fmt.Fprintf(&b, "Jog:      %3.0f%% of %.2f mm/s\n", m.speed*100, cfg.MaxVelocity)

	if m.message != "" {
		fmt.Fprintf(&b, "\n> %s\n", m.message)
	}

	b.WriteString("\n←/→ jog  ↑/↓ speed  space stop  h home  c connect  [ ] limits  q quit\n")
	return b.String()
}

// Gauge renders pos as a marker within limits, e.g. "0 [----|-----] 100".
func Gauge(pos float64, limits stage.Limits, width int) string {
	if width < 2 {
		width = 2
	}
	frac := (pos - limits.Min) / limits.Span()
	frac = math.Max(0, math.Min(1, frac))
	at := int(math.Round(frac * float64(width-1)))

	cells := []byte(strings.Repeat("-", width))
	cells[at] = '|'
	return fmt.Sprintf("%g [%s] %g", limits.Min, cells, limits.Max)
}
