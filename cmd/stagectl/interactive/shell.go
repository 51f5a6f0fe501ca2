// Package interactive provides the interactive command-line interface
// for stagectl.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/hdrlab/linstage/pkg/controller"
)

// Shell handles interactive mode for stagectl.
type Shell struct {
	c   *controller.Controller
	rl  *readline.Instance
	out io.Writer
}

// New creates a shell bound to c.
func New(c *controller.Controller) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "stage> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{c: c, rl: rl, out: rl.Stdout()}, nil
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("status"),
	readline.PcItem("info"),
	readline.PcItem("connect"),
	readline.PcItem("disconnect"),
	readline.PcItem("home"),
	readline.PcItem("move"),
	readline.PcItem("jog"),
	readline.PcItem("vel"),
	readline.PcItem("stop"),
	readline.PcItem("limits"),
	readline.PcItem("quit"),
)

// Stdout returns a writer that coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that coordinates with the readline input.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				// ^C halts the stage, it does not exit.
				s.cmdStop(ctx)
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if !s.Execute(ctx, line) {
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns false when the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "status", "st":
		s.cmdStatus()

	case "info":
		s.cmdInfo()

	case "connect", "c":
		s.cmdConnect(ctx)

	case "disconnect", "dc":
		s.c.Disconnect()
		fmt.Fprintln(s.out, "Disconnected")

	case "home", "h":
		s.cmdHome(ctx)

	case "move", "m":
		s.cmdMove(ctx, args)

	case "jog", "j":
		s.cmdJog(ctx, args)

	case "vel", "v":
		s.cmdVelocity(ctx, args)

	case "stop", "x":
		s.cmdStop(ctx)

	case "limits":
		s.cmdLimits()

	case "quit", "exit", "q":
		return false

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
Stage Commands:
  Connection:
    connect            - Connect to the configured port
    disconnect         - Release the device
    info               - Show device identity

  Motion:
    home               - Home the axis
    move <mm>          - Move to an absolute position
    jog <mm>           - Move relative to the current position
    vel <mm/s>         - Move at a constant velocity (0 stops)
    stop               - Stop motion (also ^C)

  General:
    status             - Show stage status
    limits             - Show configured limits
    help               - Show this help
    quit               - Exit`)
}

func (s *Shell) cmdStatus() {
	snap := s.c.Status()
	fmt.Fprintf(s.out, "State:     %s\n", s.c.State())
	if reason := s.c.ErrorReason(); reason != nil {
		fmt.Fprintf(s.out, "Fault:     %v\n", reason)
	}
	if !snap.Known {
		fmt.Fprintln(s.out, "Position:  unknown")
		return
	}
	fmt.Fprintf(s.out, "Position:  %.4f mm\n", snap.Position)
	fmt.Fprintf(s.out, "Velocity:  %.4f mm/s\n", snap.Velocity)
	fmt.Fprintf(s.out, "Moving:    %t\n", snap.IsMoving)
	fmt.Fprintf(s.out, "Homed:     %t\n", snap.IsHomed)
	fmt.Fprintf(s.out, "Rate:      %.1f Hz\n", s.c.SampleRate())
	fmt.Fprintf(s.out, "Age:       %s\n", snap.Age().Round(time.Millisecond))
}

func (s *Shell) cmdInfo() {
	fmt.Fprintf(s.out, "Port:      %s\n", s.c.Port())
	if id := s.c.SessionID(); id != "" {
		fmt.Fprintf(s.out, "Session:   %s\n", id)
	}
	info, ok := s.c.DeviceInfo()
	if !ok {
		fmt.Fprintln(s.out, "Device:    unknown")
		return
	}
	fmt.Fprintf(s.out, "Device:    %s\n", info)
}

func (s *Shell) cmdLimits() {
	cfg := s.c.Config()
	fmt.Fprintf(s.out, "Position:  %.3f .. %.3f mm\n", cfg.PositionLimit.Min, cfg.PositionLimit.Max)
	fmt.Fprintf(s.out, "Velocity:  ±%.3f mm/s\n", cfg.MaxVelocity)
	fmt.Fprintf(s.out, "Rate:      %.1f Hz\n", cfg.ReadingRateHz)
}

func (s *Shell) cmdConnect(ctx context.Context) {
	if !s.c.Connect(ctx) {
		s.failed("connect")
		return
	}
	fmt.Fprintf(s.out, "Connected to %s (%s)\n", s.c.Port(), s.c.State())
}

func (s *Shell) cmdHome(ctx context.Context) {
	fmt.Fprintln(s.out, "Homing...")
	if !s.c.Home(ctx) {
		s.failed("home")
		return
	}
	fmt.Fprintf(s.out, "Homed at %.4f mm\n", s.c.Position())
}

func (s *Shell) cmdMove(ctx context.Context, args []string) {
	target, ok := s.parseValue(args, "move <mm>")
	if !ok {
		return
	}
	if !s.c.MoveTo(ctx, target) {
		s.failed("move")
		return
	}
	fmt.Fprintf(s.out, "Moving to %.4f mm\n", target)
}

func (s *Shell) cmdJog(ctx context.Context, args []string) {
	delta, ok := s.parseValue(args, "jog <mm>")
	if !ok {
		return
	}
	target := s.c.Position() + delta
	if !s.c.MoveTo(ctx, target) {
		s.failed("jog")
		return
	}
	fmt.Fprintf(s.out, "Moving to %.4f mm\n", target)
}

func (s *Shell) cmdVelocity(ctx context.Context, args []string) {
	v, ok := s.parseValue(args, "vel <mm/s>")
	if !ok {
		return
	}
	if !s.c.SetVelocity(ctx, v) {
		s.failed("velocity")
		return
	}
	fmt.Fprintf(s.out, "Velocity %.4f mm/s\n", v)
}

func (s *Shell) cmdStop(ctx context.Context) {
	if !s.c.Stop(ctx) {
		s.failed("stop")
		return
	}
	fmt.Fprintln(s.out, "Stopped")
}

func (s *Shell) parseValue(args []string, usage string) (float64, bool) {
	if len(args) != 1 {
		fmt.Fprintf(s.out, "Usage: %s\n", usage)
		return 0, false
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Fprintf(s.out, "Invalid number: %s\n", args[0])
		return 0, false
	}
	return v, true
}

func (s *Shell) failed(op string) {
	fmt.Fprintf(s.out, "%s failed: %v\n", op, s.c.LastError())
}
