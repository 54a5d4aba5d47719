package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/nerrad567/camnode/internal/agent"
)

// ErrExit is returned by Run when the operator typed exit.
var ErrExit = errors.New("console: exit requested")

// Submitter runs a command on the agent and waits for the result.
type Submitter interface {
	Submit(ctx context.Context, cmd agent.Command) (agent.State, error)
}

type mode int

const (
	modeCommand mode = iota
	modeAwaitID
	modeSimulate
)

// Console reads operator commands line by line.
type Console struct {
	in    io.Reader
	out   io.Writer
	agent Submitter
	mode  mode
}

// New creates a Console reading from in and writing to out.
func New(in io.Reader, out io.Writer, a Submitter) *Console {
	return &Console{in: in, out: out, agent: a}
}

// Interactive reports whether f is a terminal.
func Interactive(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Run processes input until it ends, ctx is cancelled or the operator
// types exit. End of input returns nil; exit returns ErrExit.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	c.prompt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("reading console input: %w", err)
			}
			return nil
		case line := <-lines:
			if err := c.Line(ctx, line); err != nil {
				return err
			}
			c.prompt()
		}
	}
}

func (c *Console) prompt() {
	switch c.mode {
	case modeSimulate:
		c.printf("Enter the current distance (or type 'exit' to stop): ")
	case modeAwaitID:
	default:
		c.printf("\nEnter command: ")
	}
}

// Line handles one line of input. It returns ErrExit for exit and agent
// failures other than rejected commands.
func (c *Console) Line(ctx context.Context, line string) error {
	switch c.mode {
	case modeAwaitID:
		c.mode = modeCommand
		return c.assign(ctx, strings.TrimSpace(line))
	case modeSimulate:
		return c.sample(ctx, line)
	}

	in, err := Parse(line)
	switch {
	case errors.Is(err, ErrEmptyInput):
		return nil
	case err != nil:
		c.println("Unknown command. Type 'help' for commands.")
		return nil
	}

	switch in.(type) {
	case HelpInput:
		c.println("Available commands: " + strings.Join(commandNames, ", "))
	case StatusInput:
		st, err := c.agent.Submit(ctx, agent.Status{})
		if errors.Is(err, agent.ErrNotPaired) {
			c.println("System is not installed with sys_id: N/A")
			return nil
		}
		if err != nil {
			return c.failed(in, err)
		}
		c.printf("System is active with sys_id: %s\n", st.SysID)
	case ResetInput:
		if _, err := c.agent.Submit(ctx, agent.Reset{}); err != nil {
			return c.failed(in, err)
		}
		c.println("System reset.")
	case DeleteInput:
		if _, err := c.agent.Submit(ctx, agent.Delete{}); err != nil {
			return c.failed(in, err)
		}
		c.println("System deleted.")
	case SensorInput:
		_, err := c.agent.Submit(ctx, agent.SensorTest{})
		if errors.Is(err, agent.ErrNotPaired) {
			c.println("No system ID set.")
			return nil
		}
		if err != nil {
			return c.failed(in, err)
		}
		c.println("Sensor data published.")
	case SimulateInput:
		st, err := c.agent.Submit(ctx, agent.Snapshot{})
		if err != nil {
			return c.failed(in, err)
		}
		switch {
		case !st.Paired:
			c.println("No system ID set.")
		case st.Threshold == 0:
			c.println("No detection range known for this system.")
		default:
			c.printf("The range is 0 to %g to detect.\n", st.Threshold)
			c.mode = modeSimulate
		}
	case SetIDInput:
		c.println("Enter the system ID:")
		c.mode = modeAwaitID
	case ExitInput:
		c.println("Exiting...")
		return ErrExit
	}
	return nil
}

func (c *Console) assign(ctx context.Context, id string) error {
	if id == "" {
		c.println("No system ID entered.")
		return nil
	}
	if _, err := c.agent.Submit(ctx, agent.AssignID{ID: id}); err != nil {
		return c.failed(SetIDInput{}, err)
	}
	c.printf("System ID manually set to: %s\n", id)
	return nil
}

func (c *Console) sample(ctx context.Context, line string) error {
	d, exit, err := ParseSample(line)
	if exit {
		c.mode = modeCommand
		c.println("Stopped distance sensor simulation.")
		return nil
	}
	if err != nil {
		c.println("Invalid input. Please enter a numeric value for distance.")
		return nil
	}

	before, err := c.agent.Submit(ctx, agent.Snapshot{})
	if err != nil {
		return c.failed(SimulateInput{}, err)
	}
	after, err := c.agent.Submit(ctx, agent.Sample{Distance: d})
	if err != nil {
		if errors.Is(err, agent.ErrNotPaired) || errors.Is(err, agent.ErrNoThreshold) {
			c.mode = modeCommand
			c.println("No system ID set. Stopped distance sensor simulation.")
			return nil
		}
		return c.failed(SimulateInput{}, err)
	}

	switch {
	case after.InRange && !before.InRange:
		c.printf("Person detected in range (%g cm). Published to MQTT.\n", d)
	case after.InRange:
		c.printf("Person still in range (%g cm). No additional publish.\n", d)
	case before.InRange:
		c.printf("Person out of range (%g cm). Published to MQTT.\n", d)
	default:
		c.printf("No person in range (%g cm). No additional publish.\n", d)
	}
	return nil
}

// failed reports an agent error. A stopped agent ends the console; other
// errors are printed and the console carries on.
func (c *Console) failed(in Input, err error) error {
	if errors.Is(err, agent.ErrStopped) || errors.Is(err, context.Canceled) {
		return err
	}
	c.printf("%s failed: %v\n", in, err)
	return nil
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...) //nolint:errcheck // Console output is best effort
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s) //nolint:errcheck // Console output is best effort
}
