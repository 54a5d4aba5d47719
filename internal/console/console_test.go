package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/camnode/internal/agent"
)

// fakeAgent is a minimal stand-in for the agent actor.
type fakeAgent struct {
	state     agent.State
	threshold float64
	cmds      []string
	err       error
}

func (f *fakeAgent) Submit(_ context.Context, cmd agent.Command) (agent.State, error) {
	f.cmds = append(f.cmds, cmd.Name())
	if f.err != nil {
		return agent.State{}, f.err
	}

	switch c := cmd.(type) {
	case agent.Status, agent.SensorTest:
		if !f.state.Paired {
			return f.state, agent.ErrNotPaired
		}
	case agent.Reset, agent.Delete:
		f.state = agent.State{}
	case agent.AssignID:
		f.state = agent.State{Paired: true, SysID: c.ID, Threshold: f.threshold}
	case agent.Sample:
		if !f.state.Paired {
			return f.state, agent.ErrNotPaired
		}
		if f.state.Threshold == 0 {
			return f.state, agent.ErrNoThreshold
		}
		f.state.InRange = c.Distance <= f.state.Threshold
	}
	return f.state, nil
}

func run(t *testing.T, a Submitter, input string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := New(strings.NewReader(input), &out, a)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.Run(ctx)
	return out.String(), err
}

func TestConsole_Commands(t *testing.T) {
	tests := []struct {
		name     string
		state    agent.State
		input    string
		want     []string
		wantCmds []string
	}{
		{
			name:  "help",
			input: "help\n",
			want:  []string{"Available commands: status, reset, delete, set_id, sensor, simulate, exit"},
		},
		{
			name:     "status paired",
			state:    agent.State{Paired: true, SysID: "abc"},
			input:    "status\n",
			want:     []string{"System is active with sys_id: abc"},
			wantCmds: []string{"status"},
		},
		{
			name:     "status unpaired",
			input:    "status\n",
			want:     []string{"System is not installed with sys_id: N/A"},
			wantCmds: []string{"status"},
		},
		{
			name:     "sensor unpaired",
			input:    "sensor\n",
			want:     []string{"No system ID set."},
			wantCmds: []string{"sensor_test"},
		},
		{
			name:     "sensor paired",
			state:    agent.State{Paired: true, SysID: "abc"},
			input:    "sensor\n",
			want:     []string{"Sensor data published."},
			wantCmds: []string{"sensor_test"},
		},
		{
			name:     "reset and delete",
			state:    agent.State{Paired: true, SysID: "abc"},
			input:    "reset\ndelete\n",
			want:     []string{"System reset.", "System deleted."},
			wantCmds: []string{"reset", "delete"},
		},
		{
			name:  "unknown",
			input: "launch\n\n",
			want:  []string{"Unknown command. Type 'help' for commands."},
		},
		{
			name:     "simulate unpaired",
			input:    "simulate\n",
			want:     []string{"No system ID set."},
			wantCmds: []string{"snapshot"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAgent{state: tt.state}
			out, err := run(t, a, tt.input)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			if strings.Join(a.cmds, ",") != strings.Join(tt.wantCmds, ",") {
				t.Errorf("commands = %v, want %v", a.cmds, tt.wantCmds)
			}
		})
	}
}

func TestConsole_SetIDTwoStep(t *testing.T) {
	a := &fakeAgent{threshold: 75}
	out, err := run(t, a, "set_id\nAbc-1\nstatus\n")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !strings.Contains(out, "Enter the system ID:") {
		t.Errorf("missing identifier prompt:\n%s", out)
	}
	if !strings.Contains(out, "System ID manually set to: Abc-1") {
		t.Errorf("missing confirmation:\n%s", out)
	}
	if a.state.SysID != "Abc-1" {
		t.Errorf("assigned %q, want Abc-1 with case kept", a.state.SysID)
	}
	// The identifier line is not parsed as a command.
	if strings.Contains(out, "Unknown command") {
		t.Errorf("identifier treated as command:\n%s", out)
	}
}

func TestConsole_SetIDEmpty(t *testing.T) {
	a := &fakeAgent{}
	out, err := run(t, a, "set_id\n\nstatus\n")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out, "No system ID entered.") {
		t.Errorf("missing rejection:\n%s", out)
	}
	if a.state.Paired {
		t.Error("empty identifier paired the node")
	}
}

func TestConsole_Simulate(t *testing.T) {
	a := &fakeAgent{state: agent.State{Paired: true, SysID: "abc", Threshold: 75}}
	out, err := run(t, a, "simulate\n80\n70\nabc\n70\n90\nexit\nhelp\n")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{
		"The range is 0 to 75 to detect.",
		"No person in range (80 cm). No additional publish.",
		"Person detected in range (70 cm). Published to MQTT.",
		"Invalid input. Please enter a numeric value for distance.",
		"Person still in range (70 cm). No additional publish.",
		"Person out of range (90 cm). Published to MQTT.",
		"Stopped distance sensor simulation.",
		"Available commands:",
	}
	last := -1
	for _, w := range want {
		i := strings.Index(out, w)
		if i < 0 {
			t.Fatalf("output missing %q:\n%s", w, out)
		}
		if i < last {
			t.Errorf("%q out of order:\n%s", w, out)
		}
		last = i
	}
}

func TestConsole_SimulateWithoutThreshold(t *testing.T) {
	a := &fakeAgent{state: agent.State{Paired: true, SysID: "abc"}}
	out, err := run(t, a, "simulate\n")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(out, "No detection range known") {
		t.Errorf("output:\n%s", out)
	}
}

func TestConsole_Exit(t *testing.T) {
	a := &fakeAgent{}
	out, err := run(t, a, "exit\nstatus\n")
	if !errors.Is(err, ErrExit) {
		t.Fatalf("Run() error = %v, want ErrExit", err)
	}
	if !strings.Contains(out, "Exiting...") {
		t.Errorf("output:\n%s", out)
	}
	if len(a.cmds) != 0 {
		t.Errorf("commands after exit: %v", a.cmds)
	}
}

func TestConsole_AgentStopped(t *testing.T) {
	a := &fakeAgent{err: agent.ErrStopped}
	_, err := run(t, a, "status\n")
	if !errors.Is(err, agent.ErrStopped) {
		t.Errorf("Run() error = %v, want ErrStopped", err)
	}
}

func TestConsole_ContextCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	c := New(pr, io.Discard, &fakeAgent{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestInteractive_NotTerminal(t *testing.T) {
	f, err := openTemp(t)
	if err != nil {
		t.Fatal(err)
	}
	if Interactive(f) {
		t.Error("Interactive(regular file) = true")
	}
}

func openTemp(t *testing.T) (*os.File, error) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() { f.Close() })
	return f, nil
}
