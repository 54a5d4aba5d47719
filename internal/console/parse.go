package console

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrEmptyInput is returned for blank lines.
	ErrEmptyInput = errors.New("console: empty input")

	// ErrUnknownCommand is returned for anything outside the command set.
	ErrUnknownCommand = errors.New("console: unknown command")

	// ErrInvalidSample is returned for sample lines that are not a distance.
	ErrInvalidSample = errors.New("console: invalid distance")
)

// Input is one parsed console command. The set is closed.
type Input interface {
	input()
	String() string
}

type (
	StatusInput   struct{}
	ResetInput    struct{}
	DeleteInput   struct{}
	HelpInput     struct{}
	SensorInput   struct{}
	SimulateInput struct{}
	SetIDInput    struct{}
	ExitInput     struct{}
)

func (StatusInput) input()   {}
func (ResetInput) input()    {}
func (DeleteInput) input()   {}
func (HelpInput) input()     {}
func (SensorInput) input()   {}
func (SimulateInput) input() {}
func (SetIDInput) input()    {}
func (ExitInput) input()     {}

func (StatusInput) String() string   { return "status" }
func (ResetInput) String() string    { return "reset" }
func (DeleteInput) String() string   { return "delete" }
func (HelpInput) String() string     { return "help" }
func (SensorInput) String() string   { return "sensor" }
func (SimulateInput) String() string { return "simulate" }
func (SetIDInput) String() string    { return "set_id" }
func (ExitInput) String() string     { return "exit" }

// commandNames lists the commands in help order.
var commandNames = []string{"status", "reset", "delete", "set_id", "sensor", "simulate", "exit"}

// Parse maps one line to a command. Case and surrounding space are ignored.
func Parse(line string) (Input, error) {
	word := strings.ToLower(strings.TrimSpace(line))
	switch word {
	case "":
		return nil, ErrEmptyInput
	case "status":
		return StatusInput{}, nil
	case "reset":
		return ResetInput{}, nil
	case "delete":
		return DeleteInput{}, nil
	case "help":
		return HelpInput{}, nil
	case "sensor":
		return SensorInput{}, nil
	case "simulate":
		return SimulateInput{}, nil
	case "set_id":
		return SetIDInput{}, nil
	case "exit":
		return ExitInput{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, word)
	}
}

// ParseSample reads a line in simulate mode. It reports exit for "exit";
// otherwise the line must be a finite, non-negative distance.
func ParseSample(line string) (distance float64, exit bool, err error) {
	s := strings.TrimSpace(line)
	if strings.EqualFold(s, "exit") {
		return 0, true, nil
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidSample, s)
	}
	return d, false, nil
}
