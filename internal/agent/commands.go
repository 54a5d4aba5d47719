package agent

import "github.com/nerrad567/camnode/internal/identity"

// Command is one request to the agent. The set is closed: only the types in
// this file implement it.
type Command interface {
	command()
	// Name is the stable label used in logs and the local API.
	Name() string
}

// Install pairs the node with the given identity.
type Install struct {
	Identity identity.Identity
}

// Delete unpairs the node and forgets the stored record.
type Delete struct{}

// Reset forgets the identifier in memory only.
type Reset struct{}

// Status announces {status:true} on the active topic.
type Status struct{}

// GetFrame asks the capture worker for a frame answered on ID's topic.
// ID comes from the request topic and never changes the node's identity.
type GetFrame struct {
	ID string
}

// AssignID sets the identifier by hand, without metadata or persistence.
type AssignID struct {
	ID string
}

// Sample feeds one distance reading (centimetres) to the detector.
type Sample struct {
	Distance float64
}

// SensorTest publishes a fixed test reading on the sensor topic.
type SensorTest struct{}

// Snapshot changes nothing and returns the current State.
type Snapshot struct{}

func (Install) command()    {}
func (Delete) command()     {}
func (Reset) command()      {}
func (Status) command()     {}
func (GetFrame) command()   {}
func (AssignID) command()   {}
func (Sample) command()     {}
func (SensorTest) command() {}
func (Snapshot) command()   {}

func (Install) Name() string    { return "install" }
func (Delete) Name() string     { return "delete" }
func (Reset) Name() string      { return "reset" }
func (Status) Name() string     { return "status" }
func (GetFrame) Name() string   { return "get_frame" }
func (AssignID) Name() string   { return "assign_id" }
func (Sample) Name() string     { return "sample" }
func (SensorTest) Name() string { return "sensor_test" }
func (Snapshot) Name() string   { return "snapshot" }
