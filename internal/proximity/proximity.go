// Package proximity turns raw distance readings into presence edges.
//
// The detector holds one boolean. A reading at or under the threshold while
// out of range emits person_detected; a reading over it while in range emits
// person_out_of_range. Everything else is silent, so a person standing still
// produces exactly one event.
//
// Nothing here touches the bus or the wall clock: time is injected.
package proximity

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Status is the presence edge reported to the backend.
type Status string

const (
	StatusDetected   Status = "person_detected"
	StatusOutOfRange Status = "person_out_of_range"
)

// TimestampLayout is the event timestamp format: UTC, seconds, Z suffix.
const TimestampLayout = "2006-01-02T15:04:05Z"

// thresholdFactor scales the viewing-area diagonal into the trigger distance.
const thresholdFactor = 1.5

var (
	// ErrInvalidThreshold is returned for a non-positive or non-finite threshold.
	ErrInvalidThreshold = errors.New("proximity: threshold must be positive")

	// ErrInvalidDistance is returned for a negative or non-finite reading.
	ErrInvalidDistance = errors.New("proximity: distance must be a non-negative number")
)

// Threshold derives the trigger distance from the viewing area:
// 1.5 * sqrt(width² + height²).
func Threshold(width, height float64) float64 {
	return thresholdFactor * math.Hypot(width, height)
}

// Event is one presence edge.
type Event struct {
	Status   Status
	Distance float64
	At       time.Time
}

// Payload encodes the sensor message body:
// {"status":...,"distance":...,"timestamp":...,"device":...}.
func (e Event) Payload(device string) ([]byte, error) {
	return json.Marshal(struct {
		Status    Status  `json:"status"`
		Distance  float64 `json:"distance"`
		Timestamp string  `json:"timestamp"`
		Device    string  `json:"device"`
	}{
		Status:    e.Status,
		Distance:  e.Distance,
		Timestamp: e.At.UTC().Format(TimestampLayout),
		Device:    device,
	})
}

// Detector is the hysteresis state for one pairing. It is not safe for
// concurrent use; the owner serialises access.
type Detector struct {
	threshold float64
	inRange   bool
	now       func() time.Time
}

// NewDetector returns a detector that starts out of range. A nil clock uses
// time.Now.
func NewDetector(threshold float64, now func() time.Time) (*Detector, error) {
	if !(threshold > 0) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	if now == nil {
		now = time.Now
	}
	return &Detector{threshold: threshold, now: now}, nil
}

// Threshold returns the trigger distance.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// InRange reports the current state.
func (d *Detector) InRange() bool {
	return d.inRange
}

// Sample feeds one reading. It returns the event and true only on an edge.
// The boundary is inclusive: distance == threshold counts as in range.
func (d *Detector) Sample(distance float64) (Event, bool, error) {
	if !(distance >= 0) || math.IsInf(distance, 0) {
		return Event{}, false, fmt.Errorf("%w: got %v", ErrInvalidDistance, distance)
	}

	within := distance <= d.threshold
	if within == d.inRange {
		return Event{}, false, nil
	}
	d.inRange = within

	status := StatusOutOfRange
	if within {
		status = StatusDetected
	}
	return Event{Status: status, Distance: distance, At: d.now()}, true, nil
}
