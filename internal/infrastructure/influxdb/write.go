package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/camnode/internal/events"
)

// Measurement names.
const (
	measurementLifecycle = "camnode_lifecycle"
	measurementPresence  = "camnode_presence"
	measurementProximity = "camnode_proximity"
	measurementCapture   = "camnode_capture"
)

// Emit implements events.Sink. The write is batched and never blocks.
func (c *Client) Emit(ev events.Event) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(pointFor(ev))
}

// pointFor maps an event onto a line-protocol point. Tags stay low
// cardinality: the event kind and the device identifier.
func pointFor(ev events.Event) *write.Point {
	tags := map[string]string{"kind": string(ev.Kind)}
	if ev.SysID != "" {
		tags["sys_id"] = ev.SysID
	}

	var measurement string
	fields := map[string]any{}

	switch ev.Kind {
	case events.KindProximity:
		measurement = measurementProximity
		tags["status"] = ev.Status
		fields["distance"] = ev.Distance
		fields["in_range"] = ev.Status == "person_detected"
	case events.KindPresence, events.KindConnectionState:
		measurement = measurementPresence
		fields["online"] = ev.Status == "online" || ev.Status == "connected"
	case events.KindCapture:
		measurement = measurementCapture
		fields["success"] = ev.Success
		fields["duration_ms"] = ev.Duration.Milliseconds()
		fields["bytes"] = ev.Bytes
		if ev.Error != "" {
			fields["error"] = ev.Error
		}
	default:
		measurement = measurementLifecycle
		fields["count"] = 1
	}

	return write.NewPoint(measurement, tags, fields, ev.At)
}
