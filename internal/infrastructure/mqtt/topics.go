package mqtt

import "fmt"

// DefaultTopicPrefix is the first segment of identifier-scoped topics.
const DefaultTopicPrefix = "m5stack"

// Topic leaves shared by the router and the publishers.
const (
	LeafInstall       = "install"
	LeafDelete        = "delete"
	LeafGetFrame      = "get_frame"
	LeafFrameResponse = "frame_response"
	LeafHeight        = "height"
	LeafStatus        = "status"
	LeafReset         = "reset"
	LeafActive        = "active"
	LeafSensor        = "sensor"
)

// Topics builds the device topic hierarchy.
//
// Unpaired devices listen on the bare "install" topic. Once paired every
// device topic is scoped as {prefix}/{sys_id}/{leaf}:
//
//	topics := mqtt.Topics{Prefix: "m5stack"}
//	topics.GetFrame("abc") // "m5stack/abc/get_frame"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

func (t Topics) device(id, leaf string) string {
	return fmt.Sprintf("%s/%s/%s", t.prefix(), id, leaf)
}

// Install returns the pairing topic an unpaired device listens on.
func (Topics) Install() string {
	return LeafInstall
}

// Status returns the bare status request topic a paired device listens on.
func (Topics) Status() string {
	return LeafStatus
}

// InstallAck returns the topic the pairing acknowledgement is published to.
//
// Example: m5stack/abc/install
func (t Topics) InstallAck(id string) string {
	return t.device(id, LeafInstall)
}

// Delete returns the unpair request topic.
//
// Example: m5stack/abc/delete
func (t Topics) Delete(id string) string {
	return t.device(id, LeafDelete)
}

// GetFrame returns the frame capture request topic.
//
// Example: m5stack/abc/get_frame
func (t Topics) GetFrame(id string) string {
	return t.device(id, LeafGetFrame)
}

// FrameResponse returns the topic captured frames are published to.
//
// Example: m5stack/abc/frame_response
func (t Topics) FrameResponse(id string) string {
	return t.device(id, LeafFrameResponse)
}

// Height returns the height topic. Messages on it are accepted and ignored.
//
// Example: m5stack/abc/height
func (t Topics) Height(id string) string {
	return t.device(id, LeafHeight)
}

// Active returns the liveness topic carrying the last will.
//
// Example: m5stack/abc/active
func (t Topics) Active(id string) string {
	return t.device(id, LeafActive)
}

// Sensor returns the proximity event topic.
//
// Example: m5stack/abc/sensor
func (t Topics) Sensor(id string) string {
	return t.device(id, LeafSensor)
}
