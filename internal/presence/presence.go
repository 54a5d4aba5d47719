// Package presence publishes the node's liveness on {prefix}/{sys_id}/active.
//
// Three messages share the topic:
//
//	{"status":false}  last will, QoS 1, retained, sent by the broker on a crash
//	{"status":true}   Announce, configured QoS (default 2), not retained
//	{"status":false}  Shutdown, QoS 1, retained, sent before a clean disconnect
//
// The will is fixed when the connection is made. If the node pairs under a
// new identifier afterwards, the broker still holds the old topic until the
// next reconnect.
package presence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/camnode/internal/infrastructure/mqtt"
)

// offlineQoS is used for both the will and the shutdown announcement.
const offlineQoS byte = 1

// ErrNoIdentity is returned when announcing without an identifier.
var ErrNoIdentity = errors.New("presence: no sys_id")

// Publisher is the slice of the bus client presence needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

type status struct {
	Status bool `json:"status"`
}

func payload(online bool) []byte {
	// Encoding a fixed struct cannot fail.
	data, _ := json.Marshal(status{Status: online}) //nolint:errcheck
	return data
}

// Will returns the last will for sysID, or nil when the node is unpaired.
func Will(topics mqtt.Topics, sysID string) *mqtt.Will {
	if sysID == "" {
		return nil
	}
	return &mqtt.Will{
		Topic:    topics.Active(sysID),
		Payload:  payload(false),
		QoS:      offlineQoS,
		Retained: true,
	}
}

// Announcer publishes explicit liveness messages.
type Announcer struct {
	pub       Publisher
	topics    mqtt.Topics
	activeQoS byte
}

// NewAnnouncer returns an Announcer publishing {status:true} at activeQoS.
func NewAnnouncer(pub Publisher, topics mqtt.Topics, activeQoS byte) *Announcer {
	return &Announcer{pub: pub, topics: topics, activeQoS: activeQoS}
}

// Announce publishes {"status":true}.
func (a *Announcer) Announce(sysID string) error {
	if sysID == "" {
		return ErrNoIdentity
	}
	if err := a.pub.Publish(a.topics.Active(sysID), payload(true), a.activeQoS, false); err != nil {
		return fmt.Errorf("announcing online: %w", err)
	}
	return nil
}

// Shutdown publishes the retained {"status":false}. The bus client waits for
// the broker acknowledgement, so calling this before disconnecting is enough.
func (a *Announcer) Shutdown(sysID string) error {
	if sysID == "" {
		return ErrNoIdentity
	}
	if err := a.pub.Publish(a.topics.Active(sysID), payload(false), offlineQoS, true); err != nil {
		return fmt.Errorf("announcing offline: %w", err)
	}
	return nil
}
