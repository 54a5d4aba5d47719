package main

import (
	"sync"

	"github.com/nerrad567/camnode/internal/infrastructure/mqtt"
)

// busAdapter adapts the MQTT client to the agent and capture worker.
// Every subscription the agent makes delivers to the router. The client is
// bound after connecting, because the last will depends on the identity the
// agent restores first.
type busAdapter struct {
	mu      sync.RWMutex
	client  *mqtt.Client
	handler mqtt.MessageHandler
}

func (b *busAdapter) bind(client *mqtt.Client, handler mqtt.MessageHandler) {
	b.mu.Lock()
	b.client = client
	b.handler = handler
	b.mu.Unlock()
}

func (b *busAdapter) get() (*mqtt.Client, mqtt.MessageHandler) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client, b.handler
}

func (b *busAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	client, _ := b.get()
	if client == nil {
		return mqtt.ErrNotConnected
	}
	return client.Publish(topic, payload, qos, retained)
}

func (b *busAdapter) Subscribe(topic string, qos byte) error {
	client, handler := b.get()
	if client == nil {
		return mqtt.ErrNotConnected
	}
	return client.Subscribe(topic, qos, handler)
}

func (b *busAdapter) Unsubscribe(topic string) error {
	client, _ := b.get()
	if client == nil {
		return mqtt.ErrNotConnected
	}
	return client.Unsubscribe(topic)
}
