// Package mqtt provides MQTT client connectivity for camnode.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after every reconnect
//   - Last Will and Testament registration
//   - The device topic hierarchy (Topics)
//
// # Architecture
//
// The node talks to its backend only through the broker:
//
//	camnode ↔ MQTT Broker ↔ backend
//
// Handlers run on paho goroutines and must hand work off instead of blocking.
// The client disables paho's ordered delivery so one slow handler cannot
// stall the others.
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) outside a lab network
//   - mqtt.broker.ca_file pins the broker CA instead of the system roots
//   - Credentials come from CAMNODE_MQTT_USERNAME / CAMNODE_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.ConnectOptions{
//	    Will:      will,
//	    OnConnect: agent.Connected,
//	    Logger:    log,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.Install(), 2,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
package mqtt
