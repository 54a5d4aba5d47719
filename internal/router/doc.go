// Package router turns inbound MQTT messages into agent commands.
//
// Topics are matched by substring against a fixed, ordered pattern list:
//
//	get_frame, delete, reset, status, install
//
// The first pattern contained in the topic wins, so a topic carrying two
// pattern names resolves by that order. Payloads are JSON; an empty payload
// is a bare trigger. Anything that fails to decode is logged and dropped
// without touching the agent.
//
// Handle runs on the MQTT client's callback goroutines. It only decodes and
// posts to the agent's queue, never waiting on bus I/O.
package router
