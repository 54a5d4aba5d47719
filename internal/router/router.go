package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/camnode/internal/agent"
	"github.com/nerrad567/camnode/internal/identity"
	"github.com/nerrad567/camnode/internal/infrastructure/mqtt"
)

// Sentinel errors returned by Handle. They are informational: the MQTT
// client logs handler errors and carries on.
var (
	ErrUnknownTopic   = errors.New("router: no route for topic")
	ErrDecode         = errors.New("router: payload is not valid JSON")
	ErrMalformedTopic = errors.New("router: malformed topic")
)

// Route names, in match order.
const (
	RouteGetFrame = mqtt.LeafGetFrame
	RouteDelete   = mqtt.LeafDelete
	RouteReset    = mqtt.LeafReset
	RouteStatus   = mqtt.LeafStatus
	RouteInstall  = mqtt.LeafInstall
)

// Poster accepts commands without blocking.
type Poster interface {
	Post(cmd agent.Command) error
}

// Logger defines the logging interface used by the Router.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

type route struct {
	pattern string
	build   func(r *Router, topic string, body json.RawMessage) (agent.Command, error)
}

// routes is the match table. Order is significant.
var routes = []route{
	{RouteGetFrame, (*Router).getFrame},
	{RouteDelete, func(*Router, string, json.RawMessage) (agent.Command, error) { return agent.Delete{}, nil }},
	{RouteReset, func(*Router, string, json.RawMessage) (agent.Command, error) { return agent.Reset{}, nil }},
	{RouteStatus, func(*Router, string, json.RawMessage) (agent.Command, error) { return agent.Status{}, nil }},
	{RouteInstall, (*Router).install},
}

// Router dispatches inbound messages to the agent.
type Router struct {
	agent  Poster
	prefix string
	log    Logger
}

// New creates a Router posting to a. prefix is the topic prefix used to
// locate the identifier segment of get_frame topics.
func New(a Poster, prefix string, log Logger) *Router {
	if log == nil {
		log = noopLogger{}
	}
	return &Router{agent: a, prefix: prefix, log: log}
}

// Match returns the route name for topic, or "" when nothing matches.
func Match(topic string) string {
	if rt := lookup(topic); rt != nil {
		return rt.pattern
	}
	return ""
}

func lookup(topic string) *route {
	for i := range routes {
		if strings.Contains(topic, routes[i].pattern) {
			return &routes[i]
		}
	}
	return nil
}

// Handle decodes one message and posts the resulting command. Its
// signature matches mqtt.MessageHandler.
func (r *Router) Handle(topic string, payload []byte) error {
	rt := lookup(topic)
	if rt == nil {
		if strings.HasSuffix(topic, "/"+mqtt.LeafHeight) {
			r.log.Debug("height update ignored", "topic", topic)
			return nil
		}
		r.log.Info("unhandled topic", "topic", topic)
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	var body json.RawMessage
	if trimmed := bytes.TrimSpace(payload); len(trimmed) > 0 {
		if !json.Valid(trimmed) {
			r.log.Warn("dropping undecodable payload", "topic", topic, "bytes", len(payload))
			return fmt.Errorf("%w: topic %s", ErrDecode, topic)
		}
		body = trimmed
	}

	cmd, err := rt.build(r, topic, body)
	if err != nil {
		r.log.Warn("dropping message", "topic", topic, "route", rt.pattern, "error", err)
		return err
	}

	if err := r.agent.Post(cmd); err != nil {
		r.log.Warn("agent did not accept command", "command", cmd.Name(), "topic", topic, "error", err)
		return err
	}
	r.log.Debug("command dispatched", "command", cmd.Name(), "topic", topic)
	return nil
}

func (r *Router) install(_ string, body json.RawMessage) (agent.Command, error) {
	if len(body) == 0 || body[0] != '{' {
		return nil, fmt.Errorf("%w: install payload must be an object", ErrDecode)
	}
	var id identity.Identity
	if err := json.Unmarshal(body, &id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return agent.Install{Identity: id}, nil
}

// getFrame takes the identifier from prefix/<id>/get_frame.
func (r *Router) getFrame(topic string, _ json.RawMessage) (agent.Command, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != r.prefix || parts[1] == "" || parts[2] != mqtt.LeafGetFrame {
		return nil, fmt.Errorf("%w: %s", ErrMalformedTopic, topic)
	}
	return agent.GetFrame{ID: parts[1]}, nil
}
