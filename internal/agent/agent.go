package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/camnode/internal/events"
	"github.com/nerrad567/camnode/internal/identity"
	"github.com/nerrad567/camnode/internal/infrastructure/mqtt"
	"github.com/nerrad567/camnode/internal/presence"
	"github.com/nerrad567/camnode/internal/proximity"
)

const (
	// subscribeQoS is used for every inbound topic.
	subscribeQoS byte = 2

	// ackQoS and sensorQoS are fixed by the backend contract.
	ackQoS    byte = 2
	sensorQoS byte = 2

	defaultQueueSize = 32

	// storeTimeout bounds a single persistence call.
	storeTimeout = 5 * time.Second

	// sensorTestValue is the reading sent by SensorTest.
	sensorTestValue = "50"
)

// Bus is the slice of the MQTT client the agent drives. Every subscription
// delivers to the router; the agent only decides which topics are live.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte) error
	Unsubscribe(topic string) error
}

// FrameRequester hands a capture job to the capture worker without blocking.
type FrameRequester interface {
	Request(sysID string)
}

// Logger defines the logging interface used by the Agent.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures an Agent. Store and Bus are required.
type Options struct {
	Store  identity.Store
	Bus    Bus
	Frames FrameRequester
	Topics mqtt.Topics

	// DeviceTag is the "device" field of acks and sensor messages.
	DeviceTag string

	// FallbackThreshold (cm) is used when an identity has no dimensions.
	// Zero leaves such identities without a detector.
	FallbackThreshold float64

	ActiveQoS         byte
	AnnounceOnConnect bool

	// QueueSize bounds pending commands. Zero uses a default.
	QueueSize int

	Events events.Sink
	Logger Logger

	// Now is the clock for sensor timestamps. Nil uses time.Now.
	Now func() time.Time
}

// State is a copy of the agent's state at one point in time.
type State struct {
	Paired        bool               `json:"paired"`
	SysID         string             `json:"sys_id,omitempty"`
	Identity      *identity.Identity `json:"identity,omitempty"`
	Threshold     float64            `json:"threshold,omitempty"`
	InRange       bool               `json:"in_range"`
	Subscriptions []string           `json:"subscriptions"`
}

type reply struct {
	state State
	err   error
}

type request struct {
	cmd   Command
	reply chan reply
}

// Agent is the lifecycle actor.
type Agent struct {
	opts      Options
	store     identity.Store
	bus       Bus
	announcer *presence.Announcer
	log       Logger
	events    events.Sink
	now       func() time.Time

	inbox     chan request
	connected chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	// Owned by the Run goroutine once it starts.
	id       *identity.Identity
	detector *proximity.Detector
	subs     map[string]bool
}

// New creates an Agent. Call Restore before connecting the bus so the last
// will can be keyed to the stored identity, then Run.
func New(opts Options) (*Agent, error) {
	if opts.Store == nil {
		return nil, errors.New("agent: store is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("agent: bus is required")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Events == nil {
		opts.Events = events.Nop
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Agent{
		opts:      opts,
		store:     opts.Store,
		bus:       opts.Bus,
		announcer: presence.NewAnnouncer(opts.Bus, opts.Topics, opts.ActiveQoS),
		log:       opts.Logger,
		events:    opts.Events,
		now:       opts.Now,
		inbox:     make(chan request, opts.QueueSize),
		connected: make(chan struct{}, 1),
		done:      make(chan struct{}),
		subs:      make(map[string]bool),
	}, nil
}

// Restore loads the stored identity. A missing or unreadable record leaves
// the node unpaired; only the unreadable case is logged as a warning. It must
// be called before Run.
func (a *Agent) Restore(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	id, err := a.store.Load(ctx)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		a.log.Info("no stored identity, starting unpaired")
		return
	case err != nil:
		a.log.Warn("stored identity unusable, starting unpaired", "error", err)
		return
	}
	if err := checkSysID(id.SysID); err != nil {
		a.log.Warn("stored identity unusable, starting unpaired", "sys_id", id.SysID, "error", err)
		return
	}

	a.setIdentity(id)
	a.log.Info("restored identity", "sys_id", id.SysID, "threshold", a.threshold())
}

// SysID returns the identifier restored at startup. Only valid before Run.
func (a *Agent) SysID() string {
	if a.id == nil {
		return ""
	}
	return a.id.SysID
}

// Connected tells the agent the bus (re)connected. It never blocks and
// repeated calls before the agent catches up collapse into one.
func (a *Agent) Connected() {
	select {
	case a.connected <- struct{}{}:
	default:
	}
}

// Post queues a command without waiting for it. It returns ErrBusy when the
// queue is full and ErrStopped after Run has exited.
func (a *Agent) Post(cmd Command) error {
	select {
	case <-a.done:
		return ErrStopped
	default:
	}
	select {
	case a.inbox <- request{cmd: cmd}:
		return nil
	default:
		return ErrBusy
	}
}

// Submit runs a command and waits for the resulting State.
func (a *Agent) Submit(ctx context.Context, cmd Command) (State, error) {
	req := request{cmd: cmd, reply: make(chan reply, 1)}

	select {
	case a.inbox <- req:
	case <-a.done:
		return State{}, ErrStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.state, r.err
	case <-a.done:
		return State{}, ErrStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// Run processes commands until ctx is cancelled. On the way out a paired
// node publishes its retained offline status; the caller disconnects the
// bus afterwards.
func (a *Agent) Run(ctx context.Context) error {
	defer a.stopOnce.Do(func() { close(a.done) })

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return nil

		case <-a.connected:
			a.onConnected()

		case req := <-a.inbox:
			state, err := a.handle(ctx, req.cmd)
			if err != nil {
				a.log.Debug("command rejected", "command", req.cmd.Name(), "error", err)
			}
			if req.reply != nil {
				req.reply <- reply{state: state, err: err}
			}
		}
	}
}

func (a *Agent) handle(ctx context.Context, cmd Command) (State, error) {
	var err error
	switch c := cmd.(type) {
	case Install:
		err = a.install(ctx, c.Identity)
	case Delete:
		a.delete(ctx)
	case Reset:
		a.reset()
	case Status:
		err = a.status()
	case GetFrame:
		err = a.getFrame(c.ID)
	case AssignID:
		err = a.assignID(c.ID)
	case Sample:
		err = a.sample(c.Distance)
	case SensorTest:
		err = a.sensorTest()
	case Snapshot:
	default:
		err = fmt.Errorf("agent: unknown command %T", cmd)
	}
	return a.state(), err
}

func (a *Agent) install(ctx context.Context, id identity.Identity) error {
	if a.id != nil {
		return fmt.Errorf("%w: as %q", ErrAlreadyPaired, a.id.SysID)
	}
	if err := checkSysID(id.SysID); err != nil {
		return err
	}

	a.setIdentity(id)

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := a.store.Save(storeCtx, id); err != nil {
		a.log.Error("persisting identity failed, pairing held in memory only", "sys_id", id.SysID, "error", err)
	}

	ack, _ := json.Marshal(map[string]any{"device": a.opts.DeviceTag, "success": true}) //nolint:errcheck // Fixed shape
	if err := a.bus.Publish(a.opts.Topics.InstallAck(id.SysID), ack, ackQoS, false); err != nil {
		a.log.Warn("publishing install ack failed", "sys_id", id.SysID, "error", err)
	}

	a.reconcile()
	a.log.Info("paired", "sys_id", id.SysID, "threshold", a.threshold())
	a.emit(events.Event{Kind: events.KindPaired, SysID: id.SysID})
	return nil
}

func (a *Agent) delete(ctx context.Context) {
	previous := a.SysID()
	a.id = nil
	a.detector = nil

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := a.store.Delete(storeCtx); err != nil {
		a.log.Error("removing stored identity failed", "error", err)
	}

	a.reconcile()
	a.log.Info("unpaired", "previous_sys_id", previous)
	a.emit(events.Event{Kind: events.KindUnpaired, SysID: previous})
}

func (a *Agent) reset() {
	previous := a.SysID()
	a.id = nil
	a.detector = nil

	// Subscriptions and the stored record are left as they are.
	a.log.Info("identifier reset in memory", "previous_sys_id", previous)
	a.emit(events.Event{Kind: events.KindReset, SysID: previous})
}

func (a *Agent) status() error {
	if a.id == nil {
		return ErrNotPaired
	}
	if err := a.announcer.Announce(a.id.SysID); err != nil {
		return err
	}
	a.emit(events.Event{Kind: events.KindPresence, SysID: a.id.SysID, Status: "online"})
	return nil
}

func (a *Agent) getFrame(sysID string) error {
	if sysID == "" {
		return ErrMissingIdentifier
	}
	if a.opts.Frames == nil {
		a.log.Warn("frame requested but capture is not configured", "sys_id", sysID)
		return nil
	}
	a.opts.Frames.Request(sysID)
	return nil
}

func (a *Agent) assignID(sysID string) error {
	if err := checkSysID(sysID); err != nil {
		return err
	}
	a.setIdentity(identity.Identity{SysID: sysID})
	a.reconcile()
	a.log.Info("identifier assigned manually", "sys_id", sysID)
	a.emit(events.Event{Kind: events.KindIdentityAssign, SysID: sysID})
	return nil
}

func (a *Agent) sample(distance float64) error {
	if a.id == nil {
		return ErrNotPaired
	}
	if a.detector == nil {
		return ErrNoThreshold
	}

	ev, edge, err := a.detector.Sample(distance)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDistance, distance)
	}
	if !edge {
		return nil
	}

	payload, err := ev.Payload(a.opts.DeviceTag)
	if err != nil {
		return fmt.Errorf("encoding sensor event: %w", err)
	}
	if err := a.bus.Publish(a.opts.Topics.Sensor(a.id.SysID), payload, sensorQoS, false); err != nil {
		// The edge is already taken; the next crossing publishes normally.
		a.log.Warn("publishing sensor event failed", "status", ev.Status, "error", err)
		return err
	}

	a.log.Info("proximity edge", "status", ev.Status, "distance", distance)
	a.emit(events.Event{Kind: events.KindProximity, SysID: a.id.SysID, Status: string(ev.Status), Distance: distance, At: ev.At})
	return nil
}

func (a *Agent) sensorTest() error {
	if a.id == nil {
		return ErrNotPaired
	}
	payload, _ := json.Marshal(map[string]string{ //nolint:errcheck // Fixed shape
		"value":     sensorTestValue,
		"timestamp": a.now().UTC().Format(proximity.TimestampLayout),
		"device":    a.opts.DeviceTag,
	})
	return a.bus.Publish(a.opts.Topics.Sensor(a.id.SysID), payload, sensorQoS, false)
}

func (a *Agent) onConnected() {
	a.reconcile()
	a.emit(events.Event{Kind: events.KindConnectionState, SysID: a.SysID(), Status: "connected"})

	if a.id == nil || !a.opts.AnnounceOnConnect {
		return
	}
	if err := a.announcer.Announce(a.id.SysID); err != nil {
		a.log.Warn("announcing after connect failed", "sys_id", a.id.SysID, "error", err)
		return
	}
	a.emit(events.Event{Kind: events.KindPresence, SysID: a.id.SysID, Status: "online"})
}

func (a *Agent) shutdown() {
	if a.id == nil {
		return
	}
	if err := a.announcer.Shutdown(a.id.SysID); err != nil {
		a.log.Warn("announcing offline failed", "sys_id", a.id.SysID, "error", err)
		return
	}
	a.emit(events.Event{Kind: events.KindPresence, SysID: a.id.SysID, Status: "offline"})
}

// checkSysID rejects identifiers that are empty or would not fit in a single
// topic level.
func checkSysID(sysID string) error {
	if sysID == "" {
		return ErrMissingIdentifier
	}
	if strings.ContainsAny(sysID, "/+#") {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, sysID)
	}
	return nil
}

// setIdentity replaces the identity and rebuilds the detector.
func (a *Agent) setIdentity(id identity.Identity) {
	cp := id.Clone()
	a.id = &cp
	a.detector = nil

	threshold := a.opts.FallbackThreshold
	if id.HasDimensions() {
		threshold = proximity.Threshold(id.Width, id.Height)
	}
	if threshold <= 0 {
		return
	}
	det, err := proximity.NewDetector(threshold, a.now)
	if err != nil {
		a.log.Warn("proximity detector unavailable", "threshold", threshold, "error", err)
		return
	}
	a.detector = det
}

// reconcile brings bus subscriptions in line with the current identity.
// Topics whose call fails stay in their old state and are retried on the
// next reconcile.
func (a *Agent) reconcile() {
	drop, add := diff(a.subs, Subscriptions(a.opts.Topics, a.SysID()))

	for _, topic := range drop {
		if err := a.bus.Unsubscribe(topic); err != nil {
			a.log.Warn("unsubscribe failed", "topic", topic, "error", err)
			continue
		}
		delete(a.subs, topic)
	}
	for _, topic := range add {
		if err := a.bus.Subscribe(topic, subscribeQoS); err != nil {
			a.log.Warn("subscribe failed", "topic", topic, "error", err)
			continue
		}
		a.subs[topic] = true
	}
}

func (a *Agent) threshold() float64 {
	if a.detector == nil {
		return 0
	}
	return a.detector.Threshold()
}

func (a *Agent) state() State {
	s := State{
		Paired:        a.id != nil,
		Threshold:     a.threshold(),
		Subscriptions: slices.Sorted(maps.Keys(a.subs)),
	}
	if a.id != nil {
		cp := a.id.Clone()
		s.SysID = cp.SysID
		s.Identity = &cp
	}
	if a.detector != nil {
		s.InRange = a.detector.InRange()
	}
	if s.Subscriptions == nil {
		s.Subscriptions = []string{}
	}
	return s
}

func (a *Agent) emit(ev events.Event) {
	if ev.At.IsZero() {
		ev.At = a.now()
	}
	a.events.Emit(ev)
}
