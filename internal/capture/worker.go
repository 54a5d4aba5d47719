package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/camnode/internal/events"
	"github.com/nerrad567/camnode/internal/infrastructure/mqtt"
)

// responseQoS is fixed by the backend contract.
const responseQoS byte = 2

const (
	defaultWorkers = 1
	defaultTimeout = 10 * time.Second
)

// Publisher is the slice of the MQTT client the worker uses.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger defines the logging interface used by the Worker.
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

// Response is the frame_response payload.
type Response struct {
	FrameData string  `json:"frameData"`
	Timestamp float64 `json:"timestamp"`
	Success   bool    `json:"success"`
	Error     string  `json:"error,omitempty"`
}

// Options configures a Worker. Capturer and Bus are required.
type Options struct {
	Capturer Capturer
	Bus      Publisher
	Topics   mqtt.Topics

	Workers   int
	QueueSize int
	Timeout   time.Duration

	Events events.Sink
	Logger Logger
	Now    func() time.Time
}

// Worker answers frame requests on a fixed pool of goroutines.
type Worker struct {
	capturer Capturer
	bus      Publisher
	topics   mqtt.Topics
	workers  int
	timeout  time.Duration
	events   events.Sink
	log      Logger
	now      func() time.Time

	jobs chan string

	// slots bounds running captures. A capture abandoned at its deadline
	// keeps its slot until the capturer returns.
	slots chan struct{}

	mu      sync.RWMutex
	stopped bool
}

// NewWorker creates a Worker. Requests queue until Run starts.
func NewWorker(opts Options) (*Worker, error) {
	if opts.Capturer == nil {
		return nil, errors.New("capture: capturer is required")
	}
	if opts.Bus == nil {
		return nil, errors.New("capture: bus is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Events == nil {
		opts.Events = events.Nop
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Worker{
		capturer: opts.Capturer,
		bus:      opts.Bus,
		topics:   opts.Topics,
		workers:  opts.Workers,
		timeout:  opts.Timeout,
		events:   opts.Events,
		log:      opts.Logger,
		now:      opts.Now,
		jobs:     make(chan string, opts.QueueSize),
		slots:    make(chan struct{}, opts.Workers),
	}, nil
}

// Request queues a capture answered on sysID's frame_response topic. It
// never waits for a worker or the bus: when the queue is full, or the worker
// has stopped, the failure response is published from a new goroutine.
func (w *Worker) Request(sysID string) {
	var err error
	w.mu.RLock()
	if w.stopped {
		err = ErrStopped
	} else {
		select {
		case w.jobs <- sysID:
		default:
			err = ErrQueueFull
		}
	}
	w.mu.RUnlock()

	if err != nil {
		w.log.Warn("capture rejected", "sys_id", sysID, "error", err)
		go w.fail(sysID, err, 0)
		return
	}
	w.log.Debug("capture queued", "sys_id", sysID)
}

// Run processes requests until ctx is cancelled. In-flight captures are
// cancelled and still answered; requests left in the queue are answered
// with ErrStopped.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for range w.workers {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case sysID := <-w.jobs:
					w.process(gctx, sysID)
				}
			}
		})
	}
	err := g.Wait()

	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	for {
		select {
		case sysID := <-w.jobs:
			w.fail(sysID, ErrStopped, 0)
		default:
			return err
		}
	}
}

func (w *Worker) process(ctx context.Context, sysID string) {
	start := w.now()
	cctx, cancel := context.WithTimeout(ctx, w.timeout)
	data, err := w.capture(cctx)
	deadline := cctx.Err()
	cancel()
	elapsed := w.now().Sub(start)

	if err != nil && isTimeout(deadline) {
		err = fmt.Errorf("%w after %s", ErrTimeout, w.timeout)
	}
	if err != nil {
		w.log.Warn("capture failed", "sys_id", sysID, "duration", elapsed, "error", err)
		w.fail(sysID, err, elapsed)
		return
	}

	payload, err := json.Marshal(Response{
		FrameData: base64.StdEncoding.EncodeToString(data),
		Timestamp: unixSeconds(w.now()),
		Success:   true,
	})
	if err != nil {
		w.fail(sysID, fmt.Errorf("encoding frame response: %w", err), elapsed)
		return
	}
	if len(payload) > mqtt.MaxPayloadSize {
		err = fmt.Errorf("%w: %d bytes encoded, limit %d", ErrFrameTooLarge, len(payload), mqtt.MaxPayloadSize)
		w.log.Warn("frame too large to publish", "sys_id", sysID, "bytes", len(data), "error", err)
		w.fail(sysID, err, elapsed)
		return
	}
	if err := w.bus.Publish(w.topics.FrameResponse(sysID), payload, responseQoS, false); err != nil {
		w.log.Warn("publishing frame failed", "sys_id", sysID, "bytes", len(data), "error", err)
		w.fail(sysID, fmt.Errorf("publishing frame: %w", err), elapsed)
		return
	}

	w.log.Info("frame published", "sys_id", sysID, "bytes", len(data), "duration", elapsed)
	w.events.Emit(events.Event{
		Kind:     events.KindCapture,
		SysID:    sysID,
		At:       w.now(),
		Success:  true,
		Duration: elapsed,
		Bytes:    len(data),
	})
}

type result struct {
	data []byte
	err  error
}

// capture runs the capturer on its own goroutine so the deadline holds even
// when the capturer ignores ctx. The goroutine holds a slot until it returns.
func (w *Worker) capture(ctx context.Context) ([]byte, error) {
	select {
	case w.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	done := make(chan result, 1)
	go func() {
		defer func() { <-w.slots }()
		data, err := w.capturer.Capture(ctx)
		done <- result{data, err}
	}()

	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fail publishes a failure response for sysID.
func (w *Worker) fail(sysID string, cause error, elapsed time.Duration) {
	resp := Response{
		Timestamp: unixSeconds(w.now()),
		Error:     cause.Error(),
	}
	if err := w.publish(sysID, resp); err != nil {
		w.log.Warn("publishing capture failure failed", "sys_id", sysID, "error", err)
	}
	w.events.Emit(events.Event{
		Kind:     events.KindCapture,
		SysID:    sysID,
		At:       w.now(),
		Duration: elapsed,
		Error:    cause.Error(),
	})
}

func (w *Worker) publish(sysID string, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding frame response: %w", err)
	}
	return w.bus.Publish(w.topics.FrameResponse(sysID), payload, responseQoS, false)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}
