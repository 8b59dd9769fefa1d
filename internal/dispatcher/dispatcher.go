// Package dispatcher routes host commands to their handlers. Commands
// arrive on host threads; a handler either answers inline or, when
// buffered, is fed from its own queue by a dedicated goroutine.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownCommand is returned for a command with no handler.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned when a non-blocking buffered command is saturated.
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned for buffered commands after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// Queued is the immediate result of a buffered command.
const Queued = "queued"

// Event is one command received from the host.
type Event struct {
	Command   string
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger is satisfied by *slog.Logger and the zerolog adapter.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered runs the handler asynchronously behind a queue of size events.
// The caller gets Queued back at once.
func Buffered(size int) Option {
	return func(o *options) { o.bufferSize = size }
}

// Blocking makes a full buffered queue block the caller instead of refusing.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged logs every call with its duration, and failures at error level.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger Logger
	metric instruments

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	buffers  map[string]chan Event

	done      chan struct{}
	closeOnce sync.Once
	workers   sync.WaitGroup
}

// New creates a dispatcher. Metrics go to the global OTel meter.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Event),
		done:     make(chan struct{}),
	}
	in, err := newInstruments(d)
	if err != nil {
		return nil, err
	}
	d.metric = in
	return d, nil
}

// Register installs h for command, replacing any earlier handler.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	handler := d.guarded(command, h)
	if o.logged {
		handler = d.logged(command, handler)
	}
	if o.bufferSize > 0 {
		handler = d.buffered(command, o.bufferSize, o.blocking, handler)
	}

	d.mu.Lock()
	d.handlers[command] = handler
	d.mu.Unlock()
}

// Dispatch routes e to its handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// HasHandler reports whether command is registered.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Commands lists every registered command, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for cmd := range d.handlers {
		out = append(out, cmd)
	}
	sort.Strings(out)
	return out
}

// BufferLengths returns the number of queued events per buffered command.
func (d *Dispatcher) BufferLengths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.buffers))
	for cmd, buf := range d.buffers {
		out[cmd] = len(buf)
	}
	return out
}

// Close stops accepting buffered events and waits for the queued ones to
// be handled. Inline commands keep working.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
	d.workers.Wait()
}

// guarded turns a handler panic into an error. A panic must never unwind
// into the host process.
func (d *Dispatcher) guarded(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("handler panicked", "command", command, "panic", r, "stack", string(debug.Stack()))
				result, err = nil, fmt.Errorf("%s: handler panicked: %v", command, r)
			}
			if err != nil {
				d.metric.failed.Add(context.Background(), 1, commandAttr(command))
			}
		}()
		return h(e)
	}
}

func (d *Dispatcher) logged(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "args", len(e.Args))

		result, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}
		return result, err
	}
}

func (d *Dispatcher) buffered(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[command] = buffer
	d.mu.Unlock()

	handle := func(e Event) {
		// nobody waits for the result, so failures only reach the log
		if _, err := h(e); err != nil {
			d.logger.Error("buffered event failed", "command", command, "error", err)
		}
		d.metric.processed.Add(context.Background(), 1, commandAttr(command))
	}

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for {
			select {
			case e := <-buffer:
				handle(e)
			case <-d.done:
				for {
					select {
					case e := <-buffer:
						handle(e)
					default:
						return
					}
				}
			}
		}
	}()

	return func(e Event) (any, error) {
		select {
		case <-d.done:
			return nil, fmt.Errorf("%w: %s", ErrClosed, command)
		default:
		}
		if blocking {
			select {
			case buffer <- e:
				return Queued, nil
			case <-d.done:
				return nil, fmt.Errorf("%w: %s", ErrClosed, command)
			}
		}
		select {
		case buffer <- e:
			return Queued, nil
		default:
			d.metric.dropped.Add(context.Background(), 1, commandAttr(command))
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}
