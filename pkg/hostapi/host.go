// Package hostapi is the Go side of the host extension interface: it turns
// host calls into dispatcher events, formats replies, and sends outbound
// commands back through the host-registered callback.
package hostapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wytcherly/foreman/internal/dispatcher"
	"github.com/wytcherly/foreman/internal/util"
)

// TimestampCommand is answered by the host layer itself.
const TimestampCommand = ":TIMESTAMP:"

var (
	// ErrNoCallback is returned when an outbound command has nowhere to go.
	ErrNoCallback = errors.New("no host callback registered")
	// ErrCallbackRejected is returned when the host callback reports failure.
	ErrCallbackRejected = errors.New("host callback rejected command")
)

// Dispatcher routes host commands to handlers.
type Dispatcher interface {
	HasHandler(command string) bool
	Dispatch(e dispatcher.Event) (any, error)
}

// CallbackFunc delivers (extensionName, function, data) to the host. A
// negative return means the host did not accept the call.
type CallbackFunc func(name, function, data string) int

// Host is the process-wide extension state shared by the exported entry points.
type Host struct {
	mu         sync.RWMutex
	name       string
	version    string
	dispatcher Dispatcher
	callback   CallbackFunc
	logger     *slog.Logger
	now        func() time.Time
}

// Default is the Host used by the exported entry points.
var Default = New("foreman")

// New creates a Host that identifies itself to callbacks as name.
func New(name string) *Host {
	return &Host{
		name:    name,
		version: "No version set",
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// Name returns the extension name used for callbacks.
func (h *Host) Name() string { return h.name }

// SetVersion sets the version string returned to the host on load.
func (h *Host) SetVersion(version string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version = version
}

// Version returns the version string.
func (h *Host) Version() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// SetDispatcher sets the event dispatcher for handling commands
func (h *Host) SetDispatcher(d Dispatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dispatcher = d
}

// SetLogger replaces the logger used for dropped outbound commands.
func (h *Host) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger = l
}

// RegisterCallback installs the host callback.
func (h *Host) RegisterCallback(fn CallbackFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callback = fn
}

// Call sends an outbound command to the host. Non-string data is JSON-encoded.
// Without a callback the command is logged and dropped.
func (h *Host) Call(function string, data any) error {
	payload, err := encodePayload(data)
	if err != nil {
		return fmt.Errorf("%s: %w", function, err)
	}

	h.mu.RLock()
	cb, logger := h.callback, h.logger
	h.mu.RUnlock()

	if cb == nil {
		logger.Debug("dropping host command", "function", function, "data", payload)
		return ErrNoCallback
	}
	if rc := cb(h.name, function, payload); rc < 0 {
		return fmt.Errorf("%w: %s returned %d", ErrCallbackRejected, function, rc)
	}
	return nil
}

func encodePayload(data any) (string, error) {
	switch v := data.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

// HandleCommand answers a plain call. Arguments may follow the command
// separated by "|", e.g. ":TICK:|0.016".
func (h *Host) HandleCommand(input string) string {
	if input == TimestampCommand {
		return fmt.Sprintf("%d", h.now().UTC().UnixNano())
	}
	parts := strings.Split(input, "|")
	return h.HandleArgs(parts[0], parts[1:])
}

// HandleArgs answers a call carrying an argument array.
func (h *Host) HandleArgs(command string, args []string) string {
	if command == TimestampCommand {
		return fmt.Sprintf("%d", h.now().UTC().UnixNano())
	}

	h.mu.RLock()
	d := h.dispatcher
	h.mu.RUnlock()

	if d == nil || !d.HasHandler(command) {
		return FormatResponse(command, nil, errors.New("no handler registered"))
	}

	result, err := d.Dispatch(dispatcher.Event{
		Command:   command,
		Args:      args,
		Timestamp: h.now(),
	})
	return FormatResponse(command, result, err)
}

// FormatResponse renders ["ok", "<cmd>", "<result>"] or ["error", "<cmd>", "<msg>"].
// Embedded quotes are doubled the way the host escapes strings.
func FormatResponse(command string, result any, err error) string {
	cmd := util.EscapeQuotes(command)
	if err != nil {
		return fmt.Sprintf(`["error", "%s", "%s"]`, cmd, util.EscapeQuotes(err.Error()))
	}
	if result == nil {
		return fmt.Sprintf(`["ok", "%s"]`, cmd)
	}
	return fmt.Sprintf(`["ok", "%s", "%s"]`, cmd, util.EscapeQuotes(fmt.Sprintf("%v", result)))
}
