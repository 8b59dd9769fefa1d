package hostapi

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wytcherly/foreman/internal/dispatcher"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type call struct {
	name, function, data string
}

type callbackRecorder struct {
	mu    sync.Mutex
	calls []call
	rc    int
}

func (r *callbackRecorder) fn(name, function, data string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{name, function, data})
	return r.rc
}

func (r *callbackRecorder) all() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func newTestHost(t *testing.T) (*Host, *callbackRecorder) {
	t.Helper()
	h := New("foreman")
	rec := &callbackRecorder{}
	h.RegisterCallback(rec.fn)
	return h, rec
}

func TestFormatResponse(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		result   any
		err      error
		expected string
	}{
		{
			name:     "string result",
			command:  ":VERSION:",
			result:   "1.2.3",
			expected: `["ok", ":VERSION:", "1.2.3"]`,
		},
		{
			name:     "nil result",
			command:  ":TICK:",
			expected: `["ok", ":TICK:"]`,
		},
		{
			name:     "numeric result",
			command:  ":COUNT:",
			result:   42,
			expected: `["ok", ":COUNT:", "42"]`,
		},
		{
			name:     "quotes are doubled",
			command:  ":ANDROID:CAPS:",
			result:   `["Capability.Building"]`,
			expected: `["ok", ":ANDROID:CAPS:", "[""Capability.Building""]"]`,
		},
		{
			name:     "error",
			command:  ":SITE:REMOVE:",
			err:      errors.New(`site "s1" not found`),
			expected: `["error", ":SITE:REMOVE:", "site ""s1"" not found"]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatResponse(tt.command, tt.result, tt.err))
		})
	}
}

func TestHandleArgs(t *testing.T) {
	h := New("foreman")
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)

	var got []string
	d.Register(":ECHO:", func(e dispatcher.Event) (any, error) {
		got = e.Args
		return len(e.Args), nil
	})
	d.Register(":FAIL:", func(e dispatcher.Event) (any, error) {
		return nil, errors.New("boom")
	})

	assert.Equal(t, `["error", ":ECHO:", "no handler registered"]`, h.HandleArgs(":ECHO:", nil))

	h.SetDispatcher(d)
	assert.Equal(t, `["ok", ":ECHO:", "2"]`, h.HandleArgs(":ECHO:", []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, `["error", ":FAIL:", "boom"]`, h.HandleArgs(":FAIL:", nil))
	assert.Equal(t, `["error", ":NOPE:", "no handler registered"]`, h.HandleArgs(":NOPE:", nil))
}

func TestHandleCommand(t *testing.T) {
	h := New("foreman")
	h.now = func() time.Time { return time.Unix(0, 1234) }
	d, err := dispatcher.New(nopLogger{})
	require.NoError(t, err)
	h.SetDispatcher(d)

	var got []string
	d.Register(":TICK:", func(e dispatcher.Event) (any, error) {
		got = e.Args
		return nil, nil
	})

	assert.Equal(t, "1234", h.HandleCommand(TimestampCommand))
	assert.Equal(t, `["ok", ":TICK:"]`, h.HandleCommand(":TICK:|0.016"))
	assert.Equal(t, []string{"0.016"}, got)

	h.HandleCommand(":TICK:")
	assert.Empty(t, got)
}

func TestVersion(t *testing.T) {
	h := New("foreman")
	assert.Equal(t, "No version set", h.Version())
	h.SetVersion("0.3.0")
	assert.Equal(t, "0.3.0", h.Version())
}

func TestCall(t *testing.T) {
	t.Run("no callback", func(t *testing.T) {
		h := New("foreman")
		assert.ErrorIs(t, h.Call(FnStopCue, nil), ErrNoCallback)
	})

	t.Run("encodes payloads", func(t *testing.T) {
		h, rec := newTestHost(t)
		require.NoError(t, h.Call(FnScan, "raw text"))
		require.NoError(t, h.Call(FnPlayCue, map[string]string{"cue": "wave"}))
		require.NoError(t, h.Call(FnStopCue, nil))

		assert.Equal(t, []call{
			{"foreman", FnScan, "raw text"},
			{"foreman", FnPlayCue, `{"cue":"wave"}`},
			{"foreman", FnStopCue, ""},
		}, rec.all())
	})

	t.Run("rejected", func(t *testing.T) {
		h, rec := newTestHost(t)
		rec.rc = -1
		assert.ErrorIs(t, h.Call(FnStopCue, nil), ErrCallbackRejected)
	})

	t.Run("unencodable", func(t *testing.T) {
		h, rec := newTestHost(t)
		assert.Error(t, h.Call(FnScan, make(chan int)))
		assert.Empty(t, rec.all())
	})
}
