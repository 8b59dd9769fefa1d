package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wytcherly/foreman/internal/config"
	"github.com/wytcherly/foreman/internal/foreman"
	"github.com/wytcherly/foreman/internal/model"
	"github.com/wytcherly/foreman/internal/storage/memory"
)

type fakeLoop struct{}

func (fakeLoop) State() foreman.State { return foreman.StateMonitor }
func (fakeLoop) Availability() foreman.Availability {
	return foreman.Availability{IdleWorkerCount: 2, AvailableWorkCount: 1, ActiveAssignmentCount: 3}
}

// perfBackend is a memory backend that also accepts performance rows.
type perfBackend struct {
	*memory.Backend
	mu    sync.Mutex
	perfs []model.Performance
}

func (b *perfBackend) RecordPerformance(p *model.Performance) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.perfs = append(b.perfs, *p)
	return nil
}

func (b *perfBackend) QueueLengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{Assignments: 7}
}

func (b *perfBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.perfs)
}

func newPerfBackend() *perfBackend {
	return &perfBackend{Backend: memory.New(config.MemoryConfig{})}
}

func TestGetProgramStatus(t *testing.T) {
	backend := newPerfBackend()
	s := NewService(Dependencies{
		Backend: backend,
		Loop:    fakeLoop{},
		Buffers: func() map[string]int {
			return map[string]int{PerceptionCommand: 4, CogmapSaveCommand: 1, ":METRIC:": 2, ":OTHER:": 3}
		},
	})

	lines, perf := s.GetProgramStatus()

	assert.Equal(t, uint16(4), perf.BufferLengths.Perception)
	assert.Equal(t, uint16(1), perf.BufferLengths.CogmapSave)
	assert.Equal(t, uint16(5), perf.BufferLengths.Other)
	assert.Equal(t, uint16(7), perf.WriteQueueLengths.Assignments)
	assert.Equal(t, "Monitor", perf.LoopState)
	assert.Equal(t, uint16(2), perf.IdleWorkers)
	assert.Equal(t, uint16(3), perf.ActiveWorkers)

	require.Len(t, lines, 4)
	assert.Equal(t, "loop: Monitor (idle 2, active 3)", lines[1])
	assert.Contains(t, lines[2], `"perception": 4`)
	assert.Contains(t, lines[3], `"assignments": 7`)
}

func TestGetProgramStatus_NoLoop(t *testing.T) {
	s := NewService(Dependencies{Backend: memory.New(config.MemoryConfig{})})
	lines, perf := s.GetProgramStatus()

	assert.Empty(t, perf.LoopState)
	assert.Equal(t, model.WriteQueueLengths{}, perf.WriteQueueLengths)
	assert.Equal(t, "loop: none (idle 0, active 0)", lines[1])
}

func TestWriteStatus(t *testing.T) {
	tests := []struct {
		name      string
		active    bool
		wantPerfs int
	}{
		{name: "session active persists row", active: true, wantPerfs: 1},
		{name: "no session skips row", active: false, wantPerfs: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newPerfBackend()
			s := NewService(Dependencies{
				Backend:       backend,
				Loop:          fakeLoop{},
				SessionActive: func() bool { return tt.active },
			})

			f, err := os.Create(filepath.Join(t.TempDir(), StatusFileName))
			require.NoError(t, err)
			defer f.Close()

			require.NoError(t, s.WriteStatus(f))
			require.NoError(t, s.WriteStatus(f))

			data, err := os.ReadFile(f.Name())
			require.NoError(t, err)
			// rewritten, not appended
			assert.Equal(t, 1, strings.Count(string(data), "loop: Monitor"))
			assert.Equal(t, tt.wantPerfs*2, backend.count())
		})
	}
}

func TestStartStop(t *testing.T) {
	dir := t.TempDir()
	backend := newPerfBackend()
	s := NewService(Dependencies{
		Backend:   backend,
		Loop:      fakeLoop{},
		OutputDir: dir,
		Interval:  10 * time.Millisecond,
	})

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start())

	assert.Eventually(t, func() bool { return backend.count() > 0 }, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()

	data, err := os.ReadFile(filepath.Join(dir, StatusFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "loop: Monitor")
}
