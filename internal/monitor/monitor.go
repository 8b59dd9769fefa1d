package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wytcherly/foreman/internal/foreman"
	"github.com/wytcherly/foreman/internal/logging"
	"github.com/wytcherly/foreman/internal/model"
	"github.com/wytcherly/foreman/internal/storage"
)

// DefaultInterval is how often the status file is rewritten.
const DefaultInterval = time.Second

// StatusFileName is written into OutputDir.
const StatusFileName = "status.txt"

// Buffered command names reported in their own BufferLengths column.
const (
	PerceptionCommand = ":PERCEPTION:"
	CogmapSaveCommand = ":COGMAP:SAVE:"
)

// LoopStatus is the part of the dispatch loop the monitor reads.
type LoopStatus interface {
	State() foreman.State
	Availability() foreman.Availability
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager *logging.SlogManager
	Backend    storage.Backend
	Loop       LoopStatus
	// Buffers reports dispatcher queue lengths per command.
	Buffers func() map[string]int
	// SessionActive gates persistence of performance rows.
	SessionActive func() bool
	OutputDir     string
	Interval      time.Duration
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func clamp16(n int) uint16 {
	if n < 0 {
		return 0
	}
	if n > 0xFFFF {
		return 0xFFFF
	}
	return uint16(n)
}

// GetProgramStatus returns the status file lines and the matching performance row.
func (s *Service) GetProgramStatus() (output []string, perf model.Performance) {
	perf.Time = time.Now()

	if s.deps.Buffers != nil {
		for cmd, n := range s.deps.Buffers() {
			switch cmd {
			case PerceptionCommand:
				perf.BufferLengths.Perception = clamp16(n)
			case CogmapSaveCommand:
				perf.BufferLengths.CogmapSave = clamp16(n)
			default:
				perf.BufferLengths.Other = clamp16(int(perf.BufferLengths.Other) + n)
			}
		}
	}

	if qr, ok := s.deps.Backend.(storage.QueueReporter); ok {
		perf.WriteQueueLengths = qr.QueueLengths()
	}

	if s.deps.Loop != nil {
		perf.LoopState = s.deps.Loop.State().String()
		a := s.deps.Loop.Availability()
		perf.IdleWorkers = clamp16(a.IdleWorkerCount)
		perf.ActiveWorkers = clamp16(a.ActiveAssignmentCount)
	}

	output = append(output, fmt.Sprintf("time: %s", perf.Time.UTC().Format(time.RFC3339)))
	output = append(output, fmt.Sprintf("loop: %s (idle %d, active %d)", orNone(perf.LoopState), perf.IdleWorkers, perf.ActiveWorkers))
	for _, v := range []any{perf.BufferLengths, perf.WriteQueueLengths} {
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			raw = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		output = append(output, string(raw))
	}

	return output, perf
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// WriteStatus rewrites the status file and, during a session, persists the
// performance row when the backend accepts one.
func (s *Service) WriteStatus(statusFile *os.File) error {
	lines, perf := s.GetProgramStatus()

	if statusFile != nil {
		if err := statusFile.Truncate(0); err != nil {
			return err
		}
		if _, err := statusFile.Seek(0, 0); err != nil {
			return err
		}
		for _, line := range lines {
			if _, err := statusFile.WriteString(line + "\n"); err != nil {
				return err
			}
		}
	}

	if s.deps.SessionActive != nil && !s.deps.SessionActive() {
		return nil
	}
	if pr, ok := s.deps.Backend.(storage.PerformanceRecorder); ok {
		return pr.RecordPerformance(&perf)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	logger := s.deps.LogManager.Logger()

	var statusFile *os.File
	if s.deps.OutputDir != "" {
		if err := os.MkdirAll(s.deps.OutputDir, 0755); err != nil {
			logger.Error("Error creating status directory", "error", err)
		}
		f, err := os.Create(filepath.Join(s.deps.OutputDir, StatusFileName))
		if err != nil {
			logger.Error("Error creating status file", "error", err)
		} else {
			statusFile = f
		}
	}

	go func() {
		defer func() {
			if statusFile != nil {
				statusFile.Close()
			}
			close(done)
		}()

		logger.Debug("Starting status monitor goroutine", "function", "startStatusMonitor")

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.WriteStatus(statusFile); err != nil {
					logger.Error("Error writing status", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
