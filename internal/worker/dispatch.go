package worker

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wytcherly/foreman/internal/dispatcher"
	"github.com/wytcherly/foreman/internal/influx"
	"github.com/wytcherly/foreman/internal/util"
)

var (
	// ErrNoCogmap is returned by cogmap saves when no map file is configured.
	ErrNoCogmap = errors.New("cognitive map disabled")
	// ErrNoMetrics is returned by metric writes when no writer is configured.
	ErrNoMetrics = errors.New("metrics disabled")
)

// RegisterHandlers registers the buffered host commands with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Perception snapshots arrive every frame - buffered
	d.Register(":PERCEPTION:", m.handlePerception, dispatcher.Buffered(1000), dispatcher.Logged())

	// Disk writes - buffered
	d.Register(":COGMAP:SAVE:", m.handleCogmapSave, dispatcher.Buffered(100), dispatcher.Logged())

	// Custom metrics from host scripts - buffered
	d.Register(":METRIC:", m.handleMetric, dispatcher.Buffered(1000), dispatcher.Logged())
}

func (m *Manager) handlePerception(e dispatcher.Event) (any, error) {
	entities, err := m.deps.Parser.ParsePerception(e.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse perception: %w", err)
	}
	m.deps.Perception.Update(entities)
	return nil, nil
}

// handleCogmapSave writes the map. With a JSON object argument the host's
// entries replace the map as-is; without one the known perception set is
// written.
func (m *Manager) handleCogmapSave(e dispatcher.Event) (any, error) {
	if m.deps.Cogmap == nil {
		return nil, ErrNoCogmap
	}

	if len(e.Args) > 0 {
		if arg := util.CleanArg(e.Args[0]); arg != "" {
			var raw map[string]string
			if err := json.Unmarshal([]byte(arg), &raw); err != nil {
				return nil, fmt.Errorf("failed to parse cogmap entries: %w", err)
			}
			if err := m.deps.Cogmap.SaveRaw(raw, m.now()); err != nil {
				return nil, fmt.Errorf("failed to save cogmap: %w", err)
			}
			return nil, nil
		}
	}

	if err := m.deps.Cogmap.Update(m.deps.Perception.KnownPerceived(), m.now()); err != nil {
		return nil, fmt.Errorf("failed to save cogmap: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleMetric(e dispatcher.Event) (any, error) {
	if m.deps.Metrics == nil {
		return nil, ErrNoMetrics
	}
	bucket, point, err := influx.ProcessMetricData(e.Args, util.CleanArg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metric: %w", err)
	}
	if err := m.deps.Metrics.WritePoint(bucket, point); err != nil {
		return nil, fmt.Errorf("failed to write metric: %w", err)
	}
	return nil, nil
}
