package handlers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wytcherly/foreman/internal/config"
	"github.com/wytcherly/foreman/internal/storage/memory"
	"github.com/wytcherly/foreman/pkg/core"
)

type fakePoints struct {
	power  []core.PowerStateChange
	caps   []core.CapabilityChange
	status []core.StatusReport
	err    error
}

func (p *fakePoints) WritePowerChange(c core.PowerStateChange) error {
	p.power = append(p.power, c)
	return p.err
}

func (p *fakePoints) WriteCapabilityChange(c core.CapabilityChange) error {
	p.caps = append(p.caps, c)
	return p.err
}

func (p *fakePoints) WriteStatusReport(r core.StatusReport) error {
	p.status = append(p.status, r)
	return p.err
}

var _ PointWriter = (*fakePoints)(nil)

func startedBackend(t *testing.T) *memory.Backend {
	t.Helper()
	b := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, b.StartSession(&core.Session{ID: "s1", Name: "test", StartTime: time.Now()}))
	return b
}

func TestRecorder_GatesBackendOnActive(t *testing.T) {
	b := startedBackend(t)
	points := &fakePoints{}
	r := NewRecorder(points, nil)
	r.SetBackend(b)

	change := &core.PowerStateChange{AndroidID: "a1", Old: core.PowerNormal, New: core.PowerLow, PowerLevel: 0.3}

	require.NoError(t, r.RecordPowerChange(change))
	_, ok := b.GetAndroid("a1")
	assert.False(t, ok, "inactive recorder must not store")
	assert.Len(t, points.power, 1, "points are written regardless of session")

	r.SetActive(true)
	assert.True(t, r.Active())
	require.NoError(t, r.RecordPowerChange(change))
	rec, ok := b.GetAndroid("a1")
	require.True(t, ok)
	assert.Len(t, rec.PowerChanges, 1)
	assert.Len(t, points.power, 2)
}

func TestRecorder_AllEventKinds(t *testing.T) {
	b := startedBackend(t)
	points := &fakePoints{}
	r := NewRecorder(points, nil)
	r.SetBackend(b)
	r.SetActive(true)

	require.NoError(t, r.RecordSubsystemChange(&core.SubsystemChange{AndroidID: "a1", Subsystem: core.SubsystemVision}))
	require.NoError(t, r.RecordCapabilityChange(&core.CapabilityChange{AndroidID: "a1", Readiness: core.ReadinessDegraded}))
	require.NoError(t, r.RecordAssignment(&core.AssignmentEvent{ForemanID: "f1", WorkerID: "w1", SiteID: "s1"}))
	require.NoError(t, r.RecordStateTransition(&core.StateTransition{ForemanID: "f1"}))
	require.NoError(t, r.RecordStatusReport(&core.StatusReport{ForemanID: "f1", Total: 3}))
	require.NoError(t, r.RecordDecision(&core.DecisionRecord{BrainID: "b1", Command: "look"}))

	a, ok := b.GetAndroid("a1")
	require.True(t, ok)
	assert.Len(t, a.SubsystemChanges, 1)
	assert.Len(t, a.CapabilityChanges, 1)

	f, ok := b.GetForeman("f1")
	require.True(t, ok)
	assert.Len(t, f.Assignments, 1)
	assert.Len(t, f.Transitions, 1)
	assert.Len(t, f.Reports, 1)

	assert.Len(t, points.caps, 1)
	assert.Len(t, points.status, 1)
}

func TestRecorder_NilBackendAndPointErrors(t *testing.T) {
	var logged []string
	points := &fakePoints{err: errors.New("influx down")}
	r := NewRecorder(points, func(fn, data, level string) {
		logged = append(logged, level+" "+fn)
	})
	r.SetActive(true)

	assert.Nil(t, r.Backend())
	assert.NoError(t, r.RecordStatusReport(&core.StatusReport{ForemanID: "f1"}))
	assert.Equal(t, []string{"WARN RecordStatusReport"}, logged)
}
