// Package condition tracks the health of a single android: power, structural
// integrity, per-subsystem status, and the capabilities those allow.
package condition

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/wytcherly/foreman/pkg/core"
)

const (
	DefaultPowerLevel    = 1.0
	DefaultDrainRate     = 0.001
	DefaultDrainInterval = 1500 * time.Millisecond
	MinDrainInterval     = 500 * time.Millisecond
	MaxDrainInterval     = 5 * time.Second
)

// ErrUnknownSubsystem is returned for subsystem identifiers outside the known six.
var ErrUnknownSubsystem = errors.New("unknown subsystem")

// Option configures a Model at creation.
type Option func(*Model)

// WithPowerLevel sets the starting power level (clamped to [0,1]).
func WithPowerLevel(level float64) Option {
	return func(m *Model) {
		m.powerLevel = clamp01(level)
	}
}

// WithDrainRate sets the power drained per second.
func WithDrainRate(rate float64) Option {
	return func(m *Model) {
		if rate >= 0 && !math.IsInf(rate, 1) {
			m.drainRate = rate
		}
	}
}

// WithDrainInterval sets how often the drain timer fires.
func WithDrainInterval(d time.Duration) Option {
	return func(m *Model) {
		m.drainInterval = clampInterval(d)
	}
}

// WithPersonalitySeed fixes the personality seed. Zero means randomise.
func WithPersonalitySeed(seed int64) Option {
	return func(m *Model) {
		m.seed = seed
	}
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		m.now = now
	}
}

// Model is the condition state of one android.
// Observers are invoked after the model's lock is released, in registration order.
type Model struct {
	mu sync.RWMutex

	id            string
	powerLevel    float64
	powerState    core.PowerState
	drainRate     float64
	drainInterval time.Duration
	structuralHP  float64
	subsystems    core.Subsystems
	base          core.CapabilitySet
	active        core.CapabilitySet
	seed          int64

	onPower      []func(core.PowerStateChange)
	onSubsystem  []func(core.SubsystemChange)
	onCapability []func(core.CapabilityChange)

	now func() time.Time
}

// New creates a condition model for the android id with the given base capabilities.
func New(id string, base core.CapabilitySet, opts ...Option) *Model {
	if base == nil {
		base = core.NewCapabilitySet()
	}
	m := &Model{
		id:            id,
		powerLevel:    DefaultPowerLevel,
		drainRate:     DefaultDrainRate,
		drainInterval: DefaultDrainInterval,
		structuralHP:  1.0,
		base:          base.Clone(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.seed == 0 {
		m.seed = rand.Int63n(1<<31-1) + 1
	}
	m.powerState = PowerStateFor(m.powerLevel)
	m.active = Derive(m.base, m.subsystems)
	return m
}

// ID returns the android identifier.
func (m *Model) ID() string {
	return m.id
}

// OnPowerStateChanged registers an observer for power bracket changes.
func (m *Model) OnPowerStateChanged(fn func(core.PowerStateChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPower = append(m.onPower, fn)
}

// OnSubsystemChanged registers an observer for subsystem status changes.
func (m *Model) OnSubsystemChanged(fn func(core.SubsystemChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSubsystem = append(m.onSubsystem, fn)
}

// OnCapabilitiesChanged registers an observer for active capability changes.
func (m *Model) OnCapabilitiesChanged(fn func(core.CapabilityChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCapability = append(m.onCapability, fn)
}

// DrainPower removes drainRate*delta from the power level.
// A dead android does not drain further.
func (m *Model) DrainPower(delta time.Duration) {
	m.mu.Lock()
	if m.powerState == core.PowerDead {
		m.mu.Unlock()
		return
	}
	change, changed := m.setPowerLocked(m.powerLevel - m.drainRate*delta.Seconds())
	observers := m.onPower
	m.mu.Unlock()

	if changed {
		for _, fn := range observers {
			fn(change)
		}
	}
}

// Recharge adds amount to the power level.
func (m *Model) Recharge(amount float64) {
	m.mu.Lock()
	change, changed := m.setPowerLocked(m.powerLevel + amount)
	observers := m.onPower
	m.mu.Unlock()

	if changed {
		for _, fn := range observers {
			fn(change)
		}
	}
}

// SetPowerLevel replaces the power level.
func (m *Model) SetPowerLevel(level float64) {
	m.mu.Lock()
	change, changed := m.setPowerLocked(level)
	observers := m.onPower
	m.mu.Unlock()

	if changed {
		for _, fn := range observers {
			fn(change)
		}
	}
}

func (m *Model) setPowerLocked(level float64) (core.PowerStateChange, bool) {
	m.powerLevel = clamp01(level)
	old := m.powerState
	m.powerState = PowerStateFor(m.powerLevel)
	if old == m.powerState {
		return core.PowerStateChange{}, false
	}
	return core.PowerStateChange{
		AndroidID:  m.id,
		Time:       m.now(),
		Old:        old,
		New:        m.powerState,
		PowerLevel: m.powerLevel,
	}, true
}

// SetDrainRate changes the drain rate. Negative and non-finite rates are ignored.
func (m *Model) SetDrainRate(rate float64) {
	if !(rate >= 0) || math.IsInf(rate, 1) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainRate = rate
}

// DrainInterval returns the configured drain timer interval.
func (m *Model) DrainInterval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.drainInterval
}

// SetStructuralHP stores structural integrity (clamped to [0,1]).
func (m *Model) SetStructuralHP(hp float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.structuralHP = clamp01(hp)
}

// SetSubsystemStatus updates one subsystem and re-derives capabilities.
// Setting the current status again is a no-op.
func (m *Model) SetSubsystemStatus(sub core.Subsystem, status core.SubsystemStatus) error {
	if !sub.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownSubsystem, sub)
	}

	m.mu.Lock()
	old := m.subsystems[sub]
	if old == status {
		m.mu.Unlock()
		return nil
	}
	m.subsystems[sub] = status
	now := m.now()
	subChange := core.SubsystemChange{
		AndroidID: m.id,
		Time:      now,
		Subsystem: sub,
		Old:       old,
		New:       status,
	}

	var capChange core.CapabilityChange
	active := Derive(m.base, m.subsystems)
	capsChanged := !active.Equal(m.active)
	if capsChanged {
		m.active = active
		capChange = core.CapabilityChange{
			AndroidID:    m.id,
			Time:         now,
			Capabilities: active.Sorted(),
			Readiness:    Classify(m.powerState, m.subsystems),
		}
	}
	subObservers := m.onSubsystem
	capObservers := m.onCapability
	m.mu.Unlock()

	for _, fn := range subObservers {
		fn(subChange)
	}
	if capsChanged {
		for _, fn := range capObservers {
			fn(capChange)
		}
	}
	return nil
}

// SubsystemStatus returns the status of one subsystem.
func (m *Model) SubsystemStatus(sub core.Subsystem) (core.SubsystemStatus, error) {
	if !sub.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownSubsystem, sub)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subsystems[sub], nil
}

// HasCapability reports whether c is currently active.
func (m *Model) HasCapability(c core.Capability) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active.Has(c)
}

// ActiveCapabilities returns a copy of the active set.
func (m *Model) ActiveCapabilities() core.CapabilitySet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active.Clone()
}

// PowerLevel returns the current power level.
func (m *Model) PowerLevel() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.powerLevel
}

// PowerState returns the current power bracket.
func (m *Model) PowerState() core.PowerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.powerState
}

// Readiness classifies the current state.
func (m *Model) Readiness() core.Readiness {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Classify(m.powerState, m.subsystems)
}

// Snapshot returns a copy of the full condition state.
func (m *Model) Snapshot() core.ConditionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return core.ConditionSnapshot{
		PowerLevel:         m.powerLevel,
		PowerState:         m.powerState,
		StructuralHP:       m.structuralHP,
		Subsystems:         m.subsystems,
		BaseCapabilities:   m.base.Clone(),
		ActiveCapabilities: m.active.Clone(),
		PersonalitySeed:    m.seed,
		Readiness:          Classify(m.powerState, m.subsystems),
	}
}

// clamp01 limits v to [0,1]; NaN becomes 0.
func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampInterval(d time.Duration) time.Duration {
	if d < MinDrainInterval {
		return MinDrainInterval
	}
	if d > MaxDrainInterval {
		return MaxDrainInterval
	}
	return d
}
