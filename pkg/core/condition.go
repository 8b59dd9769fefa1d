// pkg/core/condition.go
package core

import (
	"fmt"
	"sort"
	"strings"
)

// PowerState is the coarse bracket a power level falls into.
type PowerState uint8

const (
	PowerNormal PowerState = iota
	PowerLow
	PowerCritical
	PowerDead
)

var powerStateNames = [...]string{"Normal", "Low", "Critical", "Dead"}

func (s PowerState) String() string {
	if int(s) < len(powerStateNames) {
		return powerStateNames[s]
	}
	return fmt.Sprintf("PowerState(%d)", s)
}

// SubsystemStatus is the health of a single android subsystem.
type SubsystemStatus uint8

const (
	StatusOperational SubsystemStatus = iota
	StatusDegraded
	StatusDestroyed
)

var subsystemStatusNames = [...]string{"Operational", "Degraded", "Destroyed"}

func (s SubsystemStatus) String() string {
	if int(s) < len(subsystemStatusNames) {
		return subsystemStatusNames[s]
	}
	return fmt.Sprintf("SubsystemStatus(%d)", s)
}

// ParseSubsystemStatus converts a status name (case-insensitive) to a SubsystemStatus.
func ParseSubsystemStatus(s string) (SubsystemStatus, error) {
	for i, name := range subsystemStatusNames {
		if strings.EqualFold(name, s) {
			return SubsystemStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown subsystem status %q", s)
}

// Subsystem identifies one of the six functional units of an android.
type Subsystem uint8

const (
	SubsystemVision Subsystem = iota
	SubsystemAudio
	SubsystemLocomotion
	SubsystemManipulatorLeft
	SubsystemManipulatorRight
	SubsystemCommLink

	// SubsystemCount is the number of known subsystems.
	SubsystemCount
)

var subsystemNames = [...]string{"Vision", "Audio", "Locomotion", "ManipulatorLeft", "ManipulatorRight", "CommLink"}

func (s Subsystem) String() string {
	if s < SubsystemCount {
		return subsystemNames[s]
	}
	return fmt.Sprintf("Subsystem(%d)", s)
}

// Valid reports whether s names a known subsystem.
func (s Subsystem) Valid() bool {
	return s < SubsystemCount
}

// ParseSubsystem converts a subsystem name (case-insensitive) to a Subsystem.
// Unknown names return SubsystemCount and an error.
func ParseSubsystem(s string) (Subsystem, error) {
	for i, name := range subsystemNames {
		if strings.EqualFold(name, s) {
			return Subsystem(i), nil
		}
	}
	return SubsystemCount, fmt.Errorf("unknown subsystem %q", s)
}

// Readiness is the four-level operational assessment of an android.
type Readiness uint8

const (
	FullyOperational Readiness = iota
	ReadinessDegraded
	NeedsMaintenance
	Disabled
)

var readinessNames = [...]string{"FullyOperational", "Degraded", "NeedsMaintenance", "Disabled"}

func (r Readiness) String() string {
	if int(r) < len(readinessNames) {
		return readinessNames[r]
	}
	return fmt.Sprintf("Readiness(%d)", r)
}

// Capability is a named ability gated by subsystem health.
type Capability string

const (
	CapabilityBuilding    Capability = "Capability.Building"
	CapabilityHauling     Capability = "Capability.Hauling"
	CapabilityPatrol      Capability = "Capability.Patrol"
	CapabilityLaserCutter Capability = "Capability.LaserCutter"
	CapabilityCombat      Capability = "Capability.Combat"
)

// ParseCapability accepts either the full tag ("Capability.Building") or the
// short name ("Building").
func ParseCapability(s string) (Capability, error) {
	s = strings.TrimSpace(s)
	for _, c := range []Capability{CapabilityBuilding, CapabilityHauling, CapabilityPatrol, CapabilityLaserCutter, CapabilityCombat} {
		if strings.EqualFold(string(c), s) || strings.EqualFold(strings.TrimPrefix(string(c), "Capability."), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// CapabilitySet is an unordered set of capabilities.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Clone returns an independent copy of the set.
func (s CapabilitySet) Clone() CapabilitySet {
	out := make(CapabilitySet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Remove deletes the given capabilities from the set.
func (s CapabilitySet) Remove(caps ...Capability) {
	for _, c := range caps {
		delete(s, c)
	}
}

// Equal reports set equality.
func (s CapabilitySet) Equal(o CapabilitySet) bool {
	if len(s) != len(o) {
		return false
	}
	for c := range s {
		if !o.Has(c) {
			return false
		}
	}
	return true
}

// SubsetOf reports whether every member of s is in o.
func (s CapabilitySet) SubsetOf(o CapabilitySet) bool {
	for c := range s {
		if !o.Has(c) {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexical order.
func (s CapabilitySet) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted members as plain strings.
func (s CapabilitySet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, c := range sorted {
		out[i] = string(c)
	}
	return out
}

// Subsystems holds the status of every subsystem, indexed by Subsystem.
type Subsystems [SubsystemCount]SubsystemStatus

// Any reports whether any subsystem has the given status.
func (s Subsystems) Any(status SubsystemStatus) bool {
	for _, st := range s {
		if st == status {
			return true
		}
	}
	return false
}

// ConditionSnapshot is a point-in-time copy of an android's condition.
type ConditionSnapshot struct {
	PowerLevel         float64
	PowerState         PowerState
	StructuralHP       float64
	Subsystems         Subsystems
	BaseCapabilities   CapabilitySet
	ActiveCapabilities CapabilitySet
	PersonalitySeed    int64
	Readiness          Readiness
}
