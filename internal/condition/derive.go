package condition

import "github.com/wytcherly/foreman/pkg/core"

// Derive computes the active capability set from the base set and the current
// subsystem health. Only Destroyed subsystems remove capabilities; Degraded is
// left for task-quality logic downstream.
func Derive(base core.CapabilitySet, subs core.Subsystems) core.CapabilitySet {
	active := base.Clone()

	if subs[core.SubsystemManipulatorLeft] == core.StatusDestroyed &&
		subs[core.SubsystemManipulatorRight] == core.StatusDestroyed {
		active.Remove(core.CapabilityBuilding, core.CapabilityHauling)
	}
	if subs[core.SubsystemLocomotion] == core.StatusDestroyed {
		active.Remove(core.CapabilityHauling, core.CapabilityPatrol)
	}
	if subs[core.SubsystemVision] == core.StatusDestroyed {
		active.Remove(core.CapabilityLaserCutter, core.CapabilityCombat)
	}

	return active
}

// PowerStateFor returns the bracket containing level.
func PowerStateFor(level float64) core.PowerState {
	switch {
	case level <= 0:
		return core.PowerDead
	case level <= 0.1:
		return core.PowerCritical
	case level <= 0.3:
		return core.PowerLow
	default:
		return core.PowerNormal
	}
}

// Classify maps power and subsystem state to a readiness tier.
// Rule order is significant: the first matching rule wins.
func Classify(power core.PowerState, subs core.Subsystems) core.Readiness {
	if power == core.PowerDead {
		return core.Disabled
	}
	if power == core.PowerCritical || subs.Any(core.StatusDestroyed) {
		return core.NeedsMaintenance
	}
	if power == core.PowerLow || subs.Any(core.StatusDegraded) {
		return core.ReadinessDegraded
	}
	// unreachable while the Destroyed check above stands; kept as a terminal guard
	if subs[core.SubsystemLocomotion] == core.StatusDestroyed {
		return core.Disabled
	}
	return core.FullyOperational
}
