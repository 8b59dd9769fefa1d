package condition

import "time"

// Drainer turns host tick deltas into fixed-interval DrainPower calls.
// It runs on the host tick thread, so it does not start a goroutine.
type Drainer struct {
	model   *Model
	elapsed time.Duration
}

// NewDrainer creates a drain timer for m.
func NewDrainer(m *Model) *Drainer {
	return &Drainer{model: m}
}

// Advance accumulates delta and fires one drain per whole interval elapsed.
// It returns the number of drains fired.
func (d *Drainer) Advance(delta time.Duration) int {
	if delta <= 0 {
		return 0
	}
	interval := d.model.DrainInterval()
	d.elapsed += delta

	fired := 0
	for d.elapsed >= interval {
		d.elapsed -= interval
		d.model.DrainPower(interval)
		fired++
	}
	return fired
}

// Reset discards any partially elapsed interval.
func (d *Drainer) Reset() {
	d.elapsed = 0
}
