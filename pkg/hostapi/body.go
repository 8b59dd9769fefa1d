package hostapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/wytcherly/foreman/pkg/core"
)

// Body is the foreman pawn as mirrored from the host: position, yaw and
// navigation status are pushed in by host commands, movement requests go
// out through the callback.
type Body struct {
	host *Host

	mu       sync.RWMutex
	location core.Position3D
	yaw      float64
	status   core.MoveStatus
	frame    []byte
}

// NewBody creates a Body sending through h.
func NewBody(h *Host) *Body {
	return &Body{host: h}
}

// Update records the pawn's position and heading as reported by the host.
func (b *Body) Update(location core.Position3D, yaw float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.location = location
	b.yaw = yaw
}

// SetMoveStatus records the navigation status reported by the host.
func (b *Body) SetMoveStatus(s core.MoveStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

func (b *Body) Location() core.Position3D {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.location
}

func (b *Body) Yaw() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.yaw
}

func (b *Body) SetYaw(deg float64) {
	b.mu.Lock()
	b.yaw = deg
	b.mu.Unlock()
	_ = b.host.Call(FnSetYaw, map[string]float64{"yaw": deg})
}

type moveToPayload struct {
	Location    *[3]float64 `json:"location,omitempty"`
	Entity      string      `json:"entity,omitempty"`
	Acceptance  float64     `json:"acceptance"`
	Pathfinding bool        `json:"pathfinding"`
}

func (b *Body) MoveTo(target core.Position3D, acceptance float64, pathfinding bool) core.MoveResult {
	if b.Location().DistanceTo(target) <= acceptance {
		return core.MoveAlreadyAtGoal
	}
	loc := target.Array()
	return b.move(FnMoveTo, moveToPayload{Location: &loc, Acceptance: acceptance, Pathfinding: pathfinding})
}

func (b *Body) MoveToEntity(entityID string, acceptance float64, pathfinding bool) core.MoveResult {
	return b.move(FnMoveToEntity, moveToPayload{Entity: entityID, Acceptance: acceptance, Pathfinding: pathfinding})
}

func (b *Body) move(fn string, p moveToPayload) core.MoveResult {
	if err := b.host.Call(fn, p); err != nil {
		return core.MoveFailed
	}
	b.SetMoveStatus(core.MoveMoving)
	return core.MoveSucceeded
}

func (b *Body) StopMovement() {
	_ = b.host.Call(FnStopMovement, nil)
	b.SetMoveStatus(core.MoveIdle)
}

func (b *Body) MoveStatus() core.MoveStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *Body) Attach(entityID string) error {
	return b.host.Call(FnAttach, map[string]string{"entity": entityID})
}

func (b *Body) Detach(at core.Position3D) error {
	return b.host.Call(FnDetach, map[string][3]float64{"location": at.Array()})
}

// ErrNoFrame is returned by Capture before the host has delivered any image.
var ErrNoFrame = errors.New("no scene frame delivered yet")

// DeliverFrame stores a base64-encoded image sent by the host.
func (b *Body) DeliverFrame(encoded string) error {
	img, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("invalid frame: %w", err)
	}
	if len(img) == 0 {
		return errors.New("empty frame")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frame = img
	return nil
}

// Capture returns the most recent frame and asks the host for a fresh one.
// It never waits for the host, since frames arrive on the calling thread.
func (b *Body) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_ = b.host.Call(FnCaptureScene, nil)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.frame == nil {
		return nil, ErrNoFrame
	}
	out := make([]byte, len(b.frame))
	copy(out, b.frame)
	return out, nil
}
