package hostapi

import (
	"github.com/wytcherly/foreman/pkg/core"
)

// Outbound host functions.
const (
	FnAssignWork   = "assign_work"
	FnMoveWorker   = "move_worker"
	FnAbortWorker  = "abort_worker"
	FnPlayCue      = "play_cue"
	FnStopCue      = "stop_cue"
	FnScan         = "scan"
	FnMoveTo       = "move_to"
	FnMoveToEntity = "move_to_entity"
	FnStopMovement = "stop_movement"
	FnSetYaw       = "set_yaw"
	FnAttach       = "attach"
	FnDetach       = "detach"
	FnCaptureScene = "capture_scene"
)

// Commander relays foreman orders and presentation cues to the host.
type Commander struct {
	host *Host
}

// NewCommander creates a Commander sending through h.
func NewCommander(h *Host) *Commander {
	return &Commander{host: h}
}

type assignPayload struct {
	Worker   string     `json:"worker"`
	Site     string     `json:"site"`
	TaskType string     `json:"taskType"`
	Location [3]float64 `json:"location"`
}

type movePayload struct {
	Worker   string     `json:"worker"`
	Location [3]float64 `json:"location"`
}

type abortPayload struct {
	Worker string `json:"worker"`
	Reason string `json:"reason"`
}

func (c *Commander) AssignWork(workerID string, site core.WorkSite) error {
	return c.host.Call(FnAssignWork, assignPayload{
		Worker:   workerID,
		Site:     site.ID,
		TaskType: string(site.TaskType),
		Location: site.Location.Array(),
	})
}

func (c *Commander) MoveWorkerTo(workerID string, location core.Position3D) error {
	return c.host.Call(FnMoveWorker, movePayload{Worker: workerID, Location: location.Array()})
}

func (c *Commander) AbortWorker(workerID string, reason core.AbortReason) error {
	return c.host.Call(FnAbortWorker, abortPayload{Worker: workerID, Reason: reason.String()})
}

// PlayCue starts a named cue. Delivery failures are logged by Call.
func (c *Commander) PlayCue(name string) {
	_ = c.host.Call(FnPlayCue, map[string]string{"cue": name})
}

func (c *Commander) StopCue() {
	_ = c.host.Call(FnStopCue, nil)
}

// IssueCommand asks the host to run a perception scan.
func (c *Commander) IssueCommand(text string) {
	_ = c.host.Call(FnScan, map[string]string{"command": text})
}
