package handlers

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wytcherly/foreman/internal/cache"
	"github.com/wytcherly/foreman/internal/cogmap"
	"github.com/wytcherly/foreman/internal/config"
	"github.com/wytcherly/foreman/internal/dispatcher"
	"github.com/wytcherly/foreman/internal/foreman"
	"github.com/wytcherly/foreman/internal/logging"
	"github.com/wytcherly/foreman/internal/registry"
	"github.com/wytcherly/foreman/internal/storage/memory"
	"github.com/wytcherly/foreman/pkg/core"
	"github.com/wytcherly/foreman/pkg/hostapi"
)

type hostCall struct {
	Function string
	Data     string
}

type callLog struct {
	mu    sync.Mutex
	calls []hostCall
}

func (c *callLog) callback(_, function, data string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, hostCall{Function: function, Data: data})
	return 0
}

func (c *callLog) functions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	for i, call := range c.calls {
		out[i] = call.Function
	}
	return out
}

type fixture struct {
	svc      *Service
	d        *dispatcher.Dispatcher
	reg      *registry.Memory
	loop     *foreman.Loop
	body     *hostapi.Body
	backend  *memory.Backend
	host     *callLog
	cogPath  string
	sessions int
	exported string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{host: &callLog{}}
	h := hostapi.New("foreman-test")
	h.RegisterCallback(f.host.callback)

	f.reg = registry.NewMemory()
	f.body = hostapi.NewBody(h)
	perception := cache.NewPerceptionCache()

	loop, err := foreman.NewLoop(foreman.DefaultConfig(), foreman.Dependencies{
		ID:         "foreman-1",
		Registry:   f.reg,
		Commander:  hostapi.NewCommander(h),
		Perception: perception,
	})
	require.NoError(t, err)
	f.loop = loop

	f.cogPath = cogmap.DefaultPath(t.TempDir())
	f.backend = memory.New(config.MemoryConfig{OutputDir: t.TempDir()})

	rec := NewRecorder(nil, nil)
	rec.SetBackend(f.backend)

	f.svc = NewService(Dependencies{
		LogManager:       logging.NewSlogManager(),
		Registry:         f.reg,
		Perception:       perception,
		Loop:             loop,
		Body:             f.body,
		Recorder:         rec,
		Cogmap:           cogmap.NewWriter(f.cogPath),
		ExtensionVersion: "1.2.3",
		OnSessionEnd: func(_ core.Session, path string) {
			f.sessions++
			f.exported = path
		},
	})

	d, err := dispatcher.New(logging.NewSlogManager().Logger())
	require.NoError(t, err)
	f.d = d
	f.svc.RegisterHandlers(f.d)
	return f
}

func (f *fixture) call(t *testing.T, cmd string, args ...string) any {
	t.Helper()
	res, err := f.d.Dispatch(dispatcher.Event{Command: cmd, Args: args, Timestamp: time.Now()})
	require.NoError(t, err, cmd)
	return res
}

func (f *fixture) callErr(cmd string, args ...string) error {
	_, err := f.d.Dispatch(dispatcher.Event{Command: cmd, Args: args, Timestamp: time.Now()})
	return err
}

func TestRegisterHandlers_AllCommands(t *testing.T) {
	f := newFixture(t)
	for _, cmd := range []string{
		":VERSION:", ":SESSION:START:", ":SESSION:END:",
		":ANDROID:NEW:", ":ANDROID:SUBSYSTEM:", ":ANDROID:POWER:", ":ANDROID:DAMAGE:",
		":ANDROID:READINESS:", ":ANDROID:CAPS:",
		":WORKER:UPSERT:", ":WORKER:STATE:", ":WORKER:REMOVE:",
		":SITE:UPSERT:", ":SITE:RELEASE:", ":SITE:REMOVE:",
		":FOREMAN:POSSESS:", ":FOREMAN:UNPOSSESS:", ":FOREMAN:POSITION:",
		":FOREMAN:ABORT:", ":FOREMAN:PATROL:", ":FOREMAN:STATE:",
		":TICK:", ":REPORT:",
		":BRAIN:COMMAND:", ":BRAIN:CAPTURE:", ":BRAIN:MOVE:STATUS:", ":BRAIN:STATE:",
		":COGMAP:READOUT:",
	} {
		assert.True(t, f.d.HasHandler(cmd), cmd)
	}
}

func TestHandleVersion(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "1.2.3", f.call(t, ":VERSION:"))
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.callErr(":SESSION:END:"), ErrNoSession)

	id := f.call(t, ":SESSION:START:", `"Night Shift"`)
	require.IsType(t, "", id)
	assert.NotEmpty(t, id)
	assert.True(t, f.svc.SessionActive())
	assert.Len(t, f.svc.SessionAttrs(), 1)

	assert.ErrorIs(t, f.callErr(":SESSION:START:", "again"), ErrSessionActive)

	f.call(t, ":ANDROID:NEW:", "a1", `["Hauling"]`)
	f.call(t, ":ANDROID:POWER:", "a1", "0.2")

	rec, ok := f.backend.GetAndroid("a1")
	require.True(t, ok)
	require.Len(t, rec.PowerChanges, 1)
	assert.Equal(t, core.PowerLow, rec.PowerChanges[0].New)

	path := f.call(t, ":SESSION:END:")
	assert.Contains(t, path, "Night_Shift_")
	assert.False(t, f.svc.SessionActive())
	assert.Nil(t, f.svc.SessionAttrs())
	assert.Equal(t, 1, f.sessions)
	assert.Equal(t, path, f.exported)
}

func TestAndroidCommands(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "FullyOperational", f.call(t, ":ANDROID:NEW:", `"a1"`, `"[""Hauling"",""Patrol"",""Combat""]"`))
	assert.Equal(t, "FullyOperational", f.call(t, ":ANDROID:READINESS:", "a1"))

	caps := f.call(t, ":ANDROID:CAPS:", "a1")
	var names []string
	require.NoError(t, json.Unmarshal([]byte(caps.(string)), &names))
	assert.ElementsMatch(t, []string{"Capability.Hauling", "Capability.Patrol", "Capability.Combat"}, names)

	assert.Equal(t, "NeedsMaintenance", f.call(t, ":ANDROID:SUBSYSTEM:", "a1", "Locomotion", "Destroyed"))
	caps = f.call(t, ":ANDROID:CAPS:", "a1")
	assert.Equal(t, `["Capability.Combat"]`, caps)

	assert.Equal(t, "Critical", f.call(t, ":ANDROID:POWER:", "a1", "0.05"))
	assert.Equal(t, "Dead", f.call(t, ":ANDROID:POWER:", "a1", "0"))
	assert.Equal(t, "Disabled", f.call(t, ":ANDROID:READINESS:", "a1"))

	f.call(t, ":ANDROID:DAMAGE:", "a1", "0.5")
}

func TestAndroidCommands_Errors(t *testing.T) {
	f := newFixture(t)
	f.call(t, ":ANDROID:NEW:", "a1", "[]")

	tests := []struct {
		name string
		cmd  string
		args []string
	}{
		{"unknown android power", ":ANDROID:POWER:", []string{"ghost", "0.5"}},
		{"bad power", ":ANDROID:POWER:", []string{"a1", "full"}},
		{"missing power args", ":ANDROID:POWER:", []string{"a1"}},
		{"unknown subsystem", ":ANDROID:SUBSYSTEM:", []string{"a1", "Tail", "Destroyed"}},
		{"unknown android readiness", ":ANDROID:READINESS:", []string{"ghost"}},
		{"missing caps args", ":ANDROID:CAPS:", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, f.callErr(tt.cmd, tt.args...))
		})
	}

	assert.ErrorIs(t, f.callErr(":ANDROID:READINESS:", "ghost"), ErrUnknownAndroid)
}

func TestWorkerCapabilitiesFollowAndroid(t *testing.T) {
	f := newFixture(t)
	f.call(t, ":ANDROID:NEW:", "w1", `["Hauling","Patrol"]`)
	assert.Equal(t, "w1", f.call(t, ":WORKER:UPSERT:", "w1", `["hauler"]`, "Idle", "[0,0,0]"))

	w, ok := f.reg.Worker("w1")
	require.True(t, ok)
	assert.True(t, w.Capabilities.Has(core.CapabilityHauling))

	f.call(t, ":ANDROID:SUBSYSTEM:", "w1", "Locomotion", "Destroyed")
	w, _ = f.reg.Worker("w1")
	assert.False(t, w.Capabilities.Has(core.CapabilityHauling))
	assert.False(t, w.Capabilities.Has(core.CapabilityPatrol))
}

func TestRegistryCommands(t *testing.T) {
	f := newFixture(t)

	f.call(t, ":WORKER:UPSERT:", "w1", "[]", "Idle", "[0,0,0]", "Bob")
	f.call(t, ":SITE:UPSERT:", "s1", "Build", "[5,0,0]", "true", "Wall")

	f.call(t, ":WORKER:STATE:", "w1", "Working")
	w, ok := f.reg.Worker("w1")
	require.True(t, ok)
	assert.Equal(t, core.WorkerWorking, w.State)

	assert.Error(t, f.callErr(":WORKER:STATE:", "w1", "Sleeping"))
	assert.ErrorIs(t, f.callErr(":WORKER:STATE:", "ghost", "Idle"), registry.ErrNotFound)

	require.NoError(t, f.reg.Claim("s1", "w1"))
	assert.Equal(t, "w1", f.call(t, ":SITE:RELEASE:", "s1", "Completed"))
	assert.Error(t, f.callErr(":SITE:RELEASE:", "s1", "Exploded"))

	f.call(t, ":SITE:REMOVE:", "s1")
	_, ok = f.reg.WorkSite("s1")
	assert.False(t, ok)

	f.call(t, ":WORKER:REMOVE:", "w1")
	_, ok = f.reg.Worker("w1")
	assert.False(t, ok)
	assert.ErrorIs(t, f.callErr(":WORKER:REMOVE:", "w1"), registry.ErrNotFound)
}

func TestForemanCommands(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "Stopped", f.call(t, ":FOREMAN:STATE:"))
	assert.ErrorIs(t, f.callErr(":REPORT:"), foreman.ErrNoPawn)

	// no work registered: Plan fails straight into Wait
	assert.Equal(t, "Wait", f.call(t, ":FOREMAN:POSSESS:", "[1,2,3]", "90"))
	assert.Equal(t, core.Position3D{X: 1, Y: 2, Z: 3}, f.body.Location())
	assert.InDelta(t, 90, f.body.Yaw(), 1e-9)

	f.call(t, ":FOREMAN:POSITION:", "[4,5,6]")
	assert.Equal(t, core.Position3D{X: 4, Y: 5, Z: 6}, f.body.Location())
	assert.InDelta(t, 90, f.body.Yaw(), 1e-9)

	assert.Equal(t, 2, f.call(t, ":FOREMAN:PATROL:", "[[0,0,0],[10,0,0,2]]"))
	assert.Error(t, f.callErr(":FOREMAN:PATROL:", "[[0,0]]"))

	f.call(t, ":WORKER:UPSERT:", "w1", "[]", "Idle", "[4,5,6]")
	f.call(t, ":WORKER:UPSERT:", "w2", "[]", "Working", "[400,5,6]")
	assert.Equal(t, "Foreman Report: 2 total workers, 1 idle, 1 active", f.call(t, ":REPORT:"))

	assert.Equal(t, "Stopped", f.call(t, ":FOREMAN:ABORT:", "Emergency"))
	assert.Error(t, f.callErr(":FOREMAN:ABORT:", "Boredom"))

	f.call(t, ":FOREMAN:UNPOSSESS:")
	assert.Nil(t, f.loop.Pawn())
}

func TestReportRecordsWithForemanID(t *testing.T) {
	f := newFixture(t)
	f.call(t, ":SESSION:START:", "s")
	f.call(t, ":FOREMAN:POSSESS:", "[0,0,0]")
	f.call(t, ":REPORT:")

	rec, ok := f.backend.GetForeman("foreman-1")
	require.True(t, ok)
	require.Len(t, rec.Reports, 1)
	assert.Equal(t, "foreman-1", rec.Reports[0].ForemanID)
}

func TestHandleTick_DrainsAndroids(t *testing.T) {
	f := newFixture(t)
	f.call(t, ":SESSION:START:", "drain")
	f.call(t, ":ANDROID:NEW:", "a1", "[]", "1", "0.32", "0.1")

	// two 1.5s drains of 0.15 each: Normal -> Low -> Critical
	f.call(t, ":TICK:", "3.2")
	rec, ok := f.backend.GetAndroid("a1")
	require.True(t, ok)
	require.Len(t, rec.PowerChanges, 2)
	assert.Equal(t, core.PowerLow, rec.PowerChanges[0].New)
	assert.Equal(t, core.PowerCritical, rec.PowerChanges[1].New)

	assert.Error(t, f.callErr(":TICK:", "-1"))
	assert.Error(t, f.callErr(":TICK:"))
}

func TestBrainCommands_Disabled(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.callErr(":BRAIN:COMMAND:", "pick up the crate"), ErrBrainDisabled)
	assert.ErrorIs(t, f.callErr(":BRAIN:STATE:"), ErrBrainDisabled)
}

func TestBodyCommands(t *testing.T) {
	f := newFixture(t)

	f.call(t, ":BRAIN:MOVE:STATUS:", "Moving")
	assert.Equal(t, core.MoveMoving, f.body.MoveStatus())
	assert.Error(t, f.callErr(":BRAIN:MOVE:STATUS:", "Flying"))

	f.call(t, ":BRAIN:CAPTURE:", "aGVsbG8=")
	assert.Error(t, f.callErr(":BRAIN:CAPTURE:", "%%%"))
}

func TestCogmapReadout(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, cogmap.NoSensorData, f.call(t, ":COGMAP:READOUT:"))

	w := cogmap.NewWriter(f.cogPath)
	require.NoError(t, w.Update([]core.PerceivedEntity{{
		ID: "crate-1", Name: "Crate", Tags: []string{"cargo"}, Distance: 3,
		Location: core.Position3D{X: 1, Y: 2, Z: 3}, Visible: true,
	}}, time.Now()))

	out := f.call(t, ":COGMAP:READOUT:")
	assert.Contains(t, out, "[01] Crate")
	assert.Contains(t, out, "TAGS: cargo")
}

func TestNonFiniteArgsLeaveStateUnchanged(t *testing.T) {
	f := newFixture(t)
	f.call(t, ":ANDROID:NEW:", "a1", `["Hauling"]`, "1", "0.5")

	tests := []struct {
		name string
		cmd  string
		args []string
	}{
		{"power NaN", ":ANDROID:POWER:", []string{"a1", "NaN"}},
		{"power Inf", ":ANDROID:POWER:", []string{"a1", "Inf"}},
		{"power -Inf", ":ANDROID:POWER:", []string{"a1", "-Inf"}},
		{"damage NaN", ":ANDROID:DAMAGE:", []string{"a1", "NaN"}},
		{"new NaN power", ":ANDROID:NEW:", []string{"a2", "[]", "1", "NaN"}},
		{"new Inf power", ":ANDROID:NEW:", []string{"a2", "[]", "1", "Inf"}},
		{"new -Inf drain", ":ANDROID:NEW:", []string{"a2", "[]", "1", "0.5", "-Inf"}},
		{"new Inf drain", ":ANDROID:NEW:", []string{"a2", "[]", "1", "0.5", "+Inf"}},
		{"tick NaN", ":TICK:", []string{"NaN"}},
		{"tick Inf", ":TICK:", []string{"Inf"}},
		{"tick -Inf", ":TICK:", []string{"-Inf"}},
		{"tick oversized", ":TICK:", []string{"1e300"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, f.callErr(tt.cmd, tt.args...))
			assert.Equal(t, "Normal", f.call(t, ":ANDROID:POWER:", "a1", "0.5"))
			assert.Equal(t, "FullyOperational", f.call(t, ":ANDROID:READINESS:", "a1"))
			assert.ErrorIs(t, f.callErr(":ANDROID:READINESS:", "a2"), ErrUnknownAndroid)
		})
	}
}

func TestRejectedTickKeepsLoopRunning(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Wait", f.call(t, ":FOREMAN:POSSESS:", "[0,0,0]"))

	assert.Error(t, f.callErr(":TICK:", "Inf"))
	assert.Error(t, f.callErr(":TICK:", "1e300"))

	f.call(t, ":WORKER:UPSERT:", "w1", "[]", "Idle", "[10,0,0]")
	f.call(t, ":SITE:UPSERT:", "s1", "Build", "[20,0,0]", "true")

	for i := 0; i < 20 && f.loop.State().String() != "Monitor"; i++ {
		f.call(t, ":TICK:", "1")
	}
	assert.Equal(t, "Monitor", f.call(t, ":FOREMAN:STATE:"))
}

func TestAndroidNew_ExplicitZeroPower(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "Disabled", f.call(t, ":ANDROID:NEW:", "flat", "[]", "1", "0"))
	assert.Equal(t, "FullyOperational", f.call(t, ":ANDROID:NEW:", "full", "[]", "1", ""))
	assert.Equal(t, "FullyOperational", f.call(t, ":ANDROID:NEW:", "default", "[]"))
}
