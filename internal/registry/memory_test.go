package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wytcherly/foreman/pkg/core"
)

func seed(t *testing.T) *Memory {
	t.Helper()
	r := NewMemory()
	r.UpsertWorker(core.Worker{ID: "w1", Tags: []string{"Worker"}, State: core.WorkerIdle})
	r.UpsertWorker(core.Worker{ID: "w2", Tags: []string{"Worker"}, State: core.WorkerWorking})
	r.UpsertWorker(core.Worker{ID: "w3", Tags: []string{"Worker", "Heavy"}, State: core.WorkerIdle})
	r.UpsertWorkSite(core.WorkSite{ID: "s1", Tags: []string{"WorkStation"}, Operational: true})
	r.UpsertWorkSite(core.WorkSite{ID: "s2", Tags: []string{"WorkStation"}, Operational: false})
	r.UpsertWorkSite(core.WorkSite{ID: "s3", Tags: []string{"WorkStation", "Heavy"}, Operational: true})
	return r
}

func workerIDs(ws []core.Worker) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.ID
	}
	return out
}

func siteIDs(ss []core.WorkSite) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.ID
	}
	return out
}

func TestMemory_WorkersFilterAndOrder(t *testing.T) {
	r := seed(t)

	assert.Equal(t, []string{"w1", "w2", "w3"}, workerIDs(r.Workers()))
	assert.Equal(t, []string{"w1", "w3"}, workerIDs(r.Workers(core.WorkerIdle)))
	assert.Equal(t, []string{"w1", "w2", "w3"}, workerIDs(r.Workers(core.WorkerWorking, core.WorkerIdle)))
	assert.Empty(t, r.Workers(core.WorkerReturning))
}

func TestMemory_WorkSitesAvailability(t *testing.T) {
	r := seed(t)

	assert.Equal(t, []string{"s1", "s2", "s3"}, siteIDs(r.WorkSites(false)))
	assert.Equal(t, []string{"s1", "s3"}, siteIDs(r.WorkSites(true)))

	require.NoError(t, r.Claim("s1", "w1"))
	assert.Equal(t, []string{"s3"}, siteIDs(r.WorkSites(true)))
	assert.Equal(t, 1, r.ClaimedCount())
}

func TestMemory_ClaimIdempotentAndExclusive(t *testing.T) {
	r := seed(t)

	require.NoError(t, r.Claim("s1", "w1"))
	require.NoError(t, r.Claim("s1", "w1"), "same pair twice is a no-op")

	err := r.Claim("s1", "w3")
	assert.ErrorIs(t, err, ErrSiteClaimed)

	s, ok := r.WorkSite("s1")
	require.True(t, ok)
	assert.Equal(t, "w1", s.ClaimedBy)

	assert.ErrorIs(t, r.Claim("nope", "w1"), ErrNotFound)
	assert.ErrorIs(t, r.Claim("s3", "nope"), ErrNotFound)
}

func TestMemory_Release(t *testing.T) {
	r := seed(t)
	require.NoError(t, r.Claim("s1", "w1"))
	require.NoError(t, r.Claim("s3", "w3"))

	holder, err := r.Release("s1", core.WorkCompleted)
	require.NoError(t, err)
	assert.Equal(t, "w1", holder)
	s1, _ := r.WorkSite("s1")
	assert.True(t, s1.Available())

	holder, err = r.Release("s3", core.WorkFailed)
	require.NoError(t, err)
	assert.Equal(t, "w3", holder)
	s3, _ := r.WorkSite("s3")
	assert.False(t, s3.Claimed())
	assert.False(t, s3.Operational)

	_, err = r.Release("missing", core.WorkAborted)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_UpsertPreservesClaimAndOrder(t *testing.T) {
	r := seed(t)
	require.NoError(t, r.Claim("s1", "w1"))

	r.UpsertWorkSite(core.WorkSite{ID: "s1", Tags: []string{"WorkStation"}, Operational: true, Location: core.Position3D{X: 5}})
	s1, _ := r.WorkSite("s1")
	assert.Equal(t, "w1", s1.ClaimedBy)
	assert.Equal(t, 5.0, s1.Location.X)
	assert.Equal(t, []string{"s1", "s2", "s3"}, siteIDs(r.WorkSites(false)))
}

func TestMemory_GeneratesIDs(t *testing.T) {
	r := NewMemory()
	id := r.UpsertWorker(core.Worker{Name: "anon"})
	assert.NotEmpty(t, id)

	w, ok := r.Worker(id)
	require.True(t, ok)
	assert.Equal(t, "anon", w.Name)
}

func TestMemory_RemoveWorkerReleasesClaims(t *testing.T) {
	r := seed(t)
	require.NoError(t, r.Claim("s1", "w1"))

	require.NoError(t, r.RemoveWorker("w1"))
	_, ok := r.Worker("w1")
	assert.False(t, ok)
	assert.Zero(t, r.ClaimedCount())

	assert.ErrorIs(t, r.RemoveWorker("w1"), ErrNotFound)
	require.NoError(t, r.RemoveWorkSite("s2"))
	assert.Equal(t, []string{"s1", "s3"}, siteIDs(r.WorkSites(false)))
}

func TestMemory_FindByTag(t *testing.T) {
	r := seed(t)

	workers, sites := r.FindByTag("Heavy")
	assert.Equal(t, []string{"w3"}, workers)
	assert.Equal(t, []string{"s3"}, sites)

	r.UpsertWorker(core.Worker{ID: "w3", Tags: []string{"Worker"}})
	workers, _ = r.FindByTag("Heavy")
	assert.Empty(t, workers)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	r := seed(t)
	ws := r.Workers()
	ws[0].Tags[0] = "mutated"
	ws[0].State = core.WorkerUnavailable

	w, _ := r.Worker("w1")
	assert.Equal(t, "Worker", w.Tags[0])
	assert.Equal(t, core.WorkerIdle, w.State)
}

func TestMemory_SetWorkerState(t *testing.T) {
	r := seed(t)
	require.NoError(t, r.SetWorkerState("w1", core.WorkerMovingToTask))
	assert.Equal(t, []string{"w3"}, workerIDs(r.Workers(core.WorkerIdle)))
	assert.ErrorIs(t, r.SetWorkerState("zz", core.WorkerIdle), ErrNotFound)
}
