/*
   Copyright @ 2024 strato authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strato-io/strato/pkg/backend"
	"github.com/strato-io/strato/pkg/backend/memory"
	"github.com/strato-io/strato/pkg/convergence"
	"github.com/strato-io/strato/pkg/dataset"
	"github.com/strato-io/strato/pkg/discovery"
)

const (
	testNode      = "node-a"
	testMountRoot = "/var/lib/strato/datasets"
)

var (
	id1 = dataset.ID("11111111-1111-4111-8111-111111111111")
	id2 = dataset.ID("22222222-2222-4222-8222-222222222222")
)

type fakeClient struct {
	mu      sync.Mutex
	reports []dataset.LocalState
	closed  bool
}

func (f *fakeClient) ReportNodeState(_ context.Context, state dataset.LocalState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, state)
	return nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeClient) reportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	backend *memory.BackendImplement
	mounter *backend.FakeMounter
	loop    *ConvergenceLoop
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := memory.NewBackend()
	m := backend.NewFakeMounter()
	d := discovery.NewDiscovererWithDeviceStat(b, m, testNode, "node-a.example.com", testMountRoot,
		func(string) error { return nil })
	env := convergence.Env{Backend: b, Mounter: m, NodeID: testNode}
	loop := NewConvergenceLoop(d, env, 5*time.Millisecond, 2, nil)
	return &harness{backend: b, mounter: m, loop: loop}
}

func desiredMounted(t *testing.T, id dataset.ID) dataset.Desired {
	t.Helper()
	d, err := dataset.NewDesiredMounted(id, discovery.MountPointFor(testMountRoot, id), 1<<30, nil)
	require.NoError(t, err)
	return d
}

func desiredNotMounted(t *testing.T, id dataset.ID) dataset.Desired {
	t.Helper()
	d, err := dataset.NewDesiredNotMounted(id, 1<<30, nil)
	require.NoError(t, err)
	return d
}

func configOf(ds ...dataset.Desired) dataset.Configuration {
	cfg := dataset.Configuration{Datasets: map[dataset.ID]dataset.Desired{}}
	for _, d := range ds {
		cfg.Datasets[d.DatasetID()] = d
	}
	return cfg
}

func localDiscovered(loop *ConvergenceLoop, id dataset.ID) (dataset.Discovered, bool) {
	d, ok := loop.LatestLocalState().Datasets[id]
	return d, ok
}

func TestClusterStatusConnectionLifecycle(t *testing.T) {
	h := newHarness(t)
	status := NewClusterStatus(h.loop, nil)
	assert.Equal(t, StatusDisconnected, status.State())

	client := &fakeClient{}
	status.Connected(client)
	assert.Equal(t, StatusIgnorant, status.State())

	// Losing the connection before any status arrived needs no loop stop.
	status.Disconnected()
	assert.Equal(t, StatusDisconnected, status.State())
	assert.False(t, client.isClosed(), "dialer owns the connection, not the status machine")
	assert.Equal(t, LoopStopped, h.loop.State())
}

func TestClusterStatusStaleStatusDropped(t *testing.T) {
	h := newHarness(t)
	status := NewClusterStatus(h.loop, nil)

	// No connection: a status has nothing to act on and must not start
	// the loop.
	status.StatusUpdate(configOf(), dataset.ClusterState{})
	assert.Equal(t, StatusDisconnected, status.State())
	assert.Equal(t, LoopStopped, h.loop.State())
}

func TestClusterStatusStopsLoopOnDisconnect(t *testing.T) {
	h := newHarness(t)
	status := NewClusterStatus(h.loop, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.loop.Run(ctx)

	client := &fakeClient{}
	status.Connected(client)
	status.StatusUpdate(configOf(), dataset.ClusterState{})
	assert.Equal(t, StatusKnowledgeable, status.State())
	waitFor(t, "loop converging", func() bool { return h.loop.State() != LoopStopped })

	status.Disconnected()
	assert.Equal(t, StatusDisconnected, status.State())
	waitFor(t, "loop stopped after disconnect", func() bool { return h.loop.State() == LoopStopped })

	// Reconnecting resumes cleanly.
	status.Connected(client)
	status.StatusUpdate(configOf(), dataset.ClusterState{})
	assert.Equal(t, StatusKnowledgeable, status.State())
	waitFor(t, "loop converging after reconnect", func() bool { return h.loop.State() != LoopStopped })
}

func TestClusterStatusShutdownIsTerminal(t *testing.T) {
	h := newHarness(t)
	status := NewClusterStatus(h.loop, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.loop.Run(ctx)

	client := &fakeClient{}
	status.Connected(client)
	status.Shutdown()
	assert.Equal(t, StatusShutdown, status.State())
	assert.True(t, client.isClosed())

	late := &fakeClient{}
	status.Connected(late)
	assert.Equal(t, StatusShutdown, status.State())
	assert.True(t, late.isClosed(), "connections arriving after shutdown are closed")

	status.StatusUpdate(configOf(desiredNotMounted(t, id1)), dataset.ClusterState{})
	assert.Equal(t, LoopStopped, h.loop.State())
}

func TestConvergenceLoopReachesFixedPoint(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.loop.Run(ctx)

	client := &fakeClient{}
	h.loop.StatusUpdate(client, configOf(desiredMounted(t, id1), desiredNotMounted(t, id2)), dataset.ClusterState{})

	// One status is enough: each cycle replans from the buffered
	// snapshot until nothing is left to do.
	waitFor(t, "dataset mounted", func() bool {
		d, ok := localDiscovered(h.loop, id1)
		return ok && d.State() == dataset.Mounted
	})
	waitFor(t, "dataset attached", func() bool {
		d, ok := localDiscovered(h.loop, id2)
		return ok && d.State() == dataset.Attached
	})

	mounted, _ := localDiscovered(h.loop, id1)
	mp := mounted.(dataset.DiscoveredMounted)
	assert.Equal(t, discovery.MountPointFor(testMountRoot, id1), mp.MountPoint())

	mounts, err := h.mounter.List()
	require.NoError(t, err)
	require.Len(t, mounts, 1)
	assert.Equal(t, discovery.MountPointFor(testMountRoot, id1), mounts[0].Path)

	assert.Greater(t, client.reportCount(), 0, "every cycle reports node state")
}

func TestConvergenceLoopDeletesOrphans(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.loop.Run(ctx)

	vol, err := h.backend.CreateVolume(ctx, id1, 1<<30)
	require.NoError(t, err)
	_, err = h.backend.AttachVolume(ctx, vol.BlockDeviceID, testNode)
	require.NoError(t, err)

	// id1 never appears in the configuration, so it converges to deleted.
	client := &fakeClient{}
	h.loop.StatusUpdate(client, configOf(), dataset.ClusterState{})

	waitFor(t, "orphan destroyed", func() bool {
		vols, err := h.backend.ListVolumes(context.Background())
		return err == nil && len(vols) == 0
	})
}

func TestConvergenceLoopIsolatesDatasetFailures(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.loop.Run(ctx)

	// id1's volume already exists and is attached to another node, so
	// this node's create for it fails every cycle.
	vol, err := h.backend.CreateVolume(ctx, id1, 1<<30)
	require.NoError(t, err)
	_, err = h.backend.AttachVolume(ctx, vol.BlockDeviceID, "node-b")
	require.NoError(t, err)

	client := &fakeClient{}
	h.loop.StatusUpdate(client, configOf(desiredNotMounted(t, id1), desiredNotMounted(t, id2)), dataset.ClusterState{})

	waitFor(t, "healthy dataset attached despite failing sibling", func() bool {
		d, ok := localDiscovered(h.loop, id2)
		return ok && d.State() == dataset.Attached
	})

	vols, err := h.backend.ListVolumes(context.Background())
	require.NoError(t, err)
	for _, v := range vols {
		if v.DatasetID == id1 {
			assert.Equal(t, "node-b", v.AttachedTo, "failing dataset left untouched")
		}
	}
	_, ok := localDiscovered(h.loop, id1)
	assert.False(t, ok, "volume attached elsewhere is not planning input")
	assert.Contains(t, h.loop.LatestLocalState().NonManifest, id1,
		"volume attached elsewhere is still reported non-manifest")
}

func TestConvergenceLoopAppliesUpdatedSettings(t *testing.T) {
	b := memory.NewBackend()
	m := backend.NewFakeMounter()
	d := discovery.NewDiscovererWithDeviceStat(b, m, testNode, "node-a.example.com", testMountRoot,
		func(string) error { return nil })
	env := convergence.Env{Backend: b, Mounter: m, NodeID: testNode}

	// Converging to mounted needs several cycles. With the construction
	// interval the test would sit in the first inter-cycle delay for an
	// hour, so finishing proves the updated tuning took effect.
	loop := NewConvergenceLoop(d, env, time.Hour, 2, nil)
	loop.UpdateSettings(5*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.StatusUpdate(&fakeClient{}, configOf(desiredMounted(t, id1)), dataset.ClusterState{})
	waitFor(t, "dataset mounted under updated interval", func() bool {
		d, ok := localDiscovered(loop, id1)
		return ok && d.State() == dataset.Mounted
	})
}

func TestConvergenceLoopBuffersStatusMidIteration(t *testing.T) {
	h := newHarness(t)

	// A canceled context suppresses rescheduling, so step can be driven
	// synchronously without the run goroutine.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snapA := loopInput{kind: inputStatusUpdate, snap: statusSnapshot{
		client: &fakeClient{}, config: configOf(desiredNotMounted(t, id1)),
	}}
	snapB := loopInput{kind: inputStatusUpdate, snap: statusSnapshot{
		client: &fakeClient{}, config: configOf(desiredNotMounted(t, id2)),
	}}

	h.loop.step(ctx, snapA)
	assert.Equal(t, LoopConverging, h.loop.State())

	// An update during an iteration only replaces the buffered snapshot.
	h.loop.step(ctx, snapB)
	assert.Equal(t, LoopConverging, h.loop.State())
	_, ok := h.loop.latest.config.Datasets[id2]
	assert.True(t, ok, "later status replaces the buffered one")
	_, ok = h.loop.latest.config.Datasets[id1]
	assert.False(t, ok)

	h.loop.step(ctx, loopInput{kind: inputStop})
	assert.Equal(t, LoopConvergingStopping, h.loop.State())

	// A status after stop resumes converging without starting a second
	// pipeline; the in-flight iteration's completion drives the next one.
	h.loop.step(ctx, snapA)
	assert.Equal(t, LoopConverging, h.loop.State())

	h.loop.step(ctx, loopInput{kind: inputStop})
	h.loop.step(ctx, loopInput{kind: inputIterationDone})
	assert.Equal(t, LoopStopped, h.loop.State())

	// Stray inputs in the stopped state are inert.
	h.loop.step(ctx, loopInput{kind: inputIterationDone})
	h.loop.step(ctx, loopInput{kind: inputStop})
	assert.Equal(t, LoopStopped, h.loop.State())
}
