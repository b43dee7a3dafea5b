package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strato-io/strato/pkg/backend"
	"github.com/strato-io/strato/pkg/backend/memory"
	"github.com/strato-io/strato/pkg/dataset"
)

const (
	id1       = dataset.ID("11111111-1111-4111-8111-111111111111")
	id2       = dataset.ID("22222222-2222-4222-8222-222222222222")
	testNode  = "node-1"
	mountRoot = "/var/lib/strato/datasets"
)

func newTestDiscoverer(b backend.Backend, m backend.Mounter) *Discoverer {
	d := NewDiscoverer(b, m, testNode, "host-1", mountRoot)
	d.statDevice = func(string) error { return nil }
	return d
}

func TestDiscoverEmptyBackend(t *testing.T) {
	d := newTestDiscoverer(memory.NewBackend(), backend.NewFakeMounter())

	state, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testNode, state.NodeID)
	assert.Equal(t, "host-1", state.Hostname)
	assert.Len(t, state.Datasets, 0)
}

func TestDiscoverUnattachedVolumeIsNonManifest(t *testing.T) {
	b := memory.NewBackend()
	_, err := b.CreateVolume(context.Background(), id1, 1<<30)
	require.NoError(t, err)

	d := newTestDiscoverer(b, backend.NewFakeMounter())
	state, err := d.Discover(context.Background())
	require.NoError(t, err)

	require.Contains(t, state.Datasets, id1)
	assert.Equal(t, dataset.NonManifest, state.Datasets[id1].State())
}

func TestDiscoverExcludesVolumesAttachedElsewhere(t *testing.T) {
	ctx := context.Background()
	b := memory.NewBackend()
	vol, err := b.CreateVolume(ctx, id1, 1<<30)
	require.NoError(t, err)
	_, err = b.AttachVolume(ctx, vol.BlockDeviceID, "node-2")
	require.NoError(t, err)

	d := newTestDiscoverer(b, backend.NewFakeMounter())
	state, err := d.Discover(ctx)
	require.NoError(t, err)

	// Not planning input here, but still surfaced to the cluster.
	assert.NotContains(t, state.Datasets, id1)
	assert.Equal(t, []dataset.ID{id1}, state.NonManifest)
}

func TestDiscoverAttachedVolume(t *testing.T) {
	ctx := context.Background()
	b := memory.NewBackend()
	vol, err := b.CreateVolume(ctx, id1, 1<<30)
	require.NoError(t, err)
	_, err = b.AttachVolume(ctx, vol.BlockDeviceID, testNode)
	require.NoError(t, err)

	d := newTestDiscoverer(b, backend.NewFakeMounter())
	state, err := d.Discover(ctx)
	require.NoError(t, err)

	require.Contains(t, state.Datasets, id1)
	att, ok := state.Datasets[id1].(dataset.DiscoveredAttached)
	require.True(t, ok)
	assert.Equal(t, vol.BlockDeviceID, att.BlockDeviceID())
	assert.Equal(t, uint64(1<<30), att.MaximumSize())
	assert.NotEmpty(t, att.DevicePath())
}

func TestDiscoverMountedVolume(t *testing.T) {
	ctx := context.Background()
	b := memory.NewBackend()
	m := backend.NewFakeMounter()
	vol, err := b.CreateVolume(ctx, id1, 1<<30)
	require.NoError(t, err)
	_, err = b.AttachVolume(ctx, vol.BlockDeviceID, testNode)
	require.NoError(t, err)
	devicePath, err := b.GetDevicePath(ctx, vol.BlockDeviceID)
	require.NoError(t, err)

	canonical := MountPointFor(mountRoot, id1)
	require.NoError(t, m.MountDevice(devicePath, canonical, "ext4"))

	d := newTestDiscoverer(b, m)
	state, err := d.Discover(ctx)
	require.NoError(t, err)

	mounted, ok := state.Datasets[id1].(dataset.DiscoveredMounted)
	require.True(t, ok)
	assert.Equal(t, canonical, mounted.MountPoint())
	assert.Equal(t, devicePath, mounted.DevicePath())
}

func TestDiscoverMountedElsewhereIsAttached(t *testing.T) {
	ctx := context.Background()
	b := memory.NewBackend()
	m := backend.NewFakeMounter()
	vol, err := b.CreateVolume(ctx, id1, 1<<30)
	require.NoError(t, err)
	_, err = b.AttachVolume(ctx, vol.BlockDeviceID, testNode)
	require.NoError(t, err)
	devicePath, err := b.GetDevicePath(ctx, vol.BlockDeviceID)
	require.NoError(t, err)

	require.NoError(t, m.MountDevice(devicePath, "/mnt/somewhere-else", "ext4"))

	d := newTestDiscoverer(b, m)
	state, err := d.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, dataset.Attached, state.Datasets[id1].State())
}

type devicePathFailingBackend struct {
	backend.Backend
}

func (b *devicePathFailingBackend) GetDevicePath(context.Context, string) (string, error) {
	return "", errors.New("provider API timeout")
}

func TestDiscoverDevicePathFailureIsNonManifest(t *testing.T) {
	ctx := context.Background()
	b := memory.NewBackend()
	vol, err := b.CreateVolume(ctx, id1, 1<<30)
	require.NoError(t, err)
	_, err = b.AttachVolume(ctx, vol.BlockDeviceID, testNode)
	require.NoError(t, err)

	d := newTestDiscoverer(&devicePathFailingBackend{Backend: b}, backend.NewFakeMounter())
	state, err := d.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, dataset.NonManifest, state.Datasets[id1].State())
}

func TestDiscoverBadDeviceIsNonManifest(t *testing.T) {
	ctx := context.Background()
	b := memory.NewBackend()
	vol, err := b.CreateVolume(ctx, id1, 1<<30)
	require.NoError(t, err)
	_, err = b.AttachVolume(ctx, vol.BlockDeviceID, testNode)
	require.NoError(t, err)

	d := newTestDiscoverer(b, backend.NewFakeMounter())
	d.statDevice = func(path string) error { return errors.New("not a block device") }

	state, err := d.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, dataset.NonManifest, state.Datasets[id1].State())
}

func TestDiscoverMultipleVolumes(t *testing.T) {
	ctx := context.Background()
	b := memory.NewBackend()
	vol1, err := b.CreateVolume(ctx, id1, 1<<30)
	require.NoError(t, err)
	_, err = b.AttachVolume(ctx, vol1.BlockDeviceID, testNode)
	require.NoError(t, err)
	_, err = b.CreateVolume(ctx, id2, 1<<30)
	require.NoError(t, err)

	d := newTestDiscoverer(b, backend.NewFakeMounter())
	state, err := d.Discover(ctx)
	require.NoError(t, err)

	require.Len(t, state.Datasets, 2)
	assert.Equal(t, dataset.Attached, state.Datasets[id1].State())
	assert.Equal(t, dataset.NonManifest, state.Datasets[id2].State())
}

func TestMountPointFor(t *testing.T) {
	assert.Equal(t, "/var/lib/strato/datasets/"+id1.String(), MountPointFor(mountRoot, id1))
}
