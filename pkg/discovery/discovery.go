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

package discovery

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/strato-io/strato/pkg/backend"
	"github.com/strato-io/strato/pkg/dataset"
	"github.com/strato-io/strato/utils/log"
)

// Discoverer inspects the backend and the local mount table and produces
// a fresh per-dataset state snapshot. The backend's volume list is
// re-read on every call; nothing is cached across cycles, so concurrent
// external mutation (other agents, operator action) is picked up within
// one cycle.
type Discoverer struct {
	backend   backend.Backend
	mounter   backend.Mounter
	nodeID    string
	hostname  string
	mountRoot string

	// statDevice validates that a reported device path is a real block
	// device. Overridable for tests.
	statDevice func(path string) error
}

// NewDiscoverer returns a discoverer for this node.
func NewDiscoverer(b backend.Backend, m backend.Mounter, nodeID, hostname, mountRoot string) *Discoverer {
	return &Discoverer{
		backend:    b,
		mounter:    m,
		nodeID:     nodeID,
		hostname:   hostname,
		mountRoot:  mountRoot,
		statDevice: statBlockDevice,
	}
}

// NewDiscovererWithDeviceStat is NewDiscoverer with the block-device
// presence check replaced. Backends with synthetic device paths, such
// as the in-memory one, need this.
func NewDiscovererWithDeviceStat(b backend.Backend, m backend.Mounter, nodeID, hostname, mountRoot string, stat func(path string) error) *Discoverer {
	d := NewDiscoverer(b, m, nodeID, hostname, mountRoot)
	d.statDevice = stat
	return d
}

// MountPointFor is the canonical mount point of a dataset under the
// configured mount root.
func MountPointFor(mountRoot string, id dataset.ID) string {
	return filepath.Join(mountRoot, id.String())
}

// Discover builds this node's local state. Volumes attached to other
// nodes are carried on the report-only non-manifest list instead of the
// dataset map; a volume attached here whose device cannot be
// resolved or is not a real block device is reported non-manifest with a
// diagnostic log, never as a failure of the whole discovery.
func (d *Discoverer) Discover(ctx context.Context) (dataset.LocalState, error) {
	state := dataset.NewLocalState(d.nodeID, d.hostname)

	volumes, err := d.backend.ListVolumes(ctx)
	if err != nil {
		return dataset.LocalState{}, fmt.Errorf("list volumes: %w", err)
	}

	mounts, err := d.mounter.List()
	if err != nil {
		return dataset.LocalState{}, fmt.Errorf("list mounts: %w", err)
	}

	for _, vol := range volumes {
		if vol.AttachedTo != "" && vol.AttachedTo != d.nodeID {
			// Realized elsewhere: no local planning input, but the report
			// still surfaces the dataset to the cluster as non-manifest.
			state.NonManifest = append(state.NonManifest, vol.DatasetID)
			continue
		}

		discovered, err := d.classify(ctx, vol, mounts)
		if err != nil {
			return dataset.LocalState{}, err
		}
		state.Datasets[vol.DatasetID] = discovered
	}
	return state, nil
}

func (d *Discoverer) classify(ctx context.Context, vol dataset.Volume, mounts []backend.MountPoint) (dataset.Discovered, error) {
	if !vol.IsAttached() {
		return dataset.NewDiscoveredNonManifest(vol.DatasetID)
	}

	devicePath, err := d.backend.GetDevicePath(ctx, vol.BlockDeviceID)
	if err != nil {
		log.Errorw("device path lookup failed, reporting dataset non-manifest",
			"dataset", vol.DatasetID, "blockdevice", vol.BlockDeviceID, "reason", err)
		return dataset.NewDiscoveredNonManifest(vol.DatasetID)
	}
	if err := d.statDevice(devicePath); err != nil {
		log.Errorw("device path is not a usable block device, reporting dataset non-manifest",
			"dataset", vol.DatasetID, "blockdevice", vol.BlockDeviceID, "device", devicePath, "reason", err)
		return dataset.NewDiscoveredNonManifest(vol.DatasetID)
	}

	canonical := MountPointFor(d.mountRoot, vol.DatasetID)
	for _, mp := range mounts {
		if mp.Device != devicePath {
			continue
		}
		if mp.Path == canonical {
			return dataset.NewDiscoveredMounted(vol.DatasetID, vol.BlockDeviceID, vol.Size, devicePath, canonical)
		}
		log.Warnf("dataset %s device %s is mounted at %s, want %s; reporting attached",
			vol.DatasetID, devicePath, mp.Path, canonical)
	}
	return dataset.NewDiscoveredAttached(vol.DatasetID, vol.BlockDeviceID, vol.Size, devicePath)
}

func statBlockDevice(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFBLK {
		return fmt.Errorf("%s is not a block device", path)
	}
	return nil
}
