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

package convergence

import (
	"context"
	"fmt"

	strato "github.com/strato-io/strato"
	"github.com/strato-io/strato/pkg/backend"
	"github.com/strato-io/strato/pkg/dataset"
)

// Env carries the collaborators an action needs to run. Actions hold no
// references of their own so a planned set stays inert until applied.
type Env struct {
	Backend backend.Backend
	Mounter backend.Mounter
	NodeID  string
	FSType  string
}

func (e Env) fsType() string {
	if e.FSType == "" {
		return "ext4"
	}
	return e.FSType
}

// Action is one self-contained unit of convergence work for a single
// dataset. Actions carry no retry logic: safety comes from re-planning
// against fresh discovery on the next cycle, so every action must be
// effectively idempotent at the backend contract level.
type Action interface {
	DatasetID() dataset.ID
	Run(ctx context.Context, env Env) error
	String() string
}

// CreateVolume provisions a backing volume for a dataset.
type CreateVolume struct {
	datasetID dataset.ID
	size      uint64
}

// NewCreateVolume builds a create action sized from the desired
// configuration, falling back to the default dataset size.
func NewCreateVolume(desired dataset.Desired) CreateVolume {
	size := desired.MaximumSize()
	if size == 0 {
		size = strato.DefaultDatasetSize
	}
	return CreateVolume{datasetID: desired.DatasetID(), size: size}
}

func (a CreateVolume) DatasetID() dataset.ID { return a.datasetID }

func (a CreateVolume) Run(ctx context.Context, env Env) error {
	_, err := env.Backend.CreateVolume(ctx, a.datasetID, a.size)
	return err
}

func (a CreateVolume) String() string {
	return fmt.Sprintf("CreateVolume(%s, size=%d)", a.datasetID, a.size)
}

// AttachVolume attaches an existing, unattached volume to this node.
// The backing block device id is resolved at run time because the
// non-manifest discovered state carries none.
type AttachVolume struct {
	datasetID dataset.ID
}

func NewAttachVolume(desired dataset.Desired) AttachVolume {
	return AttachVolume{datasetID: desired.DatasetID()}
}

func (a AttachVolume) DatasetID() dataset.ID { return a.datasetID }

func (a AttachVolume) Run(ctx context.Context, env Env) error {
	vol, err := findVolume(ctx, env.Backend, a.datasetID)
	if err != nil {
		return err
	}
	_, err = env.Backend.AttachVolume(ctx, vol.BlockDeviceID, env.NodeID)
	return err
}

func (a AttachVolume) String() string {
	return fmt.Sprintf("AttachVolume(%s)", a.datasetID)
}

// MountDataset mounts an attached volume at the desired mount point,
// formatting it on first use. The device path is re-resolved through the
// backend immediately before mounting.
type MountDataset struct {
	datasetID     dataset.ID
	blockDeviceID string
	devicePath    string
	mountPoint    string
}

func NewMountDataset(discovered dataset.DiscoveredAttached, desired dataset.Desired) MountDataset {
	return MountDataset{
		datasetID:     discovered.DatasetID(),
		blockDeviceID: discovered.BlockDeviceID(),
		devicePath:    discovered.DevicePath(),
		mountPoint:    desired.MountPoint(),
	}
}

func (a MountDataset) DatasetID() dataset.ID { return a.datasetID }
func (a MountDataset) DevicePath() string    { return a.devicePath }
func (a MountDataset) MountPoint() string    { return a.mountPoint }

func (a MountDataset) Run(ctx context.Context, env Env) error {
	devicePath, err := env.Backend.GetDevicePath(ctx, a.blockDeviceID)
	if err != nil {
		return err
	}
	return env.Mounter.MountDevice(devicePath, a.mountPoint, env.fsType())
}

func (a MountDataset) String() string {
	return fmt.Sprintf("MountDataset(%s, %s -> %s)", a.datasetID, a.devicePath, a.mountPoint)
}

// UnmountDataset removes the dataset's filesystem mount.
type UnmountDataset struct {
	datasetID  dataset.ID
	mountPoint string
}

func NewUnmountDataset(discovered dataset.DiscoveredMounted) UnmountDataset {
	return UnmountDataset{
		datasetID:  discovered.DatasetID(),
		mountPoint: discovered.MountPoint(),
	}
}

func (a UnmountDataset) DatasetID() dataset.ID { return a.datasetID }
func (a UnmountDataset) MountPoint() string    { return a.mountPoint }

func (a UnmountDataset) Run(ctx context.Context, env Env) error {
	return env.Mounter.Unmount(a.mountPoint)
}

func (a UnmountDataset) String() string {
	return fmt.Sprintf("UnmountDataset(%s, %s)", a.datasetID, a.mountPoint)
}

// DetachVolume releases an attached volume so another node can take it.
type DetachVolume struct {
	datasetID     dataset.ID
	blockDeviceID string
}

func NewDetachVolume(discovered dataset.DiscoveredAttached) DetachVolume {
	return DetachVolume{
		datasetID:     discovered.DatasetID(),
		blockDeviceID: discovered.BlockDeviceID(),
	}
}

func (a DetachVolume) DatasetID() dataset.ID { return a.datasetID }

func (a DetachVolume) Run(ctx context.Context, env Env) error {
	return env.Backend.DetachVolume(ctx, a.blockDeviceID)
}

func (a DetachVolume) String() string {
	return fmt.Sprintf("DetachVolume(%s, %s)", a.datasetID, a.blockDeviceID)
}

// DestroyVolume deletes a dataset's backing volume. The block device id
// is always resolved through the backend at run time, since discovery
// may have planned this from the non-manifest state which carries none;
// a volume still attached to this node is detached first.
type DestroyVolume struct {
	datasetID dataset.ID
}

func NewDestroyVolume(datasetID dataset.ID) DestroyVolume {
	return DestroyVolume{datasetID: datasetID}
}

func (a DestroyVolume) DatasetID() dataset.ID { return a.datasetID }

func (a DestroyVolume) Run(ctx context.Context, env Env) error {
	vol, err := findVolume(ctx, env.Backend, a.datasetID)
	if err != nil {
		return err
	}
	if vol.AttachedTo == env.NodeID {
		if err := env.Backend.DetachVolume(ctx, vol.BlockDeviceID); err != nil {
			return err
		}
	}
	return env.Backend.DestroyVolume(ctx, vol.BlockDeviceID)
}

func (a DestroyVolume) String() string {
	return fmt.Sprintf("DestroyVolume(%s)", a.datasetID)
}

// DoNothing is the planned no-op for a converged dataset.
type DoNothing struct {
	datasetID dataset.ID
}

func NewDoNothing(datasetID dataset.ID) DoNothing {
	return DoNothing{datasetID: datasetID}
}

func (a DoNothing) DatasetID() dataset.ID { return a.datasetID }

func (a DoNothing) Run(ctx context.Context, env Env) error {
	return nil
}

func (a DoNothing) String() string {
	return fmt.Sprintf("DoNothing(%s)", a.datasetID)
}

func findVolume(ctx context.Context, b backend.Backend, id dataset.ID) (dataset.Volume, error) {
	volumes, err := b.ListVolumes(ctx)
	if err != nil {
		return dataset.Volume{}, err
	}
	for _, vol := range volumes {
		if vol.DatasetID == id {
			return vol, nil
		}
	}
	return dataset.Volume{}, fmt.Errorf("no volume found for dataset %s", id)
}
