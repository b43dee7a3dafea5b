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

package backend

import (
	"context"

	"github.com/strato-io/strato/pkg/dataset"
)

// Backend is the contract every block-storage provider implements. The
// convergence core only ever talks to storage through this interface, so
// providers plug in without touching the reconciliation logic.
//
// Implementations must reject duplicate creates and attaches rather than
// silently duplicating; callers treat those rejections as non-fatal and
// let the next discovery resolve the truth. ListVolumes may be eventually
// consistent; callers tolerate transient staleness.
type Backend interface {
	// CreateVolume provisions a new volume for datasetID. It fails with
	// AlreadyExistsError when a volume for datasetID already exists.
	CreateVolume(ctx context.Context, datasetID dataset.ID, size uint64) (dataset.Volume, error)

	// AttachVolume attaches a volume to a node. It fails with
	// UnknownVolumeError for an unrecognized volume and with
	// AlreadyAttachedError when the volume is attached anywhere.
	AttachVolume(ctx context.Context, blockDeviceID, nodeID string) (dataset.Volume, error)

	// DetachVolume detaches a volume from whichever node holds it. It
	// fails with UnknownVolumeError or UnattachedVolumeError.
	DetachVolume(ctx context.Context, blockDeviceID string) error

	// DestroyVolume removes a volume permanently. It fails with
	// UnknownVolumeError when the volume is already gone.
	DestroyVolume(ctx context.Context, blockDeviceID string) error

	// ListVolumes returns every volume this backend knows about.
	ListVolumes(ctx context.Context) ([]dataset.Volume, error)

	// GetDevicePath returns the OS device path of an attached volume.
	// It fails with UnattachedVolumeError when the volume is not
	// attached. Once attached, the returned path must be a real,
	// stat-able block device.
	GetDevicePath(ctx context.Context, blockDeviceID string) (string, error)
}
