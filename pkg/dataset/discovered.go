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

package dataset

import "fmt"

// DiscoveredState classifies what discovery observed for one dataset on
// this node.
type DiscoveredState string

const (
	// NonExistent means no backing volume exists anywhere.
	NonExistent DiscoveredState = "non-existent"
	// NonManifest means a backing volume exists but is not attached to
	// this node (or its device could not be resolved).
	NonManifest DiscoveredState = "non-manifest"
	// Attached means the volume is attached here with a usable device
	// but no filesystem is mounted at the dataset's canonical mount point.
	Attached DiscoveredState = "attached"
	// Mounted means the volume is attached here and mounted exactly at
	// the canonical mount point.
	Mounted DiscoveredState = "mounted"
)

// Discovered is the observed state of one dataset. Each state is its own
// variant carrying only the attributes valid for that state, so an
// attribute/state mismatch cannot be constructed.
type Discovered interface {
	DatasetID() ID
	State() DiscoveredState

	discovered()
}

// DiscoveredNonExistent reports a dataset with no backing volume.
type DiscoveredNonExistent struct {
	id ID
}

// DiscoveredNonManifest reports a backing volume not realized on this node.
type DiscoveredNonManifest struct {
	id ID
}

// DiscoveredAttached reports a volume attached here but not mounted.
type DiscoveredAttached struct {
	id            ID
	blockDeviceID string
	maximumSize   uint64
	devicePath    string
}

// DiscoveredMounted reports a volume attached here and mounted at the
// dataset's canonical mount point.
type DiscoveredMounted struct {
	id            ID
	blockDeviceID string
	maximumSize   uint64
	devicePath    string
	mountPoint    string
}

// NewDiscoveredNonExistent constructs the NON_EXISTENT variant.
func NewDiscoveredNonExistent(id ID) (DiscoveredNonExistent, error) {
	if id == "" {
		return DiscoveredNonExistent{}, fmt.Errorf("dataset id is required")
	}
	return DiscoveredNonExistent{id: id}, nil
}

// NewDiscoveredNonManifest constructs the NON_MANIFEST variant.
func NewDiscoveredNonManifest(id ID) (DiscoveredNonManifest, error) {
	if id == "" {
		return DiscoveredNonManifest{}, fmt.Errorf("dataset id is required")
	}
	return DiscoveredNonManifest{id: id}, nil
}

// NewDiscoveredAttached constructs the ATTACHED variant.
func NewDiscoveredAttached(id ID, blockDeviceID string, maximumSize uint64, devicePath string) (DiscoveredAttached, error) {
	if id == "" {
		return DiscoveredAttached{}, fmt.Errorf("dataset id is required")
	}
	if blockDeviceID == "" {
		return DiscoveredAttached{}, fmt.Errorf("dataset %s: block device id is required for attached state", id)
	}
	if devicePath == "" {
		return DiscoveredAttached{}, fmt.Errorf("dataset %s: device path is required for attached state", id)
	}
	return DiscoveredAttached{
		id:            id,
		blockDeviceID: blockDeviceID,
		maximumSize:   maximumSize,
		devicePath:    devicePath,
	}, nil
}

// NewDiscoveredMounted constructs the MOUNTED variant.
func NewDiscoveredMounted(id ID, blockDeviceID string, maximumSize uint64, devicePath, mountPoint string) (DiscoveredMounted, error) {
	if id == "" {
		return DiscoveredMounted{}, fmt.Errorf("dataset id is required")
	}
	if blockDeviceID == "" {
		return DiscoveredMounted{}, fmt.Errorf("dataset %s: block device id is required for mounted state", id)
	}
	if devicePath == "" {
		return DiscoveredMounted{}, fmt.Errorf("dataset %s: device path is required for mounted state", id)
	}
	if mountPoint == "" {
		return DiscoveredMounted{}, fmt.Errorf("dataset %s: mount point is required for mounted state", id)
	}
	return DiscoveredMounted{
		id:            id,
		blockDeviceID: blockDeviceID,
		maximumSize:   maximumSize,
		devicePath:    devicePath,
		mountPoint:    mountPoint,
	}, nil
}

func (d DiscoveredNonExistent) DatasetID() ID          { return d.id }
func (d DiscoveredNonExistent) State() DiscoveredState { return NonExistent }
func (d DiscoveredNonExistent) discovered()            {}

func (d DiscoveredNonManifest) DatasetID() ID          { return d.id }
func (d DiscoveredNonManifest) State() DiscoveredState { return NonManifest }
func (d DiscoveredNonManifest) discovered()            {}

func (d DiscoveredAttached) DatasetID() ID          { return d.id }
func (d DiscoveredAttached) State() DiscoveredState { return Attached }
func (d DiscoveredAttached) BlockDeviceID() string  { return d.blockDeviceID }
func (d DiscoveredAttached) MaximumSize() uint64    { return d.maximumSize }
func (d DiscoveredAttached) DevicePath() string     { return d.devicePath }
func (d DiscoveredAttached) discovered()            {}

func (d DiscoveredMounted) DatasetID() ID          { return d.id }
func (d DiscoveredMounted) State() DiscoveredState { return Mounted }
func (d DiscoveredMounted) BlockDeviceID() string  { return d.blockDeviceID }
func (d DiscoveredMounted) MaximumSize() uint64    { return d.maximumSize }
func (d DiscoveredMounted) DevicePath() string     { return d.devicePath }
func (d DiscoveredMounted) MountPoint() string     { return d.mountPoint }
func (d DiscoveredMounted) discovered()            {}
