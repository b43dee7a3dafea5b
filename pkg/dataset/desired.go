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

// DesiredState is what the cluster configuration wants for a dataset on
// this node.
type DesiredState string

const (
	// DesiredMounted wants the dataset realized and mounted here.
	DesiredMounted DesiredState = "mounted"
	// DesiredNotMounted wants the volume to exist but stay unmounted.
	DesiredNotMounted DesiredState = "not-mounted"
	// DesiredDeleted wants the dataset and its volume gone.
	DesiredDeleted DesiredState = "deleted"
	// DesiredNonManifest wants the dataset realized on some other node.
	DesiredNonManifest DesiredState = "non-manifest"
)

// Desired is the configured target state of one dataset. Construct via
// the per-state constructors; a mount point is carried only by the
// mounted state.
type Desired struct {
	id          ID
	state       DesiredState
	metadata    map[string]string
	mountPoint  string
	maximumSize uint64
}

// NewDesiredMounted wants the dataset mounted at mountPoint.
func NewDesiredMounted(id ID, mountPoint string, maximumSize uint64, metadata map[string]string) (Desired, error) {
	if id == "" {
		return Desired{}, fmt.Errorf("dataset id is required")
	}
	if mountPoint == "" {
		return Desired{}, fmt.Errorf("dataset %s: mount point is required for desired mounted state", id)
	}
	return Desired{
		id:          id,
		state:       DesiredMounted,
		metadata:    copyMetadata(metadata),
		mountPoint:  mountPoint,
		maximumSize: maximumSize,
	}, nil
}

// NewDesiredNotMounted wants the backing volume present but unmounted.
func NewDesiredNotMounted(id ID, maximumSize uint64, metadata map[string]string) (Desired, error) {
	if id == "" {
		return Desired{}, fmt.Errorf("dataset id is required")
	}
	return Desired{
		id:          id,
		state:       DesiredNotMounted,
		metadata:    copyMetadata(metadata),
		maximumSize: maximumSize,
	}, nil
}

// NewDesiredDeleted wants the dataset destroyed.
func NewDesiredDeleted(id ID, metadata map[string]string) (Desired, error) {
	if id == "" {
		return Desired{}, fmt.Errorf("dataset id is required")
	}
	return Desired{
		id:       id,
		state:    DesiredDeleted,
		metadata: copyMetadata(metadata),
	}, nil
}

// NewDesiredNonManifest wants the dataset kept off this node.
func NewDesiredNonManifest(id ID, metadata map[string]string) (Desired, error) {
	if id == "" {
		return Desired{}, fmt.Errorf("dataset id is required")
	}
	return Desired{
		id:       id,
		state:    DesiredNonManifest,
		metadata: copyMetadata(metadata),
	}, nil
}

func (d Desired) DatasetID() ID               { return d.id }
func (d Desired) State() DesiredState         { return d.state }
func (d Desired) MountPoint() string          { return d.mountPoint }
func (d Desired) MaximumSize() uint64         { return d.maximumSize }
func (d Desired) Metadata() map[string]string { return copyMetadata(d.metadata) }

func copyMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
