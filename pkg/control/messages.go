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

package control

import (
	"fmt"

	"github.com/strato-io/strato/pkg/dataset"
)

const (
	// MessageTypeClusterStatus is the inbound desired-configuration message.
	MessageTypeClusterStatus = "cluster-status"
	// MessageTypeNodeState is the outbound local-state report.
	MessageTypeNodeState = "node-state"
)

// DatasetStateWire is the wire form of one discovered dataset. The state
// field discriminates which of the optional attributes are present.
type DatasetStateWire struct {
	DatasetID     string `json:"dataset_id"`
	State         string `json:"state"`
	BlockDeviceID string `json:"blockdevice_id,omitempty"`
	MaximumSize   uint64 `json:"maximum_size,omitempty"`
	DevicePath    string `json:"device_path,omitempty"`
	MountPoint    string `json:"mount_point,omitempty"`
}

// DesiredDatasetWire is the wire form of one desired dataset.
type DesiredDatasetWire struct {
	DatasetID   string            `json:"dataset_id"`
	State       string            `json:"state"`
	MountPoint  string            `json:"mount_point,omitempty"`
	MaximumSize uint64            `json:"maximum_size,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ClusterStatusMessage carries the cluster-wide desired configuration
// for this node plus the control service's last known cluster state.
// Each message entirely supersedes the previous one.
type ClusterStatusMessage struct {
	Type          string                        `json:"type"`
	Configuration []DesiredDatasetWire          `json:"configuration"`
	ClusterState  map[string][]DatasetStateWire `json:"cluster_state,omitempty"`
}

// NodeStateMessage reports one node's freshly discovered local state.
type NodeStateMessage struct {
	Type     string             `json:"type"`
	NodeID   string             `json:"node_id"`
	Hostname string             `json:"hostname"`
	Datasets []DatasetStateWire `json:"datasets"`
}

// EncodeNodeState maps a local-state snapshot to its wire form.
func EncodeNodeState(local dataset.LocalState) NodeStateMessage {
	msg := NodeStateMessage{
		Type:     MessageTypeNodeState,
		NodeID:   local.NodeID,
		Hostname: local.Hostname,
		Datasets: make([]DatasetStateWire, 0, len(local.Datasets)),
	}
	for _, d := range local.Datasets {
		msg.Datasets = append(msg.Datasets, encodeDiscovered(d))
	}
	// Datasets realized on other nodes are not planning input here, but
	// the cluster still learns of them as non-manifest.
	for _, id := range local.NonManifest {
		msg.Datasets = append(msg.Datasets, DatasetStateWire{
			DatasetID: id.String(),
			State:     string(dataset.NonManifest),
		})
	}
	return msg
}

func encodeDiscovered(d dataset.Discovered) DatasetStateWire {
	wire := DatasetStateWire{
		DatasetID: d.DatasetID().String(),
		State:     string(d.State()),
	}
	switch v := d.(type) {
	case dataset.DiscoveredAttached:
		wire.BlockDeviceID = v.BlockDeviceID()
		wire.MaximumSize = v.MaximumSize()
		wire.DevicePath = v.DevicePath()
	case dataset.DiscoveredMounted:
		wire.BlockDeviceID = v.BlockDeviceID()
		wire.MaximumSize = v.MaximumSize()
		wire.DevicePath = v.DevicePath()
		wire.MountPoint = v.MountPoint()
	}
	return wire
}

// DecodeClusterStatus maps a cluster-status message to the model types,
// validating every dataset entry.
func DecodeClusterStatus(msg ClusterStatusMessage) (dataset.Configuration, dataset.ClusterState, error) {
	config := dataset.Configuration{Datasets: map[dataset.ID]dataset.Desired{}}
	for _, entry := range msg.Configuration {
		desired, err := decodeDesired(entry)
		if err != nil {
			return dataset.Configuration{}, dataset.ClusterState{}, err
		}
		config.Datasets[desired.DatasetID()] = desired
	}

	cluster := dataset.ClusterState{Nodes: map[string]dataset.LocalState{}}
	for nodeID, entries := range msg.ClusterState {
		local := dataset.NewLocalState(nodeID, "")
		for _, entry := range entries {
			discovered, err := decodeDiscovered(entry)
			if err != nil {
				return dataset.Configuration{}, dataset.ClusterState{}, err
			}
			local.Datasets[discovered.DatasetID()] = discovered
		}
		cluster.Nodes[nodeID] = local
	}
	return config, cluster, nil
}

func decodeDesired(wire DesiredDatasetWire) (dataset.Desired, error) {
	id, err := dataset.ParseID(wire.DatasetID)
	if err != nil {
		return dataset.Desired{}, err
	}
	switch dataset.DesiredState(wire.State) {
	case dataset.DesiredMounted:
		return dataset.NewDesiredMounted(id, wire.MountPoint, wire.MaximumSize, wire.Metadata)
	case dataset.DesiredNotMounted:
		return dataset.NewDesiredNotMounted(id, wire.MaximumSize, wire.Metadata)
	case dataset.DesiredDeleted:
		return dataset.NewDesiredDeleted(id, wire.Metadata)
	case dataset.DesiredNonManifest:
		return dataset.NewDesiredNonManifest(id, wire.Metadata)
	}
	return dataset.Desired{}, fmt.Errorf("dataset %s: unknown desired state %q", wire.DatasetID, wire.State)
}

func decodeDiscovered(wire DatasetStateWire) (dataset.Discovered, error) {
	id, err := dataset.ParseID(wire.DatasetID)
	if err != nil {
		return nil, err
	}
	switch dataset.DiscoveredState(wire.State) {
	case dataset.NonExistent:
		return dataset.NewDiscoveredNonExistent(id)
	case dataset.NonManifest:
		return dataset.NewDiscoveredNonManifest(id)
	case dataset.Attached:
		return dataset.NewDiscoveredAttached(id, wire.BlockDeviceID, wire.MaximumSize, wire.DevicePath)
	case dataset.Mounted:
		return dataset.NewDiscoveredMounted(id, wire.BlockDeviceID, wire.MaximumSize, wire.DevicePath, wire.MountPoint)
	}
	return nil, fmt.Errorf("dataset %s: unknown discovered state %q", wire.DatasetID, wire.State)
}
