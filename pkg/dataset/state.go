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

// Volume is a backend-reported block device record. The backend is the
// sole authority for its contents; the convergence core only reads it.
type Volume struct {
	BlockDeviceID string
	DatasetID     ID
	Size          uint64
	// AttachedTo is the node id the volume is attached to, empty when
	// the volume is detached.
	AttachedTo string
}

// IsAttached reports whether the volume is attached anywhere.
func (v Volume) IsAttached() bool {
	return v.AttachedTo != ""
}

// LocalState is one node's freshly discovered view of its datasets. It
// is rebuilt wholesale every convergence cycle, never patched.
//
// NonManifest carries datasets whose volumes are attached to other
// nodes. They are reported to the cluster as non-manifest but excluded
// from this node's planning input in Datasets: this node must not run
// corrective actions against a volume another node holds.
type LocalState struct {
	NodeID      string
	Hostname    string
	Datasets    map[ID]Discovered
	NonManifest []ID
}

// NewLocalState returns an empty snapshot for the given node.
func NewLocalState(nodeID, hostname string) LocalState {
	return LocalState{
		NodeID:   nodeID,
		Hostname: hostname,
		Datasets: map[ID]Discovered{},
	}
}

// Configuration is the cluster-wide desired configuration scoped to this
// node: for every dataset the control service knows about, what this
// node should do with it. Immutable per control-service message.
type Configuration struct {
	Datasets map[ID]Desired
}

// ClusterState is the control service's last known view of dataset
// manifestations across nodes, keyed by node id.
type ClusterState struct {
	Nodes map[string]LocalState
}

// WithNodeState returns a copy of the cluster state with one node's
// entry replaced by a just-discovered snapshot, so stale control-service
// data cannot mask a locally observed fact.
func (cs ClusterState) WithNodeState(local LocalState) ClusterState {
	nodes := make(map[string]LocalState, len(cs.Nodes)+1)
	for k, v := range cs.Nodes {
		nodes[k] = v
	}
	nodes[local.NodeID] = local
	return ClusterState{Nodes: nodes}
}
