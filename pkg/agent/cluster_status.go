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
	"sync"

	"github.com/strato-io/strato/pkg/control"
	"github.com/strato-io/strato/pkg/dataset"
	"github.com/strato-io/strato/pkg/metrics"
	"github.com/strato-io/strato/utils/log"
)

// StatusState is the control-channel connectivity state.
type StatusState string

const (
	// StatusDisconnected means no control connection exists.
	StatusDisconnected StatusState = "disconnected"
	// StatusIgnorant means a connection exists but no cluster status has
	// arrived on it yet.
	StatusIgnorant StatusState = "ignorant"
	// StatusKnowledgeable means the connection has delivered at least one
	// cluster status and the convergence loop is running.
	StatusKnowledgeable StatusState = "knowledgeable"
	// StatusShutdown is terminal. All further inputs are absorbed.
	StatusShutdown StatusState = "shutdown"
)

// ClusterStatus tracks control-service connectivity so the convergence
// loop never has to. The loop only ever learns "here is a fresh status
// on this client" or "stop"; everything about connections dropping and
// returning stays here. Inputs are serialized by a mutex; the dialer
// already delivers them from one goroutine, Shutdown may race from
// another.
type ClusterStatus struct {
	mu      sync.Mutex
	state   StatusState
	client  control.Client
	loop    *ConvergenceLoop
	metrics *metrics.AgentMetrics
}

var _ control.Handler = &ClusterStatus{}

// NewClusterStatus builds the machine in the disconnected state.
// Metrics may be nil.
func NewClusterStatus(loop *ConvergenceLoop, m *metrics.AgentMetrics) *ClusterStatus {
	return &ClusterStatus{state: StatusDisconnected, loop: loop, metrics: m}
}

// State reports the current connectivity state.
func (c *ClusterStatus) State() StatusState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected records a fresh control connection.
func (c *ClusterStatus) Connected(client control.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StatusDisconnected:
		c.client = client
		c.setState(StatusIgnorant)
	case StatusShutdown:
		// Terminal: absorb, but do not leak the socket.
		if err := client.Close(); err != nil {
			log.Warnf("closing control connection after shutdown: %v", err)
		}
	default:
		log.Warnf("unexpected control connection while %s, ignoring", c.state)
	}
}

// StatusUpdate forwards a cluster status to the convergence loop.
func (c *ClusterStatus) StatusUpdate(config dataset.Configuration, state dataset.ClusterState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StatusIgnorant:
		c.setState(StatusKnowledgeable)
		c.loop.StatusUpdate(c.client, config, state)
	case StatusKnowledgeable:
		c.loop.StatusUpdate(c.client, config, state)
	default:
		// A status with no live connection to act on is stale; drop it.
	}
}

// Disconnected records the loss of the control connection. If the loop
// was running it is told to stop so it does not keep acting on a view
// of the cluster that can no longer be refreshed.
func (c *ClusterStatus) Disconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StatusIgnorant:
		c.client = nil
		c.setState(StatusDisconnected)
	case StatusKnowledgeable:
		c.loop.Stop()
		c.client = nil
		c.setState(StatusDisconnected)
	}
}

// Shutdown moves to the terminal state, stopping the loop and closing
// the control connection if either is live.
func (c *ClusterStatus) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StatusDisconnected:
		c.setState(StatusShutdown)
	case StatusIgnorant:
		c.closeClient()
		c.setState(StatusShutdown)
	case StatusKnowledgeable:
		c.loop.Stop()
		c.closeClient()
		c.setState(StatusShutdown)
	}
}

func (c *ClusterStatus) closeClient() {
	if c.client == nil {
		return
	}
	if err := c.client.Close(); err != nil {
		log.Warnf("closing control connection: %v", err)
	}
	c.client = nil
}

func (c *ClusterStatus) setState(s StatusState) {
	c.state = s
	if c.metrics != nil {
		c.metrics.ConnectionState.Set(connectionGaugeValue(s))
	}
}

func connectionGaugeValue(s StatusState) float64 {
	switch s {
	case StatusIgnorant:
		return 1
	case StatusKnowledgeable:
		return 2
	default:
		return 0
	}
}
