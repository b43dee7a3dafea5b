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

	"github.com/strato-io/strato/pkg/control"
	"github.com/strato-io/strato/pkg/dataset"
	"github.com/strato-io/strato/pkg/metrics"
)

// AgentLoopService ties the convergence loop, the connectivity machine
// and the control dialer into one runnable unit.
type AgentLoopService struct {
	loop   *ConvergenceLoop
	status *ClusterStatus
	dialer *control.Dialer
}

// NewAgentLoopService wires a service around an already built loop.
func NewAgentLoopService(controlURL string, loop *ConvergenceLoop, m *metrics.AgentMetrics) *AgentLoopService {
	status := NewClusterStatus(loop, m)
	return &AgentLoopService{
		loop:   loop,
		status: status,
		dialer: control.NewDialer(controlURL, status),
	}
}

// Run blocks until ctx is done, then drives the connectivity machine to
// its terminal state. In-flight convergence work finishes on its own.
func (s *AgentLoopService) Run(ctx context.Context) {
	go s.loop.Run(ctx)
	s.dialer.Run(ctx)
	s.status.Shutdown()
}

// LatestLocalState exposes the most recent discovery snapshot for the
// status endpoint and the dataset-state collector.
func (s *AgentLoopService) LatestLocalState() dataset.LocalState {
	return s.loop.LatestLocalState()
}
