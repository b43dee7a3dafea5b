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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/strato-io/strato/pkg/control"
	"github.com/strato-io/strato/pkg/convergence"
	"github.com/strato-io/strato/pkg/dataset"
	"github.com/strato-io/strato/pkg/discovery"
	"github.com/strato-io/strato/pkg/metrics"
	"github.com/strato-io/strato/utils/log"
	"github.com/strato-io/strato/utils/mutx"
)

// LoopState is the convergence loop's scheduling state.
type LoopState string

const (
	// LoopStopped means no iteration is running or scheduled.
	LoopStopped LoopState = "stopped"
	// LoopConverging means an iteration is in flight and the next one
	// will be scheduled when it finishes.
	LoopConverging LoopState = "converging"
	// LoopConvergingStopping means the in-flight iteration finishes but
	// no further one is scheduled.
	LoopConvergingStopping LoopState = "converging-stopping"
)

type inputKind int

const (
	inputStatusUpdate inputKind = iota
	inputStop
	inputIterationDone
)

type statusSnapshot struct {
	client  control.Client
	config  dataset.Configuration
	cluster dataset.ClusterState
}

type loopInput struct {
	kind inputKind
	snap statusSnapshot
}

// ConvergenceLoop drives repeated discover -> plan -> apply cycles. All
// inputs funnel through one channel consumed by a single goroutine, so
// the state machine is never re-entered concurrently and at most one
// iteration pipeline is in flight. A status update arriving mid-iteration
// is buffered as the latest snapshot and picked up by the next planning
// pass; it never interrupts the current one. Stop never cancels an
// in-flight iteration, it only suppresses scheduling of the next.
type ConvergenceLoop struct {
	discoverer *discovery.Discoverer
	calculator *convergence.Calculator
	env        convergence.Env
	locks      *mutx.GlobalLocks
	metrics    *metrics.AgentMetrics

	inputs chan loopInput
	done   chan struct{}

	mu        sync.Mutex
	state     LoopState
	lastLocal dataset.LocalState
	interval  time.Duration
	workers   int

	// owned by the Run goroutine
	latest statusSnapshot
}

// NewConvergenceLoop builds a loop. Metrics may be nil.
func NewConvergenceLoop(d *discovery.Discoverer, env convergence.Env, interval time.Duration, workers int, m *metrics.AgentMetrics) *ConvergenceLoop {
	if workers < 1 {
		workers = 1
	}
	return &ConvergenceLoop{
		discoverer: d,
		calculator: convergence.NewCalculator(),
		env:        env,
		interval:   interval,
		workers:    workers,
		locks:      mutx.NewGlobalLocks(),
		metrics:    m,
		inputs:     make(chan loopInput),
		done:       make(chan struct{}),
		state:      LoopStopped,
	}
}

// StatusUpdate delivers a fresh control-service snapshot. In the stopped
// state this implicitly starts converging.
func (l *ConvergenceLoop) StatusUpdate(client control.Client, config dataset.Configuration, cluster dataset.ClusterState) {
	l.send(loopInput{kind: inputStatusUpdate, snap: statusSnapshot{client: client, config: config, cluster: cluster}})
}

// Stop suppresses scheduling of further iterations. The in-flight
// iteration, if any, runs to completion.
func (l *ConvergenceLoop) Stop() {
	l.send(loopInput{kind: inputStop})
}

// State reports the current scheduling state.
func (l *ConvergenceLoop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// UpdateSettings applies new loop tuning, typically on a configuration
// change event. The interval takes effect at the next inter-cycle
// delay, the worker bound at the next iteration's action batch.
func (l *ConvergenceLoop) UpdateSettings(interval time.Duration, workers int) {
	if workers < 1 {
		workers = 1
	}
	l.mu.Lock()
	l.interval = interval
	l.workers = workers
	l.mu.Unlock()
}

func (l *ConvergenceLoop) currentInterval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

func (l *ConvergenceLoop) currentWorkers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.workers
}

// LatestLocalState returns the most recently discovered snapshot.
func (l *ConvergenceLoop) LatestLocalState() dataset.LocalState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastLocal
}

func (l *ConvergenceLoop) send(in loopInput) {
	select {
	case l.inputs <- in:
	case <-l.done:
	}
}

func (l *ConvergenceLoop) setState(s LoopState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run consumes inputs until ctx is done. It blocks; run it on its own
// goroutine.
func (l *ConvergenceLoop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-l.inputs:
			l.step(ctx, in)
		}
	}
}

func (l *ConvergenceLoop) step(ctx context.Context, in loopInput) {
	switch l.State() {
	case LoopStopped:
		if in.kind == inputStatusUpdate {
			l.latest = in.snap
			l.setState(LoopConverging)
			go l.iterate(ctx, l.latest)
		}
	case LoopConverging:
		switch in.kind {
		case inputStatusUpdate:
			l.latest = in.snap
		case inputStop:
			l.setState(LoopConvergingStopping)
		case inputIterationDone:
			go l.iterate(ctx, l.latest)
		}
	case LoopConvergingStopping:
		switch in.kind {
		case inputStatusUpdate:
			l.latest = in.snap
			l.setState(LoopConverging)
		case inputIterationDone:
			l.setState(LoopStopped)
			log.Info("convergence loop stopped")
		}
	}
}

func (l *ConvergenceLoop) iterate(ctx context.Context, snap statusSnapshot) {
	start := time.Now()
	l.runIteration(ctx, snap)
	if l.metrics != nil {
		l.metrics.IterationsTotal.Inc()
		l.metrics.IterationDuration.Observe(time.Since(start).Seconds())
	}

	t := time.NewTimer(l.currentInterval())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}

	l.send(loopInput{kind: inputIterationDone})
}

func (l *ConvergenceLoop) runIteration(ctx context.Context, snap statusSnapshot) {
	local, err := l.discoverer.Discover(ctx)
	if err != nil {
		log.Errorf("discovery failed, no progress this cycle: %v", err)
		return
	}
	l.mu.Lock()
	l.lastLocal = local
	l.mu.Unlock()

	// Fold the just-observed local facts over the control service's view
	// so stale cluster data cannot mask them when planning.
	cluster := snap.cluster.WithNodeState(local)

	// Fire and forget: a failed report is superseded by the next cycle's.
	if err := snap.client.ReportNodeState(ctx, local); err != nil {
		log.Warnf("node state report failed, superseded next cycle: %v", err)
	}

	actions, err := l.calculator.Calculate(cluster.Nodes[l.env.NodeID].Datasets, snap.config.Datasets)
	if err != nil {
		// A planning failure is a defect, not a per-dataset condition:
		// run nothing this cycle and say so loudly.
		log.Errorf("convergence planning failed, aborting iteration: %v", err)
		return
	}

	l.applyActions(ctx, actions)
}

// applyActions runs the planned actions on a bounded worker pool. One
// dataset's failure never blocks or aborts the others.
func (l *ConvergenceLoop) applyActions(ctx context.Context, actions []convergence.Action) {
	sem := make(chan struct{}, l.currentWorkers())
	var wg sync.WaitGroup

	for _, action := range actions {
		if _, ok := action.(convergence.DoNothing); ok {
			continue
		}
		action := action
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			id := action.DatasetID().String()
			if !l.locks.TryAcquire(id) {
				log.Warnf("dataset %s is busy, skipping %s this cycle", id, action)
				return
			}
			defer l.locks.Release(id)

			if err := action.Run(ctx, l.env); err != nil {
				l.observeAction(action, "failure")
				log.Errorw("convergence action failed",
					"dataset", id, "action", action.String(), "reason", err)
				return
			}
			l.observeAction(action, "success")
			log.Debugf("applied %s", action)
		}()
	}
	wg.Wait()
}

func (l *ConvergenceLoop) observeAction(action convergence.Action, outcome string) {
	if l.metrics == nil {
		return
	}
	name := fmt.Sprintf("%T", action)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	l.metrics.ActionsTotal.WithLabelValues(name, outcome).Inc()
}
