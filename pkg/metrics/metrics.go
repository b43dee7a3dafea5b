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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/strato-io/strato/pkg/dataset"
)

const (
	namespace      = "strato"
	agentSubSystem = "agent"
)

// AgentMetrics holds the convergence loop's instruments. Pass a nil
// registerer to get unregistered instruments for tests.
type AgentMetrics struct {
	IterationsTotal   prometheus.Counter
	IterationDuration prometheus.Histogram
	ActionsTotal      *prometheus.CounterVec
	ConnectionState   prometheus.Gauge
}

// NewAgentMetrics builds and optionally registers the agent instruments.
func NewAgentMetrics(reg prometheus.Registerer, nodeName string) *AgentMetrics {
	constLabels := prometheus.Labels{"nodename": nodeName}

	m := &AgentMetrics{
		IterationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   agentSubSystem,
			Name:        "convergence_iterations_total",
			Help:        "Completed convergence iterations.",
			ConstLabels: constLabels,
		}),
		IterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   agentSubSystem,
			Name:        "convergence_iteration_duration_seconds",
			Help:        "Duration of one discover/plan/apply cycle.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   agentSubSystem,
			Name:        "actions_total",
			Help:        "Convergence actions run, by action type and outcome.",
			ConstLabels: constLabels,
		}, []string{"action", "outcome"}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   agentSubSystem,
			Name:        "control_connection_state",
			Help:        "Control service connection: 0 disconnected, 1 connected, 2 status known.",
			ConstLabels: constLabels,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.IterationsTotal, m.IterationDuration, m.ActionsTotal, m.ConnectionState)
	}
	return m
}

// LocalStateSource supplies the latest discovered snapshot for the
// dataset state collector.
type LocalStateSource func() dataset.LocalState

type datasetStateCollector struct {
	desc   *prometheus.Desc
	source LocalStateSource
}

// NewDatasetStateCollector exposes the number of local datasets per
// discovered state, read from source at scrape time.
func NewDatasetStateCollector(nodeName string, source LocalStateSource) prometheus.Collector {
	return &datasetStateCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, agentSubSystem, "datasets"),
			"Local datasets by discovered state.",
			[]string{"state"},
			prometheus.Labels{"nodename": nodeName},
		),
		source: source,
	}
}

func (c *datasetStateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *datasetStateCollector) Collect(ch chan<- prometheus.Metric) {
	counts := map[dataset.DiscoveredState]int{}
	for _, d := range c.source().Datasets {
		counts[d.State()]++
	}
	for _, state := range []dataset.DiscoveredState{dataset.NonManifest, dataset.Attached, dataset.Mounted} {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[state]), string(state))
	}
}
