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

package run

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/strato-io/strato/pkg/agent"
	"github.com/strato-io/strato/pkg/backend"
	_ "github.com/strato-io/strato/pkg/backend/memory"
	"github.com/strato-io/strato/pkg/configuration"
	"github.com/strato-io/strato/pkg/convergence"
	"github.com/strato-io/strato/pkg/discovery"
	"github.com/strato-io/strato/pkg/metrics"
	"github.com/strato-io/strato/utils/log"
)

func subMain() error {
	if err := configuration.Load(config.configPath); err != nil {
		return err
	}

	log.Init(configuration.LogFile(), configuration.LogLevel())
	defer log.Sync()

	nodeName := configuration.NodeName()
	if nodeName == "" {
		return errors.New("node name could not be determined")
	}
	hostname, err := os.Hostname()
	if err != nil {
		return err
	}

	backendName := configuration.Backend()
	if config.devBackend {
		backendName = "memory"
	}
	b, err := backend.New(backendName)
	if err != nil {
		return err
	}
	log.Infof("using backend %s", backendName)

	var mounter backend.Mounter
	var discoverer *discovery.Discoverer
	if backendName == "memory" {
		// The in-memory backend hands out device paths that are not real
		// block nodes; pair it with an in-memory mount table and skip
		// the device stat.
		m := backend.NewFakeMounter()
		mounter = m
		discoverer = discovery.NewDiscovererWithDeviceStat(b, m, nodeName, hostname,
			configuration.MountRoot(), func(string) error { return nil })
	} else {
		mounter = backend.NewMounter()
		discoverer = discovery.NewDiscoverer(b, mounter, nodeName, hostname, configuration.MountRoot())
	}

	registry := prometheus.NewRegistry()
	agentMetrics := metrics.NewAgentMetrics(registry, nodeName)

	env := convergence.Env{
		Backend: b,
		Mounter: mounter,
		NodeID:  nodeName,
		FSType:  configuration.FSType(),
	}
	loop := agent.NewConvergenceLoop(discoverer, env,
		configuration.ConvergenceInterval(), configuration.ActionWorkers(), agentMetrics)
	registry.MustRegister(metrics.NewDatasetStateCollector(nodeName, loop.LatestLocalState))

	configChanged := make(chan struct{}, 1)
	configuration.RegisterListenerChan(configChanged)
	go func() {
		for range configChanged {
			interval, workers := configuration.ConvergenceInterval(), configuration.ActionWorkers()
			loop.UpdateSettings(interval, workers)
			log.Infof("applied configuration change: convergenceInterval=%s actionWorkers=%d", interval, workers)
		}
	}()

	service := agent.NewAgentLoopService(configuration.ControlServiceURL(), loop, agentMetrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := newHTTPServer(loop.LatestLocalState, registry)
	go httpServer.start(configuration.HTTPAddr())
	defer httpServer.shutdown()

	log.Infof("connecting to control service at %s", configuration.ControlServiceURL())
	service.Run(ctx)
	log.Info("agent stopped")
	return nil
}
