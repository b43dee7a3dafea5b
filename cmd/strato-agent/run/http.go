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
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/strato-io/strato/pkg/dataset"
	"github.com/strato-io/strato/pkg/metrics"
)

type datasetStatus struct {
	DatasetID     string `json:"datasetID"`
	State         string `json:"state"`
	BlockDeviceID string `json:"blockDeviceID,omitempty"`
	DevicePath    string `json:"devicePath,omitempty"`
	MountPoint    string `json:"mountPoint,omitempty"`
}

type nodeStatus struct {
	NodeID   string          `json:"nodeID"`
	Hostname string          `json:"hostname"`
	Datasets []datasetStatus `json:"datasets"`
}

type eHttpServer struct {
	e      *echo.Echo
	source metrics.LocalStateSource
}

func newHTTPServer(source metrics.LocalStateSource, registry *prometheus.Registry) *eHttpServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	h := &eHttpServer{e: e, source: source}
	e.GET("/healthz", h.healthz)
	e.GET("/status", h.status)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	return h
}

func (h *eHttpServer) start(addr string) {
	if err := h.e.Start(addr); err != nil && err != http.ErrServerClosed {
		h.e.Logger.Error(err)
	}
}

func (h *eHttpServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.e.Shutdown(ctx)
}

func (h *eHttpServer) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *eHttpServer) status(c echo.Context) error {
	local := h.source()
	resp := nodeStatus{
		NodeID:   local.NodeID,
		Hostname: local.Hostname,
		Datasets: []datasetStatus{},
	}
	for _, d := range local.Datasets {
		resp.Datasets = append(resp.Datasets, describeDataset(d))
	}
	return c.JSON(http.StatusOK, resp)
}

func describeDataset(d dataset.Discovered) datasetStatus {
	ds := datasetStatus{
		DatasetID: d.DatasetID().String(),
		State:     string(d.State()),
	}
	switch v := d.(type) {
	case dataset.DiscoveredAttached:
		ds.BlockDeviceID = v.BlockDeviceID()
		ds.DevicePath = v.DevicePath()
	case dataset.DiscoveredMounted:
		ds.BlockDeviceID = v.BlockDeviceID()
		ds.DevicePath = v.DevicePath()
		ds.MountPoint = v.MountPoint()
	}
	return ds
}
