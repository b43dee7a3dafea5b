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
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/strato-io/strato/pkg/dataset"
)

// Client is the narrow surface the convergence loop uses to talk back to
// the control service.
type Client interface {
	// ReportNodeState pushes a freshly discovered local-state snapshot.
	// Callers treat a failure as superseded by the next cycle's report;
	// it is never retried synchronously.
	ReportNodeState(ctx context.Context, local dataset.LocalState) error

	// Close severs the connection.
	Close() error
}

// Handler receives connection lifecycle and cluster status inputs.
// The dialer guarantees the calls arrive from a single goroutine in
// arrival order.
type Handler interface {
	Connected(client Client)
	StatusUpdate(config dataset.Configuration, state dataset.ClusterState)
	Disconnected()
}

const writeTimeout = 10 * time.Second

// wsClient is a Client over one live websocket connection. Writes are
// serialized; gorilla/websocket allows one concurrent writer only.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn}
}

func (c *wsClient) ReportNodeState(ctx context.Context, local dataset.LocalState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(EncodeNodeState(local))
}

func (c *wsClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
