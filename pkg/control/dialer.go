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
	"time"

	"github.com/gorilla/websocket"

	"github.com/strato-io/strato/utils/log"
)

const (
	defaultRedialDelay = 2 * time.Second
	maxRedialDelay     = 30 * time.Second
)

// Dialer keeps one websocket connection to the control service alive,
// redialing with backoff after failures. Connectivity never surfaces as
// an error to the convergence core: it is reduced to Connected /
// StatusUpdate / Disconnected inputs on the handler.
type Dialer struct {
	url     string
	handler Handler

	// redialDelay is the initial backoff; doubled per failed attempt up
	// to maxRedialDelay. Overridable for tests.
	redialDelay time.Duration
}

// NewDialer returns a dialer for the given control service URL.
func NewDialer(url string, handler Handler) *Dialer {
	return &Dialer{
		url:         url,
		handler:     handler,
		redialDelay: defaultRedialDelay,
	}
}

// Run dials and serves inbound messages until ctx is done. It blocks;
// run it on its own goroutine.
func (d *Dialer) Run(ctx context.Context) {
	delay := d.redialDelay
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.url, nil)
		if err != nil {
			log.Warnf("control service dial %s failed: %v, retrying in %s", d.url, err, delay)
			if !sleepCtx(ctx, delay) {
				return
			}
			delay *= 2
			if delay > maxRedialDelay {
				delay = maxRedialDelay
			}
			continue
		}
		delay = d.redialDelay

		log.Infof("connected to control service %s", d.url)
		client := newWSClient(conn)
		d.handler.Connected(client)

		d.readLoop(ctx, conn)

		_ = client.Close()
		d.handler.Disconnected()
		if ctx.Err() != nil {
			return
		}
		log.Warnf("control service connection lost, redialing")
	}
}

func (d *Dialer) readLoop(ctx context.Context, conn *websocket.Conn) {
	// unblock the blocking read when ctx is cancelled
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var msg ClusterStatusMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				log.Warnf("control service read failed: %v", err)
			}
			return
		}
		if msg.Type != MessageTypeClusterStatus {
			log.Warnf("ignoring unexpected control message type %q", msg.Type)
			continue
		}
		config, state, err := DecodeClusterStatus(msg)
		if err != nil {
			log.Errorf("malformed cluster status message: %v", err)
			continue
		}
		d.handler.StatusUpdate(config, state)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
