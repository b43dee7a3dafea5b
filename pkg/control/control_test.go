package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strato-io/strato/pkg/dataset"
)

const (
	id1 = "11111111-1111-4111-8111-111111111111"
	id2 = "22222222-2222-4222-8222-222222222222"
)

func TestEncodeNodeState(t *testing.T) {
	a := assert.New(t)

	nonManifest, err := dataset.NewDiscoveredNonManifest(dataset.ID(id1))
	require.NoError(t, err)
	mounted, err := dataset.NewDiscoveredMounted(dataset.ID(id2), "bd-2", 1<<30, "/dev/xvdg", "/mnt/d2")
	require.NoError(t, err)

	local := dataset.NewLocalState("node-1", "host-1")
	local.Datasets[dataset.ID(id1)] = nonManifest
	local.Datasets[dataset.ID(id2)] = mounted

	msg := EncodeNodeState(local)
	a.Equal(MessageTypeNodeState, msg.Type)
	a.Equal("node-1", msg.NodeID)
	require.Len(t, msg.Datasets, 2)

	byID := map[string]DatasetStateWire{}
	for _, w := range msg.Datasets {
		byID[w.DatasetID] = w
	}
	a.Equal("non-manifest", byID[id1].State)
	a.Empty(byID[id1].DevicePath)
	a.Equal("mounted", byID[id2].State)
	a.Equal("/mnt/d2", byID[id2].MountPoint)
	a.Equal("/dev/xvdg", byID[id2].DevicePath)
}

func TestEncodeNodeStateReportsRemoteDatasets(t *testing.T) {
	a := assert.New(t)

	attached, err := dataset.NewDiscoveredAttached(dataset.ID(id1), "bd-1", 1<<30, "/dev/xvdf")
	require.NoError(t, err)

	// id2's volume is held by another node: discovery keeps it out of the
	// planning map but the report must still mention it.
	local := dataset.NewLocalState("node-1", "host-1")
	local.Datasets[dataset.ID(id1)] = attached
	local.NonManifest = []dataset.ID{dataset.ID(id2)}

	msg := EncodeNodeState(local)
	require.Len(t, msg.Datasets, 2)

	byID := map[string]DatasetStateWire{}
	for _, w := range msg.Datasets {
		byID[w.DatasetID] = w
	}
	a.Equal("attached", byID[id1].State)
	a.Equal("non-manifest", byID[id2].State)
	a.Empty(byID[id2].BlockDeviceID)
}

func TestDecodeClusterStatus(t *testing.T) {
	a := assert.New(t)

	config, state, err := DecodeClusterStatus(ClusterStatusMessage{
		Type: MessageTypeClusterStatus,
		Configuration: []DesiredDatasetWire{
			{DatasetID: id1, State: "mounted", MountPoint: "/mnt/d1", MaximumSize: 1 << 30},
			{DatasetID: id2, State: "deleted"},
		},
		ClusterState: map[string][]DatasetStateWire{
			"node-2": {{DatasetID: id1, State: "attached", BlockDeviceID: "bd-1", DevicePath: "/dev/xvdf"}},
		},
	})
	require.NoError(t, err)

	require.Len(t, config.Datasets, 2)
	a.Equal(dataset.DesiredMounted, config.Datasets[dataset.ID(id1)].State())
	a.Equal("/mnt/d1", config.Datasets[dataset.ID(id1)].MountPoint())
	a.Equal(dataset.DesiredDeleted, config.Datasets[dataset.ID(id2)].State())

	require.Contains(t, state.Nodes, "node-2")
	a.Equal(dataset.Attached, state.Nodes["node-2"].Datasets[dataset.ID(id1)].State())
}

func TestDecodeClusterStatusRejectsBadEntries(t *testing.T) {
	table := []struct {
		name string
		msg  ClusterStatusMessage
	}{
		{
			name: "bad dataset id",
			msg: ClusterStatusMessage{Configuration: []DesiredDatasetWire{
				{DatasetID: "nope", State: "deleted"},
			}},
		},
		{
			name: "unknown desired state",
			msg: ClusterStatusMessage{Configuration: []DesiredDatasetWire{
				{DatasetID: id1, State: "sideways"},
			}},
		},
		{
			name: "mounted without mount point",
			msg: ClusterStatusMessage{Configuration: []DesiredDatasetWire{
				{DatasetID: id1, State: "mounted"},
			}},
		},
		{
			name: "unknown discovered state",
			msg: ClusterStatusMessage{ClusterState: map[string][]DatasetStateWire{
				"node-2": {{DatasetID: id1, State: "sideways"}},
			}},
		},
	}

	for _, e := range table {
		t.Run(e.name, func(t *testing.T) {
			_, _, err := DecodeClusterStatus(e.msg)
			assert.Error(t, err)
		})
	}
}

type recordingHandler struct {
	mu           sync.Mutex
	clients      []Client
	updates      []dataset.Configuration
	disconnected int
}

func (h *recordingHandler) Connected(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients = append(h.clients, client)
}

func (h *recordingHandler) StatusUpdate(config dataset.Configuration, _ dataset.ClusterState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, config)
}

func (h *recordingHandler) Disconnected() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected++
}

func (h *recordingHandler) snapshot() (int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients), len(h.updates), h.disconnected
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestDialerRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	reports := make(chan NodeStateMessage, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// push one cluster status, then collect the node state report
		require.NoError(t, conn.WriteJSON(ClusterStatusMessage{
			Type: MessageTypeClusterStatus,
			Configuration: []DesiredDatasetWire{
				{DatasetID: id1, State: "mounted", MountPoint: "/mnt/d1"},
			},
		}))

		var msg NodeStateMessage
		if err := conn.ReadJSON(&msg); err == nil {
			reports <- msg
		}
	}))
	defer srv.Close()

	handler := &recordingHandler{}
	dialer := NewDialer("ws"+strings.TrimPrefix(srv.URL, "http"), handler)
	dialer.redialDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		dialer.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool {
		clients, updates, _ := handler.snapshot()
		return clients >= 1 && updates >= 1
	})

	handler.mu.Lock()
	client := handler.clients[0]
	config := handler.updates[0]
	handler.mu.Unlock()

	assert.Equal(t, dataset.DesiredMounted, config.Datasets[dataset.ID(id1)].State())

	local := dataset.NewLocalState("node-1", "host-1")
	require.NoError(t, client.ReportNodeState(ctx, local))

	select {
	case msg := <-reports:
		assert.Equal(t, MessageTypeNodeState, msg.Type)
		assert.Equal(t, "node-1", msg.NodeID)
	case <-time.After(5 * time.Second):
		t.Fatal("no node state report received")
	}

	cancel()
	<-done
}

func TestDialerSurfacesDisconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		// drop the connection immediately
		conn.Close()
	}))
	defer srv.Close()

	handler := &recordingHandler{}
	dialer := NewDialer("ws"+strings.TrimPrefix(srv.URL, "http"), handler)
	dialer.redialDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		dialer.Run(ctx)
		close(done)
	}()

	// every dropped connection surfaces as connected then disconnected
	waitFor(t, func() bool {
		clients, _, disconnected := handler.snapshot()
		return clients >= 2 && disconnected >= 2
	})

	cancel()
	<-done
}
