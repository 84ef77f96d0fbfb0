package ws

import (
	"context"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gps-no-calibration/internal/geometry"
	"gps-no-calibration/internal/workflow"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type nopSensor struct{}

func (nopSensor) StartCollection(context.Context, string, string) error { return nil }
func (nopSensor) StopCollection(context.Context, string) error          { return nil }
func (nopSensor) PauseCollection(context.Context, string) error         { return nil }
func (nopSensor) ResumeCollection(context.Context, string) error        { return nil }

func dial(t *testing.T) (*websocket.Conn, *workflow.Workflow, *Hub) {
	t.Helper()

	cfg := workflow.DefaultConfig()
	cfg.AntennaIDs = []string{"ant-1"}
	cfg.CollectionDuration = time.Hour
	wf := workflow.NewWorkflow(cfg, nopSensor{}, zerolog.Nop())

	hub := NewHub(wf, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		server.Close()
	})

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn, wf, hub
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(Response) bool) Response {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg Response
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func TestHubSendsInitialProgress(t *testing.T) {
	conn, _, hub := dial(t)

	msg := readUntil(t, conn, func(r Response) bool { return r.Type == "progress" })
	require.NotNil(t, msg.Progress)
	assert.Equal(t, workflow.StateIdle, msg.Progress.State)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHubAppliesCommands(t *testing.T) {
	conn, wf, _ := dial(t)

	require.NoError(t, conn.WriteJSON(Command{
		Action: ActionReferencePoints,
		ReferencePoints: []geometry.Point3D{
			{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 0, Y: 5},
		},
	}))
	readUntil(t, conn, func(r Response) bool { return r.Type == "ack" && r.Action == ActionReferencePoints })
	assert.Equal(t, workflow.StateCollectingReference, wf.State())

	require.NoError(t, conn.WriteJSON(Command{Action: ActionStart}))
	readUntil(t, conn, func(r Response) bool { return r.Type == "ack" && r.Action == ActionStart })

	require.NoError(t, conn.WriteJSON(Command{Action: ActionConfirm}))
	readUntil(t, conn, func(r Response) bool { return r.Type == "ack" && r.Action == ActionConfirm })

	require.NoError(t, conn.WriteJSON(Command{Action: ActionCollect}))
	msg := readUntil(t, conn, func(r Response) bool {
		return r.Type == "progress" && r.Progress != nil && r.Progress.Step == workflow.StepCollecting
	})
	assert.Equal(t, workflow.StateCollectingObservation, msg.Progress.State)

	require.NoError(t, conn.WriteJSON(Command{Action: ActionCancel}))
	readUntil(t, conn, func(r Response) bool { return r.Type == "ack" && r.Action == ActionCancel })
	assert.Equal(t, workflow.StateIdle, wf.State())
}

func TestHubReportsErrors(t *testing.T) {
	conn, _, _ := dial(t)

	require.NoError(t, conn.WriteJSON(Command{Action: "dance"}))
	msg := readUntil(t, conn, func(r Response) bool { return r.Type == "error" })
	assert.Equal(t, "dance", msg.Action)
	assert.Contains(t, msg.Message, "unknown action")

	require.NoError(t, conn.WriteJSON(Command{Action: ActionCollect}))
	msg = readUntil(t, conn, func(r Response) bool { return r.Type == "error" })
	assert.Equal(t, ActionCollect, msg.Action)

	require.NoError(t, conn.WriteJSON(Command{Action: ActionReferencePoints}))
	msg = readUntil(t, conn, func(r Response) bool { return r.Type == "error" })
	assert.Equal(t, ActionReferencePoints, msg.Action)
}
