package ws

import (
	"context"
	"errors"
	"fmt"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"gps-no-calibration/internal/geometry"
	"gps-no-calibration/internal/models"
	"gps-no-calibration/internal/workflow"
	"net/http"
	"sync"
	"time"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	sendBuffer     = 32
	progressBuffer = 64
)

const (
	ActionReferencePoints = "reference_points"
	ActionStart           = "start"
	ActionConfirm         = "confirm"
	ActionCollect         = "collect"
	ActionStop            = "stop"
	ActionPause           = "pause"
	ActionResume          = "resume"
	ActionNext            = "next"
	ActionCancel          = "cancel"
	ActionReset           = "reset"
	ActionAuto            = "auto"
)

type Command struct {
	Action          string             `json:"action"`
	ReferencePoints []geometry.Point3D `json:"reference_points,omitempty"`
}

// Response is a message sent to clients. Type is progress, results, ack or error.
type Response struct {
	Type     string                              `json:"type"`
	Action   string                              `json:"action,omitempty"`
	Progress *workflow.Progress                  `json:"progress,omitempty"`
	Results  map[string]models.CalibrationResult `json:"results,omitempty"`
	Message  string                              `json:"message,omitempty"`
}

var errUnknownAction = errors.New("unknown action")

type client struct {
	conn *websocket.Conn
	send chan Response
}

// Hub streams workflow progress to every connected client and applies their commands.
type Hub struct {
	workflow *workflow.Workflow
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	ctx     context.Context
	autoRun bool
}

func NewHub(wf *workflow.Workflow, logger zerolog.Logger) *Hub {
	return &Hub{
		workflow: wf,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		ctx:     context.Background(),
	}
}

// Run broadcasts progress until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	updates, unsubscribe := h.workflow.Subscribe(progressBuffer)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case progress := <-updates:
			p := progress
			h.broadcast(Response{Type: "progress", Progress: &p})
		}
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade error")
		return
	}

	c := &client{conn: conn, send: make(chan Response, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info().Str("remote", r.RemoteAddr).Msg("Calibration client connected")

	go h.writePump(c)

	progress := h.workflow.Progress()
	h.deliver(c, Response{Type: "progress", Progress: &progress})

	h.readPump(r.Context(), c)
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		if err := h.execute(ctx, cmd); err != nil {
			h.logger.Debug().Err(err).Str("action", cmd.Action).Msg("Command rejected")
			h.deliver(c, Response{Type: "error", Action: cmd.Action, Message: err.Error()})
			continue
		}
		h.deliver(c, Response{Type: "ack", Action: cmd.Action})
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) execute(ctx context.Context, cmd Command) error {
	wf := h.workflow

	switch cmd.Action {
	case ActionReferencePoints:
		return wf.SetReferencePoints(cmd.ReferencePoints)
	case ActionStart:
		return wf.StartStepByStep()
	case ActionConfirm:
		return wf.ConfirmTagPlaced()
	case ActionCollect:
		return wf.StartCollecting(ctx)
	case ActionStop:
		return wf.StopCollecting(ctx)
	case ActionPause:
		return wf.PauseCollecting(ctx)
	case ActionResume:
		return wf.ResumeCollecting(ctx)
	case ActionNext:
		err := wf.Advance(ctx)
		if results := wf.Results(); len(results) > 0 {
			h.broadcast(Response{Type: "results", Results: results})
		}
		return err
	case ActionCancel:
		wf.Cancel(ctx)
		return nil
	case ActionReset:
		wf.Reset(ctx)
		return nil
	case ActionAuto:
		return h.startAutomatic()
	default:
		return fmt.Errorf("%w: %q", errUnknownAction, cmd.Action)
	}
}

// startAutomatic runs the workflow in the background under the hub's context so that
// it outlives the request of the client that asked for it.
func (h *Hub) startAutomatic() error {
	h.mu.Lock()
	if h.autoRun {
		h.mu.Unlock()
		return errors.New("automatic calibration already running")
	}
	h.autoRun = true
	ctx := h.ctx
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			h.autoRun = false
			h.mu.Unlock()
		}()

		results, err := h.workflow.RunAutomatic(ctx)
		if len(results) > 0 {
			h.broadcast(Response{Type: "results", Results: results})
		}
		if err != nil {
			h.logger.Error().Err(err).Msg("Automatic calibration failed")
			h.broadcast(Response{Type: "error", Action: ActionAuto, Message: err.Error()})
		}
	}()
	return nil
}

func (h *Hub) broadcast(msg Response) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		h.deliverLocked(c, msg)
	}
}

func (h *Hub) deliver(c *client, msg Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverLocked(c, msg)
}

func (h *Hub) deliverLocked(c *client, msg Response) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		h.logger.Warn().Str("type", msg.Type).Msg("Dropping message for slow client")
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
