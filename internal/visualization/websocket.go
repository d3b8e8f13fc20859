package visualization

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nvandessel/livegraph/internal/layout"
	"github.com/nvandessel/livegraph/internal/lens"
	"github.com/nvandessel/livegraph/internal/loop"
	"github.com/nvandessel/livegraph/internal/ratelimit"
	"github.com/nvandessel/livegraph/internal/snapshot"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = maxSnapshotBytes
)

// WSRequest is a message from the page.
type WSRequest struct {
	// Type is one of pointer, drag_start, drag_end, view, reset, snapshot.
	Type string  `json:"type"`
	X    float64 `json:"x,omitempty"`
	Y    float64 `json:"y,omitempty"`
	K    float64 `json:"k,omitempty"`

	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}

// WSResponse is a message to the page.
type WSResponse struct {
	// Type is one of hello, frame, merged, reset, drag, error.
	Type       string              `json:"type"`
	Connection string              `json:"connection,omitempty"`
	Pane       string              `json:"pane,omitempty"`
	Frame      *layout.Frame       `json:"frame,omitempty"`
	Result     *layout.MergeResult `json:"result,omitempty"`
	Node       string              `json:"node,omitempty"`
	Error      string              `json:"error,omitempty"`
}

type wsConn struct {
	id   string
	pane string
	ws   *websocket.Conn
	out  chan WSResponse
}

// handleWebSocket streams a pane's frames to the page and applies the
// page's pointer, drag and zoom input.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade the websocket", "error", err)
		return
	}

	c := &wsConn{
		id:   uuid.NewString(),
		pane: paneParam(r),
		ws:   ws,
		out:  make(chan WSResponse, 16),
	}
	s.logger.Debug("websocket client connected", "connection", c.id, "pane", c.pane)

	ctx, cancel := context.WithCancel(r.Context())
	sub := s.loop.Subscribe(c.pane)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx, c, sub)
		// Unblock the reader.
		ws.Close()
	}()

	c.send(ctx, WSResponse{Type: "hello", Connection: c.id, Pane: c.pane})
	if f, ok := s.loop.Frame(c.pane); ok {
		c.send(ctx, WSResponse{Type: "frame", Pane: c.pane, Frame: &f})
	}
	s.readLoop(ctx, c)

	cancel()
	sub.Close()
	<-done
	s.opts.Limits.Forget(c.id)
	s.logger.Debug("websocket client disconnected", "connection", c.id)
}

// writeLoop is the connection's only writer.
func (s *Server) writeLoop(ctx context.Context, c *wsConn, sub *loop.Subscription) {
	for {
		var msg WSResponse
		select {
		case <-ctx.Done():
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case p, ok := <-sub.C():
			if !ok {
				return
			}
			msg = WSResponse{Type: "frame", Pane: p.Pane, Frame: &p.Frame}
		case msg = <-c.out:
		}

		c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.ws.WriteJSON(msg); err != nil {
			s.logger.Debug("failed to write websocket message", "connection", c.id, "error", err)
			return
		}
	}
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.ws.SetReadLimit(wsMaxMessage)
	for {
		var req WSRequest
		if err := c.ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				s.logger.Debug("websocket read failed", "connection", c.id, "error", err)
			}
			return
		}
		if resp, ok := s.dispatch(ctx, c, req); ok {
			c.send(ctx, resp)
		}
	}
}

// dispatch applies one page message. It returns a reply when there is
// one to send.
func (s *Server) dispatch(ctx context.Context, c *wsConn, req WSRequest) (WSResponse, bool) {
	fail := func(err error) (WSResponse, bool) {
		return WSResponse{Type: "error", Pane: c.pane, Error: err.Error()}, true
	}

	channel := ratelimit.ChannelPointer
	switch req.Type {
	case "snapshot":
		channel = ratelimit.ChannelSnapshot
	case "reset":
		channel = ratelimit.ChannelReset
	}
	if err := s.opts.Limits.Check(channel, c.id); err != nil {
		return fail(err)
	}

	point := lens.Point{X: req.X, Y: req.Y}
	switch req.Type {
	case "pointer":
		if err := s.loop.PointerMove(ctx, c.pane, point); err != nil {
			return fail(err)
		}
		return WSResponse{}, false

	case "drag_start":
		id, err := s.loop.DragStart(ctx, c.pane, point)
		if errors.Is(err, layout.ErrNoNode) || errors.Is(err, loop.ErrUnknownPane) {
			return WSResponse{}, false
		}
		if err != nil {
			return fail(err)
		}
		return WSResponse{Type: "drag", Pane: c.pane, Node: id}, true

	case "drag_end":
		if err := s.loop.DragEnd(ctx, c.pane); err != nil {
			return fail(err)
		}
		return WSResponse{}, false

	case "view":
		if err := s.loop.SetView(ctx, c.pane, lens.ViewTransform{K: req.K, X: req.X, Y: req.Y}); err != nil {
			return fail(err)
		}
		return WSResponse{}, false

	case "reset":
		if err := s.loop.Reset(ctx, c.pane); err != nil {
			return fail(err)
		}
		return WSResponse{Type: "reset", Pane: c.pane}, true

	case "snapshot":
		snap, err := snapshot.Parse(req.Snapshot)
		if err != nil {
			return fail(err)
		}
		result, err := s.loop.Update(ctx, c.pane, snap)
		if err != nil {
			return fail(err)
		}
		return WSResponse{Type: "merged", Pane: c.pane, Result: &result}, true

	default:
		return fail(errors.New("unknown message type: " + req.Type))
	}
}

// send queues a reply for the writer.
func (c *wsConn) send(ctx context.Context, msg WSResponse) {
	select {
	case c.out <- msg:
	case <-ctx.Done():
	}
}
