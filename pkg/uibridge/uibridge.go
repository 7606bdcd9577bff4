// Package uibridge exposes a voice session to a presentation layer over a
// WebSocket.
//
// On connect, and after every change, the server pushes the current
// session snapshot:
//
//	{"type":"state","state":{...}}
//
// The client sends intents:
//
//	{"type":"toggle"}
//	{"type":"stop"}
//	{"type":"send_text","text":"..."}
//	{"type":"associate","examId":"..."}
//
// A failed intent is answered with {"type":"error","error":"..."}.
// Snapshots are coalesced: a slow client sees the latest state, not every
// intermediate one.
package uibridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/lifeline/pkg/voicesession"
)

const writeTimeout = 10 * time.Second

// Message types.
const (
	TypeState     = "state"
	TypeError     = "error"
	TypeToggle    = "toggle"
	TypeStop      = "stop"
	TypeSendText  = "send_text"
	TypeAssociate = "associate"
)

// Controller is the session surface the bridge drives. *voicesession.Session
// implements it.
type Controller interface {
	State() voicesession.State
	Subscribe(fn func(voicesession.State)) (cancel func())
	Toggle(ctx context.Context) error
	Stop()
	SendText(text string) error
	Associate(ctx context.Context, examID string) error
}

var _ Controller = (*voicesession.Session)(nil)

// Message is sent to the client.
type Message struct {
	Type  string              `json:"type"`
	State *voicesession.State `json:"state,omitzero"`
	Error string              `json:"error,omitzero"`
}

// Intent is received from the client.
type Intent struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitzero"`
	ExamID string `json:"examId,omitzero"`
}

// Server is an http.Handler upgrading requests to bridge connections.
type Server struct {
	ctrl     Controller
	upgrader websocket.Upgrader

	// base is handed to session operations instead of the request
	// context, so a session outlives the connection that started it.
	base context.Context
}

// Option configures a Server.
type Option func(*Server)

// WithCheckOrigin sets the origin check. By default all origins are
// accepted.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// WithContext sets the context handed to session operations.
func WithContext(ctx context.Context) Option {
	return func(s *Server) { s.base = ctx }
}

// NewServer returns a bridge for ctrl.
func NewServer(ctrl Controller, opts ...Option) *Server {
	s := &Server{
		ctrl: ctrl,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		base: context.Background(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("uibridge: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	slog.Info("uibridge: client connected", "remote", r.RemoteAddr)

	c := &conn{
		ws:   ws,
		ctrl: s.ctrl,
		wake: make(chan struct{}, 1),
		out:  make(chan Message, 8),
		done: make(chan struct{}),
	}
	c.wake <- struct{}{}
	cancel := s.ctrl.Subscribe(func(voicesession.State) { c.poke() })

	go c.writeLoop()
	c.readLoop(s.base)

	cancel()
	close(c.done)
	ws.Close()
	slog.Info("uibridge: client disconnected", "remote", r.RemoteAddr)
}

type conn struct {
	ws   *websocket.Conn
	ctrl Controller
	wake chan struct{}
	out  chan Message
	done chan struct{}
}

func (c *conn) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *conn) writeLoop() {
	for {
		var m Message
		select {
		case <-c.done:
			return
		case <-c.wake:
			st := c.ctrl.State()
			m = Message{Type: TypeState, State: &st}
		case m = <-c.out:
		}
		c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.ws.WriteJSON(m); err != nil {
			slog.Debug("uibridge: write failed", "error", err)
			// Unblocks readLoop.
			c.ws.Close()
			return
		}
	}
}

func (c *conn) readLoop(ctx context.Context) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				slog.Debug("uibridge: read failed", "error", err)
			}
			return
		}
		var in Intent
		if err := json.Unmarshal(data, &in); err != nil {
			c.reply(fmt.Errorf("malformed intent: %w", err))
			continue
		}
		slog.Debug("uibridge: intent", "type", in.Type)
		switch in.Type {
		case TypeToggle:
			// Toggle blocks for the whole start handshake; a stop must
			// still get through meanwhile.
			go func() {
				if err := c.ctrl.Toggle(ctx); err != nil {
					c.reply(err)
				}
			}()
		case TypeStop:
			c.ctrl.Stop()
		case TypeSendText:
			if err := c.ctrl.SendText(in.Text); err != nil {
				c.reply(err)
			}
		case TypeAssociate:
			if err := c.ctrl.Associate(ctx, in.ExamID); err != nil {
				c.reply(err)
			}
		default:
			c.reply(fmt.Errorf("unknown intent %q", in.Type))
		}
	}
}

func (c *conn) reply(err error) {
	select {
	case c.out <- Message{Type: TypeError, Error: err.Error()}:
	default:
		slog.Warn("uibridge: drop error reply", "error", err)
	}
}
