package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/F0xyBG/NW-Digital-Project-Interview/internal/types"
)

var connSeq atomic.Int64

func newConnectionID() string {
	return fmt.Sprintf("c_%d_%d", time.Now().UnixNano(), connSeq.Add(1))
}

// handleWebSocket upgrades the connection and drives the chat session. One
// goroutine reads frames per connection, so utterances for a single
// connection are handled strictly in arrival order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err, "remote", r.RemoteAddr)
		return
	}

	connectionID := newConnectionID()
	slog.Info("websocket connected", "connection_id", connectionID, "remote", r.RemoteAddr)

	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("failed to close websocket", "connection_id", connectionID, "error", closeErr)
		}
	}()

	ctx := r.Context()
	em := &wsEmitter{conn: conn}

	s.engine.Connect(ctx, connectionID, em)
	defer s.engine.Disconnect(connectionID)

	s.readLoop(ctx, conn, connectionID, em)
	slog.Info("websocket disconnected", "connection_id", connectionID)
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, connectionID string, em *wsEmitter) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("websocket closed by client", "connection_id", connectionID)
			} else {
				slog.Warn("websocket read error", "connection_id", connectionID, "error", err)
			}
			return
		}

		var ev types.ChatEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			if sendErr := em.SendError(ctx, "invalid message format"); sendErr != nil {
				slog.Debug("failed to send format error", "error", sendErr)
			}
			continue
		}

		switch ev.Type {
		case types.EventChatMessage:
			s.engine.Message(ctx, connectionID, ev.Message, em)
		case types.EventPing:
			if err := em.write(ctx, types.ChatEvent{Type: types.EventPong}); err != nil {
				slog.Debug("failed to send pong", "connection_id", connectionID, "error", err)
			}
		default:
			slog.Debug("ignoring unknown event type", "connection_id", connectionID, "type", ev.Type)
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.cfg.AllowedOrigin == "*" {
		return true
	}
	if origin == s.cfg.AllowedOrigin {
		return true
	}
	slog.Warn("websocket origin rejected", "origin", origin, "allowed", s.cfg.AllowedOrigin)
	return false
}

// wsEmitter implements flow.Emitter over a websocket connection. Writes are
// serialized; the engine may emit from the read goroutine while a ping reply
// goes out concurrently.
type wsEmitter struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (e *wsEmitter) SendResponse(ctx context.Context, text string) error {
	return e.write(ctx, types.ChatEvent{Type: types.EventChatResponse, Text: text})
}

func (e *wsEmitter) SendError(ctx context.Context, message string) error {
	return e.write(ctx, types.ChatEvent{Type: types.EventError, Error: message})
}

func (e *wsEmitter) write(ctx context.Context, ev types.ChatEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.conn.Write(ctx, websocket.MessageText, data)
}
