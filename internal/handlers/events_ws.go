// internal/handlers/events_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/blackjack/internal/middleware"
	"github.com/jason-s-yu/blackjack/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	wsSubprotocol  = "blackjack"
	wsWriteTimeout = 3 * time.Second
	wsEventBuffer  = 32
	wsMaxReadBytes = 4096
)

// clientMessage is what the browser may send over the feed.
type clientMessage struct {
	Type string `json:"type"` // "ping" or "sync"
}

type stateMessage struct {
	Type  string            `json:"type"`
	State *models.GameState `json:"state"`
}

// EventsWSHandler upgrades to a WebSocket that streams the user's GameEvents.
// Must be mounted behind RequireSession; the session cookie authenticates the upgrade.
func (s *GameServer) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	claims := sessionFrom(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errNotLoggedIn.Error()})
		return
	}
	userID := claims.UserID

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{wsSubprotocol},
		OriginPatterns: s.WSOriginPatterns,
	})
	if err != nil {
		s.Logger.WithError(err).WithField("user_id", userID).Warn("WebSocket accept error")
		return
	}
	defer c.CloseNow()
	c.SetReadLimit(wsMaxReadBytes)

	if len(r.Header.Values("Sec-WebSocket-Protocol")) > 0 && c.Subprotocol() != wsSubprotocol {
		c.Close(BadSubprotocolError, "Client must use the 'blackjack' subprotocol.")
		return
	}

	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)
	events, unsubscribe := s.Hub.Subscribe(userID, wsEventBuffer)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if ttl := claims.TTL(time.Now()); ttl > 0 {
		var expCancel context.CancelFunc
		ctx, expCancel = context.WithTimeoutCause(ctx, ttl, errSessionExpired)
		defer expCancel()
	}

	log := s.Logger.WithField("user_id", userID)
	s.sendState(ctx, c, log)

	readErr := make(chan error, 1)
	go func() { readErr <- s.readClientMessages(ctx, c, log) }()

	var closeErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-readErr:
			closeErr = err
			break loop
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			if err := writeWS(ctx, c, ev); err != nil {
				closeErr = err
				break loop
			}
		}
	}

	if errors.Is(context.Cause(ctx), errSessionExpired) {
		c.Close(SessionExpiredError, "Session expired, please log in again.")
	} else {
		c.Close(websocket.StatusNormalClosure, "")
	}
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, ignoreNormalClose(closeErr))
}

var errSessionExpired = errors.New("session expired")

// readClientMessages handles ping and sync requests until the connection closes.
func (s *GameServer) readClientMessages(ctx context.Context, c *websocket.Conn, log *logrus.Entry) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			return err
		}
		if msgType != websocket.MessageText {
			log.Debugf("Ignoring non-text WebSocket message type %d", msgType)
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = writeWS(ctx, c, map[string]string{"type": "error", "message": "Invalid JSON format."})
			continue
		}
		switch msg.Type {
		case "ping":
			_ = writeWS(ctx, c, map[string]string{"type": "pong"})
		case "sync":
			s.sendState(ctx, c, log)
		default:
			_ = writeWS(ctx, c, map[string]string{"type": "error", "message": "Unknown message type: " + msg.Type})
		}
	}
}

// sendState writes the user's round in play, or a null state if there is none.
func (s *GameServer) sendState(ctx context.Context, c *websocket.Conn, log *logrus.Entry) {
	msg := stateMessage{Type: "state"}
	if st, err := s.Current(ctx, userIDFrom(ctx), 0); err == nil {
		msg.State = &st
	}
	if err := writeWS(ctx, c, msg); err != nil {
		log.WithError(err).Debug("failed to send state")
	}
}

func writeWS(ctx context.Context, c *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return c.Write(writeCtx, websocket.MessageText, data)
}

func ignoreNormalClose(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	return err
}
