package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"emittr/connectfour/internal/game"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
	gameID string
}

type frame struct {
	Type    string         `json:"type"`
	Game    *game.Snapshot `json:"game,omitempty"`
	Message string         `json:"message,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWS attaches a socket to the game named by ?gameId, or starts a new
// one at ?difficulty when no id is given. A new game is only created once
// the upgrade has succeeded.
func (s *Server) handleWS(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		snap       game.Snapshot
		difficulty game.Difficulty
		err        error
	)
	id := c.Query("gameId")
	if id != "" {
		if snap, err = s.lookup(ctx, id); err != nil {
			s.writeError(c, err)
			return
		}
	} else if difficulty, err = game.ParseDifficulty(c.Query("difficulty")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	if id == "" {
		snap = s.manager.Create(difficulty)
		s.afterApply(ctx, snap)
	}
	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, 8),
		server: s,
		gameID: snap.ID,
	}
	s.register(client)
	client.sendFrame(frame{Type: "state", Game: &snap})

	go client.writePump()
	go client.readPump()
}

func (s *Server) register(c *wsClient) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.watchers[c.gameID] == nil {
		s.watchers[c.gameID] = make(map[*wsClient]struct{})
	}
	s.watchers[c.gameID][c] = struct{}{}
}

func (s *Server) unregister(c *wsClient) {
	s.connMu.Lock()
	if set, ok := s.watchers[c.gameID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(s.watchers, c.gameID)
		}
	}
	s.connMu.Unlock()
	c.conn.Close()
}

// broadcast pushes snap to every socket watching its game. Slow sockets
// miss the frame rather than stall the caller.
func (s *Server) broadcast(snap game.Snapshot) {
	data, err := json.Marshal(frame{Type: "state", Game: &snap})
	if err != nil {
		s.log.Errorw("encode state frame", "gameId", snap.ID, "error", err)
		return
	}
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	for c := range s.watchers[snap.ID] {
		select {
		case c.send <- data:
		default:
			s.log.Warnw("dropping frame for slow client", "gameId", snap.ID)
		}
	}
}

func (s *Server) closeWatchers() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for id, set := range s.watchers {
		for c := range set {
			close(c.send)
		}
		delete(s.watchers, id)
	}
}

func (c *wsClient) sendFrame(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.server.connMu.RLock()
	defer c.server.connMu.RUnlock()
	if _, live := c.server.watchers[c.gameID][c]; !live {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (c *wsClient) readPump() {
	defer c.server.unregister(c)
	s := c.server

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debugw("websocket closed", "gameId", c.gameID, "error", err)
			}
			return
		}
		var req commandRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.sendFrame(frame{Type: "error", Message: "malformed message"})
			continue
		}
		cmd, err := req.decode()
		if err != nil {
			c.sendFrame(frame{Type: "error", Message: err.Error()})
			continue
		}
		if _, err := s.apply(context.Background(), c.gameID, cmd); err != nil {
			c.sendFrame(frame{Type: "error", Message: err.Error()})
		}
	}
}
