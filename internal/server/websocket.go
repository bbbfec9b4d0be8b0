package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/hakim/bughunter/internal/models"
	"github.com/hakim/bughunter/internal/pipeline"
)

const (
	wsWriteWait = 10 * time.Second
	wsReadLimit = 4096
)

// upgrader returns a WebSocket upgrader that enforces the CORS origins
func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll(s.config.AllowedOrigins) {
				return true
			}
			for _, allowed := range s.config.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
}

// handleWebSocket runs a scan and pushes {type, data} messages over a
// WebSocket. Bad input is rejected with a plain HTTP error before upgrading.
func (s *Server) handleWebSocket(c *gin.Context) {
	req, ok := s.bindStream(c)
	if !ok {
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// The client never sends anything useful; reading is how a close is noticed
	go func() {
		defer cancel()
		conn.SetReadLimit(wsReadLimit)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	emitter := &wsEmitter{conn: conn}
	_, err = s.deps.Runner.Run(ctx, req, emitter)
	if err != nil && !errors.Is(err, pipeline.ErrClientGone) {
		s.logger.Debug("websocket scan ended with error", "domain", req.Domain, "error", err)
	}

	emitter.close()
}

// wsEmitter writes events as JSON text messages
type wsEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (e *wsEmitter) Emit(event models.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_ = e.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := e.conn.WriteJSON(event); err != nil {
		return errors.Join(pipeline.ErrClientGone, err)
	}
	return nil
}

func (e *wsEmitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scan finished")
	_ = e.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
