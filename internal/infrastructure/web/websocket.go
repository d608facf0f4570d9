package web

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/doeshing/oncomn/internal/domain"
)

// checkOrigin accepts clients without an Origin header, pages served from
// the same host and the configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range s.origins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	s.logger.Warn("websocket origin rejected", map[string]interface{}{"origin": origin})
	return false
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(msg ServerMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(msg)
}

// streamGenerate handles GET /api/ws/generate. The connection is one
// consumer: a new generate message cancels the running generation, a
// cancel message stops it and the final message carries the retained result.
func (s *Server) streamGenerate(c *gin.Context) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	consumer := "ws-" + s.newID()
	client := &wsConn{conn: conn}

	// Detach from the request context; the connection lifetime is bounded
	// by the read loop below.
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		s.generator.Forget(consumer)
	}()

	s.logger.Debug("websocket connected", map[string]interface{}{"consumer": consumer})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", map[string]interface{}{"consumer": consumer, "error": err.Error()})
			}
			return
		}

		switch msg.Type {
		case MessageGenerate:
			req := msg.GenerateRequest.toDomain()
			req.Context = ctx
			req.ConsumerID = consumer
			// Claimed here so generations start in message order.
			req.Ticket = s.generator.Claim(consumer)
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.runStreaming(client, req)
			}()
		case MessageCancel:
			s.generator.Cancel(consumer)
		default:
			_ = client.send(ServerMessage{
				Type:  MessageError,
				Error: &ErrorBody{Code: "invalid_request", Message: "unknown message type " + msg.Type},
			})
		}
	}
}

func (s *Server) runStreaming(client *wsConn, req domain.GenerationRequest) {
	resp, err := s.generator.Run(req, func(update domain.SessionUpdate) {
		if update.State.IsTerminal() {
			return
		}
		result := update.Extraction.Result
		if sendErr := client.send(ServerMessage{
			Type:      MessageUpdate,
			SessionID: update.SessionID,
			State:     update.State,
			Result:    &result,
			Missing:   update.Extraction.Missing,
		}); sendErr != nil {
			s.logger.Debug("websocket write failed", map[string]interface{}{"error": sendErr.Error()})
		}
	})

	final := ServerMessage{SessionID: resp.SessionID, State: resp.State}
	if resp.SessionID != "" {
		result := resp.Result()
		final.Result = &result
		final.Missing = resp.Extraction.Missing
	}

	switch {
	case err != nil:
		final.Type = MessageError
		final.Error = newErrorBody(err)
	case resp.Cancelled():
		final.Type = MessageCancelled
	default:
		final.Type = MessageDone
	}

	if sendErr := client.send(final); sendErr != nil {
		s.logger.Debug("websocket write failed", map[string]interface{}{"error": sendErr.Error()})
	}
}
