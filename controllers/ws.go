package controllers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"Copilot/middleware"
	"Copilot/pkg/apperr"
	"Copilot/pkg/chat"
)

const (
	wsReadLimit  = 1 << 20
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsWriteWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS handled at HTTP level; allow WS here
		return true
	},
}

type wsChatFrame struct {
	Type           string `json:"type"`
	ConversationID uint   `json:"conversation_id"`
	Message        string `json:"message"`
	Domain         string `json:"domain"`
}

type wsReplyFrame struct {
	Type string `json:"type"`
	*chat.Result
}

type wsErrorFrame struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// ChatWS runs chat turns over a websocket. Replies are sent whole, one
// frame per turn.
//
//	-> {type: "chat", conversation_id, message, domain?}
//	<- {type: "reply", response, message_id, conversation_id, status}
//	<- {type: "error", status, error}
func ChatWS(auth *middleware.Authenticator, limiter *middleware.Limiter, svc *chat.Service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Authenticate via ?token=JWT, browsers cannot set headers on upgrade
		tokenStr := strings.TrimSpace(c.Query("token"))
		if tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "missing token query"})
			return
		}
		id, err := auth.Parse(tokenStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "invalid token"})
			return
		}
		c.Set(middleware.ContextUserIDKey, id.UserID)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		log := logger.With("component", "ws", "user_id", id.UserID)
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})

		ctx := c.Request.Context()
		// gorilla connections allow one concurrent writer; the ping loop
		// and the turn loop share this channel.
		writes := make(chan any)
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(wsPingPeriod)
			defer ticker.Stop()
			for {
				select {
				case v := <-writes:
					_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					if err := conn.WriteJSON(v); err != nil {
						log.Debug("websocket write failed", "err", err)
					}
				case <-ticker.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
						// unblocks the reader, which ends the handler
						_ = conn.Close()
						return
					}
				case <-done:
					return
				}
			}
		}()
		send := func(v any) {
			select {
			case writes <- v:
			case <-done:
			}
		}

		for {
			mt, raw, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug("websocket closed", "err", err)
				}
				return
			}
			if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
				continue
			}

			var frame wsChatFrame
			if err := json.Unmarshal(raw, &frame); err != nil || strings.ToLower(frame.Type) != "chat" {
				send(errorFrame(apperr.Validation("invalid chat payload")))
				continue
			}

			release, err := limiter.AcquireUserSlot(ctx, id.UserID)
			if err != nil {
				return
			}
			res, err := svc.Handle(ctx, chat.Request{
				UserID:         id.UserID,
				ConversationID: frame.ConversationID,
				Message:        frame.Message,
				Domain:         frame.Domain,
			})
			release()
			if ctx.Err() != nil {
				return
			}
			// pongs queued during a long turn are only seen on the next read
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			if err != nil {
				send(errorFrame(err))
				continue
			}
			send(wsReplyFrame{Type: "reply", Result: res})
		}
	}
}

func errorFrame(err error) wsErrorFrame {
	return wsErrorFrame{Type: "error", Status: apperr.HTTPStatus(err), Error: apperr.Message(err)}
}
