// Package handler terminates HTTP: the websocket upgrade endpoint plus
// liveness. All real-time semantics live behind it in the router.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bera-tech-ai/gramX/internal/config"
	"github.com/bera-tech-ai/gramX/internal/domain"
	"github.com/bera-tech-ai/gramX/internal/hub"
	"github.com/bera-tech-ai/gramX/internal/router"
	"github.com/bera-tech-ai/gramX/pkg/log"
)

type WSHandler struct {
	hub      *hub.Hub
	router   *router.Router
	wsConfig config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, r *router.Router, cfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		router:   r,
		wsConfig: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.HandleWebSocket)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.L().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsConfig)
	h.hub.Register(client)

	log.L().Info().Str(log.FieldConnID, client.ID).Msg("websocket connected")

	go client.WritePump()
	go client.ReadPump(h.dispatch, h.onClose)
}

func (h *WSHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": h.hub.ClientCount(),
	})
}

// dispatch decodes one inbound frame and runs the matching router
// handler to completion before the read pump takes the next frame.
func (h *WSHandler) dispatch(c *hub.Client, raw []byte) {
	ctx := log.WithLogger(context.Background(),
		log.L().With().Str(log.FieldConnID, c.ID).Logger())

	var base domain.BaseEvent
	if err := json.Unmarshal(raw, &base); err != nil {
		c.SendMessage(domain.NewErrorEvent(domain.ErrCodeValidation, "malformed event"))
		return
	}

	switch base.Type {
	case domain.EventLogin:
		var evt domain.LoginEvent
		if !decode(c, raw, &evt) {
			return
		}
		h.router.HandleLogin(ctx, c, evt.Token)

	case domain.EventJoinConversation:
		var evt domain.JoinConversationEvent
		if !decode(c, raw, &evt) {
			return
		}
		h.router.HandleJoinConversation(ctx, c, evt.TargetUserID)

	case domain.EventSendMessage:
		var evt domain.SendMessageEvent
		if !decode(c, raw, &evt) {
			return
		}
		h.router.HandleSendMessage(ctx, c, &evt)

	case domain.EventTypingStart, domain.EventTypingStop:
		var evt domain.TypingEvent
		if !decode(c, raw, &evt) {
			return
		}
		h.router.HandleTyping(ctx, c, base.Type, evt.TargetUserID)

	case domain.EventReact:
		var evt domain.ReactEvent
		if !decode(c, raw, &evt) {
			return
		}
		h.router.HandleReact(ctx, c, &evt)

	case domain.EventEditMessage:
		var evt domain.EditMessageEvent
		if !decode(c, raw, &evt) {
			return
		}
		h.router.HandleEdit(ctx, c, &evt)

	case domain.EventDeleteMessage:
		var evt domain.DeleteMessageEvent
		if !decode(c, raw, &evt) {
			return
		}
		h.router.HandleDelete(ctx, c, &evt)

	case domain.EventPing:
		c.SendMessage(&domain.BaseEvent{Type: domain.EventPong})

	default:
		c.SendMessage(domain.NewErrorEvent(domain.ErrCodeValidation, "unknown event type: "+base.Type))
	}
}

func (h *WSHandler) onClose(c *hub.Client) {
	log.L().Info().Str(log.FieldConnID, c.ID).Msg("websocket disconnected")
	h.router.HandleDisconnect(context.Background(), c)
}

func decode(c *hub.Client, raw []byte, v interface{}) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		c.SendMessage(domain.NewErrorEvent(domain.ErrCodeValidation, "malformed event payload"))
		return false
	}
	return true
}
