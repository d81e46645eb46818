package http

import (
	"net/http"
	"time"

	"cricket-trivia-service/internal/app"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WSHandler streams live leaderboard snapshots of one slot.
type WSHandler struct {
	service  *app.AttemptService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades GET /ws/leaderboard?slotId= and pushes a "leaderboard" message for
// the current standings and after every commit in that slot. The slot defaults to the
// current one. Client messages are ignored; the read loop only detects disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())
	slotID := r.URL.Query().Get("slotId")
	if slotID == "" {
		slotID = h.service.CurrentSlot()
	}
	if _, err := h.service.Calendar().Parse(slotID); err != nil {
		http.Error(w, "invalid slotId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel, err := h.service.Subscribe(r.Context(), slotID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	// All writes happen on this goroutine.
	for {
		select {
		case lb, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(outboundMessage[any]{Type: "leaderboard", Payload: lb}); err != nil {
				logger.Debug().Err(err).Str("slot_id", slotID).Msg("ws write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
