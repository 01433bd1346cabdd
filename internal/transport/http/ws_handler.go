package http

import (
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
	"quiz-progression-service/internal/logger"
)

// WSHandler streams live leaderboard snapshots to watching clients.
type WSHandler struct {
	hub         *app.LeaderboardHub
	leaderboard *app.LeaderboardReconciler
	log         *logger.Logger
	upgrader    websocket.Upgrader
}

func NewWSHandler(hub *app.LeaderboardHub, leaderboard *app.LeaderboardReconciler, log *logger.Logger) *WSHandler {
	return &WSHandler{
		hub:         hub,
		leaderboard: leaderboard,
		log:         log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage struct {
	Type    string                     `json:"type"`
	Payload domain.LeaderboardSnapshot `json:"payload"`
}

// ServeWS upgrades the request and pushes leaderboard updates until the
// client disconnects. The first frame is the current standings; later
// frames arrive whenever an attempt reshuffles the board.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.hub.Subscribe(quizID)
	defer cancel()

	snapshot, err := h.leaderboard.Top(r.Context(), quizID, defaultLeaderboardLimit)
	if err != nil {
		h.log.Warn("initial leaderboard load failed", "quizId", quizID, "error", err)
		return
	}

	send := make(chan domain.LeaderboardSnapshot, 16)
	readerDone := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for snap := range send {
			if err := conn.WriteJSON(outboundMessage{Type: "leaderboard", Payload: snap}); err != nil {
				h.log.Debug("ws write failed", "quizId", quizID, "error", err)
				return
			}
		}
	}()

	// Drain the connection so close frames and pings are processed; the
	// stream is one-way and any client payload is ignored.
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send <- snapshot

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				close(send)
				<-writerDone
				return
			}
			select {
			case send <- snap:
			case <-writerDone:
				return
			case <-readerDone:
				close(send)
				<-writerDone
				return
			}
		case <-writerDone:
			return
		case <-readerDone:
			close(send)
			<-writerDone
			return
		}
	}
}
