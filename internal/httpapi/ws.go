package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/userdra99/ncb-OCR-sub001/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Operator dashboards connect cross-origin from wherever they are hosted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Stream fans job transition events out to connected websocket clients. It
// polls the store's transition history so every process in the cluster feeds
// the same stream regardless of which worker performed the transition.
type Stream struct {
	store  store.Store
	logger *slog.Logger

	interval time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewStream(st store.Store, interval time.Duration, logger *slog.Logger) *Stream {
	if interval <= 0 {
		interval = time.Second
	}
	return &Stream{
		store:    st,
		logger:   logger,
		interval: interval,
		clients:  make(map[*websocket.Conn]bool),
	}
}

// Run polls for new transitions until ctx is canceled. Events older than the
// start of the poll loop are not replayed.
func (st *Stream) Run(ctx context.Context) {
	cursor := time.Now().UTC()
	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			st.closeAll()
			return
		case <-ticker.C:
		}

		if !st.hasClients() {
			continue
		}

		recs, err := st.store.TransitionsSince(ctx, cursor, 500)
		if err != nil {
			if ctx.Err() == nil {
				st.logger.Error("transition poll failed", "err", err)
			}
			continue
		}

		for _, rec := range recs {
			if rec.OccurredAt.After(cursor) {
				cursor = rec.OccurredAt
			}
			st.broadcast(transitionView{
				JobID:      rec.JobID,
				FromStatus: rec.FromStatus,
				ToStatus:   rec.ToStatus,
				WorkerID:   rec.WorkerID,
				Note:       rec.Note,
				OccurredAt: rec.OccurredAt,
			})
		}
	}
}

func (st *Stream) hasClients() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.clients) > 0
}

func (st *Stream) register(conn *websocket.Conn) {
	st.mu.Lock()
	st.clients[conn] = true
	n := len(st.clients)
	st.mu.Unlock()
	st.logger.Info("websocket client connected", "clients", n)
}

func (st *Stream) unregister(conn *websocket.Conn) {
	st.mu.Lock()
	if _, ok := st.clients[conn]; ok {
		delete(st.clients, conn)
		conn.Close()
	}
	n := len(st.clients)
	st.mu.Unlock()
	st.logger.Info("websocket client disconnected", "clients", n)
}

func (st *Stream) broadcast(event transitionView) {
	payload, err := json.Marshal(map[string]any{
		"type":  "job_transition",
		"event": event,
	})
	if err != nil {
		st.logger.Error("event marshal failed", "err", err)
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for conn := range st.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			st.logger.Warn("websocket write failed", "err", err)
			conn.Close()
			delete(st.clients, conn)
		}
	}
}

func (st *Stream) closeAll() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for conn := range st.clients {
		conn.Close()
		delete(st.clients, conn)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		s.writeError(w, http.StatusNotImplemented, "event stream disabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	s.stream.register(conn)

	// Drain control frames; the stream is write-only from the server side.
	go func() {
		defer s.stream.unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
