package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pintatina/internal/batch"
	"pintatina/internal/session"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type wsOutbound struct {
	Type       string          `json:"type"`
	Kind       batch.EventKind `json:"kind,omitempty"`
	Op         batch.Op        `json:"op,omitempty"`
	Index      *int            `json:"index,omitempty"`
	Status     batch.Status    `json:"status,omitempty"`
	Collection collectionView  `json:"collection"`
}

// handleEvents streams collection changes: one "snapshot" message on
// connect, then one "event" message per transition.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := sess.Batch.Subscribe()
	defer unsubscribe()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Reader: only control frames are expected; any error ends the stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(out wsOutbound) bool {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return false
		}
		return conn.WriteJSON(out) == nil
	}

	if !write(wsOutbound{Type: "snapshot", Collection: newCollectionView(sess.ID, sess.Batch.Snapshot(), sess.Batch.Running())}) {
		return
	}

	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !write(eventMessage(sess.ID, ev)) {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func eventMessage(sessionID string, ev batch.Event) wsOutbound {
	out := wsOutbound{
		Type:       "event",
		Kind:       ev.Kind,
		Op:         ev.Op,
		Status:     ev.Status,
		Collection: newCollectionView(sessionID, ev.Snapshot, ev.Kind != batch.EventDone),
	}
	if ev.Index >= 0 {
		idx := ev.Index
		out.Index = &idx
	}
	return out
}
