package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"routeopt/internal/model"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
	wsWriteWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RunWSHandler streams run events over a WebSocket: a run.snapshot first,
// then every broker event until the run reaches a terminal state.
func (s *Server) RunWSHandler(w http.ResponseWriter, r *http.Request, p Principal, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var mu sync.Mutex
	write := func(typ string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(wsMessage{Type: typ, Payload: b})
	}
	closeNormal := func() {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"), time.Now().Add(wsWriteWait))
	}

	if err := write("run.snapshot", run); err != nil {
		return
	}
	if run.Status.Terminal() {
		closeNormal()
		return
	}

	// the read loop only services control frames and notices disconnects
	done := make(chan struct{})
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
	go func() {
		defer close(done)
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == "ping" {
				_ = write("pong", nil)
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if run, finished := s.finishedRun(r.Context(), p.Tenant, id); finished {
				_ = write("run.snapshot", run)
				closeNormal()
				return
			}
			mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			mu.Unlock()
			if err != nil {
				return
			}
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := write(evt.Type, eventData(evt)); err != nil {
				s.Log.Debug("ws write failed", zap.String("run_id", id), zap.Error(err))
				return
			}
			if evt.Type != model.EventRunProgress {
				closeNormal()
				return
			}
		}
	}
}
