package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/logging"
	"coffeefleet-sim/internal/telemetry"
)

const (
	liveBuffer   = 64
	writeTimeout = 5 * time.Second
)

type connectionState struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
}

func (s *Server) connectionState() connectionState {
	st := s.conn.State()
	return connectionState{State: st.String(), Connected: st == broker.Connected}
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.connectionState())
}

// handleConnect blocks for the connect delay and reports the final state.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.conn.Connect(r.Context()); err != nil {
		logging.FromContext(r.Context()).Warn("connect request failed", "err", err)
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": err.Error(),
			"state": s.conn.State().String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, s.connectionState())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.conn.Disconnect()
	writeJSON(w, http.StatusOK, s.connectionState())
}

// handleLive streams messages on the requested topics (all driver topics by
// default) until the client goes away. Each connection owns a scope, so its
// subscriptions end with the socket. Slow clients drop messages rather than
// stall the publisher.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	topics := r.URL.Query()["topic"]
	if len(topics) == 0 {
		topics = s.liveTopics
	}
	log := logging.FromContext(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	out := make(chan telemetry.Message, liveBuffer)
	scope := broker.NewScope(s.conn)
	defer scope.Close()
	for _, t := range topics {
		scope.Bind(t, func(_ context.Context, m telemetry.Message) error {
			select {
			case out <- m:
			case <-done:
			default:
				log.Debug("live feed dropped message", "topic", m.Topic)
			}
			return nil
		})
	}
	log.Info("live feed opened", "remote", r.RemoteAddr, "topics", len(topics))

	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn("live feed read error", "err", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			log.Info("live feed closed", "remote", r.RemoteAddr)
			return
		case m := <-out:
			data, err := json.Marshal(m)
			if err != nil {
				log.Error("encode live message", "err", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn("live feed write failed", "err", err)
				return
			}
		}
	}
}
