package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wsEvent is one frame on the /v1/events stream.
type wsEvent struct {
	Topic   string    `json:"topic"`
	Payload any       `json:"payload"`
	TS      time.Time `json:"ts"`
}

// handleEvents streams every bus event to the client. A slow client drops
// events rather than stalling publishers.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream ended")

	ctx := r.Context()
	frames := make(chan wsEvent, 64)

	unsub := s.bus.Subscribe("*", func(topic string, payload any) error {
		select {
		case frames <- wsEvent{Topic: topic, Payload: payload, TS: time.Now()}:
		default:
			// client too slow, drop
		}
		return nil
	})
	defer unsub()

	s.logger.Info("event stream opened", "remote", r.RemoteAddr)
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-frames:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, frame)
			cancel()
			if err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}
		}
	}
}
