package agent

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/uptime-industries/ota-agent/pkg/log"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout  = 5 * time.Second
	wsSubscriberBuf = 16
)

// StatusStreamHandler serves status snapshots as JSON text messages over a
// websocket. The current status is sent first, followed by every change.
func StatusStreamHandler(agent OtaAgent) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.FromContext(ctx).Warn("Websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		sub := agent.SubscribeStatus(wsSubscriberBuf)
		defer sub.Unsubscribe()

		// the client never sends anything; reading detects the close
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		send := func(st Status) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(st); err != nil {
				log.FromContext(ctx).Debug("Websocket write failed", zap.Error(err))
				return false
			}
			return true
		}

		current, err := agent.GetUpdateStatus(ctx)
		if err != nil || !send(current) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-closed:
				return
			case st, ok := <-sub.C():
				if !ok || !send(st) {
					return
				}
			}
		}
	})
}
