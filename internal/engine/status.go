package engine

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dexswing/internal/bus"
)

// startStatusServer wires the broadcaster to the bus's Redis channels and
// serves the WebSocket upgrade endpoint. The *http.Server is assigned to
// e.statusServer before this returns so Shutdown can always find it; the
// listen loop itself runs in the background.
func (e *Engine) startStatusServer() {
	go e.broadcaster.Run()
	go e.relayBusToBroadcaster()

	upgrader := websocket.Upgrader{
		CheckOrigin:       func(r *http.Request) bool { return true },
		EnableCompression: true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			e.logger.Error("failed to upgrade websocket connection", zap.Error(err))
			return
		}
		e.broadcaster.Register(conn)
		defer e.broadcaster.Unregister(conn)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	e.statusServer = &http.Server{Addr: e.cfg.Monitoring.StatusAddr, Handler: mux}

	go func() {
		e.logger.Info("status websocket server listening", zap.String("addr", e.cfg.Monitoring.StatusAddr))
		if err := e.statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Error("status server failed", zap.Error(err))
		}
	}()
}

// relayBusToBroadcaster subscribes to the decision and portfolio channels
// and re-broadcasts every message to connected WebSocket clients, so the
// status feed mirrors exactly what was published to Redis.
func (e *Engine) relayBusToBroadcaster() {
	sub := e.redisClient.Subscribe(e.ctx, bus.DecisionsChannel, bus.PortfolioChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-e.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			e.broadcaster.Broadcast([]byte(msg.Payload))
		}
	}
}
