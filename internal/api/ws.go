package api

import (
	"context"
	"net/http"
	"time"

	"netgraph-guard/internal/model"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second

	// wsSnapshotAlerts bounds the alert backlog carried by each snapshot
	// frame, for clients that poll the stream instead of tracking state.
	wsSnapshotAlerts = 50
)

type wsAlertFrame struct {
	Type  string      `json:"type"`
	Alert interface{} `json:"alert"`
}

type wsSnapshotFrame struct {
	Type string `json:"type"`
	*graphResponse
	Alerts []model.Alert `json:"alerts"`
}

// Stream upgrades the connection and pushes alert frames as they are emitted
// plus a combined snapshot frame (graph and recent alerts) on a fixed
// cadence, so a client that just connected still sees the alert backlog. All
// writes happen on this goroutine; the read pump exists only to notice the
// peer going away.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.logger.Infof("Stream client connected from %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.broadcaster.Subscribe(ctx)
	defer h.broadcaster.Unsubscribe(sub)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * wsPingInterval))
	})

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(map[string]string{"type": "connected"}); err != nil {
		return
	}

	snapshotTicker := time.NewTicker(h.snapshotInterval)
	defer snapshotTicker.Stop()
	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debugf("Stream client %s disconnected", r.RemoteAddr)
			return

		case a, ok := <-sub.Alerts():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(wsAlertFrame{Type: "alert", Alert: a}); err != nil {
				h.logger.Debugf("Stream write error: %v", err)
				return
			}

		case <-snapshotTicker.C:
			resp, err := h.buildGraphResponse()
			if err != nil {
				// The next tick retries; the connection stays up.
				h.logger.Debugf("Skipping snapshot frame: %v", err)
				continue
			}
			frame := wsSnapshotFrame{
				Type:          "snapshot",
				graphResponse: resp,
				Alerts:        h.emitter.Recent(wsSnapshotAlerts),
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				h.logger.Debugf("Stream write error: %v", err)
				return
			}

		case <-pingTicker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
