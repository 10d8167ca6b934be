package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"shopassist/internal/obs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// cartSocketHandler streams every notification to the client and echoes any
// text it sends to all connected observers.
func (a *App) cartSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		obs.Logger.Warn("ws_upgrade_failed", "error", err)
		return
	}
	sub := a.Hub.Register()
	obs.Logger.Info("ws_connected", "remote", r.RemoteAddr, "observers", a.Hub.Len())

	go func() {
		defer conn.Close()
		for msg := range sub.C {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				a.Hub.Unregister(sub)
				return
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if mt == websocket.TextMessage {
			a.Hub.BroadcastRaw(msg)
		}
	}
	a.Hub.Unregister(sub)
	obs.Logger.Info("ws_disconnected", "remote", r.RemoteAddr, "observers", a.Hub.Len())
}
