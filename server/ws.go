package server

import (
	"fmt"
	"net/http"
	"time"

	"fleet-bridge/app/controllers"
	"fleet-bridge/app/socket"
	"fleet-bridge/global"

	"github.com/gorilla/websocket"
)

const maxFrameSize = 64 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Robots are not browsers; origin checks do not apply.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StartWSServer exposes the robot channel endpoint. Each accepted
// connection gets one read loop goroutine; that loop is the only thing
// feeding frames into the dispatcher for the connection, so frames are
// processed in arrival order.
func StartWSServer(host string, port int, path string, ctrl *controllers.ProtocolController) error {
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			global.Logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
			return
		}
		ch := socket.NewWSChannel(wsConn)
		conn := ctrl.HandleOpen(ch)
		if conn == nil {
			return
		}
		go readLoop(ctrl, conn, wsConn)
	})

	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			global.Logger.Error().Err(err).Msg("websocket server stopped")
		}
	}()
	global.Logger.Info().Msgf("robot channel server is listening on ws://%s%s", addr, path)
	return nil
}

func readLoop(ctrl *controllers.ProtocolController, conn *socket.Conn, wsConn *websocket.Conn) {
	wsConn.SetReadLimit(maxFrameSize)
	defer ctrl.HandleClose(conn)
	for {
		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				global.Logger.Debug().Err(err).Uint64("handle", conn.Handle).Msg("read loop ended")
			}
			return
		}
		ctrl.HandleMessage(conn, raw)
	}
}
