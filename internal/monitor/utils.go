package monitor

import (
	"time"

	"github.com/gorilla/websocket"
)

// WriteTyped sends a strongly-typed frame over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorFrame over the WebSocket.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorFrame{
		Type:  FrameError,
		Error: errMsg,
	})
}
