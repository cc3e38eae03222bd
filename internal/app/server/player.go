package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// player is one push channel connection. The same user may hold several.
type player struct {
	Id           string
	ConnectionId string
	Conn         *websocket.Conn

	writeTimeout time.Duration
	mu           *sync.Mutex
}

func newPlayer(conn *websocket.Conn, userId, connectionId string, writeTimeout time.Duration) *player {
	return &player{
		Id:           userId,
		ConnectionId: connectionId,
		Conn:         conn,
		writeTimeout: writeTimeout,
		mu:           new(sync.Mutex),
	}
}

func (p *player) writeJson(msg interface{}) error {
	if p == nil || p.Conn == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeTimeout > 0 {
		p.Conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	}
	return p.Conn.WriteJSON(msg)
}

func (p *player) writeControl(messageType int, data []byte, deadline time.Time) error {
	if p == nil || p.Conn == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Conn.WriteControl(messageType, data, deadline)
}

// close sends a close frame then drops the connection.
func (p *player) close(reason string) {
	p.writeControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(time.Second),
	)
	p.Conn.Close()
}
