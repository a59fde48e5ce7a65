package server

import (
	"context"
	"sync"
	"time"

	"github.com/park285/dame-server/internal/obslog"
	"github.com/park285/dame-server/internal/wire"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	sendBuffer    = 64
	writeTimeout  = 5 * time.Second
	pingInterval  = 25 * time.Second
	pingTimeout   = 10 * time.Second
	closeReplaced = "replaced by a newer connection"
)

// client is one accepted socket. It satisfies presence.Sink; Send never
// blocks the caller, which is usually a room goroutine.
type client struct {
	ws       *websocket.Conn
	playerID string
	send     chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	reason    string
}

func newClient(parent context.Context, ws *websocket.Conn, playerID string) *client {
	ctx, cancel := context.WithCancel(parent)
	return &client{
		ws:       ws,
		playerID: playerID,
		send:     make(chan []byte, sendBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *client) Send(event string, payload any) bool {
	raw, err := wire.Encode(event, payload)
	if err != nil {
		obslog.L().Warn("ws_encode_failed", zap.String("event", event), zap.Error(err))
		return false
	}
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.send <- raw:
		return true
	default:
		obslog.L().Warn("ws_send_dropped", zap.String("player_id", c.playerID), zap.String("event", event))
		return false
	}
}

// kick ends the connection. The read loop notices the cancelled context.
func (c *client) kick(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		c.cancel()
	})
}

func (c *client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case raw := <-c.send:
			wctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, raw)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_failed", zap.String("player_id", c.playerID), zap.Error(err))
				c.kick("write failed")
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(c.ctx, pingTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_ping_failed", zap.String("player_id", c.playerID), zap.Error(err))
				c.kick("ping failed")
				return
			}
		}
	}
}

// closeStatus picks the close frame once the read loop has exited.
func (c *client) closeStatus() (websocket.StatusCode, string) {
	if c.reason == closeReplaced {
		return websocket.StatusPolicyViolation, closeReplaced
	}
	return websocket.StatusNormalClosure, ""
}
