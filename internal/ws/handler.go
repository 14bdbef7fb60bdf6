package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/blokus-relay/internal/hub"
	"github.com/DoyleJ11/blokus-relay/internal/types"
)

type Options struct {
	OutboxSize     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	OriginPatterns []string
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.OutboxSize < 2 {
		o.OutboxSize = 16
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	opts = opts.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			opts.Logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(opts.ReadLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		id := uuid.NewString()
		c := &connection{
			id:     id,
			hub:    h,
			out:    make(chan types.ServerMessage, opts.OutboxSize),
			cancel: cancel,
			log:    opts.Logger.With(zap.String("conn_id", id)),
		}
		c.log.Info("client connected", zap.String("remote", r.RemoteAddr))
		defer c.disconnect()

		go c.writeLoop(ctx, conn, opts)
		c.readLoop(ctx, conn)
	}
}

func (c *connection) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.log.Debug("client closed connection")
			default:
				if !errors.Is(err, context.Canceled) {
					c.log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			c.reply(types.Error("bad json"))
			continue
		}
		c.handle(ctx, cm)
	}
}

// writeLoop is the only writer on conn. Pings double as the liveness check.
func (c *connection) writeLoop(ctx context.Context, conn *websocket.Conn, opts Options) {
	var ping <-chan time.Time
	if opts.PingInterval > 0 {
		ticker := time.NewTicker(opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-c.out:
			payload, err := json.Marshal(msg)
			if err != nil {
				c.log.Error("encode message", zap.String("type", msg.Type), zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				c.log.Debug("write failed", zap.Error(err))
				c.cancel()
				return
			}

		case <-ping:
			pctx, cancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				c.log.Info("ping failed, dropping client", zap.Error(err))
				c.cancel()
				return
			}
		}
	}
}
