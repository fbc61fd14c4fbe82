package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"marketstream/internal/hub"
	"marketstream/internal/logger"
)

// Config controls per-session buffering and keepalive.
type Config struct {
	SendBuffer int
	WriteWait  time.Duration
	PongWait   time.Duration
}

// Gateway upgrades dashboard connections and binds each one to the hub as
// an independent session.
type Gateway struct {
	// baseCtx bounds session and poller lifetimes to the process, not to
	// the upgrade request, which is done the moment the socket is hijacked.
	baseCtx  context.Context
	hub      *hub.Hub
	cfg      Config
	upgrader websocket.Upgrader
}

func New(ctx context.Context, h *hub.Hub, cfg Config) *Gateway {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 5 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	return &Gateway{
		baseCtx: ctx,
		hub:     h,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(r.Context(), "WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := &Session{
		id:         uuid.NewString(),
		conn:       conn,
		hub:        g.hub,
		send:       make(chan []byte, g.cfg.SendBuffer),
		ctrl:       make(chan []byte, 8),
		done:       make(chan struct{}),
		writeWait:  g.cfg.WriteWait,
		pongWait:   g.cfg.PongWait,
		pingPeriod: g.cfg.PongWait * 9 / 10,
	}

	logger.Debug(g.baseCtx, "Session connected", "session", s.id, "remote", r.RemoteAddr)
	go s.run(g.baseCtx)
}
