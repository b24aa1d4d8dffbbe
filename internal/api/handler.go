package api

import (
	"net/http"
	"time"

	"signal-trader/internal/balance"
	"signal-trader/internal/events"
	"signal-trader/internal/executor"
	"signal-trader/internal/monitor"
	"signal-trader/internal/reconcile"
	"signal-trader/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the executor engine.
type Server struct {
	Router     *gin.Engine
	Engine     *executor.Engine
	Bus        *events.Bus
	DB         *db.Database
	BalanceMgr *balance.Manager
	Reconciler *reconcile.Service
	Metrics    *monitor.Metrics

	WebhookToken         string
	JWTSecret            string
	OperatorUser         string
	OperatorPasswordHash string
	Meta                 SystemMeta
}

// SystemMeta describes runtime status exposed to operators.
type SystemMeta struct {
	Venue   string
	Symbol  string
	Version string
}

// Options carries everything NewServer needs beyond the collaborators.
type Options struct {
	WebhookToken         string
	JWTSecret            string
	OperatorUser         string
	OperatorPasswordHash string
	Meta                 SystemMeta
}

func NewServer(engine *executor.Engine, bus *events.Bus, database *db.Database, balanceMgr *balance.Manager, reconciler *reconcile.Service, metrics *monitor.Metrics, opts Options) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:               r,
		Engine:               engine,
		Bus:                  bus,
		DB:                   database,
		BalanceMgr:           balanceMgr,
		Reconciler:           reconciler,
		Metrics:              metrics,
		WebhookToken:         opts.WebhookToken,
		JWTSecret:            opts.JWTSecret,
		OperatorUser:         opts.OperatorUser,
		OperatorPasswordHash: opts.OperatorPasswordHash,
		Meta:                 opts.Meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	s.Router.POST("/webhook", s.webhook)

	api := s.Router.Group("/api")
	{
		api.POST("/auth/login", s.login)
		api.GET("/metrics", s.getMetrics)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/status", s.getStatus)
			protected.GET("/position", s.getPosition)
			protected.GET("/orders", s.getOrders)
			protected.GET("/signals", s.getSignals)
			protected.GET("/balance", s.getBalance)

			protected.POST("/close", s.closePosition)
			protected.POST("/reconcile", s.runReconcile)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
