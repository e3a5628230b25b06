package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusAPI is the read-only diagnostics endpoint. It reports loop counters
// only; it never touches the session state or the link.
type StatusAPI struct {
	srv  *Server
	http *http.Server
	log  *slog.Logger
}

// NewStatusAPI builds the API around a running server.
func NewStatusAPI(srv *Server, listen string, log *slog.Logger) *StatusAPI {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := &StatusAPI{
		srv: srv,
		log: log,
		http: &http.Server{
			Addr:    listen,
			Handler: router,
		},
	}

	router.GET("/healthz", api.health)
	router.GET("/status", api.status)
	return api
}

// Start serves the API in the background.
func (a *StatusAPI) Start() {
	go func() {
		a.log.Info("status API listening", "addr", a.http.Addr)
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("status API failed", "err", err)
		}
	}()
}

// Stop shuts the API down, waiting briefly for in-flight requests.
func (a *StatusAPI) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.http.Shutdown(ctx); err != nil {
		a.log.Warn("status API shutdown", "err", err)
	}
}

func (a *StatusAPI) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *StatusAPI) status(c *gin.Context) {
	snap := a.srv.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": int64(time.Since(snap.StartedAt).Seconds()),
		"stats":          snap,
	})
}
