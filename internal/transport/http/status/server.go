// Package statushttp serves a read-only view of the worker: status and
// heartbeat health, the current monitor delta, per-client history, and the
// cached account snapshots. There are no mutation endpoints; the command
// file stays the only control channel.
package statushttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"mirra/internal/cache"
	"mirra/internal/logger"
	"mirra/internal/modes"
	"mirra/internal/worker"

	"github.com/gin-gonic/gin"
)

type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig describes the server's read-only data sources.
type ServerConfig struct {
	Addr    string
	Status  *worker.StatusFile
	Delta   *worker.CurrentDeltaFile
	History *modes.History
	Cache   *cache.Store
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Status == nil {
		return nil, errors.New("status http server requires a status file")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9981"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/status", statusHandler(cfg.Status))
	if cfg.Delta != nil {
		api.GET("/delta", deltaHandler(cfg.Delta))
	}
	if cfg.History != nil {
		api.GET("/history/:client", historyHandler(cfg.History))
	}
	if cfg.Cache != nil {
		api.GET("/accounts", accountsHandler(cfg.Cache))
	}

	return &Server{addr: cfg.Addr, router: router}, nil
}

func statusHandler(status *worker.StatusFile) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := status.Load()
		c.JSON(http.StatusOK, gin.H{
			"status": st,
			"alive":  st.Alive(time.Now()),
		})
	}
}

func deltaHandler(delta *worker.CurrentDeltaFile) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, delta.Load())
	}
}

func historyHandler(history *modes.History) gin.HandlerFunc {
	return func(c *gin.Context) {
		client := c.Param("client")
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			limit = n
		}
		dry := c.Query("dry") == "true"
		c.JSON(http.StatusOK, history.Tail(client, dry, limit))
	}
}

func accountsHandler(store *cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		snaps, err := store.All(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snaps)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		client := c.ClientIP()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, path, c.Writer.Status(), client, time.Since(start))
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
