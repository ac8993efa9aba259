// Package server is the admin BFF: it serves the dashboard's reads from the
// SWR cache, forwards mutations through the admin store and streams cache
// notifications over SSE.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	cache "github.com/krisalay/clinic-swr-cache"
	"github.com/krisalay/clinic-swr-cache/internal/adminstore"
	"github.com/krisalay/clinic-swr-cache/internal/realtime"
)

// routeFamilies maps URL segments to resource families.
var routeFamilies = map[string]string{
	"stats":        adminstore.FamilyStats,
	"doctors":      adminstore.FamilyDoctors,
	"users":        adminstore.FamilyUsers,
	"lab-bookings": adminstore.FamilyLabBookings,
	"lab-reports":  adminstore.FamilyLabReports,
	"medicines":    adminstore.FamilyMedicines,
	"orders":       adminstore.FamilyOrders,
	"articles":     adminstore.FamilyArticles,
	"compensation": adminstore.FamilyCompensation,
	"reviews":      adminstore.FamilyReviews,
}

// Server holds the router and its collaborators.
type Server struct {
	router  *gin.Engine
	store   *adminstore.Store
	cache   *cache.SWRCache
	hub     *realtime.EventHub
	metrics http.Handler
	logger  *zap.Logger
	started time.Time
}

// New builds the router. metrics may be nil to use the default Prometheus
// registry.
func New(store *adminstore.Store, c *cache.SWRCache, hub *realtime.EventHub, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	if hub == nil {
		hub = realtime.NewEventHub(logger)
	}

	s := &Server{
		router:  gin.New(),
		store:   store,
		cache:   c,
		hub:     hub,
		metrics: metrics,
		logger:  logger,
		started: time.Now(),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.GET("/metrics", gin.WrapH(s.metrics))

	v1 := s.router.Group("/api/v1")
	v1.GET("/health", s.healthCheck)
	v1.GET("/events", s.hub.HandleSSE)

	for route, family := range routeFamilies {
		v1.GET("/"+route, s.getResource(family))
	}

	v1.POST("/doctors", s.createDoctor)
	v1.PUT("/doctors/:id", s.updateDoctor)
	v1.DELETE("/doctors/:id", s.deleteDoctor)
	v1.POST("/medicines", s.createMedicine)
	v1.PUT("/medicines/:id", s.updateMedicine)
	v1.PATCH("/orders/:id/status", s.updateOrderStatus)
	v1.POST("/lab-bookings/:id/report", s.uploadLabReport)
	v1.POST("/articles", s.createArticle)
	v1.POST("/compensation/payouts", s.payCompensation)
	v1.POST("/reviews", s.submitReview)

	v1.GET("/cache/keys", s.listKeys)
	v1.POST("/cache/invalidate", s.invalidate)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("cache", c.Writer.Header().Get("X-Cache")),
		)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"cache": gin.H{
			"entries":     s.cache.Len(),
			"sse_clients": s.hub.ClientCount(),
		},
	})
}

/*
Start serves on addr until ctx is cancelled, then shuts down gracefully and
waits for background revalidations to settle.
*/
func (s *Server) Start(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		// request contexts end with ctx, which closes open SSE streams
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	s.hub.Broadcast(&realtime.Event{Type: "system.shutdown", Timestamp: time.Now()})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.cache.Close()

	s.logger.Info("server exited")
	return nil
}
