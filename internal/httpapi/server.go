// Package httpapi is the gin-based read-only introspection surface over a
// running executor's store, mirroring the teacher's internal/api.Server
// (gin.New + Recovery, grouped routes, graceful shutdown on ctx.Done).
// It is a thin collaborator outside the durable-execution core per
// spec.md §1: it never mutates run state beyond requesting cancellation.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alirezaght/arazzo/internal/store"
)

// Server exposes GET /runs/{id}, GET /runs/{id}/events and
// POST /runs/{id}/cancel over a store.Store, per SPEC_FULL.md's
// "serve HTTP surface" addition.
type Server struct {
	Store      store.Store
	Addr       string
	httpServer *http.Server
}

// Start runs the server until ctx is canceled, then shuts it down with a
// 5-second grace period.
func (s *Server) Start(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "arazzorun"})
	})

	runs := router.Group("/runs")
	runs.GET("/:id", s.getRun)
	runs.GET("/:id/steps", s.listSteps)
	runs.GET("/:id/events", s.listEvents)
	runs.POST("/:id/cancel", s.cancelRun)

	s.httpServer = &http.Server{Addr: s.Addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http api server: %w", err)
	}
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.Store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) listSteps(c *gin.Context) {
	steps, err := s.Store.ListSteps(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, steps)
}

func (s *Server) listEvents(c *gin.Context) {
	after := int64(0)
	if v := c.Query("after"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after cursor"})
			return
		}
		after = parsed
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err == nil && parsed > 0 {
			limit = parsed
		}
	}
	events, err := s.Store.GetEventsAfter(c.Request.Context(), c.Param("id"), after, limit)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}

func (s *Server) cancelRun(c *gin.Context) {
	if err := s.Store.CancelRun(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "canceled"})
}
