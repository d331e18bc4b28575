// Package api exposes the call state machine over a JSON HTTP API for
// the voice-agent frontend.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/loadline/loadline/internal/conversation"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Manager *conversation.Manager
	Port    int
	Out     io.Writer
}

// Start launches the API HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Manager == nil {
		return fmt.Errorf("api: manager is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8090
	}

	router := NewRouter(opts.Manager)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Call API running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// NewRouter builds the Gin router with all call routes registered.
// Exported so tests can drive it with httptest.
func NewRouter(mgr *conversation.Manager) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	calls := router.Group("/api/calls")
	calls.POST("", handleBegin(mgr))
	calls.GET("/:id", handleGetCall(mgr))
	calls.POST("/:id/verify", handleVerify(mgr))
	calls.POST("/:id/search", handleSearch(mgr))
	calls.POST("/:id/select", handleSelect(mgr))
	calls.POST("/:id/offer", handleOffer(mgr))
	calls.POST("/:id/reject", handleReject(mgr))
	calls.POST("/:id/end", handleEnd(mgr))

	return router
}
