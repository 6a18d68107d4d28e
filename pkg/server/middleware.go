package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"
)

// Latency observes the handling time of every request under its route pattern.
func Latency(server string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestLatency.WithLabelValues(server, route).Observe(time.Since(start).Seconds())
	}
}

// RateLimit answers 429 once the limiter runs dry. A nil limiter admits everything.
func RateLimit(server string, limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter != nil && !limiter.Allow() {
			klog.V(2).Infof("%s rate limit exceeded for %s %s", server, c.Request.Method, c.Request.URL.Path)
			requestsRateLimited.WithLabelValues(server).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
			return
		}
		c.Next()
	}
}

func requestLog(c *gin.Context) {
	c.Next()
	klog.V(4).Infof("%s %s from %s -> %d", c.Request.Method, c.Request.URL.Path, c.ClientIP(), c.Writer.Status())
}

func newEngine(server string, limiter *rate.Limiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog, Latency(server), RateLimit(server, limiter))
	return r
}

// Serve runs h on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, name, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		klog.Infof("%s server listening on %s", name, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	klog.Infof("Shutting down %s server", name)
	return srv.Shutdown(shutdownCtx)
}
