// Package server exposes the analytics over a JSON HTTP API.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/contactkeval/option-analytics/internal/analytics"
	"github.com/contactkeval/option-analytics/internal/data"
	"github.com/contactkeval/option-analytics/internal/logger"
	"github.com/contactkeval/option-analytics/internal/pricing"
	"github.com/contactkeval/option-analytics/internal/surface"
	"github.com/contactkeval/option-analytics/internal/volatility"
)

// Server routes API requests to a calculator and a data provider.
type Server struct {
	calc   *analytics.Calculator
	prov   data.Provider
	router *gin.Engine
	now    func() time.Time
}

// New builds the router. steps is the default lattice depth for requests
// that do not name one.
func New(prov data.Provider, steps int) *Server {
	s := &Server{
		calc: analytics.NewCalculator(steps),
		prov: prov,
		now:  time.Now,
	}

	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api/v1")
	{
		api.GET("/models", s.handleModels)
		api.POST("/price", s.handlePrice)
		api.POST("/compare", s.handleCompare)
		api.POST("/greeks/profile", s.handleProfile)
		api.POST("/implied-vol", s.handleImpliedVol)
		api.POST("/boundary", s.handleBoundary)
		api.POST("/volatility", s.handleVolatility)
		api.POST("/surface", s.handleSurface)
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens on addr until the server fails.
func (s *Server) Run(addr string) error {
	logger.Infof("starting REST server on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logger.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("http request")
	}
}

// statusFor maps package errors to HTTP statuses: bad input is 400, inputs
// that are valid but cannot be solved are 422 and missing data is 404.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pricing.ErrInvalidParameter),
		errors.Is(err, surface.ErrInvalidParameter),
		errors.Is(err, volatility.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, pricing.ErrInvalidOperation),
		errors.Is(err, pricing.ErrDegenerateVega),
		errors.Is(err, pricing.ErrNoConvergence),
		errors.Is(err, surface.ErrOutOfBounds),
		errors.Is(err, volatility.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, data.ErrNoData):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}
