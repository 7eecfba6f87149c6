package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"callreport-server/pkg/errors"
	"callreport-server/pkg/metrics"
	"callreport-server/pkg/report"
	"callreport-server/pkg/version"

	"github.com/sirupsen/logrus"
)

// ReportRunner produces a report for a window label
type ReportRunner interface {
	RunLabel(ctx context.Context, label string) (*report.Report, error)
}

// Middleware wraps the root handler
type Middleware interface {
	Middleware(next http.Handler) http.Handler
}

// ConnectionChecker reports the state of an optional downstream connection
type ConnectionChecker interface {
	IsConnected() bool
}

// Server serves the report endpoint, health checks and metrics
type Server struct {
	config     *Config
	logger     *logrus.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	handler    http.Handler
	startTime  time.Time
	reports    ReportRunner
	amqpClient ConnectionChecker

	rateLimitMiddleware   Middleware
	correlationMiddleware Middleware
}

// NewServer creates a new HTTP server instance
func NewServer(logger *logrus.Logger, config *Config, reports ReportRunner) *Server {
	if config == nil {
		config = NewDefaultConfig()
	}

	server := &Server{
		config:    config,
		logger:    logger,
		reports:   reports,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	server.mux = mux
	rootHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler := http.Handler(mux)
		if server.rateLimitMiddleware != nil {
			handler = server.rateLimitMiddleware.Middleware(handler)
		}
		// Outermost so rejected requests still carry a correlation ID
		if server.correlationMiddleware != nil {
			handler = server.correlationMiddleware.Middleware(handler)
		}
		handler.ServeHTTP(w, r)
	})

	mux.HandleFunc("/health", addServerHeader(server.HealthHandler))
	mux.HandleFunc("/health/live", addServerHeader(server.LivenessHandler))
	mux.HandleFunc("/api/report", addServerHeader(server.ReportHandler))

	if config.EnableMetrics && metrics.IsMetricsEnabled() {
		promHandler := metrics.Handler()
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", version.ServerHeader())
			promHandler.ServeHTTP(w, r)
		})
		logger.Info("Prometheus metrics endpoint enabled at /metrics")
	} else {
		logger.Info("Metrics endpoints disabled")
	}

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      rootHandler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	server.handler = rootHandler

	return server
}

func addServerHeader(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", version.ServerHeader())
		next(w, r)
	}
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetAMQPClient sets the AMQP client reference for health checks
func (s *Server) SetAMQPClient(client ConnectionChecker) {
	s.amqpClient = client
}

// SetRateLimitMiddleware sets the rate limiting middleware for the server
func (s *Server) SetRateLimitMiddleware(middleware Middleware) {
	s.rateLimitMiddleware = middleware
	s.logger.Info("Rate limiting middleware configured")
}

// SetCorrelationMiddleware sets the correlation ID middleware for request tracking
func (s *Server) SetCorrelationMiddleware(middleware Middleware) {
	s.correlationMiddleware = middleware
	s.logger.Info("Correlation ID middleware configured")
}

// Start starts the HTTP server in a goroutine
func (s *Server) Start() {
	s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()

	// Verify that we can actually bind to the port
	go func() {
		time.Sleep(500 * time.Millisecond)

		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", s.config.Port), 2*time.Second)
		if err != nil {
			s.logger.WithError(err).Error("Could not connect to HTTP server")
			return
		}
		conn.Close()
		s.logger.Info("HTTP server is running correctly")
	}()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

// ErrorResponse sends a standardized error response
func (s *Server) ErrorResponse(w http.ResponseWriter, err error) {
	errors.WriteError(w, err)
	s.logger.WithError(err).Warn("HTTP error response sent")
}
