package util

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ShutdownResource is a component stopped during graceful shutdown
type ShutdownResource struct {
	Name     string
	Shutdown func(context.Context) error
	Priority int // Lower numbers shut down first
}

// GracefulShutdown stops registered resources in priority order within a shared deadline
type GracefulShutdown struct {
	resources []ShutdownResource
	mu        sync.Mutex
	logger    *logrus.Logger
	timeout   time.Duration
}

// NewGracefulShutdown creates a new graceful shutdown manager
func NewGracefulShutdown(logger *logrus.Logger, timeout time.Duration) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GracefulShutdown{
		logger:  logger,
		timeout: timeout,
	}
}

// Register adds a resource to be shut down
func (gs *GracefulShutdown) Register(resource ShutdownResource) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	gs.resources = append(gs.resources, resource)
	sort.SliceStable(gs.resources, func(i, j int) bool {
		return gs.resources[i].Priority < gs.resources[j].Priority
	})

	gs.logger.WithFields(logrus.Fields{
		"resource": resource.Name,
		"priority": resource.Priority,
	}).Debug("Registered resource for graceful shutdown")
}

// RegisterFunc registers a shutdown step that cannot fail
func (gs *GracefulShutdown) RegisterFunc(name string, priority int, fn func()) {
	gs.Register(ShutdownResource{
		Name:     name,
		Priority: priority,
		Shutdown: func(context.Context) error {
			fn()
			return nil
		},
	})
}

// Shutdown stops every registered resource. A failing or slow resource does
// not prevent the remaining ones from being stopped.
func (gs *GracefulShutdown) Shutdown(ctx context.Context) error {
	gs.mu.Lock()
	resources := make([]ShutdownResource, len(gs.resources))
	copy(resources, gs.resources)
	gs.mu.Unlock()

	gs.logger.WithField("resource_count", len(resources)).Info("Starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, gs.timeout)
	defer cancel()

	var failures []error
	for _, res := range resources {
		done := make(chan error, 1)
		go func(res ShutdownResource) {
			done <- res.Shutdown(shutdownCtx)
		}(res)

		select {
		case err := <-done:
			if err != nil {
				gs.logger.WithError(err).WithField("resource", res.Name).Error("Error shutting down resource")
				failures = append(failures, &ShutdownError{Resource: res.Name, Err: err})
				continue
			}
			gs.logger.WithField("resource", res.Name).Debug("Resource shut down successfully")
		case <-shutdownCtx.Done():
			gs.logger.WithField("resource", res.Name).Warn("Shutdown timeout for resource")
			failures = append(failures, &ShutdownTimeoutError{Resource: res.Name})
		}
	}

	if len(failures) > 0 {
		return &MultiShutdownError{Errors: failures}
	}

	gs.logger.Info("Graceful shutdown completed successfully")
	return nil
}

// ShutdownError wraps a resource's shutdown failure
type ShutdownError struct {
	Resource string
	Err      error
}

func (e *ShutdownError) Error() string {
	return "shutdown error for " + e.Resource + ": " + e.Err.Error()
}

func (e *ShutdownError) Unwrap() error {
	return e.Err
}

// ShutdownTimeoutError reports a resource that did not stop before the deadline
type ShutdownTimeoutError struct {
	Resource string
}

func (e *ShutdownTimeoutError) Error() string {
	return "shutdown timeout for " + e.Resource
}

// MultiShutdownError collects every shutdown failure
type MultiShutdownError struct {
	Errors []error
}

func (e *MultiShutdownError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "errors during shutdown: " + strings.Join(msgs, "; ")
}

func (e *MultiShutdownError) Unwrap() []error {
	return e.Errors
}
