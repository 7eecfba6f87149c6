package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"callreport-server/pkg/correlation"
	"callreport-server/pkg/errors"
	"callreport-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// HTTPMiddleware provides rate limiting for HTTP requests
type HTTPMiddleware struct {
	limiter          *Limiter
	config           *Config
	logger           *logrus.Logger
	whitelistedPaths map[string]bool
	trustedProxies   []*net.IPNet
}

// NewHTTPMiddleware creates a new HTTP rate limiting middleware
func NewHTTPMiddleware(config *Config, logger *logrus.Logger) *HTTPMiddleware {
	if config == nil {
		config = DefaultConfig()
	}

	m := &HTTPMiddleware{
		limiter:          NewLimiter(config.RequestsPerSecond, config.BurstSize, logger),
		config:           config,
		logger:           logger,
		whitelistedPaths: make(map[string]bool),
	}
	for _, path := range config.WhitelistedPaths {
		m.whitelistedPaths[path] = true
	}
	for _, proxy := range config.TrustedProxies {
		network, err := parseProxy(proxy)
		if err != nil {
			logger.WithField("proxy", proxy).Warn("Ignoring invalid trusted proxy")
			continue
		}
		m.trustedProxies = append(m.trustedProxies, network)
	}

	logger.WithFields(logrus.Fields{
		"enabled":           config.Enabled,
		"rps":               config.RequestsPerSecond,
		"burst":             config.BurstSize,
		"whitelisted_paths": len(m.whitelistedPaths),
		"trusted_proxies":   len(m.trustedProxies),
	}).Info("HTTP rate limiting middleware initialized")

	return m
}

// Middleware returns an HTTP middleware function that applies rate limiting
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	if !m.config.Enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.whitelistedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := m.clientKey(r)
		if !m.limiter.Allow(clientIP) {
			m.logger.WithFields(logrus.Fields{
				"client_ip": clientIP,
				"path":      r.URL.Path,
				"method":    r.Method,
			}).Warn("Rate limit exceeded")
			metrics.RecordRateLimited(r.URL.Path)

			retry := int(math.Ceil(m.limiter.RetryAfter(clientIP).Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			errors.WriteError(w, errors.NewRateLimited(clientIP))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey returns the address a request is limited under. Forwarding
// headers are only believed when the direct peer is a trusted proxy.
func (m *HTTPMiddleware) clientKey(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}

	if ip := net.ParseIP(peer); ip != nil {
		for _, network := range m.trustedProxies {
			if network.Contains(ip) {
				return correlation.ClientIP(r)
			}
		}
	}
	return peer
}

func parseProxy(proxy string) (*net.IPNet, error) {
	if strings.Contains(proxy, "/") {
		_, network, err := net.ParseCIDR(proxy)
		return network, err
	}

	ip := net.ParseIP(proxy)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", proxy)
	}
	bits := 128
	if ip4 := ip.To4(); ip4 != nil {
		ip, bits = ip4, 32
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

// Stop releases the limiter's background cleanup
func (m *HTTPMiddleware) Stop() {
	m.limiter.Stop()
}
