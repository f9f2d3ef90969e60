package middleware

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"reelvault/internal/logging"
	"reelvault/internal/metrics"
	"reelvault/internal/services"
	"reelvault/internal/utils"
)

// clientIPKey holds the resolved caller address in fiber locals
const clientIPKey = "client_ip"

// ClientIPResolver decides which address a request comes from. Forwarded
// headers are believed only when the peer is a trusted proxy.
type ClientIPResolver struct {
	trusted []*net.IPNet
	headers []string
}

// NewClientIPResolver parses trusted proxies given as IPs or CIDRs
func NewClientIPResolver(trustedProxies, headers []string) (*ClientIPResolver, error) {
	r := &ClientIPResolver{headers: headers}
	for _, proxy := range trustedProxies {
		proxy = strings.TrimSpace(proxy)
		if proxy == "" {
			continue
		}
		if !strings.Contains(proxy, "/") {
			ip := net.ParseIP(proxy)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", proxy)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			proxy = fmt.Sprintf("%s/%d", ip.String(), bits)
		}
		_, network, err := net.ParseCIDR(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", proxy, err)
		}
		r.trusted = append(r.trusted, network)
	}
	return r, nil
}

func (r *ClientIPResolver) isTrusted(ip net.IP) bool {
	for _, network := range r.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Peer returns the connection peer address
func Peer(c *fiber.Ctx) string {
	return c.Context().RemoteIP().String()
}

// Resolve returns the caller address for the request
func (r *ClientIPResolver) Resolve(c *fiber.Ctx) string {
	peer := c.Context().RemoteIP()
	if !r.isTrusted(peer) {
		return peer.String()
	}

	for _, header := range r.headers {
		value := c.Get(header)
		if value == "" {
			continue
		}
		for _, part := range strings.Split(value, ",") {
			if ip, err := utils.NormalizeIP(part); err == nil {
				return ip
			}
		}
	}
	return peer.String()
}

// ForwardedHeaders returns the proxy headers present on the request
func (r *ClientIPResolver) ForwardedHeaders(c *fiber.Ctx) map[string]string {
	headers := make(map[string]string)
	for _, header := range r.headers {
		if value := c.Get(header); value != "" {
			headers[header] = value
		}
	}
	return headers
}

// ClientIP returns the address resolved by the access gate, falling back to the peer
func ClientIP(c *fiber.Ctx) string {
	if ip, ok := c.Locals(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return Peer(c)
}

// AccessGateConfig configures the IP whitelist gate
type AccessGateConfig struct {
	Resolver    *ClientIPResolver
	Access      *services.AccessService
	ExemptPaths []string
}

// AccessGate admits only whitelisted addresses. A refused request is answered
// with 403 and leaves exactly one access log entry.
func AccessGate(cfg AccessGateConfig) fiber.Handler {
	logger := logging.WithModule("access")

	return func(c *fiber.Ctx) error {
		ip := cfg.Resolver.Resolve(c)
		c.Locals(clientIPKey, ip)

		if isExempt(c.Path(), cfg.ExemptPaths) {
			metrics.AccessDecisions.WithLabelValues("exempt").Inc()
			return c.Next()
		}

		allowed, err := cfg.Access.IsWhitelisted(ip)
		if err != nil {
			metrics.AccessDecisions.WithLabelValues("error").Inc()
			logger.Error().Err(err).Str("ip", ip).Msg("Whitelist lookup failed")
			return utils.SendError(c, fiber.StatusServiceUnavailable, "access check unavailable, try again later")
		}
		if allowed {
			metrics.AccessDecisions.WithLabelValues("allowed").Inc()
			return c.Next()
		}

		metrics.AccessDecisions.WithLabelValues("blocked").Inc()

		pending, err := cfg.Access.HasPendingIPRequest(ip)
		if err != nil {
			logger.Warn().Err(err).Str("ip", ip).Msg("Failed to check pending access request")
		}
		if err := cfg.Access.LogAccess(nil, ip, fmt.Sprintf("BLOCKED %s %s", c.Method(), c.Path()), false); err != nil {
			logger.Error().Err(err).Str("ip", ip).Msg("Failed to record blocked request")
		}
		logger.Warn().Str("ip", ip).Str("method", c.Method()).Str("path", c.Path()).Msg("Blocked request from unlisted address")

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":               "Access denied",
			"message":             "Your address is not on the access list. Request access at /request-ip-access.",
			"ip":                  ip,
			"has_pending_request": pending,
		})
	}
}

func isExempt(path string, exempt []string) bool {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	for _, p := range exempt {
		if p == "" {
			continue
		}
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

// IPThrottle limits how often one address may do something, such as filing
// access requests
type IPThrottle struct {
	mu       sync.Mutex
	limiters map[string]*throttleEntry
	every    rate.Limit
	burst    int
	idle     time.Duration
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sweepThreshold is the map size at which idle addresses are dropped
const sweepThreshold = 1024

// NewIPThrottle allows limit events per window for each address
func NewIPThrottle(limit int, window time.Duration) *IPThrottle {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Hour
	}
	return &IPThrottle{
		limiters: make(map[string]*throttleEntry),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
		idle:     window,
	}
}

// Allow reports whether ip may proceed now
func (t *IPThrottle) Allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if len(t.limiters) >= sweepThreshold {
		for key, entry := range t.limiters {
			if now.Sub(entry.lastSeen) > t.idle {
				delete(t.limiters, key)
			}
		}
	}

	entry, ok := t.limiters[ip]
	if !ok {
		entry = &throttleEntry{limiter: rate.NewLimiter(t.every, t.burst)}
		t.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// Throttle rejects callers over their per-address budget with 429
func Throttle(t *IPThrottle, message string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !t.Allow(ClientIP(c)) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Rate limit exceeded",
				"message": message,
			})
		}
		return c.Next()
	}
}
