package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// SecurityHeadersConfig lists the response headers set on every API reply.
// Empty values are not sent.
type SecurityHeadersConfig struct {
	ContentSecurityPolicy   string
	XFrameOptions           string
	XContentTypeOptions     string
	StrictTransportSecurity string // only sent over https
	ReferrerPolicy          string
	PermissionsPolicy       string
}

// DefaultSecurityHeadersConfig returns the policy for a JSON/SSE/websocket API
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		ContentSecurityPolicy:   "default-src 'none'; connect-src 'self' ws: wss:; frame-ancestors 'none'",
		XFrameOptions:           "DENY",
		XContentTypeOptions:     "nosniff",
		StrictTransportSecurity: "max-age=31536000; includeSubDomains",
		ReferrerPolicy:          "no-referrer",
		PermissionsPolicy:       "geolocation=(), microphone=(), camera=()",
	}
}

// SecurityHeaders returns a middleware that adds security headers to all responses
func SecurityHeaders(config ...SecurityHeadersConfig) fiber.Handler {
	cfg := DefaultSecurityHeadersConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	headers := map[string]string{
		"Content-Security-Policy": cfg.ContentSecurityPolicy,
		"X-Frame-Options":         cfg.XFrameOptions,
		"X-Content-Type-Options":  cfg.XContentTypeOptions,
		"Referrer-Policy":         cfg.ReferrerPolicy,
		"Permissions-Policy":      cfg.PermissionsPolicy,
	}

	return func(c *fiber.Ctx) error {
		for name, value := range headers {
			if value != "" {
				c.Set(name, value)
			}
		}
		if cfg.StrictTransportSecurity != "" && c.Protocol() == "https" {
			c.Set("Strict-Transport-Security", cfg.StrictTransportSecurity)
		}
		return c.Next()
	}
}
