package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// AuthConfig holds dashboard API authentication settings.
type AuthConfig struct {
	Mode      string // "api-key", "jwt", "none"
	APIKey    string
	JWTSecret string
}

// NewAuthMiddleware validates the Authorization bearer token for the
// dashboard API. In jwt mode the token must be HS256-signed with JWTSecret
// and unexpired; its subject is stored in Locals("subject").
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Mode == "none" {
			c.Locals("subject", "anonymous")
			return c.Next()
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"Authorization header is required")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		switch cfg.Mode {
		case "jwt":
			sub, err := verifyJWT(token, cfg.JWTSecret)
			if err == nil {
				c.Locals("subject", sub)
				return c.Next()
			}
			logger.Warn().Err(err).Str("path", c.Path()).Msg("unauthorized request: invalid token")
		default:
			if cfg.APIKey != "" && token == cfg.APIKey {
				c.Locals("subject", "api-key")
				return c.Next()
			}
			logger.Warn().Str("path", c.Path()).Str("method", c.Method()).Msg("unauthorized request: invalid API key")
		}

		return problemResponse(c, fiber.StatusUnauthorized,
			"invalid_credentials", "Unauthorized",
			"Invalid or expired credentials")
	}
}

func verifyJWT(token, secret string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
