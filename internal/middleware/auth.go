package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/models"
)

const actorKey = "actor"

// Claims is the token payload issued by the campus identity service.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Auth resolves the actor for every request. With auth enabled the actor comes
// from a bearer HS256 token; otherwise from the X-Actor-ID header with the
// admin role, which is only meant for local development.
func Auth(cfg config.AuthConfig, enabled bool, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			id := c.GetHeader(HeaderActorID)
			if id == "" {
				id = "anonymous"
			}
			c.Set(actorKey, models.Actor{ID: id, Role: models.RoleAdmin})
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		actor, err := ParseToken(token, cfg)
		if err != nil {
			logger.Warn("Rejected token", logging.Fields{
				"error":      err.Error(),
				"request_id": c.GetString(string(RequestIDKey)),
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// ParseToken validates token and returns the actor it names.
func ParseToken(token string, cfg config.AuthConfig) (models.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return models.Actor{}, err
	}

	if claims.Subject == "" {
		return models.Actor{}, fmt.Errorf("token has no subject")
	}
	switch claims.Role {
	case models.RoleAdmin, models.RoleCafeteriaManager, models.RoleCustomer, models.RoleSystem:
	default:
		return models.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}

	return models.Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// RequireRole aborts with 403 unless the actor has one of roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

// ActorFrom returns the actor resolved by Auth.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return models.Actor{}, false
	}
	actor, ok := v.(models.Actor)
	return actor, ok
}
