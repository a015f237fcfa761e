package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"estatehub/server/internal/models"
)

const claimsKey = "auth.claims"

// Middleware authenticates requests carrying a bearer token.
type Middleware struct {
	issuer *Issuer
	logger *logrus.Logger
}

func NewMiddleware(issuer *Issuer, logger *logrus.Logger) *Middleware {
	return &Middleware{issuer: issuer, logger: logger}
}

// Optional attaches claims when a valid token is present and never rejects.
func (m *Middleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c.Request); token != "" {
			if claims, err := m.issuer.Parse(token); err == nil {
				c.Set(claimsKey, claims)
			}
		}
		c.Next()
	}
}

// Required rejects requests without a valid token with 401.
func (m *Middleware) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}
		claims, err := m.issuer.Parse(token)
		if err != nil {
			m.logger.WithError(err).WithField("path", c.FullPath()).Debug("Rejected token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRoles must run after Required. ADMIN passes every role check.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := FromContext(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if claims.Role != models.RoleAdmin && !claims.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
			return
		}
		c.Next()
	}
}

// FromContext returns the authenticated claims or nil.
func FromContext(c *gin.Context) *Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
