package middleware

import (
	"net/http"
	"strings"

	"freelancer-bot/internal/auth"
	"freelancer-bot/internal/logger"
	"freelancer-bot/utils"

	"github.com/gin-gonic/gin"
)

const (
	APIKeyHeader = "X-API-Key"

	claimsKey  = "ops_claims"
	roleKey    = "ops_role"
	subjectKey = "ops_subject"
)

// OpsAuth guards the ops routes with either a bearer token from the issuer or
// a static API key checked against its bcrypt hash.
type OpsAuth struct {
	issuer     *auth.Issuer
	apiKeyHash string
}

func NewOpsAuth(issuer *auth.Issuer, apiKeyHash string) *OpsAuth {
	return &OpsAuth{issuer: issuer, apiKeyHash: apiKeyHash}
}

// Enabled reports whether any credential can pass.
func (a *OpsAuth) Enabled() bool {
	return a.issuer != nil || a.apiKeyHash != ""
}

func (a *OpsAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader(APIKeyHeader); key != "" {
			if a.apiKeyHash == "" || !utils.CheckAPIKey(key, a.apiKeyHash) {
				utils.AbortWithError(c, http.StatusUnauthorized, "invalid_api_key", "API key is invalid")
				return
			}
			c.Set(subjectKey, "api-key")
			c.Set(roleKey, auth.RoleOps)
			c.Next()
			return
		}

		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			utils.AbortWithError(c, http.StatusUnauthorized, "unauthorized", "Authentication token is required")
			return
		}
		if a.issuer == nil {
			utils.AbortWithError(c, http.StatusUnauthorized, "unauthorized", "Token authentication is not configured")
			return
		}

		claims, err := a.issuer.Validate(c.Request.Context(), token)
		if err != nil {
			logger.Debug("ops token rejected", "error", err, "request_id", GetRequestID(c))
			utils.AbortWithError(c, http.StatusUnauthorized, "invalid_token", "Token is invalid or expired")
			return
		}

		c.Set(claimsKey, claims)
		c.Set(subjectKey, claims.Subject)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

func GetRole(c *gin.Context) string {
	return c.GetString(roleKey)
}

func GetSubject(c *gin.Context) string {
	return c.GetString(subjectKey)
}
