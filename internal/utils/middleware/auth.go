package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// OperatorEmailKey is the context key for the operator's email.
	OperatorEmailKey = "operator_email"
)

// OperatorClaims are the JWT claims issued to back-office operators
// by the identity provider.
type OperatorClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// OperatorAuthorizer validates operator tokens and checks the operator
// allowlist.
type OperatorAuthorizer struct {
	secret    []byte
	operators map[string]struct{}
}

// NewOperatorAuthorizer creates an authorizer from the shared JWT secret
// and the configured operator email allowlist. An empty allowlist admits
// any authenticated subject.
func NewOperatorAuthorizer(secret string, operatorEmails []string) *OperatorAuthorizer {
	operators := make(map[string]struct{}, len(operatorEmails))
	for _, email := range operatorEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			operators[email] = struct{}{}
		}
	}
	return &OperatorAuthorizer{
		secret:    []byte(secret),
		operators: operators,
	}
}

// ValidateToken parses and validates an operator token.
func (a *OperatorAuthorizer) ValidateToken(token string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// IsOperator reports whether the email is on the operator allowlist.
func (a *OperatorAuthorizer) IsOperator(email string) bool {
	if len(a.operators) == 0 {
		return true
	}
	_, ok := a.operators[strings.ToLower(email)]
	return ok
}

// RequireOperator returns a middleware that requires a valid operator token.
func RequireOperator(auth *OperatorAuthorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Authorization header required",
				},
			})
			return
		}

		claims, err := auth.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "INVALID_TOKEN",
					"message": "Invalid or expired token",
				},
			})
			return
		}

		if !auth.IsOperator(claims.Email) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "operator role required",
				},
			})
			return
		}

		c.Set(OperatorEmailKey, claims.Email)
		c.Next()
	}
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if authHeader == "" {
		return ""
	}
	if strings.HasPrefix(authHeader, BearerPrefix) {
		return strings.TrimPrefix(authHeader, BearerPrefix)
	}
	return ""
}
