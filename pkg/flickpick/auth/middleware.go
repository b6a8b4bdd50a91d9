package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/flickpick/pkg/flickpick/apierror"
	"github.com/mikepea/flickpick/pkg/flickpick/models"
)

const (
	// ContextKeyPrincipal is the key for the resolved principal in gin context
	ContextKeyPrincipal = "principal"
	// ContextKeyToken is the key for the raw bearer token in gin context
	ContextKeyToken = "token"
)

var (
	errBadHeader     = apierror.Unauthorized("invalid_authorization_header", "Invalid authorization header format")
	errAdminRequired = apierror.Forbidden("admin_required", "Admin access required")
)

// bearerToken extracts the token from "Authorization: Bearer <token>".
// A missing header is not an error.
func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", errBadHeader
	}
	return parts[1], nil
}

// Middleware resolves the caller when a token is present. Anonymous
// requests pass through; bad tokens are rejected with 401.
func (r *Resolver) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			apierror.Abort(c, err)
			return
		}

		principal, err := r.Resolve(token)
		if err != nil {
			apierror.Abort(c, err)
			return
		}

		if principal != nil {
			c.Set(ContextKeyPrincipal, principal)
			c.Set(ContextKeyToken, token)
		}
		c.Next()
	}
}

// RequirePrincipal rejects anonymous requests. It must run after Middleware.
func RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetPrincipal(c) == nil {
			apierror.Abort(c, ErrAuthRequired)
			return
		}
		c.Next()
	}
}

// RequireAdmin middleware checks the caller is an account with the admin system role
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		if principal == nil {
			apierror.Abort(c, ErrAuthRequired)
			return
		}

		account, ok := principal.(AccountPrincipal)
		if !ok || account.User.SystemRole != models.SystemRoleAdmin {
			apierror.Abort(c, errAdminRequired)
			return
		}

		c.Next()
	}
}

// GetPrincipal returns the resolved principal from the gin context, or nil
func GetPrincipal(c *gin.Context) Principal {
	v, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return nil
	}
	principal, _ := v.(Principal)
	return principal
}

// GetAccount returns the account principal, if the caller is one
func GetAccount(c *gin.Context) (AccountPrincipal, bool) {
	account, ok := GetPrincipal(c).(AccountPrincipal)
	return account, ok
}
