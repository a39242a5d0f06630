package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"stockcore/internal/core/apperror"
	"stockcore/internal/core/id"
	"stockcore/internal/core/tenant"
)

// ScopeClaims are the token claims the engine consumes. Company and branch
// arrive as claims issued by the identity service; the engine never stores
// credentials itself.
type ScopeClaims struct {
	jwt.RegisteredClaims

	CompanyID string `json:"company_id"`
	BranchID  string `json:"branch_id"`
}

// TokenVerifier validates HMAC-signed access tokens and extracts the
// tenant scope.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for the shared signing secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the tenant scope.
func (v *TokenVerifier) Verify(tokenString string) (tenant.Scope, error) {
	claims := &ScopeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return tenant.Scope{}, err
	}
	if !token.Valid {
		return tenant.Scope{}, fmt.Errorf("token invalid")
	}

	companyID, err := id.Parse(claims.CompanyID)
	if err != nil {
		return tenant.Scope{}, fmt.Errorf("invalid company_id claim: %w", err)
	}

	scope := tenant.Scope{
		CompanyID: companyID,
		UserID:    claims.Subject,
	}
	if claims.BranchID != "" {
		branchID, err := id.Parse(claims.BranchID)
		if err != nil {
			return tenant.Scope{}, fmt.Errorf("invalid branch_id claim: %w", err)
		}
		scope.BranchID = branchID
	}
	return scope, nil
}

// Auth validates the bearer token and stores the tenant scope in the
// request context. Every row written downstream carries this scope.
func Auth(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			_ = c.Error(apperror.NewUnauthorized("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			_ = c.Error(apperror.NewUnauthorized("invalid authorization header format"))
			c.Abort()
			return
		}

		scope, err := verifier.Verify(parts[1])
		if err != nil {
			_ = c.Error(apperror.NewUnauthorized("invalid token"))
			c.Abort()
			return
		}

		ctx := tenant.WithScope(c.Request.Context(), scope)
		c.Request = c.Request.WithContext(ctx)
		c.Set("user_id", scope.UserID)

		c.Next()
	}
}
