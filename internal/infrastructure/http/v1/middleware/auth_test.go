package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"stockcore/internal/core/id"
)

func signToken(t *testing.T, secret string, claims ScopeClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerify(t *testing.T) {
	verifier := NewTokenVerifier("test-secret")
	companyID := id.New()
	branchID := id.New()

	tokenString := signToken(t, "test-secret", ScopeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		CompanyID: companyID.String(),
		BranchID:  branchID.String(),
	})

	scope, err := verifier.Verify(tokenString)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if scope.CompanyID != companyID {
		t.Errorf("company = %s, want %s", scope.CompanyID, companyID)
	}
	if scope.BranchID != branchID {
		t.Errorf("branch = %s, want %s", scope.BranchID, branchID)
	}
	if scope.UserID != "user-42" {
		t.Errorf("user = %q, want user-42", scope.UserID)
	}
}

func TestVerifyOptionalBranch(t *testing.T) {
	verifier := NewTokenVerifier("test-secret")

	tokenString := signToken(t, "test-secret", ScopeClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-42"},
		CompanyID:        id.New().String(),
	})

	scope, err := verifier.Verify(tokenString)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !id.IsNil(scope.BranchID) {
		t.Errorf("branch should stay zero when the claim is absent")
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	verifier := NewTokenVerifier("test-secret")
	companyID := id.New().String()

	tests := []struct {
		name  string
		token string
	}{
		{
			"wrong secret",
			signToken(t, "other-secret", ScopeClaims{CompanyID: companyID}),
		},
		{
			"expired",
			signToken(t, "test-secret", ScopeClaims{
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				},
				CompanyID: companyID,
			}),
		},
		{
			"missing company claim",
			signToken(t, "test-secret", ScopeClaims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: "user-42"},
			}),
		},
		{"garbage", "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := verifier.Verify(tt.token); err == nil {
				t.Error("expected verification to fail")
			}
		})
	}
}
