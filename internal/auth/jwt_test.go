package auth

import (
	"testing"
	"time"

	"barter-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndAuthenticate(t *testing.T) {
	a := NewAuthenticator("test-secret-key", time.Hour)

	token, err := a.GenerateToken(models.Principal{ID: 7, Email: "ann@example.com"})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	p, err := a.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.ID != 7 {
		t.Errorf("expected id 7, got %d", p.ID)
	}
	if p.Email != "ann@example.com" {
		t.Errorf("expected email 'ann@example.com', got %q", p.Email)
	}
}

func TestAuthenticateWrongSecret(t *testing.T) {
	token, _ := NewAuthenticator("secret1", 0).GenerateToken(models.Principal{ID: 1, Email: "a@example.com"})

	if _, err := NewAuthenticator("secret2", 0).Authenticate(token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestAuthenticateInvalid(t *testing.T) {
	if _, err := NewAuthenticator("secret", 0).Authenticate("not-a-token"); err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestAuthenticateExpired(t *testing.T) {
	claims := Claims{
		UserID: 1,
		Email:  "a@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	if _, err := NewAuthenticator("secret", 0).Authenticate(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestAuthenticateRequiresEmail(t *testing.T) {
	a := NewAuthenticator("secret", 0)
	token, _ := a.GenerateToken(models.Principal{ID: 1})

	if _, err := a.Authenticate(token); err == nil {
		t.Error("expected error for token without email")
	}
}

func TestAuthenticateRequiresUserID(t *testing.T) {
	a := NewAuthenticator("secret", 0)
	for _, id := range []int64{0, -3} {
		token, err := a.GenerateToken(models.Principal{ID: id, Email: "dave@example.com"})
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		if _, err := a.Authenticate(token); err == nil {
			t.Errorf("expected error for token with user id %d", id)
		}
	}
}

func TestTokenExpiry(t *testing.T) {
	a := NewAuthenticator("test", 0)
	token, _ := a.GenerateToken(models.Principal{ID: 1, Email: "a@example.com"})

	parsed, _ := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) { return []byte("test"), nil })
	claims := parsed.Claims.(*Claims)

	diff := time.Now().Add(DefaultTokenTTL).Sub(claims.ExpiresAt.Time)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}
