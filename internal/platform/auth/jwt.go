package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

// userClaims is the payload of locally issued HS256 tokens.
type userClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// HMACTokenVerifier verifies HS256 tokens signed with a shared secret. It backs local
// development and deployments without Firebase.
type HMACTokenVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ TokenVerifier = (*HMACTokenVerifier)(nil)

// NewHMACTokenVerifier builds a verifier for tokens minted by issuer.
func NewHMACTokenVerifier(secret, issuer string) (*HMACTokenVerifier, error) {
	if len(strings.TrimSpace(secret)) < 32 {
		return nil, errors.New("auth: jwt secret must be at least 32 characters")
	}
	return &HMACTokenVerifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer), now: time.Now}, nil
}

func (v *HMACTokenVerifier) VerifyToken(_ context.Context, raw string) (*Token, error) {
	claims := &userClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrTokenInvalid, claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}

	token := &Token{
		UID: claims.Subject,
		Claims: map[string]any{
			"email": claims.Email,
			"name":  claims.Name,
			"role":  claims.Role,
		},
	}
	if claims.ExpiresAt != nil {
		token.ExpiresAt = claims.ExpiresAt.Time
	}
	return token, nil
}

// IssueToken signs a token for subject. Used by local tooling and tests.
func (v *HMACTokenVerifier) IssueToken(subject, email, role string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := userClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
