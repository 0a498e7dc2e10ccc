package invite

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/careloop/careloop/internal/platform/errors"
)

// ErrInvalidToken indicates a token that failed signature or claim checks.
var ErrInvalidToken = apperrors.New(apperrors.CodeInviteTokenInvalid, "invitation token is invalid")

// TokenClaims are the signed claims carried by an invitation token.
type TokenClaims struct {
	OrganizationID string `json:"org_id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	jwt.RegisteredClaims
}

// TokenSigner mints and verifies signed invitation tokens.
type TokenSigner struct {
	secret []byte
	now    func() time.Time
}

// NewTokenSigner creates a signer with the given HMAC secret.
func NewTokenSigner(secret []byte, now func() time.Time) *TokenSigner {
	if now == nil {
		now = time.Now
	}
	return &TokenSigner{secret: secret, now: now}
}

// Mint produces a signed token for the invitation, expiring with it.
func (s *TokenSigner) Mint(invitation Invitation) (string, error) {
	issuedAt := s.now().UTC()
	claims := TokenClaims{
		OrganizationID: invitation.OrganizationID,
		Email:          invitation.Email,
		Role:           invitation.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   invitation.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(invitation.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign invitation token: %w", err)
	}
	return signed, nil
}

// Verify parses a signed token and returns its claims.
func (s *TokenSigner) Verify(raw string) (TokenClaims, error) {
	var claims TokenClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return TokenClaims{}, apperrors.Wrap(apperrors.CodeInviteTokenInvalid, "invitation token is invalid", err)
	}
	if !token.Valid {
		return TokenClaims{}, ErrInvalidToken
	}
	return claims, nil
}
