package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role distinguishes the two principal kinds this subsystem serves. Session
// issuance lives with the external user-management collaborator; this
// package only verifies what it issued.
type Role string

const (
	RoleReporter  Role = "reporter"
	RoleAuthority Role = "authority"
)

// Principal is an already-authenticated caller.
type Principal struct {
	UserID string
	Role   Role
}

// ErrInvalidToken is returned for tokens that fail verification or carry
// malformed claims.
var ErrInvalidToken = errors.New("auth: invalid token")

// Verifier validates bearer tokens and extracts the principal.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyToken validates a JWT and returns the principal it identifies.
func (v *Verifier) VerifyToken(tokenString string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return Principal{}, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return Principal{}, fmt.Errorf("%w: missing role", ErrInvalidToken)
	}
	role := Role(roleStr)
	if role != RoleReporter && role != RoleAuthority {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, roleStr)
	}

	return Principal{UserID: userID, Role: role}, nil
}

// IssueToken mints a token for a principal. Production issuance belongs to
// the session collaborator; this exists for local wiring and test fixtures.
func (v *Verifier) IssueToken(p Principal, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": p.UserID,
		"role":    string(p.Role),
		"exp":     time.Now().Add(ttl).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
