package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims accepts the user id under sub, userId or user_id.
type Claims struct {
	UserID    string `json:"userId,omitempty"`
	UserIDAlt string `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) userID() string {
	switch {
	case c.Subject != "":
		return c.Subject
	case c.UserID != "":
		return c.UserID
	default:
		return c.UserIDAlt
	}
}

// JWTVerifier validates HS256 tokens signed with a shared secret
type JWTVerifier struct {
	secret []byte
	leeway time.Duration
}

// NewJWTVerifier creates a verifier for HS256 tokens signed with secret
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), leeway: 30 * time.Second}
}

func (v *JWTVerifier) Verify(_ context.Context, tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, ErrNoCredential
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithLeeway(v.leeway))
	if err != nil {
		return Identity{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, errors.New("invalid token")
	}
	uid := claims.userID()
	if uid == "" {
		return Identity{}, errors.New("token has no user id")
	}
	return Identity{UserID: uid, Username: claims.Username}, nil
}

// Sign issues a token for id valid for ttl. Used by cmd/devtoken and tests.
func Sign(secret string, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
