// Package token issues and inspects room tokens.
//
// A room token is an HS256 JWT naming the room it grants access to. The
// client only inspects the claims to reject a token issued for another
// room before dialing; the engine verifies the signature.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleWriter Role = "writer"
	RoleReader Role = "reader"
)

// CanWrite reports whether the role may join interactively.
func (r Role) CanWrite() bool {
	return r == RoleAdmin || r == RoleWriter
}

type Claims struct {
	Room string `json:"room"`
	Role Role   `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a token for room. A zero ttl issues a token that never
// expires.
func Issue(secret []byte, room string, role Role, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Room: room,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Inspect decodes the claims of tok without verifying its signature.
func Inspect(tok string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return nil, fmt.Errorf("%w: malformed room token: %v", constants.ErrAuthorization, err)
	}
	return claims, nil
}

// CheckRoom fails when tok was not issued for room.
func CheckRoom(tok, room string) error {
	claims, err := Inspect(tok)
	if err != nil {
		return err
	}
	if claims.Room != room {
		return fmt.Errorf("%w: token was issued for room %q, not %q", constants.ErrAuthorization, claims.Room, room)
	}
	return nil
}

// Verify checks the signature and expiry of tok at now and returns its
// claims.
func Verify(secret []byte, tok string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tok, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: room token expired", constants.ErrAuthorization)
	default:
		return nil, fmt.Errorf("%w: %v", constants.ErrAuthorization, err)
	}
}
