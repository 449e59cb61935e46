// Package auth implements credential hashing and bearer-token identity
// resolution. The rest of the core only consumes ResolveIdentity.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredential is returned for any token or password that fails
// validation. Callers must not distinguish failure causes.
var ErrInvalidCredential = errors.New("invalid credential")

// Claims are the JWT claims carried by issued tokens. The subject is the
// user handle.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator issues and validates bearer tokens.
type Authenticator struct {
	secret     []byte
	expiration time.Duration
}

// NewAuthenticator creates an authenticator with the given HMAC secret.
func NewAuthenticator(secret string, expiration time.Duration) *Authenticator {
	return &Authenticator{
		secret:     []byte(secret),
		expiration: expiration,
	}
}

// IssueToken creates a signed bearer token for the given user handle.
func (a *Authenticator) IssueToken(handle string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   handle,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ResolveIdentity validates an opaque bearer credential and returns the
// authenticated user handle.
func (a *Authenticator) ResolveIdentity(credential string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidCredential
	}
	return claims.Subject, nil
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks a plaintext password against a stored hash.
func VerifyPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredential
	}
	return nil
}
