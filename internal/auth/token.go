// ABOUTME: Bearer credential verification for the admin API.
// ABOUTME: Accepts HS256 JWTs or a bcrypt-hashed static operator token.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Verifier validates admin bearer credentials. Either the JWT secret or
// the static token hash may be empty; an empty credential path simply
// never matches.
type Verifier struct {
	secret    []byte
	tokenHash []byte
}

// NewVerifier creates a verifier. secret signs/validates JWTs; tokenHash
// is an optional bcrypt hash of a static operator token.
func NewVerifier(secret []byte, tokenHash string) *Verifier {
	return &Verifier{secret: secret, tokenHash: []byte(tokenHash)}
}

// Verify validates a bearer credential and returns the operator identity
// it authenticates: the JWT "sub" claim, or "operator" for the static
// token.
func (v *Verifier) Verify(credential string) (string, error) {
	if len(v.tokenHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(v.tokenHash, []byte(credential)); err == nil {
			return "operator", nil
		}
	}

	if len(v.secret) == 0 {
		return "", ErrInvalidToken
	}
	return v.verifyJWT(credential)
}

func (v *Verifier) verifyJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

// Generate creates a new JWT for the given operator id with expiration.
func (v *Verifier) Generate(operatorID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": operatorID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// HashToken bcrypt-hashes a static token for storage in config.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing token: %w", err)
	}
	return string(hash), nil
}
