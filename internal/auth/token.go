package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Verifier verifies and issues HS256 session tokens carrying "sub" and
// "email" claims.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a verifier with the given secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret, now: time.Now}
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verify validates token and returns the session it describes.
func (v *Verifier) Verify(token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: email", ErrMissingClaim)
	}

	s := &Session{
		User:  User{ID: claims.Subject, Email: claims.Email},
		Token: token,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Issue mints a token for user valid for ttl.
func (v *Verifier) Issue(user User, ttl time.Duration) (*Session, error) {
	if user.ID == "" || user.Email == "" {
		return nil, fmt.Errorf("%w: user id and email are required", ErrMissingClaim)
	}

	now := v.now()
	exp := now.Add(ttl)
	claims := sessionClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &Session{User: user, Token: token, ExpiresAt: exp.Truncate(time.Second)}, nil
}
