// Package auth issues and checks the bearer tokens of the api and hashes passwords and one-time codes.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// MinPassword is the minimum length of a password.
const MinPassword = 8

// Errors.
var (
	ErrBadToken      = errors.New("invalid or expired token")
	ErrShortPassword = fmt.Errorf("password must have at least %d characters", MinPassword)
	ErrBadPassword   = errors.New("wrong email or password")
	ErrNoSecret      = errors.New("jwt secret not configured")
)

// Claims are the claims of the api tokens: the subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and parses HS256 tokens signed with a shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a token issuer whose tokens expire after ttl.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}

	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for the user and its expiry time.
func (t *Tokens) Issue(userID, role string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)

	c := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return s, exp, nil
}

// Parse checks the signature and expiry of token and returns its claims.
func (t *Tokens) Parse(token string) (*Claims, error) {
	var c Claims

	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadToken, err.Error())
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrBadToken)
	}

	return &c, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPassword {
		return "", ErrShortPassword
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	return string(h), nil
}

// CheckPassword returns ErrBadPassword if password does not match hash.
func CheckPassword(hash, password string) error {
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrBadPassword
	}

	return nil
}

// NewCode returns a random numeric code of n digits.
func NewCode(n int) (string, error) {
	b := make([]byte, n)
	ten := big.NewInt(10) //nolint:gomnd // digits

	for i := range b {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generating code: %w", err)
		}

		b[i] = '0' + byte(d.Int64())
	}

	return string(b), nil
}
