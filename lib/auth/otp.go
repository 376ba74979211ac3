package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tarancss/luxhedge/lib/store"
)

// MaxAttempts is the number of wrong codes after which a one-time code is no longer accepted.
const MaxAttempts = 5

// One-time code errors.
var (
	ErrOTPInvalid  = errors.New("invalid code")
	ErrOTPExpired  = errors.New("code expired")
	ErrOTPAttempts = errors.New("too many attempts")
)

// OTP issues and verifies one-time codes sent by email. Codes are stored hashed, one per email and purpose.
type OTP struct {
	db     store.DB
	length int
	ttl    time.Duration
	now    func() time.Time
}

// NewOTP returns an OTP manager for codes of length digits valid for ttl.
func NewOTP(db store.DB, length int, ttl time.Duration) *OTP {
	return &OTP{db: db, length: length, ttl: ttl, now: time.Now}
}

// TTL returns how long the codes are valid.
func (o *OTP) TTL() time.Duration { return o.ttl }

// Issue creates a new code for email and purpose replacing any previous one, and returns it in clear.
func (o *OTP) Issue(ctx context.Context, email, purpose string) (string, error) {
	code, err := NewCode(o.length)
	if err != nil {
		return "", err
	}

	h, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		return "", fmt.Errorf("hashing code: %w", err)
	}

	otp := store.OTP{Email: email, Purpose: purpose, CodeHash: string(h), ExpiresAt: o.now().Add(o.ttl)}
	if err = o.db.SaveOTP(ctx, otp); err != nil {
		return "", err
	}

	return code, nil
}

// Verify checks code against the one issued for email and purpose. A matching code is deleted; a wrong one counts as
// an attempt.
func (o *OTP) Verify(ctx context.Context, email, purpose, code string) error {
	otp, err := o.db.GetOTP(ctx, email, purpose)
	if errors.Is(err, store.ErrNotFound) {
		return ErrOTPInvalid
	} else if err != nil {
		return err
	}

	switch {
	case o.now().After(otp.ExpiresAt):
		return ErrOTPExpired
	case otp.Attempts >= MaxAttempts:
		return ErrOTPAttempts
	}

	if bcrypt.CompareHashAndPassword([]byte(otp.CodeHash), []byte(code)) != nil {
		otp.Attempts++
		if err = o.db.SaveOTP(ctx, otp); err != nil {
			return err
		}

		return ErrOTPInvalid
	}

	return o.db.DeleteOTP(ctx, email, purpose)
}
