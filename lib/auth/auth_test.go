package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/luxhedge/lib/store"
	"github.com/tarancss/luxhedge/lib/store/memory"
)

func TestTokens(t *testing.T) {
	_, err := NewTokens("", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)

	tk, err := NewTokens("secret", time.Hour)
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tk.now = func() time.Time { return now }

	s, exp, err := tk.Issue("user-1", store.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	c, err := tk.Parse(s)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.Subject)
	assert.Equal(t, store.RoleAdmin, c.Role)

	// tampered
	_, err = tk.Parse(s[:len(s)-2] + "xx")
	assert.ErrorIs(t, err, ErrBadToken)

	// other secret
	other, err := NewTokens("other", time.Hour)
	require.NoError(t, err)
	other.now = tk.now

	_, err = other.Parse(s)
	assert.ErrorIs(t, err, ErrBadToken)

	// expired
	now = now.Add(2 * time.Hour)
	_, err = tk.Parse(s)
	assert.ErrorIs(t, err, ErrBadToken)

	// wrong algorithm
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: store.RoleAdmin}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tk.Parse(none)
	assert.ErrorIs(t, err, ErrBadToken)

	// no subject
	nosub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = tk.Parse(nosub)
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestPassword(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrShortPassword)

	h, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", h)

	assert.NoError(t, CheckPassword(h, "correct horse"))
	assert.ErrorIs(t, CheckPassword(h, "wrong horse"), ErrBadPassword)
	assert.ErrorIs(t, CheckPassword("not a hash", "correct horse"), ErrBadPassword)
}

func TestNewCode(t *testing.T) {
	for _, n := range []int{4, 6, 8} {
		c, err := NewCode(n)
		require.NoError(t, err)
		assert.Len(t, c, n)
		assert.Empty(t, strings.Trim(c, "0123456789"))
	}
}

func TestOTP(t *testing.T) {
	ctx := context.Background()

	db, err := memory.New()
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	o := NewOTP(db, 6, 10*time.Minute)
	o.now = func() time.Time { return now }
	assert.Equal(t, 10*time.Minute, o.TTL())

	const email = "ana@example.com"

	// unknown
	assert.ErrorIs(t, o.Verify(ctx, email, store.OTPVerify, "000000"), ErrOTPInvalid)

	code, err := o.Issue(ctx, email, store.OTPVerify)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	// other purpose
	assert.ErrorIs(t, o.Verify(ctx, email, store.OTPLogin, code), ErrOTPInvalid)

	// a new code replaces the previous one
	code2, err := o.Issue(ctx, email, store.OTPVerify)
	require.NoError(t, err)

	if code2 != code {
		assert.ErrorIs(t, o.Verify(ctx, email, store.OTPVerify, code), ErrOTPInvalid)
	}

	require.NoError(t, o.Verify(ctx, email, store.OTPVerify, code2))

	// single use
	assert.ErrorIs(t, o.Verify(ctx, email, store.OTPVerify, code2), ErrOTPInvalid)

	// expired
	code, err = o.Issue(ctx, email, store.OTPLogin)
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)
	assert.ErrorIs(t, o.Verify(ctx, email, store.OTPLogin, code), ErrOTPExpired)
}

func TestOTPAttempts(t *testing.T) {
	ctx := context.Background()

	db, err := memory.New()
	require.NoError(t, err)

	o := NewOTP(db, 6, time.Minute)

	code, err := o.Issue(ctx, "bob@example.com", store.OTPLogin)
	require.NoError(t, err)

	wrong := "x" + code[1:]
	for i := 0; i < MaxAttempts; i++ {
		assert.ErrorIs(t, o.Verify(ctx, "bob@example.com", store.OTPLogin, wrong), ErrOTPInvalid)
	}

	otp, err := db.GetOTP(ctx, "bob@example.com", store.OTPLogin)
	require.NoError(t, err)
	assert.Equal(t, MaxAttempts, otp.Attempts)

	assert.ErrorIs(t, o.Verify(ctx, "bob@example.com", store.OTPLogin, code), ErrOTPAttempts)
}
