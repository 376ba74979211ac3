package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/luxhedge/lib/auth"
	"github.com/tarancss/luxhedge/lib/store"
	"github.com/tarancss/luxhedge/lib/store/memory"
)

func TestCreateAdmin(t *testing.T) {
	ctx := context.Background()

	db, err := memory.New()
	require.NoError(t, err)

	u, err := createAdmin(ctx, db, " Ops@LuxHedge.com ", "Ops", "s3cret-pass")
	require.NoError(t, err)

	got, err := db.GetUserByEmail(ctx, "ops@luxhedge.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, store.RoleAdmin, got.Role)
	assert.True(t, got.Verified)
	assert.Equal(t, store.KYCApproved, got.KYC)
	assert.NoError(t, auth.CheckPassword(got.PasswordHash, "s3cret-pass"))

	_, err = createAdmin(ctx, db, "ops@luxhedge.com", "Ops", "s3cret-pass")
	assert.ErrorIs(t, err, store.ErrDuplicate)

	_, err = createAdmin(ctx, db, "", "Ops", "s3cret-pass")
	assert.ErrorIs(t, err, ErrNoEmail)

	_, err = createAdmin(ctx, db, "new@luxhedge.com", "Ops", "short")
	assert.ErrorIs(t, err, auth.ErrShortPassword)
}
