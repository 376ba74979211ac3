// Package storetest contains the tests every store.DB implementation has to pass. Backends call Run from their own
// tests with a fresh, empty database.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/luxhedge/lib/store"
)

// Run executes all the store tests against db.
func Run(t *testing.T, db store.DB) {
	t.Helper()

	t.Run("users", func(t *testing.T) { testUsers(t, db) })
	t.Run("plans", func(t *testing.T) { testPlans(t, db) })
	t.Run("funds", func(t *testing.T) { testFunds(t, db) })
	t.Run("goals", func(t *testing.T) { testGoals(t, db) })
	t.Run("withdrawals", func(t *testing.T) { testWithdrawals(t, db) })
	t.Run("wallets", func(t *testing.T) { testWallets(t, db) })
	t.Run("performance", func(t *testing.T) { testPerformance(t, db) })
	t.Run("otp", func(t *testing.T) { testOTP(t, db) })
	t.Run("watcher", func(t *testing.T) { testWatcher(t, db) })
}

// ts returns a fixed time truncated to what every backend can store.
func ts(minutes int) time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}

func testUsers(t *testing.T, db store.DB) {
	ctx := context.Background()

	u := store.User{
		ID: uuid.NewString(), Name: "Ann", Email: "ann@example.com", PasswordHash: "hash",
		Role: store.RoleInvestor, KYC: store.KYCNone, CreatedAt: ts(0),
	}
	require.NoError(t, db.CreateUser(ctx, u))

	dup := u
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, db.CreateUser(ctx, dup), store.ErrDuplicate)

	got, err := db.GetUserByEmail(ctx, "ANN@example.com ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.True(t, u.CreatedAt.Equal(got.CreatedAt))

	got.Verified = true
	got.KYC = store.KYCPending
	require.NoError(t, db.UpdateUser(ctx, got))

	got, err = db.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, store.KYCPending, got.KYC)

	_, err = db.GetUser(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, db.UpdateUser(ctx, store.User{ID: uuid.NewString(), Email: "x@y.z"}), store.ErrNotFound)

	v := store.User{ID: uuid.NewString(), Name: "Bob", Email: "bob@example.com", Role: store.RoleAdmin,
		KYC: store.KYCNone, CreatedAt: ts(5)}
	require.NoError(t, db.CreateUser(ctx, v))

	us, err := db.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, us, 2)
	assert.Equal(t, v.ID, us[0].ID, "newest first")
}

func testPlans(t *testing.T, db store.DB) {
	ctx := context.Background()

	p := store.Plan{ID: uuid.NewString(), Name: "Starter", MinAmount: store.Dollars(100),
		MaxAmount: store.Dollars(5000), ROI: 2.5, DurationDays: 30, Active: true, CreatedAt: ts(0)}
	q := store.Plan{ID: uuid.NewString(), Name: "Closed", MinAmount: store.Dollars(10), ROI: 1,
		DurationDays: 7, CreatedAt: ts(1)}

	require.NoError(t, db.SavePlan(ctx, p))
	require.NoError(t, db.SavePlan(ctx, q))

	p.Name = "Starter+"
	require.NoError(t, db.SavePlan(ctx, p))

	got, err := db.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Starter+", got.Name)
	assert.Equal(t, store.Dollars(5000), got.MaxAmount)
	assert.InDelta(t, 2.5, got.ROI, 1e-9)

	ps, err := db.ListPlans(ctx, true)
	require.NoError(t, err)
	require.Len(t, ps, 1)

	ps, err = db.ListPlans(ctx, false)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, q.ID, ps[0].ID)

	require.NoError(t, db.DeletePlan(ctx, q.ID))
	assert.ErrorIs(t, db.DeletePlan(ctx, q.ID), store.ErrNotFound)

	_, err = db.GetPlan(ctx, q.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testFunds(t *testing.T, db store.DB) {
	ctx := context.Background()
	user, plan := uuid.NewString(), uuid.NewString()

	f := store.Fund{ID: uuid.NewString(), UserID: user, PlanID: plan, Asset: "USDT", Network: "eth",
		Amount: store.Cents(125050), TxHash: "0xABC", Status: store.FundPending, CreatedAt: ts(0)}
	g := store.Fund{ID: uuid.NewString(), UserID: uuid.NewString(), PlanID: plan, Asset: "BTC", Network: "btc",
		Amount: store.Dollars(300), Status: store.FundPending, CreatedAt: ts(1)}

	require.NoError(t, db.CreateFund(ctx, f))
	require.NoError(t, db.CreateFund(ctx, g))
	assert.ErrorIs(t, db.CreateFund(ctx, f), store.ErrDuplicate)

	approved, matures := ts(10), ts(10+30*24*60)
	f.Status, f.ApprovedAt, f.MaturesAt, f.Profit = store.FundActive, &approved, &matures, store.Cents(3126)
	require.NoError(t, db.UpdateFund(ctx, f))

	got, err := db.GetFund(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, store.FundActive, got.Status)
	assert.Equal(t, store.Cents(3126), got.Profit)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, approved.Equal(*got.ApprovedAt))

	got, err = db.GetFund(ctx, g.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ApprovedAt)

	fs, err := db.ListFunds(ctx, store.FundFilter{})
	require.NoError(t, err)
	require.Len(t, fs, 2)
	assert.Equal(t, g.ID, fs[0].ID)

	fs, err = db.ListFunds(ctx, store.FundFilter{UserID: user})
	require.NoError(t, err)
	require.Len(t, fs, 1)

	fs, err = db.ListFunds(ctx, store.FundFilter{Status: store.FundPending, Network: "btc"})
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, g.ID, fs[0].ID)

	fs, err = db.ListFunds(ctx, store.FundFilter{PlanID: plan, Status: store.FundCompleted})
	require.NoError(t, err)
	assert.Empty(t, fs)

	assert.ErrorIs(t, db.UpdateFund(ctx, store.Fund{ID: uuid.NewString()}), store.ErrNotFound)
}

func testGoals(t *testing.T, db store.DB) {
	ctx := context.Background()
	user := uuid.NewString()

	g := store.Goal{ID: uuid.NewString(), UserID: user, Name: "House", Target: store.Dollars(50000),
		Deadline: ts(60 * 24 * 365), CreatedAt: ts(0)}
	require.NoError(t, db.CreateGoal(ctx, g))

	gs, err := db.ListGoals(ctx, user)
	require.NoError(t, err)
	require.Len(t, gs, 1)
	assert.Equal(t, store.Dollars(50000), gs[0].Target)

	gs, err = db.ListGoals(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, gs)

	assert.ErrorIs(t, db.DeleteGoal(ctx, uuid.NewString(), g.ID), store.ErrNotFound, "goal of another user")
	require.NoError(t, db.DeleteGoal(ctx, user, g.ID))
	assert.ErrorIs(t, db.DeleteGoal(ctx, user, g.ID), store.ErrNotFound)
}

func testWithdrawals(t *testing.T, db store.DB) {
	ctx := context.Background()
	user := uuid.NewString()

	w := store.Withdrawal{ID: uuid.NewString(), UserID: user, Amount: store.Dollars(50), Asset: "USDT",
		Network: "tron", Address: "TXYZ", Status: store.WithdrawalPending, CreatedAt: ts(0)}
	require.NoError(t, db.CreateWithdrawal(ctx, w))

	done := ts(3)
	w.Status, w.Note, w.ProcessedAt = store.WithdrawalRejected, "wrong address", &done
	require.NoError(t, db.UpdateWithdrawal(ctx, w))

	got, err := db.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, store.WithdrawalRejected, got.Status)
	assert.Equal(t, "wrong address", got.Note)

	ws, err := db.ListWithdrawals(ctx, store.WithdrawalFilter{UserID: user, Status: store.WithdrawalPending})
	require.NoError(t, err)
	assert.Empty(t, ws)

	ws, err = db.ListWithdrawals(ctx, store.WithdrawalFilter{Status: store.WithdrawalRejected})
	require.NoError(t, err)
	require.Len(t, ws, 1)

	_, err = db.GetWithdrawal(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testWallets(t *testing.T, db store.DB) {
	ctx := context.Background()

	a := store.Wallet{ID: uuid.NewString(), Asset: "ETH", Network: "eth", Address: "0x357dd3856d856197c1a000bbAb4aBCB97Dfc92c4",
		Active: true, CreatedAt: ts(0)}
	b := store.Wallet{ID: uuid.NewString(), Asset: "BTC", Network: "btc", Address: "bc1qxyz", Label: "cold",
		CreatedAt: ts(1)}

	require.NoError(t, db.SaveWallet(ctx, a))
	require.NoError(t, db.SaveWallet(ctx, b))

	ws, err := db.ListWallets(ctx, store.WalletFilter{Asset: "eth"})
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, a.ID, ws[0].ID)

	ws, err = db.ListWallets(ctx, store.WalletFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, ws, 1)

	ws, err = db.ListWallets(ctx, store.WalletFilter{})
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.Equal(t, b.ID, ws[0].ID)

	got, err := db.GetWallet(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "cold", got.Label)

	require.NoError(t, db.DeleteWallet(ctx, b.ID))
	assert.ErrorIs(t, db.DeleteWallet(ctx, b.ID), store.ErrNotFound)
}

func testPerformance(t *testing.T, db store.DB) {
	ctx := context.Background()
	plan := uuid.NewString()

	require.NoError(t, db.AddPerformance(ctx, store.Performance{ID: uuid.NewString(), PlanID: plan, ROI: 1.5,
		Funds: 2, Credit: store.Cents(4500), CreatedAt: ts(0)}))
	require.NoError(t, db.AddPerformance(ctx, store.Performance{ID: uuid.NewString(), PlanID: plan, ROI: -0.5,
		Funds: 2, Credit: store.Cents(-1500), CreatedAt: ts(1)}))
	require.NoError(t, db.AddPerformance(ctx, store.Performance{ID: uuid.NewString(), PlanID: uuid.NewString(),
		ROI: 3, CreatedAt: ts(2)}))

	ps, err := db.ListPerformance(ctx, plan)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.InDelta(t, -0.5, ps[0].ROI, 1e-9)
	assert.Equal(t, store.Cents(-1500), ps[0].Credit)

	ps, err = db.ListPerformance(ctx, "")
	require.NoError(t, err)
	assert.Len(t, ps, 3)
}

func testOTP(t *testing.T, db store.DB) {
	ctx := context.Background()

	o := store.OTP{Email: "ann@example.com", Purpose: store.OTPVerify, CodeHash: "h1", ExpiresAt: ts(10)}
	require.NoError(t, db.SaveOTP(ctx, o))

	o.CodeHash, o.Attempts = "h2", 1
	require.NoError(t, db.SaveOTP(ctx, o))

	got, err := db.GetOTP(ctx, "Ann@Example.com", store.OTPVerify)
	require.NoError(t, err)
	assert.Equal(t, "h2", got.CodeHash)
	assert.Equal(t, 1, got.Attempts)
	assert.True(t, ts(10).Equal(got.ExpiresAt))

	_, err = db.GetOTP(ctx, "ann@example.com", store.OTPLogin)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, db.DeleteOTP(ctx, "ann@example.com", store.OTPVerify))
	_, err = db.GetOTP(ctx, "ann@example.com", store.OTPVerify)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testWatcher(t *testing.T, db store.DB) {
	ctx := context.Background()

	_, err := db.LoadWatcher(ctx, "ropsten")
	assert.ErrorIs(t, err, store.ErrNotFound)

	ws := store.WatcherState{Block: 208, Bh: []string{"first", "second", "third"}, Bhi: 1,
		Map: map[string]string{"0xabc": "w1"}}
	require.NoError(t, db.SaveWatcher(ctx, "ropsten", ws))

	ws.Block = 209
	require.NoError(t, db.SaveWatcher(ctx, "ropsten", ws))

	got, err := db.LoadWatcher(ctx, "ropsten")
	require.NoError(t, err)
	assert.Equal(t, uint64(209), got.Block)
	assert.Equal(t, 1, got.Bhi)
	assert.Equal(t, []string{"first", "second", "third"}, got.Bh)
	assert.Equal(t, "w1", got.Map["0xabc"])
}
