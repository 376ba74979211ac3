package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/hd"

	"github.com/tarancss/luxhedge/lib/auth"
	"github.com/tarancss/luxhedge/lib/block"
	"github.com/tarancss/luxhedge/lib/block/ethereum"
	"github.com/tarancss/luxhedge/lib/block/ethereum/ethtest"
	"github.com/tarancss/luxhedge/lib/block/tron"
	"github.com/tarancss/luxhedge/lib/block/types"
	"github.com/tarancss/luxhedge/lib/chat"
	"github.com/tarancss/luxhedge/lib/config"
	"github.com/tarancss/luxhedge/lib/invest"
	"github.com/tarancss/luxhedge/lib/msg"
	"github.com/tarancss/luxhedge/lib/msg/local"
	"github.com/tarancss/luxhedge/lib/price"
	"github.com/tarancss/luxhedge/lib/store"
	"github.com/tarancss/luxhedge/lib/store/memory"
)

const (
	seed     = "642ce4e20f09c9f4d285c2b336063eaafbe4cb06dece8134f3a64bdd8f8c0c24df73e1a2e7056359b6db61e179ff45e5ada51d14f07b30becb6d92b961d35df4" //nolint:lll // testdata
	hdAddr21 = "0xf4cefc8d1afaa51d5a5e7f57d214b60429ca4378" // wallet 2, external, id 1
	password = "s3cret-pass"
)

type pricer struct {
	p   price.Prices
	err error
}

func (p pricer) USD(context.Context) (price.Prices, error) { return p.p, p.err }

type env struct {
	a    *API
	db   store.DB
	mb   *local.Local
	node *ethtest.Node
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := memory.New()
	require.NoError(t, err)

	node := ethtest.NewNode()
	t.Cleanup(node.Close)

	eth, err := ethereum.Init(node.URL, "", 4)
	require.NoError(t, err)

	chains := map[string]block.Chain{"eth": eth, "tron": tron.Init("http://127.0.0.1:1", "")}
	t.Cleanup(func() { block.End(chains) })

	hdw, err := NewHD(seed)
	require.NoError(t, err)

	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	mb := local.New()
	t.Cleanup(func() { _ = mb.Close() })

	a := New(Deps{
		DB: db, Chains: chains, HD: hdw, Broker: mb, Tokens: tokens, OTP: auth.NewOTP(db, 6, 10*time.Minute),
		Prices: pricer{p: price.Prices{"BTC": 65000.5, "ETH": 3200}}, DryRun: true,
	})

	return &env{a: a, db: db, mb: mb, node: node}
}

// do serves a request and returns the status code, the body and the error of the Response.
func (e *env) do(t *testing.T, method, path, token string, body interface{}) (int, json.RawMessage, string) {
	t.Helper()

	var b bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&b).Encode(body))
	}

	req := httptest.NewRequest(method, path, &b)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.a.Router().ServeHTTP(rec, req)

	var res struct {
		Body  json.RawMessage `json:"body"`
		Error string          `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res), path)

	return rec.Code, res.Body, res.Error
}

// user creates a user and returns it with a token.
func (e *env) user(t *testing.T, name, role string, verified bool) (store.User, string) {
	t.Helper()

	u := store.User{
		ID: uuid.NewString(), Name: name, Email: strings.ToLower(name) + "@example.com", Role: role,
		Verified: verified, KYC: store.KYCNone, CreatedAt: time.Now(),
	}
	require.NoError(t, e.db.CreateUser(context.Background(), u))

	token, _, err := e.a.Tokens.Issue(u.ID, u.Role)
	require.NoError(t, err)

	return u, token
}

func (e *env) plan(t *testing.T, active bool) store.Plan {
	t.Helper()

	p := store.Plan{
		ID: uuid.NewString(), Name: "Gold", MinAmount: store.Dollars(500), MaxAmount: store.Dollars(10000), ROI: 10,
		DurationDays: 30, Active: active, CreatedAt: time.Now(),
	}
	require.NoError(t, e.db.SavePlan(context.Background(), p))

	return p
}

func unmarshal[T any](t *testing.T, b json.RawMessage) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))

	return v
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ErrNoToken, http.StatusUnauthorized},
		{auth.ErrOTPExpired, http.StatusUnauthorized},
		{ErrUnverified, http.StatusForbidden},
		{store.ErrNotFound, http.StatusNotFound},
		{upstream("eth", types.ErrNoTrx), http.StatusNotFound},
		{store.ErrDuplicate, http.StatusConflict},
		{invest.ErrTransition, http.StatusConflict},
		{badRequest("x"), http.StatusBadRequest},
		{invest.ErrInsufficient, http.StatusBadRequest},
		{upstream("prices", errors.New("timeout")), http.StatusBadGateway},
		{errors.New("db down"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		assert.Equal(t, c.status, statusOf(c.err), c.err.Error())
	}
}

func TestPublic(t *testing.T) {
	e := newEnv(t)

	s, b, _ := e.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, s)
	assert.Equal(t, "Hello, this is the luxhedge API!", unmarshal[string](t, b))

	s, _, errMsg := e.do(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, s)
	assert.NotEmpty(t, errMsg)

	s, _, _ = e.do(t, http.MethodDelete, "/api/plans", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, s)

	p := e.plan(t, true)
	e.plan(t, false)

	s, b, _ = e.do(t, http.MethodGet, "/api/plans", "", nil)
	require.Equal(t, http.StatusOK, s)

	plans := unmarshal[[]store.Plan](t, b)
	require.Len(t, plans, 1)
	assert.Equal(t, p.ID, plans[0].ID)

	s, b, _ = e.do(t, http.MethodGet, "/api/performance/prices", "", nil)
	require.Equal(t, http.StatusOK, s)
	assert.Equal(t, 65000.5, unmarshal[price.Prices](t, b)["BTC"])

	e.a.Prices = pricer{err: errors.New("rate limited")}
	s, _, _ = e.do(t, http.MethodGet, "/api/performance/prices", "", nil)
	assert.Equal(t, http.StatusBadGateway, s)

	s, b, _ = e.do(t, http.MethodPost, "/api/chat", "", chatReq{Message: "How do I withdraw?"})
	require.Equal(t, http.StatusOK, s)
	assert.Equal(t, chat.Reply("How do I withdraw?"), unmarshal[chatReply](t, b).Reply)

	s, _, _ = e.do(t, http.MethodPost, "/api/chat", "", chatReq{Message: "  "})
	assert.Equal(t, http.StatusBadRequest, s)
}

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t)

	reg := registerReq{Name: "Ann", Email: " Ann@Example.com ", Password: password, Country: "ES"}

	s, b, errMsg := e.do(t, http.MethodPost, "/api/auth/register", "", reg)
	require.Equal(t, http.StatusCreated, s, errMsg)

	u := unmarshal[store.User](t, b)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.Equal(t, store.RoleInvestor, u.Role)
	assert.False(t, u.Verified)
	assert.NotContains(t, string(b), "password")

	ns := e.mb.Drain()
	require.Len(t, ns, 1)
	assert.Equal(t, msg.NoticeOTP, ns[0].Kind)
	assert.Equal(t, store.OTPVerify, ns[0].Purpose)
	assert.Equal(t, 10, ns[0].Minutes)
	assert.Len(t, ns[0].Code, 6)

	s, _, _ = e.do(t, http.MethodPost, "/api/auth/register", "", reg)
	assert.Equal(t, http.StatusConflict, s)

	s, _, _ = e.do(t, http.MethodPost, "/api/auth/register", "",
		registerReq{Name: "Bob", Email: "bob@example.com", Password: "short"})
	assert.Equal(t, http.StatusBadRequest, s)

	login := loginReq{Email: "ann@example.com", Password: password}

	s, _, _ = e.do(t, http.MethodPost, "/api/auth/login", "", login)
	assert.Equal(t, http.StatusForbidden, s, "unverified")

	s, _, _ = e.do(t, http.MethodPost, "/api/auth/verify", "", otpReq{Email: u.Email, Code: "000000x"})
	assert.Equal(t, http.StatusUnauthorized, s)

	s, b, errMsg = e.do(t, http.MethodPost, "/api/auth/verify", "", otpReq{Email: u.Email, Code: ns[0].Code})
	require.Equal(t, http.StatusOK, s, errMsg)

	ses := unmarshal[session](t, b)
	assert.NotEmpty(t, ses.Token)
	assert.True(t, ses.User.Verified)

	// codes are single use
	s, _, _ = e.do(t, http.MethodPost, "/api/auth/verify", "", otpReq{Email: u.Email, Code: ns[0].Code})
	assert.Equal(t, http.StatusUnauthorized, s)

	s, b, _ = e.do(t, http.MethodPost, "/api/auth/login", "", login)
	require.Equal(t, http.StatusOK, s)

	s, b, _ = e.do(t, http.MethodGet, "/api/me", unmarshal[session](t, b).Token, nil)
	require.Equal(t, http.StatusOK, s)
	assert.Equal(t, u.ID, unmarshal[store.User](t, b).ID)

	s, _, _ = e.do(t, http.MethodPost, "/api/auth/login", "", loginReq{Email: u.Email, Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, s)

	s, _, _ = e.do(t, http.MethodPost, "/api/auth/login", "", loginReq{Email: "nobody@example.com", Password: password})
	assert.Equal(t, http.StatusUnauthorized, s)

	// login with a code
	s, _, _ = e.do(t, http.MethodPost, "/api/auth/otp", "", otpReq{Email: u.Email, Purpose: "reset"})
	assert.Equal(t, http.StatusBadRequest, s)

	s, _, _ = e.do(t, http.MethodPost, "/api/auth/otp", "", otpReq{Email: "nobody@example.com", Purpose: store.OTPLogin})
	assert.Equal(t, http.StatusAccepted, s)
	assert.Empty(t, e.mb.Drain())

	s, _, _ = e.do(t, http.MethodPost, "/api/auth/otp", "", otpReq{Email: u.Email, Purpose: store.OTPLogin})
	require.Equal(t, http.StatusAccepted, s)

	ns = e.mb.Drain()
	require.Len(t, ns, 1)
	assert.Equal(t, store.OTPLogin, ns[0].Purpose)

	s, b, _ = e.do(t, http.MethodPost, "/api/auth/login", "", loginReq{Email: u.Email, Code: ns[0].Code})
	require.Equal(t, http.StatusOK, s)
	assert.Equal(t, u.ID, unmarshal[session](t, b).User.ID)
}

func TestAuthorization(t *testing.T) {
	e := newEnv(t)

	_, investor := e.user(t, "Ann", store.RoleInvestor, true)
	_, unverified := e.user(t, "Bob", store.RoleInvestor, false)
	_, admin := e.user(t, "Root", store.RoleAdmin, true)

	other, err := auth.NewTokens("other-secret", time.Hour)
	require.NoError(t, err)

	forged, _, err := other.Issue(uuid.NewString(), store.RoleAdmin)
	require.NoError(t, err)

	ghost, _, err := e.a.Tokens.Issue(uuid.NewString(), store.RoleAdmin)
	require.NoError(t, err)

	cases := []struct {
		name, path, token string
		status            int
	}{
		{"no token", "/api/funds", "", http.StatusUnauthorized},
		{"forged", "/api/funds", forged, http.StatusUnauthorized},
		{"deleted user", "/api/admin/users", ghost, http.StatusUnauthorized},
		{"unverified", "/api/funds", unverified, http.StatusForbidden},
		{"investor", "/api/funds", investor, http.StatusOK},
		{"investor as admin", "/api/admin/users", investor, http.StatusForbidden},
		{"admin", "/api/admin/users", admin, http.StatusOK},
		{"admin as investor", "/api/funds", admin, http.StatusOK},
	}

	for _, c := range cases {
		s, _, errMsg := e.do(t, http.MethodGet, c.path, c.token, nil)
		assert.Equal(t, c.status, s, c.name+": "+errMsg)
	}
}

func TestInvestmentWorkflow(t *testing.T) {
	e := newEnv(t)

	ann, investor := e.user(t, "Ann", store.RoleInvestor, true)
	_, admin := e.user(t, "Root", store.RoleAdmin, true)

	// plans are managed by admins
	s, b, errMsg := e.do(t, http.MethodPost, "/api/admin/plans", admin, store.Plan{
		Name: "Gold", MinAmount: store.Dollars(500), MaxAmount: store.Dollars(10000), ROI: 10, DurationDays: 30,
		Active: true,
	})
	require.Equal(t, http.StatusCreated, s, errMsg)

	plan := unmarshal[store.Plan](t, b)
	require.NotEmpty(t, plan.ID)

	s, _, _ = e.do(t, http.MethodPost, "/api/admin/plans", admin, store.Plan{Name: "Bad", ROI: 150, DurationDays: 1})
	assert.Equal(t, http.StatusBadRequest, s)

	// invest
	fr := fundReq{PlanID: plan.ID, Asset: "usdt", Network: "eth", Amount: store.Dollars(100)}

	s, _, _ = e.do(t, http.MethodPost, "/api/funds", investor, fr)
	assert.Equal(t, http.StatusBadRequest, s, "below minimum")

	fr.Amount, fr.Network = store.Dollars(1000), "solana"
	s, _, _ = e.do(t, http.MethodPost, "/api/funds", investor, fr)
	assert.Equal(t, http.StatusBadRequest, s, "unknown network")

	fr.Network = "eth"
	s, b, errMsg = e.do(t, http.MethodPost, "/api/funds", investor, fr)
	require.Equal(t, http.StatusCreated, s, errMsg)

	fund := unmarshal[store.Fund](t, b)
	assert.Equal(t, store.FundPending, fund.Status)
	assert.Equal(t, "USDT", fund.Asset)

	// other investors cannot see it
	_, bob := e.user(t, "Bob", store.RoleInvestor, true)
	s, _, _ = e.do(t, http.MethodGet, "/api/funds/"+fund.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, s)

	s, _, _ = e.do(t, http.MethodPut, "/api/admin/funds/"+fund.ID+"/complete", admin, nil)
	assert.Equal(t, http.StatusConflict, s)

	s, b, errMsg = e.do(t, http.MethodPut, "/api/admin/funds/"+fund.ID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, s, errMsg)

	fund = unmarshal[store.Fund](t, b)
	assert.Equal(t, store.FundActive, fund.Status)
	require.NotNil(t, fund.ApprovedAt)
	require.NotNil(t, fund.MaturesAt)
	assert.Equal(t, 30*24*time.Hour, fund.MaturesAt.Sub(*fund.ApprovedAt))

	s, _, _ = e.do(t, http.MethodPut, "/api/admin/funds/"+fund.ID+"/approve", admin, nil)
	assert.Equal(t, http.StatusConflict, s)

	// ROI credit
	s, _, _ = e.do(t, http.MethodPost, "/api/admin/performance", admin, roiReq{PlanID: plan.ID, ROI: -100})
	assert.Equal(t, http.StatusBadRequest, s)

	s, b, errMsg = e.do(t, http.MethodPost, "/api/admin/performance", admin, roiReq{PlanID: plan.ID, ROI: 10})
	require.Equal(t, http.StatusCreated, s, errMsg)

	perf := unmarshal[store.Performance](t, b)
	assert.Equal(t, 1, perf.Funds)
	assert.Equal(t, store.Dollars(100), perf.Credit)

	s, b, _ = e.do(t, http.MethodGet, "/api/performance/history", investor, nil)
	require.Equal(t, http.StatusOK, s)
	assert.Len(t, unmarshal[[]store.Performance](t, b), 1)

	s, b, _ = e.do(t, http.MethodGet, "/api/performance/history", bob, nil)
	require.Equal(t, http.StatusOK, s)
	assert.Empty(t, unmarshal[[]store.Performance](t, b))

	// withdraw
	wr := withdrawalReq{Amount: store.Dollars(2000), Asset: "USDT", Network: "tron", Address: "TXYZ"}

	s, _, _ = e.do(t, http.MethodPost, "/api/withdrawals", investor, wr)
	assert.Equal(t, http.StatusBadRequest, s, "insufficient")

	wr.Amount = store.Dollars(500)
	s, b, errMsg = e.do(t, http.MethodPost, "/api/withdrawals", investor, wr)
	require.Equal(t, http.StatusCreated, s, errMsg)

	w := unmarshal[store.Withdrawal](t, b)

	s, b, _ = e.do(t, http.MethodGet, "/api/performance/summary", investor, nil)
	require.Equal(t, http.StatusOK, s)
	assert.Equal(t, invest.Summary{
		Invested: store.Dollars(1000), Profit: store.Dollars(100), Reserved: store.Dollars(500),
		Available: store.Dollars(600),
	}, unmarshal[invest.Summary](t, b))

	s, _, _ = e.do(t, http.MethodPut, "/api/admin/withdrawals/"+w.ID+"/paid", admin, processReq{TxHash: "0x01"})
	assert.Equal(t, http.StatusConflict, s, "not approved")

	s, _, _ = e.do(t, http.MethodPut, "/api/admin/withdrawals/"+w.ID+"/approve", admin, nil)
	require.Equal(t, http.StatusOK, s)

	s, _, _ = e.do(t, http.MethodPut, "/api/admin/withdrawals/"+w.ID+"/paid", admin, nil)
	assert.Equal(t, http.StatusBadRequest, s, "no hash")

	s, b, _ = e.do(t, http.MethodPut, "/api/admin/withdrawals/"+w.ID+"/paid", admin, processReq{TxHash: "0x01"})
	require.Equal(t, http.StatusOK, s)
	assert.Equal(t, store.WithdrawalPaid, unmarshal[store.Withdrawal](t, b).Status)

	s, b, _ = e.do(t, http.MethodGet, "/api/performance/summary", investor, nil)
	require.Equal(t, http.StatusOK, s)

	sum := unmarshal[invest.Summary](t, b)
	assert.Equal(t, store.Dollars(500), sum.Withdrawn)
	assert.Equal(t, store.Dollars(600), sum.Available)

	// a rejected withdrawal keeps the note
	wr.Amount = store.Dollars(100)
	s, b, _ = e.do(t, http.MethodPost, "/api/withdrawals", investor, wr)
	require.Equal(t, http.StatusCreated, s)

	w = unmarshal[store.Withdrawal](t, b)
	s, b, _ = e.do(t, http.MethodPut, "/api/admin/withdrawals/"+w.ID+"/reject", admin, processReq{Note: "wrong address"})
	require.Equal(t, http.StatusOK, s)
	assert.Equal(t, "wrong address", unmarshal[store.Withdrawal](t, b).Note)

	s, b, _ = e.do(t, http.MethodGet, "/api/admin/withdrawals?status=rejected", admin, nil)
	require.Equal(t, http.StatusOK, s)
	assert.Len(t, unmarshal[[]store.Withdrawal](t, b), 1)

	// plans with active funds cannot be deleted
	s, _, _ = e.do(t, http.MethodDelete, "/api/admin/plans/"+plan.ID, admin, nil)
	assert.Equal(t, http.StatusConflict, s)

	s, _, _ = e.do(t, http.MethodPut, "/api/admin/funds/"+fund.ID+"/complete", admin, nil)
	require.Equal(t, http.StatusOK, s)

	s, _, _ = e.do(t, http.MethodDelete, "/api/admin/plans/"+plan.ID, admin, nil)
	assert.Equal(t, http.StatusOK, s)

	// every status change was notified to the owner
	var kinds []string

	for _, n := range e.mb.Drain() {
		assert.Equal(t, ann.Email, n.To)
		kinds = append(kinds, n.Kind+":"+n.Status)
	}

	assert.Equal(t, []string{
		"fund:active", "withdrawal:approved", "withdrawal:paid", "withdrawal:rejected", "fund:completed",
	}, kinds)
}

func TestGoals(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u, investor := e.user(t, "Ann", store.RoleInvestor, true)
	now := time.Now()
	require.NoError(t, e.db.CreateFund(ctx, store.Fund{
		ID: uuid.NewString(), UserID: u.ID, PlanID: "p", Amount: store.Dollars(250), Status: store.FundActive,
		CreatedAt: now, ApprovedAt: &now,
	}))

	s, _, _ := e.do(t, http.MethodPost, "/api/goals", investor,
		goalReq{Name: "House", Target: store.Dollars(1000), Deadline: now.Add(-time.Hour)})
	assert.Equal(t, http.StatusBadRequest, s)

	s, b, errMsg := e.do(t, http.MethodPost, "/api/goals", investor,
		goalReq{Name: "House", Target: store.Dollars(1000), Deadline: now.AddDate(1, 0, 0)})
	require.Equal(t, http.StatusCreated, s, errMsg)

	g := unmarshal[goal](t, b)
	assert.InDelta(t, 25.0, g.Progress, 1e-9)

	s, b, _ = e.do(t, http.MethodGet, "/api/goals", investor, nil)
	require.Equal(t, http.StatusOK, s)
	require.Len(t, unmarshal[[]goal](t, b), 1)

	_, bob := e.user(t, "Bob", store.RoleInvestor, true)
	s, _, _ = e.do(t, http.MethodDelete, "/api/goals/"+g.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, s)

	s, _, _ = e.do(t, http.MethodDelete, "/api/goals/"+g.ID, investor, nil)
	assert.Equal(t, http.StatusOK, s)

	s, b, _ = e.do(t, http.MethodGet, "/api/goals", investor, nil)
	require.Equal(t, http.StatusOK, s)
	assert.Empty(t, unmarshal[[]goal](t, b))
}

func TestKYC(t *testing.T) {
	e := newEnv(t)

	u, investor := e.user(t, "Ann", store.RoleInvestor, true)
	root, admin := e.user(t, "Root", store.RoleAdmin, true)

	s, _, _ := e.do(t, http.MethodPost, "/api/me/kyc", investor, kycReq{Country: "ES"})
	assert.Equal(t, http.StatusBadRequest, s)

	s, b, _ := e.do(t, http.MethodPost, "/api/me/kyc", investor, kycReq{Country: "ES", Phone: "+34600000000"})
	require.Equal(t, http.StatusOK, s)
	assert.Equal(t, store.KYCPending, unmarshal[store.User](t, b).KYC)

	s, _, _ = e.do(t, http.MethodPut, "/api/admin/users/"+u.ID+"/kyc", admin, statusReq{Status: "maybe"})
	assert.Equal(t, http.StatusBadRequest, s)

	s, b, _ = e.do(t, http.MethodPut, "/api/admin/users/"+u.ID+"/kyc", admin, statusReq{Status: store.KYCApproved})
	require.Equal(t, http.StatusOK, s)
	assert.Equal(t, store.KYCApproved, unmarshal[store.User](t, b).KYC)

	ns := e.mb.Drain()
	require.Len(t, ns, 1)
	assert.Equal(t, msg.NoticeKYC, ns[0].Kind)
	assert.Equal(t, store.KYCApproved, ns[0].Status)

	s, _, _ = e.do(t, http.MethodPost, "/api/me/kyc", investor, kycReq{Country: "ES", Phone: "+34600000000"})
	assert.Equal(t, http.StatusConflict, s)

	s, _, _ = e.do(t, http.MethodPut, "/api/admin/users/"+root.ID+"/role", admin, roleReq{Role: store.RoleInvestor})
	assert.Equal(t, http.StatusForbidden, s)

	s, _, _ = e.do(t, http.MethodPut, "/api/admin/users/"+u.ID+"/role", admin, roleReq{Role: store.RoleAdmin})
	require.Equal(t, http.StatusOK, s)

	s, _, _ = e.do(t, http.MethodGet, "/api/admin/users", investor, nil)
	assert.Equal(t, http.StatusOK, s, "role is read from the store")
}

func TestWallets(t *testing.T) {
	e := newEnv(t)

	_, admin := e.user(t, "Root", store.RoleAdmin, true)

	mut := new(sync.Mutex)
	mut.Lock()

	reqs, _, err := e.mb.GetReqs("eth", mut)
	require.NoError(t, err)

	next := func() msg.WatchReq {
		select {
		case wr := <-reqs:
			mut.Unlock()

			return wr
		case <-time.After(time.Second):
			t.Fatal("no watch request")
		}

		return msg.WatchReq{}
	}

	const addr = "0xCBA75F167B03e34B8a572c50273C082401b073Ed"

	s, b, errMsg := e.do(t, http.MethodPost, "/api/admin/wallets", admin,
		walletReq{Asset: "eth", Network: "eth", Address: addr, Label: "main"})
	require.Equal(t, http.StatusCreated, s, errMsg)

	w := unmarshal[store.Wallet](t, b)
	assert.Equal(t, strings.ToLower(addr), w.Address)
	assert.True(t, w.Active)
	assert.Equal(t, msg.WatchReq{Net: "eth", Type: msg.ADDRESS, Obj: strings.ToLower(addr), Act: msg.LISTEN}, next())

	// tron is not scanned: no request
	s, _, _ = e.do(t, http.MethodPost, "/api/admin/wallets", admin,
		walletReq{Asset: "usdt", Network: "tron", Address: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"})
	require.Equal(t, http.StatusCreated, s)

	s, _, _ = e.do(t, http.MethodPost, "/api/admin/wallets", admin,
		walletReq{Asset: "btc", Network: "btc", Address: "bc1q"})
	assert.Equal(t, http.StatusBadRequest, s)

	s, b, _ = e.do(t, http.MethodGet, "/api/wallets?asset=USDT", "", nil)
	require.Equal(t, http.StatusOK, s)

	ws := unmarshal[[]store.Wallet](t, b)
	require.Len(t, ws, 1)
	assert.Equal(t, "tron", ws[0].Network)

	// a token wallet on the same address
	s, b, _ = e.do(t, http.MethodPost, "/api/admin/wallets", admin,
		walletReq{Asset: "usdt", Network: "eth", Address: addr, Label: "erc20"})
	require.Equal(t, http.StatusCreated, s)
	assert.Equal(t, msg.LISTEN, next().Act)

	token := unmarshal[store.Wallet](t, b)

	// an inactive wallet is not watched
	inactive := false
	s, b, _ = e.do(t, http.MethodPost, "/api/admin/wallets", admin,
		walletReq{Asset: "eth", Network: "eth", Address: "0x357dd3856d856197c1a000bbab4abcb97dfc92c4",
			Active: &inactive})
	require.Equal(t, http.StatusCreated, s)

	off := unmarshal[store.Wallet](t, b)

	none := func() {
		select {
		case wr := <-reqs:
			mut.Unlock()
			t.Fatalf("unexpected watch request %+v", wr)
		case <-time.After(100 * time.Millisecond):
		}
	}

	// the address is still used by the token wallet
	s, _, _ = e.do(t, http.MethodDelete, "/api/admin/wallets/"+w.ID, admin, nil)
	require.Equal(t, http.StatusOK, s)
	none()

	s, _, _ = e.do(t, http.MethodDelete, "/api/admin/wallets/"+off.ID, admin, nil)
	require.Equal(t, http.StatusOK, s)
	none()

	s, _, _ = e.do(t, http.MethodDelete, "/api/admin/wallets/"+token.ID, admin, nil)
	require.Equal(t, http.StatusOK, s)
	assert.Equal(t, msg.WatchReq{Net: "eth", Type: msg.ADDRESS, Obj: strings.ToLower(addr), Act: msg.UNLISTEN}, next())

	s, b, _ = e.do(t, http.MethodGet, "/api/admin/wallets", admin, nil)
	require.Equal(t, http.StatusOK, s)
	assert.Len(t, unmarshal[[]store.Wallet](t, b), 1)
}

func TestDeposit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const hash = "0xC39F3C2C2B5C0A772E8605BBEEF7D341937B85E739A3C55D1E7384AC88F31C65"

	f := store.Fund{
		ID: uuid.NewString(), UserID: "u", PlanID: "p", Network: "eth", Amount: store.Dollars(1000), TxHash: hash,
		Status: store.FundPending, CreatedAt: time.Now(),
	}
	require.NoError(t, e.db.CreateFund(ctx, f))

	other := f
	other.ID, other.TxHash = uuid.NewString(), "0x01"
	require.NoError(t, e.db.CreateFund(ctx, other))

	require.NoError(t, e.a.ManageEvents())
	require.NoError(t, e.mb.SendTrans("eth", []types.Trans{{Hash: strings.ToLower(hash)}}))

	assert.Eventually(t, func() bool {
		got, err := e.db.GetFund(ctx, f.ID)

		return err == nil && got.Confirmed
	}, time.Second, 10*time.Millisecond)

	got, err := e.db.GetFund(ctx, other.ID)
	require.NoError(t, err)
	assert.False(t, got.Confirmed)
	assert.Equal(t, store.FundPending, got.Status)
}

func TestColdWallet(t *testing.T) {
	e := newEnv(t)

	_, admin := e.user(t, "Root", store.RoleAdmin, true)

	e.node.Value("eth_getBalance", "0x166c761c586733c0")
	e.node.Value("eth_call", "0x0000000000000000000000000000000000000000000000000a6c168562518000")
	e.node.Value("eth_getTransactionCount", "0x1")
	e.node.Value("eth_gasPrice", "0x3b9aca00")
	e.node.Value("eth_estimateGas", "0x5208")

	s, b, _ := e.do(t, http.MethodGet, "/api/admin/coldwallet/networks", admin, nil)
	require.Equal(t, http.StatusOK, s)
	assert.Equal(t, []network{{Name: "eth", Scanned: true}, {Name: "tron"}}, unmarshal[[]network](t, b))

	const addr = "0xcba75F167B03e34B8a572c50273C082401b073Ed"

	s, b, errMsg := e.do(t, http.MethodGet, "/api/admin/coldwallet/balance/"+addr+
		"?net=eth&tok=0xa34de7bd2b4270c0b12d5fd7a0c219a4d68d732f", admin, nil)
	require.Equal(t, http.StatusOK, s, errMsg)
	assert.Equal(t, []addrBalance{{Net: "eth", Bal: "1615796230433485760", Tok: "751000000000000000"}},
		unmarshal[[]addrBalance](t, b))

	s, _, _ = e.do(t, http.MethodGet, "/api/admin/coldwallet/balance/"+addr+"?net=mainnet", admin, nil)
	assert.Equal(t, http.StatusNotFound, s)

	// hd addresses
	cases := []struct {
		query  string
		status int
	}{
		{"wallet=2&change=external&id=1", http.StatusOK},
		{"wallet=2&change=0&id=1", http.StatusOK},
		{"wallet=2&id=1", http.StatusBadRequest},
		{"wallet=2&change=other&id=1", http.StatusBadRequest},
		{"wallet=x&change=0&id=1", http.StatusBadRequest},
	}

	for _, c := range cases {
		s, b, errMsg = e.do(t, http.MethodGet, "/api/admin/coldwallet/address?"+c.query, admin, nil)
		require.Equal(t, c.status, s, c.query+": "+errMsg)

		if s == http.StatusOK {
			assert.Equal(t, hdAddr21, unmarshal[hdAddress](t, b).Address, c.query)
		}
	}

	// send
	txReq := TxReq{Net: "eth", Wallet: 2, Change: hd.External, ID: 1, Tx: types.Trans{
		To: "0x357dd3856d856197c1a000bbAb4aBCB97Dfc92c4", Value: "0x565656",
	}}

	s, b, errMsg = e.do(t, http.MethodPost, "/api/admin/coldwallet/send", admin, txReq)
	require.Equal(t, http.StatusAccepted, s, errMsg)

	tx := unmarshal[types.Trans](t, b)
	assert.Equal(t, hdAddr21, tx.From)
	assert.Equal(t, uint64(1000000000*21000), tx.Fee)
	assert.Len(t, tx.Hash, 66)
	assert.Equal(t, types.TrxPending, tx.Status)
	assert.Zero(t, e.node.Calls("eth_sendRawTransaction"), "dry run")

	txReq.Net = "tron"
	s, _, _ = e.do(t, http.MethodPost, "/api/admin/coldwallet/send", admin, txReq)
	assert.Equal(t, http.StatusBadRequest, s)

	txReq.Net = "mainnet"
	s, _, _ = e.do(t, http.MethodPost, "/api/admin/coldwallet/send", admin, txReq)
	assert.Equal(t, http.StatusNotFound, s)

	// tx
	s, _, errMsg = e.do(t, http.MethodGet, "/api/admin/coldwallet/tx/0x123456?net=eth", admin, nil)
	assert.Equal(t, http.StatusBadRequest, s)
	assert.Equal(t, ErrNoHash.Error(), errMsg)

	const h = "0x2ba030485e79b5a98275b45d940e6fdd07b40dea593ef3b2a69b0a02a68a5872"

	s, _, errMsg = e.do(t, http.MethodGet, "/api/admin/coldwallet/tx/"+h, admin, nil)
	assert.Equal(t, http.StatusBadRequest, s)
	assert.Equal(t, ErrMissingNet.Error(), errMsg)

	s, _, _ = e.do(t, http.MethodGet, "/api/admin/coldwallet/tx/"+h+"?net=mainnet", admin, nil)
	assert.Equal(t, http.StatusNotFound, s)
}

func TestNoSeed(t *testing.T) {
	e := newEnv(t)

	// the default configuration carries no seed
	hdw, err := NewHD(config.Defaults().Seed)
	require.NoError(t, err)
	require.Nil(t, hdw)

	e.a.HD = hdw

	_, admin := e.user(t, "Root", store.RoleAdmin, true)

	s, _, errMsg := e.do(t, http.MethodGet, "/api/admin/coldwallet/address?wallet=0&change=0&id=0", admin, nil)
	assert.Equal(t, http.StatusInternalServerError, s)
	assert.Equal(t, ErrNoSeed.Error(), errMsg)

	s, _, errMsg = e.do(t, http.MethodPost, "/api/admin/coldwallet/send", admin,
		TxReq{Net: "eth", Tx: types.Trans{To: "0x357dd3856d856197c1a000bbab4abcb97dfc92c4", Value: "1"}})
	assert.Equal(t, http.StatusInternalServerError, s)
	assert.Equal(t, ErrNoSeed.Error(), errMsg)

	_, err = NewHD("zz")
	assert.Error(t, err)
}
