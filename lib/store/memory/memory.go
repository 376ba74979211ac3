// Package memory implements the store interface in memory with go-memdb. It is used for tests and for running the
// services locally without a database.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-memdb"

	"github.com/tarancss/luxhedge/lib/store"
	"github.com/tarancss/luxhedge/lib/util"
)

// Table names. Index "id" is required by all tables.
const (
	userTable       = "user"
	planTable       = "plan"
	fundTable       = "fund"
	goalTable       = "goal"
	withdrawalTable = "withdrawal"
	walletTable     = "wallet"
	perfTable       = "performance"
	otpTable        = "otp"
	watcherTable    = "watcher"

	pk       = "id"
	byEmail  = "email"
	byUserID = "user"
	byPlanID = "plan"
)

var errCast = errors.New("memory: unexpected object type")

// watcherDoc wraps a watcher state with the network it belongs to.
type watcherDoc struct {
	Net   string
	State store.WatcherState
}

// Memory implements the store.DB interface with an in-memory database.
type Memory struct {
	db *memdb.MemDB
}

// Schema returns the memdb schema for all the tables.
func Schema() *memdb.DBSchema {
	id := func(field string) *memdb.IndexSchema {
		return &memdb.IndexSchema{Name: pk, Unique: true, Indexer: &memdb.StringFieldIndex{Field: field}}
	}
	by := func(name, field string) *memdb.IndexSchema {
		return &memdb.IndexSchema{Name: name, AllowMissing: true, Indexer: &memdb.StringFieldIndex{Field: field}}
	}

	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			userTable: {Name: userTable, Indexes: map[string]*memdb.IndexSchema{
				pk: id("ID"),
				byEmail: {
					Name: byEmail, Unique: true,
					Indexer: &memdb.StringFieldIndex{Field: "Email", Lowercase: true},
				},
			}},
			planTable:       {Name: planTable, Indexes: map[string]*memdb.IndexSchema{pk: id("ID")}},
			fundTable:       {Name: fundTable, Indexes: map[string]*memdb.IndexSchema{pk: id("ID"), byUserID: by(byUserID, "UserID")}},
			goalTable:       {Name: goalTable, Indexes: map[string]*memdb.IndexSchema{pk: id("ID"), byUserID: by(byUserID, "UserID")}},
			withdrawalTable: {Name: withdrawalTable, Indexes: map[string]*memdb.IndexSchema{pk: id("ID"), byUserID: by(byUserID, "UserID")}},
			walletTable:     {Name: walletTable, Indexes: map[string]*memdb.IndexSchema{pk: id("ID")}},
			perfTable:       {Name: perfTable, Indexes: map[string]*memdb.IndexSchema{pk: id("ID"), byPlanID: by(byPlanID, "PlanID")}},
			otpTable: {Name: otpTable, Indexes: map[string]*memdb.IndexSchema{
				pk: {Name: pk, Unique: true, Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
					&memdb.StringFieldIndex{Field: "Email", Lowercase: true},
					&memdb.StringFieldIndex{Field: "Purpose"},
				}}},
			}},
			watcherTable: {Name: watcherTable, Indexes: map[string]*memdb.IndexSchema{pk: id("Net")}},
		},
	}
}

// New returns an empty in-memory database.
func New() (*Memory, error) {
	db, err := memdb.NewMemDB(Schema())
	if err != nil {
		return nil, fmt.Errorf("memory: creating database: %w", err)
	}

	return &Memory{db: db}, nil
}

// Close does nothing, it is there to satisfy the store.DB interface.
func (m *Memory) Close() error { return nil }

// first returns a copy of the object found in table for the index args, or store.ErrNotFound.
func first[T any](m *Memory, table, index string, args ...interface{}) (T, error) {
	var zero T

	raw, err := m.db.Txn(false).First(table, index, args...)
	if err != nil {
		return zero, fmt.Errorf("memory: reading %s: %w", table, err)
	}

	if raw == nil {
		return zero, store.ErrNotFound
	}

	v, ok := raw.(*T)
	if !ok {
		return zero, errCast
	}

	return *v, nil
}

// list returns copies of all the objects in table for the index args that match keep.
func list[T any](m *Memory, table, index string, keep func(T) bool, args ...interface{}) ([]T, error) {
	it, err := m.db.Txn(false).Get(table, index, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: reading %s: %w", table, err)
	}

	res := []T{}

	for raw := it.Next(); raw != nil; raw = it.Next() {
		v, ok := raw.(*T)
		if !ok {
			return nil, errCast
		}

		if keep == nil || keep(*v) {
			res = append(res, *v)
		}
	}

	return res, nil
}

// insert saves obj in table. If mustExist is set the object is only replaced, if mustNotExist is set it is only
// created.
func (m *Memory) insert(table, id string, obj interface{}, mustExist, mustNotExist bool) error {
	txn := m.db.Txn(true)
	defer txn.Abort()

	old, err := txn.First(table, pk, id)
	if err != nil {
		return fmt.Errorf("memory: reading %s: %w", table, err)
	}

	if mustExist && old == nil {
		return store.ErrNotFound
	}

	if mustNotExist && old != nil {
		return store.ErrDuplicate
	}

	if err = txn.Insert(table, obj); err != nil {
		return fmt.Errorf("memory: saving %s: %w", table, err)
	}

	txn.Commit()

	return nil
}

func (m *Memory) remove(table string, args ...interface{}) error {
	txn := m.db.Txn(true)
	defer txn.Abort()

	old, err := txn.First(table, pk, args...)
	if err != nil {
		return fmt.Errorf("memory: reading %s: %w", table, err)
	}

	if old == nil {
		return store.ErrNotFound
	}

	if err = txn.Delete(table, old); err != nil {
		return fmt.Errorf("memory: deleting %s: %w", table, err)
	}

	txn.Commit()

	return nil
}

// CreateUser saves a new user. Returns store.ErrDuplicate if the email is already registered.
func (m *Memory) CreateUser(_ context.Context, u store.User) error {
	u.Email = util.NormEmail(u.Email)

	txn := m.db.Txn(true)
	defer txn.Abort()

	old, err := txn.First(userTable, byEmail, u.Email)
	if err != nil {
		return fmt.Errorf("memory: reading user: %w", err)
	}

	if old != nil {
		return store.ErrDuplicate
	}

	if old, _ = txn.First(userTable, pk, u.ID); old != nil {
		return store.ErrDuplicate
	}

	if err = txn.Insert(userTable, &u); err != nil {
		return fmt.Errorf("memory: saving user: %w", err)
	}

	txn.Commit()

	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (store.User, error) {
	return first[store.User](m, userTable, pk, id)
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	return first[store.User](m, userTable, byEmail, util.NormEmail(email))
}

func (m *Memory) UpdateUser(_ context.Context, u store.User) error {
	return m.insert(userTable, u.ID, &u, true, false)
}

func (m *Memory) ListUsers(_ context.Context) ([]store.User, error) {
	us, err := list[store.User](m, userTable, pk, nil)
	sort.SliceStable(us, func(i, j int) bool { return us[i].CreatedAt.After(us[j].CreatedAt) })

	return us, err
}

// SavePlan creates or replaces a plan.
func (m *Memory) SavePlan(_ context.Context, p store.Plan) error {
	return m.insert(planTable, p.ID, &p, false, false)
}

func (m *Memory) GetPlan(_ context.Context, id string) (store.Plan, error) {
	return first[store.Plan](m, planTable, pk, id)
}

func (m *Memory) ListPlans(_ context.Context, activeOnly bool) ([]store.Plan, error) {
	ps, err := list(m, planTable, pk, func(p store.Plan) bool { return !activeOnly || p.Active })
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].CreatedAt.After(ps[j].CreatedAt) })

	return ps, err
}

func (m *Memory) DeletePlan(_ context.Context, id string) error {
	return m.remove(planTable, id)
}

func (m *Memory) CreateFund(_ context.Context, f store.Fund) error {
	return m.insert(fundTable, f.ID, &f, false, true)
}

func (m *Memory) GetFund(_ context.Context, id string) (store.Fund, error) {
	return first[store.Fund](m, fundTable, pk, id)
}

func (m *Memory) UpdateFund(_ context.Context, f store.Fund) error {
	return m.insert(fundTable, f.ID, &f, true, false)
}

func (m *Memory) ListFunds(_ context.Context, filter store.FundFilter) ([]store.Fund, error) {
	index, args := pk, []interface{}{}
	if filter.UserID != "" {
		index, args = byUserID, []interface{}{filter.UserID}
	}

	fs, err := list(m, fundTable, index, filter.Match, args...)
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].CreatedAt.After(fs[j].CreatedAt) })

	return fs, err
}

func (m *Memory) CreateGoal(_ context.Context, g store.Goal) error {
	return m.insert(goalTable, g.ID, &g, false, true)
}

func (m *Memory) ListGoals(_ context.Context, userID string) ([]store.Goal, error) {
	gs, err := list[store.Goal](m, goalTable, byUserID, nil, userID)
	sort.SliceStable(gs, func(i, j int) bool { return gs[i].CreatedAt.After(gs[j].CreatedAt) })

	return gs, err
}

// DeleteGoal removes the goal id if it belongs to userID.
func (m *Memory) DeleteGoal(_ context.Context, userID, id string) error {
	g, err := first[store.Goal](m, goalTable, pk, id)
	if err != nil {
		return err
	}

	if g.UserID != userID {
		return store.ErrNotFound
	}

	return m.remove(goalTable, id)
}

func (m *Memory) CreateWithdrawal(_ context.Context, w store.Withdrawal) error {
	return m.insert(withdrawalTable, w.ID, &w, false, true)
}

func (m *Memory) GetWithdrawal(_ context.Context, id string) (store.Withdrawal, error) {
	return first[store.Withdrawal](m, withdrawalTable, pk, id)
}

func (m *Memory) UpdateWithdrawal(_ context.Context, w store.Withdrawal) error {
	return m.insert(withdrawalTable, w.ID, &w, true, false)
}

func (m *Memory) ListWithdrawals(_ context.Context, filter store.WithdrawalFilter) ([]store.Withdrawal, error) {
	index, args := pk, []interface{}{}
	if filter.UserID != "" {
		index, args = byUserID, []interface{}{filter.UserID}
	}

	ws, err := list(m, withdrawalTable, index, filter.Match, args...)
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].CreatedAt.After(ws[j].CreatedAt) })

	return ws, err
}

// SaveWallet creates or replaces a deposit wallet.
func (m *Memory) SaveWallet(_ context.Context, w store.Wallet) error {
	return m.insert(walletTable, w.ID, &w, false, false)
}

func (m *Memory) GetWallet(_ context.Context, id string) (store.Wallet, error) {
	return first[store.Wallet](m, walletTable, pk, id)
}

func (m *Memory) ListWallets(_ context.Context, filter store.WalletFilter) ([]store.Wallet, error) {
	ws, err := list(m, walletTable, pk, filter.Match)
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].CreatedAt.After(ws[j].CreatedAt) })

	return ws, err
}

func (m *Memory) DeleteWallet(_ context.Context, id string) error {
	return m.remove(walletTable, id)
}

func (m *Memory) AddPerformance(_ context.Context, p store.Performance) error {
	return m.insert(perfTable, p.ID, &p, false, true)
}

// ListPerformance returns the ROI credits of planID, or of all plans when planID is empty.
func (m *Memory) ListPerformance(_ context.Context, planID string) ([]store.Performance, error) {
	index, args := pk, []interface{}{}
	if planID != "" {
		index, args = byPlanID, []interface{}{planID}
	}

	ps, err := list[store.Performance](m, perfTable, index, nil, args...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].CreatedAt.After(ps[j].CreatedAt) })

	return ps, err
}

// SaveOTP creates or replaces the OTP for its email and purpose.
func (m *Memory) SaveOTP(_ context.Context, o store.OTP) error {
	o.Email = util.NormEmail(o.Email)

	txn := m.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(otpTable, &o); err != nil {
		return fmt.Errorf("memory: saving otp: %w", err)
	}

	txn.Commit()

	return nil
}

func (m *Memory) GetOTP(_ context.Context, email, purpose string) (store.OTP, error) {
	return first[store.OTP](m, otpTable, pk, util.NormEmail(email), purpose)
}

func (m *Memory) DeleteOTP(_ context.Context, email, purpose string) error {
	return m.remove(otpTable, util.NormEmail(email), purpose)
}

// LoadWatcher returns the saved state of the watcher for net or store.ErrNotFound.
func (m *Memory) LoadWatcher(_ context.Context, net string) (store.WatcherState, error) {
	d, err := first[watcherDoc](m, watcherTable, pk, net)

	return d.State, err
}

func (m *Memory) SaveWatcher(_ context.Context, net string, ws store.WatcherState) error {
	return m.insert(watcherTable, net, &watcherDoc{Net: net, State: ws}, false, false)
}
