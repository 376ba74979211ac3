// Package store defines the interface for database implementations used by the api, watcher and notifier services.
package store

import (
	"context"
	"errors"
)

// DB defines the required methods for the services. Lists are returned newest first.
type DB interface {
	// users
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, u User) error
	ListUsers(ctx context.Context) ([]User, error)
	// plans
	SavePlan(ctx context.Context, p Plan) error
	GetPlan(ctx context.Context, id string) (Plan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error)
	DeletePlan(ctx context.Context, id string) error
	// funds
	CreateFund(ctx context.Context, f Fund) error
	GetFund(ctx context.Context, id string) (Fund, error)
	UpdateFund(ctx context.Context, f Fund) error
	ListFunds(ctx context.Context, filter FundFilter) ([]Fund, error)
	// goals
	CreateGoal(ctx context.Context, g Goal) error
	ListGoals(ctx context.Context, userID string) ([]Goal, error)
	DeleteGoal(ctx context.Context, userID, id string) error
	// withdrawals
	CreateWithdrawal(ctx context.Context, w Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, w Withdrawal) error
	ListWithdrawals(ctx context.Context, filter WithdrawalFilter) ([]Withdrawal, error)
	// deposit wallets
	SaveWallet(ctx context.Context, w Wallet) error
	GetWallet(ctx context.Context, id string) (Wallet, error)
	ListWallets(ctx context.Context, filter WalletFilter) ([]Wallet, error)
	DeleteWallet(ctx context.Context, id string) error
	// ROI credits
	AddPerformance(ctx context.Context, p Performance) error
	ListPerformance(ctx context.Context, planID string) ([]Performance, error)
	// one time passwords, one per email and purpose
	SaveOTP(ctx context.Context, o OTP) error
	GetOTP(ctx context.Context, email, purpose string) (OTP, error)
	DeleteOTP(ctx context.Context, email, purpose string) error
	// methods for watcher service
	LoadWatcher(ctx context.Context, net string) (WatcherState, error)
	SaveWatcher(ctx context.Context, net string, ws WatcherState) error

	Close() error
}

// Errors returned
var (
	ErrNotFound  = errors.New("data was not found in store")
	ErrDuplicate = errors.New("data already exists in store")
)
