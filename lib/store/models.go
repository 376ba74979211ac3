package store

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Roles of a user.
const (
	RoleInvestor = "investor"
	RoleAdmin    = "admin"
)

// KYC statuses of a user.
const (
	KYCNone     = "none"
	KYCPending  = "pending"
	KYCApproved = "approved"
	KYCRejected = "rejected"
)

// Fund statuses.
const (
	FundPending   = "pending"
	FundActive    = "active"
	FundCompleted = "completed"
	FundRejected  = "rejected"
)

// Withdrawal statuses.
const (
	WithdrawalPending  = "pending"
	WithdrawalApproved = "approved"
	WithdrawalRejected = "rejected"
	WithdrawalPaid     = "paid"
)

// OTP purposes.
const (
	OTPVerify = "verify"
	OTPLogin  = "login"
)

// ErrBadAmount is returned when an amount cannot be parsed into USD.
var ErrBadAmount = errors.New("invalid USD amount")

// USD is an amount of US dollars expressed in cents. It is encoded to JSON as a decimal number (ie. 1250.5) and to
// the databases as an integer.
type USD int64

// Cents returns u as a USD amount. Helper to make literals readable: store.Cents(125050) is $1,250.50.
func Cents(c int64) USD { return USD(c) }

// Dollars returns the USD amount for a whole number of dollars.
func Dollars(d int64) USD { return USD(d * 100) } //nolint:gomnd // cents per dollar

// ParseUSD parses a decimal string (ie. "1250.50") into USD. More than 2 decimals are rounded to the nearest cent.
func ParseUSD(s string) (USD, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrBadAmount, s)
	}

	c := math.Round(f * 100) //nolint:gomnd // cents per dollar

	// float64(math.MaxInt64) is 2^63, which does not fit
	if math.Abs(c) >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q", ErrBadAmount, s)
	}

	return USD(c), nil
}

// String returns the decimal representation of u with 2 decimals.
func (u USD) String() string {
	sign := ""
	c := int64(u)

	if c < 0 {
		sign = "-"
		c = -c
	}

	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100) //nolint:gomnd // cents per dollar
}

// MarshalJSON encodes u as a JSON number with 2 decimals.
func (u USD) MarshalJSON() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalJSON decodes a JSON number or string into u.
func (u *USD) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*u = 0

		return nil
	}

	v, err := ParseUSD(s)
	if err != nil {
		return err
	}

	*u = v

	return nil
}

// User is an investor or an administrator of the platform.
type User struct {
	ID           string    `json:"id" bson:"_id" db:"id"`
	Name         string    `json:"name" bson:"name" db:"name"`
	Email        string    `json:"email" bson:"email" db:"email"`
	PasswordHash string    `json:"-" bson:"passwordHash" db:"password_hash"`
	Role         string    `json:"role" bson:"role" db:"role"`
	Verified     bool      `json:"verified" bson:"verified" db:"verified"`
	KYC          string    `json:"kyc" bson:"kyc" db:"kyc"`
	Country      string    `json:"country,omitempty" bson:"country,omitempty" db:"country"`
	Phone        string    `json:"phone,omitempty" bson:"phone,omitempty" db:"phone"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
}

// Plan is an investment plan offered to investors. ROI is the percentage credited per period.
type Plan struct {
	ID           string    `json:"id" bson:"_id" db:"id"`
	Name         string    `json:"name" bson:"name" db:"name"`
	MinAmount    USD       `json:"minAmount" bson:"minAmount" db:"min_amount"`
	MaxAmount    USD       `json:"maxAmount" bson:"maxAmount" db:"max_amount"`
	ROI          float64   `json:"roi" bson:"roi" db:"roi"`
	DurationDays int       `json:"durationDays" bson:"durationDays" db:"duration_days"`
	Active       bool      `json:"active" bson:"active" db:"active"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
}

// Fund is an investment made by a user into a plan. It starts pending until an admin approves the deposit.
type Fund struct {
	ID         string     `json:"id" bson:"_id" db:"id"`
	UserID     string     `json:"userId" bson:"userId" db:"user_id"`
	PlanID     string     `json:"planId" bson:"planId" db:"plan_id"`
	Asset      string     `json:"asset" bson:"asset" db:"asset"`
	Network    string     `json:"network" bson:"network" db:"network"`
	Amount     USD        `json:"amount" bson:"amount" db:"amount"`
	Profit     USD        `json:"profit" bson:"profit" db:"profit"`
	TxHash     string     `json:"txHash,omitempty" bson:"txHash,omitempty" db:"tx_hash"`
	Status     string     `json:"status" bson:"status" db:"status"`
	Confirmed  bool       `json:"confirmed" bson:"confirmed" db:"confirmed"`
	CreatedAt  time.Time  `json:"createdAt" bson:"createdAt" db:"created_at"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty" bson:"approvedAt,omitempty" db:"approved_at"`
	MaturesAt  *time.Time `json:"maturesAt,omitempty" bson:"maturesAt,omitempty" db:"matures_at"`
}

// Goal is a savings target set by a user.
type Goal struct {
	ID        string    `json:"id" bson:"_id" db:"id"`
	UserID    string    `json:"userId" bson:"userId" db:"user_id"`
	Name      string    `json:"name" bson:"name" db:"name"`
	Target    USD       `json:"target" bson:"target" db:"target"`
	Deadline  time.Time `json:"deadline" bson:"deadline" db:"deadline"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
}

// Withdrawal is a request from a user to get funds paid to an address.
type Withdrawal struct {
	ID          string     `json:"id" bson:"_id" db:"id"`
	UserID      string     `json:"userId" bson:"userId" db:"user_id"`
	Amount      USD        `json:"amount" bson:"amount" db:"amount"`
	Asset       string     `json:"asset" bson:"asset" db:"asset"`
	Network     string     `json:"network" bson:"network" db:"network"`
	Address     string     `json:"address" bson:"address" db:"address"`
	Status      string     `json:"status" bson:"status" db:"status"`
	TxHash      string     `json:"txHash,omitempty" bson:"txHash,omitempty" db:"tx_hash"`
	Note        string     `json:"note,omitempty" bson:"note,omitempty" db:"note"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt" db:"created_at"`
	ProcessedAt *time.Time `json:"processedAt,omitempty" bson:"processedAt,omitempty" db:"processed_at"`
}

// Wallet is a platform deposit address shown to investors.
type Wallet struct {
	ID        string    `json:"id" bson:"_id" db:"id"`
	Asset     string    `json:"asset" bson:"asset" db:"asset"`
	Network   string    `json:"network" bson:"network" db:"network"`
	Address   string    `json:"address" bson:"address" db:"address"`
	Label     string    `json:"label,omitempty" bson:"label,omitempty" db:"label"`
	Active    bool      `json:"active" bson:"active" db:"active"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
}

// Performance is an ROI credit applied by an admin to all the active funds of a plan.
type Performance struct {
	ID        string    `json:"id" bson:"_id" db:"id"`
	PlanID    string    `json:"planId" bson:"planId" db:"plan_id"`
	ROI       float64   `json:"roi" bson:"roi" db:"roi"`
	Funds     int       `json:"funds" bson:"funds" db:"funds"`   // number of funds credited
	Credit    USD       `json:"credit" bson:"credit" db:"credit"` // total profit credited
	Note      string    `json:"note,omitempty" bson:"note,omitempty" db:"note"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
}

// OTP is a one time password sent by email. Only the bcrypt hash of the code is kept.
type OTP struct {
	Email     string    `json:"email" bson:"email" db:"email"`
	Purpose   string    `json:"purpose" bson:"purpose" db:"purpose"`
	CodeHash  string    `json:"-" bson:"codeHash" db:"code_hash"`
	Attempts  int       `json:"attempts" bson:"attempts" db:"attempts"`
	ExpiresAt time.Time `json:"expiresAt" bson:"expiresAt" db:"expires_at"`
}

// WatcherState contains the fields of the deposit watcher of a network saved to DB.
type WatcherState struct {
	Block uint64            `json:"block" bson:"block"`
	Bh    []string          `json:"bh" bson:"bh"`
	Bhi   int               `json:"bhi" bson:"bhi"`
	Map   map[string]string `json:"map" bson:"map"`
}

// FundFilter selects funds in ListFunds. Empty fields do not filter.
type FundFilter struct {
	UserID  string
	PlanID  string
	Status  string
	Network string
}

// WithdrawalFilter selects withdrawals in ListWithdrawals. Empty fields do not filter.
type WithdrawalFilter struct {
	UserID string
	Status string
}

// WalletFilter selects wallets in ListWallets. Empty fields do not filter.
type WalletFilter struct {
	Asset      string
	Network    string
	ActiveOnly bool
}

// Match reports whether f is selected by the filter.
func (ff FundFilter) Match(f Fund) bool {
	return (ff.UserID == "" || ff.UserID == f.UserID) &&
		(ff.PlanID == "" || ff.PlanID == f.PlanID) &&
		(ff.Status == "" || ff.Status == f.Status) &&
		(ff.Network == "" || ff.Network == f.Network)
}

// Match reports whether w is selected by the filter.
func (wf WithdrawalFilter) Match(w Withdrawal) bool {
	return (wf.UserID == "" || wf.UserID == w.UserID) && (wf.Status == "" || wf.Status == w.Status)
}

// Match reports whether w is selected by the filter.
func (wf WalletFilter) Match(w Wallet) bool {
	return (wf.Asset == "" || strings.EqualFold(wf.Asset, w.Asset)) &&
		(wf.Network == "" || wf.Network == w.Network) &&
		(!wf.ActiveOnly || w.Active)
}
