// Package invest implements the fund and withdrawal workflow: status transitions, ROI credits and balances.
package invest

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/tarancss/luxhedge/lib/store"
)

// Errors.
var (
	ErrTransition   = errors.New("invalid status transition")
	ErrBadROI       = errors.New("roi must be greater than -100 and not greater than 100")
	ErrOutOfRange   = errors.New("amount out of the plan range")
	ErrNotPositive  = errors.New("amount must be positive")
	ErrInsufficient = errors.New("amount exceeds the available balance")
)

const day = 24 * time.Hour

func transition(what, id, from, to string) error {
	return fmt.Errorf("%w: %s %s is %s, cannot become %s", ErrTransition, what, id, from, to)
}

// ApproveFund activates a pending fund. It matures after the duration of its plan.
func ApproveFund(f *store.Fund, p store.Plan, now time.Time) error {
	if f.Status != store.FundPending {
		return transition("fund", f.ID, f.Status, store.FundActive)
	}

	mat := now.Add(time.Duration(p.DurationDays) * day)
	f.Status = store.FundActive
	f.ApprovedAt = &now
	f.MaturesAt = &mat

	return nil
}

// RejectFund rejects a pending fund.
func RejectFund(f *store.Fund) error {
	if f.Status != store.FundPending {
		return transition("fund", f.ID, f.Status, store.FundRejected)
	}

	f.Status = store.FundRejected

	return nil
}

// CompleteFund completes an active fund.
func CompleteFund(f *store.Fund) error {
	if f.Status != store.FundActive {
		return transition("fund", f.ID, f.Status, store.FundCompleted)
	}

	f.Status = store.FundCompleted

	return nil
}

// CheckFund checks that amount lies within the range of plan p.
func CheckFund(amount store.USD, p store.Plan) error {
	switch {
	case amount <= 0:
		return ErrNotPositive
	case amount < p.MinAmount || (p.MaxAmount > 0 && amount > p.MaxAmount):
		return fmt.Errorf("%w: %s is not between %s and %s", ErrOutOfRange, amount, p.MinAmount, p.MaxAmount)
	}

	return nil
}

// ApproveWithdrawal approves a pending withdrawal. s must be the balance of the user excluding w.
func ApproveWithdrawal(w *store.Withdrawal, s Summary, now time.Time) error {
	if w.Status != store.WithdrawalPending {
		return transition("withdrawal", w.ID, w.Status, store.WithdrawalApproved)
	}

	if w.Amount > s.Available {
		return fmt.Errorf("%w: %s > %s", ErrInsufficient, w.Amount, s.Available)
	}

	w.Status = store.WithdrawalApproved
	w.ProcessedAt = &now

	return nil
}

// RejectWithdrawal rejects a pending withdrawal with an optional note.
func RejectWithdrawal(w *store.Withdrawal, note string, now time.Time) error {
	if w.Status != store.WithdrawalPending {
		return transition("withdrawal", w.ID, w.Status, store.WithdrawalRejected)
	}

	w.Status = store.WithdrawalRejected
	w.Note = note
	w.ProcessedAt = &now

	return nil
}

// PayWithdrawal marks an approved withdrawal as paid with the hash of the payment.
func PayWithdrawal(w *store.Withdrawal, txHash string, now time.Time) error {
	if w.Status != store.WithdrawalApproved {
		return transition("withdrawal", w.ID, w.Status, store.WithdrawalPaid)
	}

	w.Status = store.WithdrawalPaid
	w.TxHash = txHash
	w.ProcessedAt = &now

	return nil
}

// CheckWithdrawal checks that a new withdrawal of amount can be requested with balance s.
func CheckWithdrawal(amount store.USD, s Summary) error {
	if amount <= 0 {
		return ErrNotPositive
	}

	if amount > s.Available {
		return fmt.Errorf("%w: %s > %s", ErrInsufficient, amount, s.Available)
	}

	return nil
}

// CheckROI checks roi is in (-100, 100].
func CheckROI(roi float64) error {
	if roi <= -100 || roi > 100 {
		return ErrBadROI
	}

	return nil
}

// Credit returns the profit of amount at roi percent, rounded half away from zero to the cent. roi is taken as the
// shortest decimal that represents it, so 0.1 is exactly one tenth.
func Credit(amount store.USD, roi float64) store.USD {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(roi, 'f', -1, 64))
	if !ok {
		return 0
	}

	r.Mul(r, new(big.Rat).SetInt64(int64(amount)))
	r.Quo(r, big.NewRat(100, 1)) //nolint:gomnd // percent

	return store.USD(round(r))
}

// round rounds r half away from zero.
func round(r *big.Rat) int64 {
	num, den := new(big.Int).Abs(r.Num()), r.Denom()

	q, m := new(big.Int).QuoRem(num, den, new(big.Int))
	if m.Lsh(m, 1).Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}

	if r.Sign() < 0 {
		q.Neg(q)
	}

	return q.Int64()
}

// ApplyROI credits roi to every active fund in funds and returns the funds changed and the total credited.
func ApplyROI(funds []store.Fund, roi float64) ([]store.Fund, store.USD, error) {
	if err := CheckROI(roi); err != nil {
		return nil, 0, err
	}

	var (
		changed []store.Fund
		total   store.USD
	)

	for _, f := range funds {
		if f.Status != store.FundActive {
			continue
		}

		c := Credit(f.Amount, roi)
		f.Profit += c
		total += c

		changed = append(changed, f)
	}

	return changed, total, nil
}

// Summary is the balance of an investor.
type Summary struct {
	Invested  store.USD `json:"invested"`
	Profit    store.USD `json:"profit"`
	Withdrawn store.USD `json:"withdrawn"`
	Reserved  store.USD `json:"pendingWithdrawals"`
	Available store.USD `json:"available"`
}

// Balance returns the balance given the funds and withdrawals of an investor. The withdrawal with id exclude, if any,
// is not taken into account.
func Balance(funds []store.Fund, ws []store.Withdrawal, exclude string) Summary {
	var s Summary

	for _, f := range funds {
		if f.Status == store.FundActive || f.Status == store.FundCompleted {
			s.Invested += f.Amount
			s.Profit += f.Profit
		}
	}

	for _, w := range ws {
		if exclude != "" && w.ID == exclude {
			continue
		}

		switch w.Status {
		case store.WithdrawalPaid:
			s.Withdrawn += w.Amount
		case store.WithdrawalPending, store.WithdrawalApproved:
			s.Reserved += w.Amount
		}
	}

	s.Available = s.Invested + s.Profit - s.Withdrawn - s.Reserved

	return s
}

// Progress returns the percentage of target reached by balance, capped at 100.
func Progress(balance, target store.USD) float64 {
	if target <= 0 || balance <= 0 {
		return 0
	}

	if balance >= target {
		return 100 //nolint:gomnd // percent
	}

	return float64(balance) / float64(target) * 100 //nolint:gomnd // percent
}
