package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tarancss/luxhedge/lib/block"
	"github.com/tarancss/luxhedge/lib/invest"
	"github.com/tarancss/luxhedge/lib/metrics"
	"github.com/tarancss/luxhedge/lib/msg"
	"github.com/tarancss/luxhedge/lib/store"
)

// Actions on funds and withdrawals.
const (
	actApprove  = "approve"
	actReject   = "reject"
	actComplete = "complete"
	actPaid     = "paid"
)

type statusReq struct {
	Status string `json:"status"`
}

type roleReq struct {
	Role string `json:"role"`
}

type processReq struct {
	Note   string `json:"note"`
	TxHash string `json:"txHash"`
}

type walletReq struct {
	Asset   string `json:"asset"`
	Network string `json:"network"`
	Address string `json:"address"`
	Label   string `json:"label"`
	Active  *bool  `json:"active"`
}

type roiReq struct {
	PlanID string  `json:"planId"`
	ROI    float64 `json:"roi"`
	Note   string  `json:"note"`
}

// users replies all the users.
func (a *API) users(r *http.Request) (interface{}, int, error) {
	us, err := a.DB.ListUsers(r.Context())
	if err != nil {
		return nil, 0, err
	}

	return us, http.StatusOK, nil
}

// setKYC sets the identity verification status of a user and notifies it.
func (a *API) setKYC(r *http.Request) (interface{}, int, error) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		return nil, 0, err
	}

	switch req.Status {
	case store.KYCNone, store.KYCPending, store.KYCApproved, store.KYCRejected:
	default:
		return nil, 0, badRequest("invalid kyc status %q", req.Status)
	}

	u, err := a.DB.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, 0, err
	}

	if u.KYC == req.Status {
		return u, http.StatusOK, nil
	}

	u.KYC = req.Status
	if err = a.DB.UpdateUser(r.Context(), u); err != nil {
		return nil, 0, err
	}

	a.Log.Info("kyc status changed", zap.String("user", u.ID), zap.String("status", u.KYC),
		zap.String("admin", user(r).ID))
	a.notify(r.Context(), msg.Notice{Kind: msg.NoticeKYC, To: u.Email, Name: u.Name, Status: u.KYC})

	return u, http.StatusOK, nil
}

// setRole sets the role of a user. Admins cannot change their own role.
func (a *API) setRole(r *http.Request) (interface{}, int, error) {
	var req roleReq
	if err := decode(r, &req); err != nil {
		return nil, 0, err
	}

	if req.Role != store.RoleInvestor && req.Role != store.RoleAdmin {
		return nil, 0, badRequest("invalid role %q", req.Role)
	}

	id := mux.Vars(r)["id"]
	if id == user(r).ID {
		return nil, 0, fmt.Errorf("%w: cannot change your own role", ErrForbidden)
	}

	u, err := a.DB.GetUser(r.Context(), id)
	if err != nil {
		return nil, 0, err
	}

	u.Role = req.Role
	if err = a.DB.UpdateUser(r.Context(), u); err != nil {
		return nil, 0, err
	}

	a.Log.Info("role changed", zap.String("user", u.ID), zap.String("role", u.Role), zap.String("admin", user(r).ID))

	return u, http.StatusOK, nil
}

// adminFunds replies all the funds, optionally filtered by status.
func (a *API) adminFunds(r *http.Request) (interface{}, int, error) {
	q := r.URL.Query()

	fs, err := a.DB.ListFunds(r.Context(), store.FundFilter{Status: q.Get("status"), UserID: q.Get("user")})
	if err != nil {
		return nil, 0, err
	}

	return fs, http.StatusOK, nil
}

// fundAction approves, rejects or completes a fund and notifies its owner.
func (a *API) fundAction(r *http.Request) (interface{}, int, error) {
	v := mux.Vars(r)

	f, err := a.DB.GetFund(r.Context(), v["id"])
	if err != nil {
		return nil, 0, err
	}

	switch v["action"] {
	case actApprove:
		var p store.Plan
		if p, err = a.DB.GetPlan(r.Context(), f.PlanID); err != nil {
			return nil, 0, err
		}

		err = invest.ApproveFund(&f, p, a.now())
	case actReject:
		err = invest.RejectFund(&f)
	case actComplete:
		err = invest.CompleteFund(&f)
	default:
		return nil, 0, store.ErrNotFound
	}

	if err != nil {
		return nil, 0, err
	}

	if err = a.DB.UpdateFund(r.Context(), f); err != nil {
		return nil, 0, err
	}

	metrics.Transitions.WithLabelValues("fund", f.Status).Inc()
	a.Log.Info("fund status changed", zap.String("fund", f.ID), zap.String("status", f.Status),
		zap.String("admin", user(r).ID))
	a.notifyOwner(r.Context(), f.UserID, msg.Notice{
		Kind: msg.NoticeFund, Ref: f.ID, Status: f.Status, Amount: f.Amount, Asset: f.Asset,
	})

	return f, http.StatusOK, nil
}

// adminWithdrawals replies all the withdrawals, optionally filtered by status.
func (a *API) adminWithdrawals(r *http.Request) (interface{}, int, error) {
	q := r.URL.Query()

	ws, err := a.DB.ListWithdrawals(r.Context(), store.WithdrawalFilter{Status: q.Get("status"), UserID: q.Get("user")})
	if err != nil {
		return nil, 0, err
	}

	return ws, http.StatusOK, nil
}

// withdrawalAction approves, rejects or marks as paid a withdrawal and notifies its owner. Approval checks the owner
// can still afford it.
func (a *API) withdrawalAction(r *http.Request) (interface{}, int, error) {
	v := mux.Vars(r)

	var req processReq
	if err := decodeOpt(r, &req); err != nil {
		return nil, 0, err
	}

	w, err := a.DB.GetWithdrawal(r.Context(), v["id"])
	if err != nil {
		return nil, 0, err
	}

	switch v["action"] {
	case actApprove:
		var s invest.Summary
		if s, err = a.balance(r.Context(), w.UserID, w.ID); err != nil {
			return nil, 0, err
		}

		err = invest.ApproveWithdrawal(&w, s, a.now())
	case actReject:
		err = invest.RejectWithdrawal(&w, strings.TrimSpace(req.Note), a.now())
	case actPaid:
		if strings.TrimSpace(req.TxHash) == "" {
			return nil, 0, badRequest("txHash is required")
		}

		err = invest.PayWithdrawal(&w, strings.TrimSpace(req.TxHash), a.now())
	default:
		return nil, 0, store.ErrNotFound
	}

	if err != nil {
		return nil, 0, err
	}

	if err = a.DB.UpdateWithdrawal(r.Context(), w); err != nil {
		return nil, 0, err
	}

	metrics.Transitions.WithLabelValues("withdrawal", w.Status).Inc()
	a.Log.Info("withdrawal status changed", zap.String("withdrawal", w.ID), zap.String("status", w.Status),
		zap.String("admin", user(r).ID))
	a.notifyOwner(r.Context(), w.UserID, msg.Notice{
		Kind: msg.NoticeWithdrawal, Ref: w.ID, Status: w.Status, Amount: w.Amount, Asset: w.Asset, Note: w.Note,
	})

	return w, http.StatusOK, nil
}

// notifyOwner fills the recipient of n with user id and notifies it.
func (a *API) notifyOwner(ctx context.Context, id string, n msg.Notice) {
	u, err := a.DB.GetUser(ctx, id)
	if err != nil {
		a.Log.Error("getting user to notify", zap.String("user", id), zap.Error(err))

		return
	}

	n.To, n.Name = u.Email, u.Name
	a.notify(ctx, n)
}

// adminPlans replies all the plans, active or not.
func (a *API) adminPlans(r *http.Request) (interface{}, int, error) {
	ps, err := a.DB.ListPlans(r.Context(), false)
	if err != nil {
		return nil, 0, err
	}

	return ps, http.StatusOK, nil
}

// savePlan creates a plan, or updates it when the id is in the uri.
func (a *API) savePlan(r *http.Request) (interface{}, int, error) {
	var p store.Plan
	if err := decode(r, &p); err != nil {
		return nil, 0, err
	}

	p.Name = strings.TrimSpace(p.Name)

	switch {
	case p.Name == "":
		return nil, 0, badRequest("name is required")
	case p.MinAmount < 0 || p.MaxAmount < 0:
		return nil, 0, invest.ErrNotPositive
	case p.MaxAmount > 0 && p.MaxAmount < p.MinAmount:
		return nil, 0, badRequest("maxAmount %s is below minAmount %s", p.MaxAmount, p.MinAmount)
	case p.DurationDays <= 0:
		return nil, 0, badRequest("durationDays must be positive")
	}

	if err := invest.CheckROI(p.ROI); err != nil {
		return nil, 0, err
	}

	status := http.StatusCreated

	if id, ok := mux.Vars(r)["id"]; ok {
		old, err := a.DB.GetPlan(r.Context(), id)
		if err != nil {
			return nil, 0, err
		}

		p.ID, p.CreatedAt, status = old.ID, old.CreatedAt, http.StatusOK
	} else {
		p.ID, p.CreatedAt = uuid.NewString(), a.now()
	}

	if err := a.DB.SavePlan(r.Context(), p); err != nil {
		return nil, 0, err
	}

	return p, status, nil
}

// deletePlan deletes a plan that has no pending nor active funds.
func (a *API) deletePlan(r *http.Request) (interface{}, int, error) {
	id := mux.Vars(r)["id"]

	for _, st := range []string{store.FundPending, store.FundActive} {
		fs, err := a.DB.ListFunds(r.Context(), store.FundFilter{PlanID: id, Status: st})
		if err != nil {
			return nil, 0, err
		}

		if len(fs) > 0 {
			return nil, 0, fmt.Errorf("%w: plan %s has %s funds", invest.ErrTransition, id, st)
		}
	}

	if err := a.DB.DeletePlan(r.Context(), id); err != nil {
		return nil, 0, err
	}

	return id, http.StatusOK, nil
}

// adminWallets replies all the deposit wallets.
func (a *API) adminWallets(r *http.Request) (interface{}, int, error) {
	ws, err := a.DB.ListWallets(r.Context(), store.WalletFilter{Network: r.URL.Query().Get("net")})
	if err != nil {
		return nil, 0, err
	}

	return ws, http.StatusOK, nil
}

// addWallet adds a deposit wallet. Wallets of scanned networks are watched for deposits.
func (a *API) addWallet(r *http.Request) (interface{}, int, error) {
	var req walletReq
	if err := decode(r, &req); err != nil {
		return nil, 0, err
	}

	switch {
	case req.Asset == "":
		return nil, 0, badRequest("asset is required")
	case strings.TrimSpace(req.Address) == "":
		return nil, 0, badRequest("address is required")
	}

	if err := a.checkNet(req.Network); err != nil {
		return nil, 0, err
	}

	w := store.Wallet{
		ID: uuid.NewString(), Asset: strings.ToUpper(req.Asset), Network: req.Network,
		Address: strings.TrimSpace(req.Address), Label: req.Label, Active: req.Active == nil || *req.Active,
		CreatedAt: a.now(),
	}

	scanned := a.scanned(w.Network)
	if scanned {
		w.Address = strings.ToLower(w.Address) // keep everything in lowercase to avoid issues
	}

	if err := a.DB.SaveWallet(r.Context(), w); err != nil {
		return nil, 0, err
	}

	if scanned && w.Active {
		a.watch(w, msg.LISTEN)
	}

	return w, http.StatusCreated, nil
}

// deleteWallet deletes a deposit wallet and stops watching it.
func (a *API) deleteWallet(r *http.Request) (interface{}, int, error) {
	w, err := a.DB.GetWallet(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, 0, err
	}

	if err = a.DB.DeleteWallet(r.Context(), w.ID); err != nil {
		return nil, 0, err
	}

	if !w.Active || !a.scanned(w.Network) {
		return w, http.StatusOK, nil
	}

	// another active wallet of the network may share the address
	ws, err := a.DB.ListWallets(r.Context(), store.WalletFilter{Network: w.Network, ActiveOnly: true})
	if err != nil {
		return nil, 0, err
	}

	for _, o := range ws {
		if strings.EqualFold(o.Address, w.Address) {
			return w, http.StatusOK, nil
		}
	}

	a.watch(w, msg.UNLISTEN)

	return w, http.StatusOK, nil
}

// scanned returns true if the watcher scans the blocks of net.
func (a *API) scanned(net string) bool {
	_, ok := a.Chains[net].(block.Scanner)

	return ok
}

// watch sends a watch request for the address of w to the watcher.
func (a *API) watch(w store.Wallet, act int) {
	if a.Broker == nil {
		return
	}

	wr := msg.WatchReq{Net: w.Network, Type: msg.ADDRESS, Obj: w.Address, Act: act}
	if err := a.Broker.SendRequest(w.Network, wr); err != nil {
		a.Log.Error("sending watch request", zap.String("net", w.Network), zap.String("addr", w.Address),
			zap.Error(err))
	}
}

// performance replies the ROI credits applied, optionally of one plan.
func (a *API) performance(r *http.Request) (interface{}, int, error) {
	ps, err := a.DB.ListPerformance(r.Context(), r.URL.Query().Get("plan"))
	if err != nil {
		return nil, 0, err
	}

	return ps, http.StatusOK, nil
}

// applyROI credits an ROI to every active fund of a plan and records it.
func (a *API) applyROI(r *http.Request) (interface{}, int, error) {
	var req roiReq
	if err := decode(r, &req); err != nil {
		return nil, 0, err
	}

	p, err := a.DB.GetPlan(r.Context(), req.PlanID)
	if err != nil {
		return nil, 0, err
	}

	fs, err := a.DB.ListFunds(r.Context(), store.FundFilter{PlanID: p.ID, Status: store.FundActive})
	if err != nil {
		return nil, 0, err
	}

	changed, total, err := invest.ApplyROI(fs, req.ROI)
	if err != nil {
		return nil, 0, err
	}

	for _, f := range changed {
		if err = a.DB.UpdateFund(r.Context(), f); err != nil {
			return nil, 0, err
		}
	}

	perf := store.Performance{
		ID: uuid.NewString(), PlanID: p.ID, ROI: req.ROI, Funds: len(changed), Credit: total,
		Note: strings.TrimSpace(req.Note), CreatedAt: a.now(),
	}
	if err = a.DB.AddPerformance(r.Context(), perf); err != nil {
		return nil, 0, err
	}

	a.Log.Info("roi applied", zap.String("plan", p.ID), zap.Float64("roi", req.ROI), zap.Int("funds", len(changed)),
		zap.Stringer("credit", total), zap.String("admin", user(r).ID))

	return perf, http.StatusCreated, nil
}
