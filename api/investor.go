package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tarancss/luxhedge/lib/invest"
	"github.com/tarancss/luxhedge/lib/store"
)

type kycReq struct {
	Country string `json:"country"`
	Phone   string `json:"phone"`
}

type fundReq struct {
	PlanID  string    `json:"planId"`
	Asset   string    `json:"asset"`
	Network string    `json:"network"`
	Amount  store.USD `json:"amount"`
	TxHash  string    `json:"txHash"`
}

type goalReq struct {
	Name     string    `json:"name"`
	Target   store.USD `json:"target"`
	Deadline time.Time `json:"deadline"`
}

// goal is a Goal with the percentage reached by the available balance of its owner.
type goal struct {
	store.Goal
	Progress float64 `json:"progress"`
}

type withdrawalReq struct {
	Amount  store.USD `json:"amount"`
	Asset   string    `json:"asset"`
	Network string    `json:"network"`
	Address string    `json:"address"`
}

// me replies the authenticated user.
func (a *API) me(r *http.Request) (interface{}, int, error) {
	return user(r), http.StatusOK, nil
}

// submitKYC records the contact details of the user and puts its identity verification on review.
func (a *API) submitKYC(r *http.Request) (interface{}, int, error) {
	var req kycReq
	if err := decode(r, &req); err != nil {
		return nil, 0, err
	}

	if strings.TrimSpace(req.Country) == "" || strings.TrimSpace(req.Phone) == "" {
		return nil, 0, badRequest("country and phone are required")
	}

	u := user(r)
	if u.KYC == store.KYCApproved {
		return nil, 0, fmt.Errorf("%w: identity already verified", invest.ErrTransition)
	}

	u.Country, u.Phone, u.KYC = strings.TrimSpace(req.Country), strings.TrimSpace(req.Phone), store.KYCPending
	if err := a.DB.UpdateUser(r.Context(), u); err != nil {
		return nil, 0, err
	}

	return u, http.StatusOK, nil
}

// funds replies the funds of the user.
func (a *API) funds(r *http.Request) (interface{}, int, error) {
	fs, err := a.DB.ListFunds(r.Context(), store.FundFilter{UserID: user(r).ID})
	if err != nil {
		return nil, 0, err
	}

	return fs, http.StatusOK, nil
}

// fund replies a fund of the user. Admins can get any fund.
func (a *API) fund(r *http.Request) (interface{}, int, error) {
	f, err := a.DB.GetFund(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, 0, err
	}

	if u := user(r); f.UserID != u.ID && u.Role != store.RoleAdmin {
		return nil, 0, store.ErrNotFound
	}

	return f, http.StatusOK, nil
}

// createFund creates a pending investment of the user into a plan.
func (a *API) createFund(r *http.Request) (interface{}, int, error) {
	var req fundReq
	if err := decode(r, &req); err != nil {
		return nil, 0, err
	}

	if req.Asset == "" {
		return nil, 0, badRequest("asset is required")
	}

	if err := a.checkNet(req.Network); err != nil {
		return nil, 0, err
	}

	p, err := a.DB.GetPlan(r.Context(), req.PlanID)
	if err != nil {
		return nil, 0, err
	}

	if !p.Active {
		return nil, 0, badRequest("plan %s is not active", p.Name)
	}

	if err = invest.CheckFund(req.Amount, p); err != nil {
		return nil, 0, err
	}

	f := store.Fund{
		ID: uuid.NewString(), UserID: user(r).ID, PlanID: p.ID, Asset: strings.ToUpper(req.Asset),
		Network: req.Network, Amount: req.Amount, TxHash: strings.TrimSpace(req.TxHash), Status: store.FundPending,
		CreatedAt: a.now(),
	}
	if err = a.DB.CreateFund(r.Context(), f); err != nil {
		return nil, 0, err
	}

	a.Log.Info("fund created", zap.String("fund", f.ID), zap.String("user", f.UserID), zap.Stringer("amount", f.Amount))

	return f, http.StatusCreated, nil
}

// checkNet returns an error unless net is a configured network.
func (a *API) checkNet(net string) error {
	if net == "" {
		return badRequest("network is required")
	}

	if _, ok := a.Chains[net]; !ok {
		return badRequest("network %s not available", net)
	}

	return nil
}

// goals replies the goals of the user and their progress.
func (a *API) goals(r *http.Request) (interface{}, int, error) {
	u := user(r)

	gs, err := a.DB.ListGoals(r.Context(), u.ID)
	if err != nil {
		return nil, 0, err
	}

	s, err := a.balance(r.Context(), u.ID, "")
	if err != nil {
		return nil, 0, err
	}

	res := make([]goal, 0, len(gs))
	for _, g := range gs {
		res = append(res, goal{Goal: g, Progress: invest.Progress(s.Available, g.Target)})
	}

	return res, http.StatusOK, nil
}

// createGoal creates a savings goal for the user.
func (a *API) createGoal(r *http.Request) (interface{}, int, error) {
	var req goalReq
	if err := decode(r, &req); err != nil {
		return nil, 0, err
	}

	switch {
	case strings.TrimSpace(req.Name) == "":
		return nil, 0, badRequest("name is required")
	case req.Target <= 0:
		return nil, 0, invest.ErrNotPositive
	case !req.Deadline.After(a.now()):
		return nil, 0, badRequest("deadline must be in the future")
	}

	u := user(r)
	g := store.Goal{
		ID: uuid.NewString(), UserID: u.ID, Name: strings.TrimSpace(req.Name), Target: req.Target,
		Deadline: req.Deadline, CreatedAt: a.now(),
	}

	if err := a.DB.CreateGoal(r.Context(), g); err != nil {
		return nil, 0, err
	}

	s, err := a.balance(r.Context(), u.ID, "")
	if err != nil {
		return nil, 0, err
	}

	return goal{Goal: g, Progress: invest.Progress(s.Available, g.Target)}, http.StatusCreated, nil
}

// deleteGoal deletes a goal of the user.
func (a *API) deleteGoal(r *http.Request) (interface{}, int, error) {
	id := mux.Vars(r)["id"]
	if err := a.DB.DeleteGoal(r.Context(), user(r).ID, id); err != nil {
		return nil, 0, err
	}

	return id, http.StatusOK, nil
}

// withdrawals replies the withdrawals of the user.
func (a *API) withdrawals(r *http.Request) (interface{}, int, error) {
	ws, err := a.DB.ListWithdrawals(r.Context(), store.WithdrawalFilter{UserID: user(r).ID})
	if err != nil {
		return nil, 0, err
	}

	return ws, http.StatusOK, nil
}

// createWithdrawal creates a pending withdrawal if the user has enough available balance.
func (a *API) createWithdrawal(r *http.Request) (interface{}, int, error) {
	var req withdrawalReq
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

	u := user(r)

	s, err := a.balance(r.Context(), u.ID, "")
	if err != nil {
		return nil, 0, err
	}

	if err = invest.CheckWithdrawal(req.Amount, s); err != nil {
		return nil, 0, err
	}

	w := store.Withdrawal{
		ID: uuid.NewString(), UserID: u.ID, Amount: req.Amount, Asset: strings.ToUpper(req.Asset),
		Network: req.Network, Address: strings.TrimSpace(req.Address), Status: store.WithdrawalPending,
		CreatedAt: a.now(),
	}
	if err = a.DB.CreateWithdrawal(r.Context(), w); err != nil {
		return nil, 0, err
	}

	a.Log.Info("withdrawal requested", zap.String("withdrawal", w.ID), zap.String("user", u.ID),
		zap.Stringer("amount", w.Amount))

	return w, http.StatusCreated, nil
}

// summary replies the balance of the user.
func (a *API) summary(r *http.Request) (interface{}, int, error) {
	s, err := a.balance(r.Context(), user(r).ID, "")
	if err != nil {
		return nil, 0, err
	}

	return s, http.StatusOK, nil
}

// history replies the ROI credits applied to plans while the user had an approved fund in them.
func (a *API) history(r *http.Request) (interface{}, int, error) {
	fs, err := a.DB.ListFunds(r.Context(), store.FundFilter{UserID: user(r).ID})
	if err != nil {
		return nil, 0, err
	}

	since := map[string]time.Time{} // first approval per plan
	for _, f := range fs {
		if f.ApprovedAt == nil {
			continue
		}

		if t, ok := since[f.PlanID]; !ok || f.ApprovedAt.Before(t) {
			since[f.PlanID] = *f.ApprovedAt
		}
	}

	res := []store.Performance{}

	for plan, t := range since {
		ps, err := a.DB.ListPerformance(r.Context(), plan)
		if err != nil {
			return nil, 0, err
		}

		for _, p := range ps {
			if !p.CreatedAt.Before(t) {
				res = append(res, p)
			}
		}
	}

	sort.SliceStable(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })

	return res, http.StatusOK, nil
}

// balance returns the balance of user excluding the withdrawal with id exclude.
func (a *API) balance(ctx context.Context, userID, exclude string) (invest.Summary, error) {
	fs, err := a.DB.ListFunds(ctx, store.FundFilter{UserID: userID})
	if err != nil {
		return invest.Summary{}, err
	}

	ws, err := a.DB.ListWithdrawals(ctx, store.WithdrawalFilter{UserID: userID})
	if err != nil {
		return invest.Summary{}, err
	}

	return invest.Balance(fs, ws, exclude), nil
}
