package api

import (
	"net/http"
	"strings"

	"github.com/tarancss/luxhedge/lib/chat"
	"github.com/tarancss/luxhedge/lib/store"
)

type chatReq struct {
	Message string `json:"message"`
}

type chatReply struct {
	Reply string `json:"reply"`
}

// plans replies the active investment plans.
func (a *API) plans(r *http.Request) (interface{}, int, error) {
	ps, err := a.DB.ListPlans(r.Context(), true)
	if err != nil {
		return nil, 0, err
	}

	return ps, http.StatusOK, nil
}

// wallets replies the active deposit wallets, optionally of one asset.
func (a *API) wallets(r *http.Request) (interface{}, int, error) {
	ws, err := a.DB.ListWallets(r.Context(), store.WalletFilter{Asset: r.URL.Query().Get("asset"), ActiveOnly: true})
	if err != nil {
		return nil, 0, err
	}

	return ws, http.StatusOK, nil
}

// prices replies the USD price of the supported assets.
func (a *API) prices(r *http.Request) (interface{}, int, error) {
	if a.Prices == nil {
		return nil, 0, ErrNotSupported
	}

	p, err := a.Prices.USD(r.Context())
	if err != nil {
		return nil, 0, upstream("prices", err)
	}

	return p, http.StatusOK, nil
}

// chat replies the support bot answer to a message.
func (a *API) chat(r *http.Request) (interface{}, int, error) {
	var req chatReq
	if err := decode(r, &req); err != nil {
		return nil, 0, err
	}

	if strings.TrimSpace(req.Message) == "" {
		return nil, 0, badRequest("message is required")
	}

	return chatReply{Reply: chat.Reply(req.Message)}, http.StatusOK, nil
}
