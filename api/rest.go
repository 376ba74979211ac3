package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tarancss/luxhedge/lib/store"
)

const timeout = 15

// Router returns the routes of the RESTful API.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	h := a.handle
	investor := func(f handler) http.HandlerFunc { return h(a.authed(f)) }
	admin := func(f handler) http.HandlerFunc { return h(a.authed(f, store.RoleAdmin)) }

	r.HandleFunc("/", h(a.home))

	// public
	r.HandleFunc("/api/auth/register", h(a.register)).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/otp", h(a.sendOTP)).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/verify", h(a.verify)).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", h(a.login)).Methods(http.MethodPost)
	r.HandleFunc("/api/plans", h(a.plans)).Methods(http.MethodGet)
	r.HandleFunc("/api/wallets", h(a.wallets)).Methods(http.MethodGet)
	r.HandleFunc("/api/performance/prices", h(a.prices)).Methods(http.MethodGet)
	r.HandleFunc("/api/chat", h(a.chat)).Methods(http.MethodPost)

	// investor
	r.HandleFunc("/api/me", investor(a.me)).Methods(http.MethodGet)
	r.HandleFunc("/api/me/kyc", investor(a.submitKYC)).Methods(http.MethodPost)
	r.HandleFunc("/api/funds", investor(a.funds)).Methods(http.MethodGet)
	r.HandleFunc("/api/funds", investor(a.createFund)).Methods(http.MethodPost)
	r.HandleFunc("/api/funds/{id}", investor(a.fund)).Methods(http.MethodGet)
	r.HandleFunc("/api/goals", investor(a.goals)).Methods(http.MethodGet)
	r.HandleFunc("/api/goals", investor(a.createGoal)).Methods(http.MethodPost)
	r.HandleFunc("/api/goals/{id}", investor(a.deleteGoal)).Methods(http.MethodDelete)
	r.HandleFunc("/api/withdrawals", investor(a.withdrawals)).Methods(http.MethodGet)
	r.HandleFunc("/api/withdrawals", investor(a.createWithdrawal)).Methods(http.MethodPost)
	r.HandleFunc("/api/performance/summary", investor(a.summary)).Methods(http.MethodGet)
	r.HandleFunc("/api/performance/history", investor(a.history)).Methods(http.MethodGet)

	// admin
	r.HandleFunc("/api/admin/users", admin(a.users)).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/users/{id}/kyc", admin(a.setKYC)).Methods(http.MethodPut)
	r.HandleFunc("/api/admin/users/{id}/role", admin(a.setRole)).Methods(http.MethodPut)
	r.HandleFunc("/api/admin/funds", admin(a.adminFunds)).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/funds/{id}/{action:approve|reject|complete}", admin(a.fundAction)).
		Methods(http.MethodPut)
	r.HandleFunc("/api/admin/withdrawals", admin(a.adminWithdrawals)).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/withdrawals/{id}/{action:approve|reject|paid}", admin(a.withdrawalAction)).
		Methods(http.MethodPut)
	r.HandleFunc("/api/admin/plans", admin(a.adminPlans)).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/plans", admin(a.savePlan)).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/plans/{id}", admin(a.savePlan)).Methods(http.MethodPut)
	r.HandleFunc("/api/admin/plans/{id}", admin(a.deletePlan)).Methods(http.MethodDelete)
	r.HandleFunc("/api/admin/wallets", admin(a.adminWallets)).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/wallets", admin(a.addWallet)).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/wallets/{id}", admin(a.deleteWallet)).Methods(http.MethodDelete)
	r.HandleFunc("/api/admin/performance", admin(a.performance)).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/performance", admin(a.applyROI)).Methods(http.MethodPost)

	// cold wallet
	r.HandleFunc("/api/admin/coldwallet/networks", admin(a.networks)).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/coldwallet/balance/{address}", admin(a.addrBal)).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/coldwallet/address", admin(a.hdAddr)).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/coldwallet/send", admin(a.send)).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/coldwallet/tx/{hash}", admin(a.tx)).Methods(http.MethodGet)

	r.NotFoundHandler = h(func(*http.Request) (interface{}, int, error) { return nil, 0, store.ErrNotFound })
	r.MethodNotAllowedHandler = http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		reply(rw, http.StatusMethodNotAllowed, Response{Error: "method not allowed"})
	})

	return r
}

// Init sets up and starts the http/https server to service the RESTful API. If sslPort, sslCert and sslKey are
// informed, it will start an https (TLS) server on the specified endpoint. It returns when Stop is called.
func (a *API) Init(endpoint, port, sslPort, sslCert, sslKey string) error {
	var err, errTLS error

	r := a.Router()

	// start http server
	if port != "" {
		a.s = &http.Server{
			Handler:      r,
			Addr:         endpoint + ":" + port,
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			if e := a.s.ListenAndServe(); !errors.Is(e, http.ErrServerClosed) {
				err = e
				a.Log.Error("http server", zap.Error(e))
			}
		}()

		a.Log.Info("listening to API http requests", zap.String("addr", a.s.Addr))
	}
	// start https server
	if sslPort != "" && sslCert != "" && sslKey != "" {
		a.ss = &http.Server{
			Handler:      r,
			Addr:         endpoint + ":" + sslPort,
			WriteTimeout: timeout * time.Second,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			if e := a.ss.ListenAndServeTLS(sslCert, sslKey); !errors.Is(e, http.ErrServerClosed) {
				errTLS = e
				a.Log.Error("https server", zap.Error(e))
			}
		}()

		a.Log.Info("listening to API https requests", zap.String("addr", a.ss.Addr))
	}
	// wait for servers to be shutdown
	<-a.sc

	return errors.Join(err, errTLS)
}
