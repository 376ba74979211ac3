// Package api implements the api service.
//
// This service implements the RESTful API used by the investor dashboard and the admin panel: authentication,
// funds, goals, withdrawals, investment plans, deposit wallets, performance and the cold wallet. It also consumes
// the deposit events sent by the watcher service to confirm the funds whose transaction has been mined.
package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tarancss/hd"

	"github.com/tarancss/luxhedge/lib/auth"
	"github.com/tarancss/luxhedge/lib/block"
	"github.com/tarancss/luxhedge/lib/block/types"
	"github.com/tarancss/luxhedge/lib/mail"
	"github.com/tarancss/luxhedge/lib/msg"
	"github.com/tarancss/luxhedge/lib/price"
	"github.com/tarancss/luxhedge/lib/store"
)

// Pricer returns the USD prices of the supported assets.
type Pricer interface {
	USD(ctx context.Context) (price.Prices, error)
}

// Deps are the dependencies of the service. Broker, Mail and Prices are optional.
type Deps struct {
	DB     store.DB
	Chains map[string]block.Chain
	HD     *hd.HdWallet
	Broker msg.Broker   // sends watch requests and notifications
	Mail   *mail.Sender // sends notifications when there is no broker
	Prices Pricer
	Tokens *auth.Tokens
	OTP    *auth.OTP
	Log    *zap.Logger
	DryRun bool // do not submit cold wallet transactions
}

// API contains the data necessary to deliver the service
type API struct {
	Deps
	now func() time.Time

	s  *http.Server  // http server
	ss *http.Server  // https server
	sc chan struct{} // http server channel used for graceful shutdowns
}

// New returns a pointer to a new API service
func New(d Deps) *API {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	return &API{Deps: d, now: time.Now, sc: make(chan struct{})}
}

// Stop shuts down the http servers implementing the RESTful API. Closing the broker, database and blockchain clients
// is left to the caller that opened them.
func (a *API) Stop() {
	for _, s := range []*http.Server{a.s, a.ss} {
		if s == nil {
			continue
		}

		if err := s.Shutdown(context.Background()); err != nil {
			a.Log.Error("http server shutdown", zap.String("addr", s.Addr), zap.Error(err))
		}
	}

	close(a.sc) // close server channels to indicate shutdowns have finished
}

// ManageEvents starts go routines to consume the message broker queues for deposit events sent by the watcher
// service. For each network that can be scanned, two channels are opened, one for transaction events, and one for
// errors.
func (a *API) ManageEvents() error {
	if a.Broker == nil {
		return nil
	}

	for net := range block.Scanners(a.Chains) {
		mut := new(sync.Mutex)
		mut.Lock()

		eveCh, errCh, err := a.Broker.GetEvents(net, mut)
		if err != nil {
			return err
		}

		log := a.Log.With(zap.String("net", net))

		// launch event channel reader
		go func(net string) {
			log.Info("start listening to deposit events")

			for eve := range eveCh {
				if err := a.Deposit(context.Background(), net, eve); err != nil {
					log.Error("processing deposit event", zap.String("hash", eve.Hash), zap.Error(err))
				}

				mut.Unlock()
			}

			log.Info("stop listening to deposit events")
		}(net)

		// launch error channel reader
		go func() {
			for e := range errCh {
				log.Warn("deposit event", zap.Error(e))
			}
		}()
	}

	return nil
}

// Deposit confirms the pending funds of network net whose transaction hash is the one of the event.
func (a *API) Deposit(ctx context.Context, net string, eve types.Trans) error {
	funds, err := a.DB.ListFunds(ctx, store.FundFilter{Status: store.FundPending, Network: net})
	if err != nil {
		return err
	}

	for _, f := range funds {
		if f.Confirmed || f.TxHash == "" || !strings.EqualFold(f.TxHash, eve.Hash) {
			continue
		}

		f.Confirmed = true
		if err = a.DB.UpdateFund(ctx, f); err != nil {
			return err
		}

		a.Log.Info("fund deposit confirmed", zap.String("net", net), zap.String("fund", f.ID),
			zap.String("hash", eve.Hash))
	}

	return nil
}

// notify sends n through the broker, or directly by mail if there is no broker. Failures are logged: a notification
// never fails the request that caused it.
func (a *API) notify(ctx context.Context, n msg.Notice) {
	var err error

	switch {
	case a.Broker != nil:
		err = a.Broker.SendNotice(n)
	case a.Mail != nil:
		err = a.Mail.Send(ctx, n)
	default:
		a.Log.Debug("notification dropped, no broker nor mail configured", zap.String("kind", n.Kind))

		return
	}

	if err != nil {
		a.Log.Error("sending notification", zap.String("kind", n.Kind), zap.String("to", n.To), zap.Error(err))
	}
}
