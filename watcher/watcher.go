// Package watcher implements the deposit watcher service. The watcher scans the transactions in the mined blocks of
// the networks and sends deposit events when a platform wallet is involved in a transaction.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tarancss/luxhedge/lib/block"
	"github.com/tarancss/luxhedge/lib/block/types"
	"github.com/tarancss/luxhedge/lib/metrics"
	"github.com/tarancss/luxhedge/lib/msg"
	"github.com/tarancss/luxhedge/lib/store"
	nw "github.com/tarancss/luxhedge/watcher/netwatcher"
)

// ErrNoBroker is returned by New when there is no broker to send events to.
var ErrNoBroker = errors.New("watcher: a message broker is required")

// Watcher implements the deposit watcher service.
type Watcher struct {
	db    store.DB
	mb    msg.Broker
	sc    map[string]block.Scanner
	log   *zap.Logger
	every time.Duration // minimum time between blocks

	mu  sync.Mutex
	nws map[string]*nw.NetWatcher
}

// New instantiates a new watcher service for the networks in bc that can be scanned.
func New(db store.DB, mb msg.Broker, bc map[string]block.Chain, log *zap.Logger) (*Watcher, error) {
	if mb == nil {
		return nil, ErrNoBroker
	}

	return &Watcher{
		db: db, mb: mb, sc: block.Scanners(bc), log: log, every: time.Second, nws: map[string]*nw.NetWatcher{},
	}, nil
}

// Run watches every network until ctx is done. Each network is watched by its own go routine. A network whose chain
// breaks stops being watched; any other failure stops all of them and is returned.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.sc) == 0 {
		w.log.Warn("no networks to watch")
	}

	for net := range w.sc {
		if err := w.setup(ctx, net); err != nil {
			return fmt.Errorf("%s: %w", net, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	for net := range w.sc {
		g.Go(func() error { return w.Watch(ctx, net) })
	}

	return g.Wait()
}

// setup loads the state of net and the wallets to watch and starts consuming the watch requests, so pending requests
// in the broker are applied before scanning.
func (w *Watcher) setup(ctx context.Context, net string) error {
	ws, err := w.db.ListWallets(ctx, store.WalletFilter{Network: net, ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("loading wallets: %w", err)
	}

	addrs := make(map[string]string, len(ws))
	for _, wa := range ws {
		addrs[wa.Address] = wa.ID
	}

	c := w.sc[net]

	n, err := nw.New(ctx, net, c.MaxBlocks(), c.LatestBlock, addrs, w.db)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	w.mu.Lock()
	w.nws[net] = n
	w.mu.Unlock()

	w.log.Info("watcher ready", zap.String("net", net), zap.Uint64("block", n.Block), zap.Int("wallets", n.Len()))

	return w.ManageRequests(net)
}

// netWatcher returns the state of net.
func (w *Watcher) netWatcher(net string) *nw.NetWatcher {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.nws[net]
}

// Watch scans the blocks of net one by one and sends the transactions that involve a watched address. When there is
// nothing to watch or no new block, it waits the average block time of the network. The state is saved after every
// block and when ctx is done.
func (w *Watcher) Watch(ctx context.Context, net string) error {
	n, c := w.netWatcher(net), w.sc[net]
	log := w.log.With(zap.String("net", net))
	avg := time.Duration(c.AvgBlock()) * time.Second
	lim := rate.NewLimiter(rate.Every(w.every), 1)

	defer func() {
		if err := w.db.SaveWatcher(context.Background(), net, n.ToStore()); err != nil {
			log.Error("saving watcher state", zap.Error(err))
		}

		log.Info("watcher stopped", zap.Uint64("block", n.Block))
	}()

	for {
		if n.Len() == 0 {
			log.Debug("waiting for something to watch")

			if !sleep(ctx, avg) {
				return nil
			}

			continue
		}

		if lim.Wait(ctx) != nil {
			return nil
		}

		// get next block's data
		next := n.Next()

		var b map[string]interface{}
		if err := c.GetBlock(next, true, &b); errors.Is(err, types.ErrNoBlock) {
			// lets wait for a new block to be mined
			if !sleep(ctx, avg) {
				return nil
			}

			continue
		} else if err != nil {
			return err
		}

		blk, err := c.DecodeBlock(b)
		if err != nil {
			return fmt.Errorf("decoding block %d: %w", next, err)
		}

		// check block is chained
		if !n.Chained(blk.PHash) {
			log.Error("block is not chained, stop watching", zap.Uint64("block", next), zap.String("hash", blk.Hash),
				zap.String("parentHash", blk.PHash))

			return nil
		}

		if blk.Tx, err = c.DecodeTxs(b); err != nil {
			return fmt.Errorf("decoding transactions of block %d: %w", next, err)
		}

		n.UpdateChain(blk.Hash)
		metrics.Blocks.WithLabelValues(net).Inc()
		log.Debug("block scanned", zap.Uint64("block", next), zap.Int("txs", len(blk.Tx)))

		if r := n.ScanTxs(blk.Tx); len(r) > 0 {
			if err = w.mb.SendTrans(net, r); err != nil {
				return fmt.Errorf("sending events: %w", err)
			}

			metrics.Events.WithLabelValues(net).Add(float64(len(r)))
			log.Info("deposit events sent", zap.Uint64("block", next), zap.Int("events", len(r)))
		}

		if err = w.db.SaveWatcher(ctx, net, n.ToStore()); err != nil {
			return fmt.Errorf("saving watcher state: %w", err)
		}
	}
}

// sleep waits for d or until ctx is done, returning false in the latter case.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ManageRequests starts a go routine to receive and apply the watch requests for the network named net. It ends when
// the broker is closed.
func (w *Watcher) ManageRequests(net string) error {
	mut := new(sync.Mutex)
	mut.Lock()

	reqCh, errCh, err := w.mb.GetReqs(net, mut)
	if err != nil {
		return fmt.Errorf("watcher: cannot get requests: %w", err)
	}

	n := w.netWatcher(net)
	log := w.log.With(zap.String("net", net))

	go func() {
		for e := range errCh {
			log.Warn("watch request", zap.Error(e))
		}
	}()

	go func() {
		log.Info("start listening to watch requests")

		for req := range reqCh {
			apply(n, net, req, log)
			mut.Unlock()
		}

		log.Info("stop listening to watch requests")
	}()

	return nil
}

// apply validates req and adds or removes its address from n.
func apply(n *nw.NetWatcher, net string, req msg.WatchReq, log *zap.Logger) {
	if req.Net != net || req.Type != msg.ADDRESS || req.Obj == "" ||
		(req.Act != msg.LISTEN && req.Act != msg.UNLISTEN) {
		log.Warn("ignoring watch request", zap.Any("req", req))

		return
	}

	if req.Act == msg.LISTEN {
		n.Add(req.Obj, nw.Listen)
		log.Info("watching address", zap.String("addr", req.Obj), zap.Int("watched", n.Len()))

		return
	}

	if _, ok := n.Del(req.Obj); !ok {
		log.Warn("address to unwatch not found", zap.String("addr", req.Obj))

		return
	}

	log.Info("stopped watching address", zap.String("addr", req.Obj), zap.Int("watched", n.Len()))
}
