// Package netwatcher keeps the state of the deposit watcher of one network: the last block scanned, the hashes of the
// last blocks to check new blocks are chained and the addresses watched.
package netwatcher

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tarancss/luxhedge/lib/block/types"
	"github.com/tarancss/luxhedge/lib/store"
)

// ErrMaxBlocks is returned by New when no block hashes can be kept.
var ErrMaxBlocks = errors.New("maxBlocks must be at least 1")

// Listen is the value of the addresses watched on request.
const Listen = "listen"

// NetWatcher contains the fields and data structures required to manage the scanning of a network.
type NetWatcher struct {
	l     sync.Mutex        // l is a mutex to ensure concurrent updating of addresses in the map
	Block uint64            // last block parsed
	Bh    []string          // contains the last blocks hashes (from Block-1 to Block-maxBlocks)
	Bhi   int               // index to last block's hash in Bh
	Map   map[string]string // watched addresses (lowercase) to the wallet they belong to
}

// Latest returns the number of the latest block mined.
type Latest func() (uint64, error)

// New loads the state of net from db, or starts after the latest block if there is none, and watches the addresses
// given. maxBlocks is the number of block hashes kept to check the chain.
func New(ctx context.Context, net string, maxBlocks int, latest Latest, addrs map[string]string,
	db store.DB,
) (*NetWatcher, error) {
	if maxBlocks < 1 {
		return nil, ErrMaxBlocks
	}

	n := &NetWatcher{Map: make(map[string]string, len(addrs))}

	s, err := db.LoadWatcher(ctx, net)

	switch {
	case errors.Is(err, store.ErrNotFound):
		if n.Block, err = latest(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		n.FromStore(s)
	}

	if len(n.Bh) != maxBlocks {
		// the ring cannot be resized, start a new one
		n.Bh, n.Bhi = make([]string, maxBlocks), 0
	}

	for a, v := range addrs {
		n.Map[strings.ToLower(a)] = v
	}

	return n, nil
}

// Next returns the number of the next block to scan.
func (n *NetWatcher) Next() uint64 {
	n.l.Lock()
	defer n.l.Unlock()

	return n.Block + 1
}

// Len returns the number of addresses watched.
func (n *NetWatcher) Len() int {
	n.l.Lock()
	defer n.l.Unlock()

	return len(n.Map)
}

// ScanTxs returns the transactions whose To or From addresses are being watched.
func (n *NetWatcher) ScanTxs(txs []types.Trans) []types.Trans {
	var r []types.Trans

	n.l.Lock()
	defer n.l.Unlock()

	for _, tx := range txs {
		for _, a := range tx.Parties() {
			if _, ok := n.Map[a]; ok {
				r = append(r, tx)

				break
			}
		}
	}

	return r
}

// Chained checks if the supplied hash is the last block's hash
func (n *NetWatcher) Chained(hash string) bool {
	n.l.Lock()
	defer n.l.Unlock()

	return n.Bh[n.Bhi] == hash || n.Bh[n.Bhi] == ""
}

// UpdateChain updates NetWatcher fields with new block hash
func (n *NetWatcher) UpdateChain(hash string) {
	n.l.Lock()
	defer n.l.Unlock()

	n.Block++
	n.Bhi++
	n.Bhi %= len(n.Bh)
	n.Bh[n.Bhi] = hash
}

// Add adds an address to the watched ones.
func (n *NetWatcher) Add(addr, value string) {
	n.l.Lock()
	defer n.l.Unlock()

	n.Map[strings.ToLower(addr)] = value
}

// Del stops watching an address returning its value and an ok flag.
func (n *NetWatcher) Del(addr string) (string, bool) {
	n.l.Lock()
	defer n.l.Unlock()

	addr = strings.ToLower(addr)
	value, ok := n.Map[addr]
	delete(n.Map, addr)

	return value, ok
}

// ToStore returns a copy of the state to be saved to store
func (n *NetWatcher) ToStore() store.WatcherState {
	n.l.Lock()
	defer n.l.Unlock()

	s := store.WatcherState{Block: n.Block, Bh: make([]string, len(n.Bh)), Bhi: n.Bhi, Map: make(map[string]string)}
	copy(s.Bh, n.Bh)

	for k, v := range n.Map {
		s.Map[k] = v
	}

	return s
}

// FromStore loads the NetWatcher with the values read from store. The addresses saved are not loaded: the wallets in
// the store are the ones to watch.
func (n *NetWatcher) FromStore(s store.WatcherState) {
	n.l.Lock()
	defer n.l.Unlock()

	n.Block = s.Block
	n.Bh = append([]string(nil), s.Bh...)
	n.Bhi = s.Bhi
}
