// Package bitcoin implements the Chain interface for bitcoin over the Blockstream Esplora REST API.
package bitcoin

import (
	"context"
	"errors"
	"math/big"
	"strconv"

	"github.com/tarancss/luxhedge/lib/block/types"
	"github.com/tarancss/luxhedge/lib/rest"
)

// Bitcoin is a read-only client to an Esplora explorer (ie. https://blockstream.info/api).
type Bitcoin struct {
	c *rest.Client
}

type stats struct {
	Funded uint64 `json:"funded_txo_sum"`
	Spent  uint64 `json:"spent_txo_sum"`
	Count  int    `json:"tx_count"`
}

type address struct {
	Address string `json:"address"`
	Chain   stats  `json:"chain_stats"`
	Mempool stats  `json:"mempool_stats"`
}

type output struct {
	Address string `json:"scriptpubkey_address"`
	Value   uint64 `json:"value"`
}

type tx struct {
	TxID string `json:"txid"`
	Vin  []struct {
		Prevout *output `json:"prevout"`
	} `json:"vin"`
	Vout   []output `json:"vout"`
	Fee    uint64   `json:"fee"`
	Status struct {
		Confirmed bool   `json:"confirmed"`
		Height    uint64 `json:"block_height"`
		Time      uint32 `json:"block_time"`
	} `json:"status"`
}

// Init returns a client to the explorer at node.
func Init(node string) *Bitcoin {
	return &Bitcoin{c: rest.New(node, nil)}
}

// Close does nothing: the client keeps no connection open.
func (b *Bitcoin) Close() {}

// Balance returns the balance of address in satoshis, including unconfirmed transactions. Bitcoin has no tokens so
// tokBal is always zero.
func (b *Bitcoin) Balance(addr, _ string) (*big.Int, *big.Int, error) {
	var a address
	if err := b.c.Get(context.Background(), "/address/"+addr, &a); err != nil {
		if errors.Is(err, rest.ErrNotFound) {
			return nil, nil, types.ErrNoAccount
		}

		return nil, nil, err
	}

	bal := new(big.Int).SetUint64(a.Chain.Funded + a.Mempool.Funded)
	bal.Sub(bal, new(big.Int).SetUint64(a.Chain.Spent+a.Mempool.Spent))

	return bal, new(big.Int), nil
}

// Get returns the transaction hash. From is the address of the first input and To and Value those of the first
// output.
func (b *Bitcoin) Get(hash string) (*types.Trans, error) {
	var t tx
	if err := b.c.Get(context.Background(), "/tx/"+hash, &t); err != nil {
		if errors.Is(err, rest.ErrNotFound) {
			return nil, types.ErrNoTrx
		}

		return nil, err
	}

	tr := &types.Trans{Hash: t.TxID, Fee: t.Fee, Status: types.TrxPending}

	if t.Status.Confirmed {
		tr.Status = types.TrxSuccess
		tr.Block = strconv.FormatUint(t.Status.Height, 10)
		tr.TS = t.Status.Time
	}

	if len(t.Vin) > 0 && t.Vin[0].Prevout != nil {
		tr.From = t.Vin[0].Prevout.Address
	}

	if len(t.Vout) > 0 {
		tr.To = t.Vout[0].Address
		tr.Value = strconv.FormatUint(t.Vout[0].Value, 10)
	}

	return tr, nil
}

// Send is not supported, bitcoin transactions are signed and broadcast outside the platform.
func (b *Bitcoin) Send(_, _, _, _ string, _ []byte, _ string, _ uint64, _ bool) (*big.Int, []byte, error) {
	return nil, nil, types.ErrNotSupported
}

// GetToken is not supported, bitcoin has no tokens.
func (b *Bitcoin) GetToken(string) (types.Token, error) {
	return types.Token{}, types.ErrNotSupported
}
