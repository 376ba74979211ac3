// Package tron implements the Chain interface for the tron network over the TronGrid REST API.
package tron

import (
	"context"
	"math/big"
	"strconv"
	"strings"

	"github.com/tarancss/luxhedge/lib/block/types"
	"github.com/tarancss/luxhedge/lib/rest"
)

// Contract types we decode.
const (
	transferContract = "TransferContract"
	triggerContract  = "TriggerSmartContract"
	trc20Transfer    = "a9059cbb"
	lenTransfer      = 8 + 64*2
	resultSuccess    = "SUCCESS"
)

// Tron is a read-only client to a TronGrid node. Addresses are reported as returned by the node.
type Tron struct {
	c *rest.Client
}

type account struct {
	Balance uint64              `json:"balance"`
	TRC20   []map[string]string `json:"trc20"`
}

type accounts struct {
	Data    []account `json:"data"`
	Success bool      `json:"success"`
}

type contract struct {
	Type      string `json:"type"`
	Parameter struct {
		Value struct {
			Amount   uint64 `json:"amount"`
			Owner    string `json:"owner_address"`
			To       string `json:"to_address"`
			Contract string `json:"contract_address"`
			Data     string `json:"data"`
		} `json:"value"`
	} `json:"parameter"`
}

type transaction struct {
	TxID    string `json:"txID"`
	RawData struct {
		Contract  []contract `json:"contract"`
		Timestamp int64      `json:"timestamp"`
	} `json:"raw_data"`
	Ret []struct {
		Result string `json:"contractRet"`
	} `json:"ret"`
}

type info struct {
	ID     string `json:"id"`
	Fee    uint64 `json:"fee"`
	Block  uint64 `json:"blockNumber"`
	TS     int64  `json:"blockTimeStamp"`
	Result string `json:"result"`
}

// Init returns a client to the TronGrid node, authenticating with secret if given.
func Init(node, secret string) *Tron {
	h := map[string][]string{}
	if secret != "" {
		h["TRON-PRO-API-KEY"] = []string{secret}
	}

	return &Tron{c: rest.New(node, h)}
}

// Close does nothing: the client keeps no connection open.
func (t *Tron) Close() {}

// Balance returns the TRX balance in sun and, if token is given, the balance of that TRC20 contract. An account that
// has never been activated has no balance.
func (t *Tron) Balance(addr, token string) (*big.Int, *big.Int, error) {
	var a accounts
	if err := t.c.Get(context.Background(), "/v1/accounts/"+addr, &a); err != nil {
		return nil, nil, err
	}

	bal, tokBal := new(big.Int), new(big.Int)
	if len(a.Data) == 0 {
		return bal, tokBal, nil
	}

	bal.SetUint64(a.Data[0].Balance)

	if token == "" {
		return bal, tokBal, nil
	}

	for _, m := range a.Data[0].TRC20 {
		if v, ok := m[token]; ok {
			if _, ok = tokBal.SetString(v, 10); !ok {
				return nil, nil, types.ErrBadResponse
			}

			break
		}
	}

	return bal, tokBal, nil
}

// Get returns the transaction hash. Transfers of TRX and TRC20 transfers are decoded, any other contract only
// reports its hash, status and fee.
func (t *Tron) Get(hash string) (*types.Trans, error) {
	ctx := context.Background()
	req := map[string]string{"value": hash}

	var tx transaction
	if err := t.c.Post(ctx, "/wallet/gettransactionbyid", req, &tx); err != nil {
		return nil, err
	}

	// the node replies with an empty object for unknown transactions
	if tx.TxID == "" {
		return nil, types.ErrNoTrx
	}

	var inf info
	if err := t.c.Post(ctx, "/wallet/gettransactioninfobyid", req, &inf); err != nil {
		return nil, err
	}

	tr := &types.Trans{Hash: tx.TxID, Fee: inf.Fee, Status: types.TrxPending, TS: uint32(tx.RawData.Timestamp / 1000)}

	if inf.ID != "" {
		tr.Block = strconv.FormatUint(inf.Block, 10)
		tr.TS = uint32(inf.TS / 1000)
		tr.Status = types.TrxSuccess

		if len(tx.Ret) > 0 && tx.Ret[0].Result != resultSuccess {
			tr.Status = types.TrxFailed
		}
	}

	if len(tx.RawData.Contract) == 0 {
		return tr, nil
	}

	c := tx.RawData.Contract[0].Parameter.Value
	tr.From = c.Owner

	switch tx.RawData.Contract[0].Type {
	case transferContract:
		tr.To = c.To
		tr.Value = strconv.FormatUint(c.Amount, 10)
	case triggerContract:
		tr.To = c.Contract
		tr.Data = c.Data

		if strings.HasPrefix(c.Data, trc20Transfer) && len(c.Data) >= lenTransfer {
			v, ok := new(big.Int).SetString(c.Data[8+64:lenTransfer], 16)
			if !ok {
				return nil, types.ErrBadResponse
			}

			tr.Token = c.Contract
			tr.To = "41" + c.Data[8+24:8+64]
			tr.Value = v.String()
			tr.Data = ""
		}
	}

	return tr, nil
}

// Send is not supported, tron transactions are signed and broadcast outside the platform.
func (t *Tron) Send(_, _, _, _ string, _ []byte, _ string, _ uint64, _ bool) (*big.Int, []byte, error) {
	return nil, nil, types.ErrNotSupported
}

// GetToken is not supported.
func (t *Tron) GetToken(string) (types.Token, error) {
	return types.Token{}, types.ErrNotSupported
}
