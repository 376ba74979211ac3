package api

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tarancss/ethcli"
	"github.com/tarancss/hd"

	"github.com/tarancss/luxhedge/lib/block"
	"github.com/tarancss/luxhedge/lib/block/types"
	"github.com/tarancss/luxhedge/lib/util"
)

// NewHD loads the HD wallet of the cold wallet endpoints from a hex seed. It returns a nil wallet when seed is empty,
// which disables the endpoints that need keys.
func NewHD(seed string) (*hd.HdWallet, error) {
	if seed == "" {
		return nil, nil
	}

	b, err := hex.DecodeString(seed)
	if err != nil {
		return nil, fmt.Errorf("decoding HD wallet seed: %w", err)
	}

	return hd.Init(b)
}

// TxReq transaction request data required to send transactions to the networks. Wallet, Change and ID correspond to
// the HD wallet address from which the transaction will be sent.
type TxReq struct {
	Wallet uint32      `json:"wallet"`
	Change uint8       `json:"change"`
	ID     uint32      `json:"id"`
	Net    string      `json:"net"` // blockchain to submit the transaction to
	Tx     types.Trans `json:"tx"`  // transaction details
}

// network describes a network available to the cold wallet.
type network struct {
	Name    string `json:"name"`
	Scanned bool   `json:"scanned"` // deposits are watched and transactions can be sent
}

// addrBalance struct used to get balances of addresses from the networks.
type addrBalance struct {
	Net string `json:"net"`           // blockchain name
	Bal string `json:"bal"`           // balance of blockchain currency of address
	Tok string `json:"tok,omitempty"` // balance of token of address
}

type hdAddress struct {
	Address string `json:"address"`
	Wallet  uint32 `json:"wallet"`
	Change  uint8  `json:"change"`
	ID      uint32 `json:"id"`
}

// networks replies the networks available to the cold wallet.
func (a *API) networks(*http.Request) (interface{}, int, error) {
	nets := make([]network, 0, len(a.Chains))
	for name, c := range a.Chains {
		_, ok := c.(block.Scanner)
		nets = append(nets, network{Name: name, Scanned: ok})
	}

	sort.Slice(nets, func(i, j int) bool { return nets[i].Name < nets[j].Name })

	return nets, http.StatusOK, nil
}

// addrBal replies the balance of the address requested in the networks queried (all when none). If a token is
// specified, it will also reply the balance of the address in tokens.
func (a *API) addrBal(r *http.Request) (interface{}, int, error) {
	address := mux.Vars(r)["address"]
	if address == "" {
		return nil, 0, ErrNoAddr
	}

	q := r.URL.Query()
	tok, nets := q.Get("tok"), q["net"]

	for _, n := range nets {
		if _, ok := a.Chains[n]; !ok {
			return nil, 0, ErrNoNet
		}
	}

	names := make([]string, 0, len(a.Chains))
	for name := range a.Chains {
		if len(nets) == 0 || util.In(nets, name) {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	bals := make([]addrBalance, 0, len(names))

	for _, name := range names {
		bal, tokBal, err := a.Chains[name].Balance(address, tok)
		if err != nil {
			if tok == "" || !errors.Is(err, ethcli.ErrBadAmt) {
				return nil, 0, upstream(name, err)
			}
			// this case happens when the token does not exist for the given blockchain
			tokBal = nil
		}

		b := addrBalance{Net: name, Bal: str(bal)}
		if tok != "" {
			b.Tok = str(tokBal)
		}

		bals = append(bals, b)
	}

	return bals, http.StatusOK, nil
}

func str(i *big.Int) string {
	if i == nil {
		return "0"
	}

	return i.String()
}

// parseChange decodes the change of an HD address: 0 or external, 1 or change.
func parseChange(s string) (uint8, error) {
	switch s {
	case "0", "external":
		return hd.External, nil
	case "1", "change":
		return hd.Change, nil
	}

	return 0, ErrChange
}

// hdAddr replies the HD wallet address requested. The query must contain wallet, change and id.
func (a *API) hdAddr(r *http.Request) (interface{}, int, error) {
	if a.HD == nil {
		return nil, 0, ErrNoSeed
	}

	q := r.URL.Query()
	for _, k := range []string{"wallet", "change", "id"} {
		if q.Get(k) == "" {
			return nil, 0, badRequest("missing query: %s", k)
		}
	}

	wallet, err := strconv.ParseUint(q.Get("wallet"), 0, 32)
	if err != nil {
		return nil, 0, badRequest("wallet %s could not be decoded into a valid wallet number", q.Get("wallet"))
	}

	change, err := parseChange(q.Get("change"))
	if err != nil {
		return nil, 0, err
	}

	id, err := strconv.ParseUint(q.Get("id"), 0, 32)
	if err != nil {
		return nil, 0, badRequest("id %s could not be decoded into a valid id number", q.Get("id"))
	}

	addr, _, _, err := a.HD.Address(uint32(wallet), change, uint32(id))
	if err != nil {
		return nil, 0, err
	}

	return hdAddress{Address: "0x" + hex.EncodeToString(addr), Wallet: uint32(wallet), Change: change, ID: uint32(id)},
		http.StatusOK, nil
}

// send creates a send ether or ERC20 token transaction signed with the HD wallet key and sends it to the network for
// execution. Only networks that are scanned (ethereum) can send. The transaction is replied with its hash and fee.
func (a *API) send(r *http.Request) (interface{}, int, error) {
	if a.HD == nil {
		return nil, 0, ErrNoSeed
	}

	var txReq TxReq
	if err := decode(r, &txReq); err != nil {
		return nil, 0, err
	}

	b, ok := a.Chains[txReq.Net]
	if !ok {
		return nil, 0, ErrNoNet
	}

	if _, ok = b.(block.Scanner); !ok {
		return nil, 0, ErrNotSupported
	}

	if txReq.Change != hd.External && txReq.Change != hd.Change {
		return nil, 0, ErrChange
	}

	// get HD wallet address and key
	addr, key, _, err := a.HD.Address(txReq.Wallet, txReq.Change, txReq.ID)
	if err != nil {
		return nil, 0, err
	}

	var data []byte
	if len(txReq.Tx.Data) > 0 {
		data = []byte(txReq.Tx.Data)
	}

	from := "0x" + hex.EncodeToString(addr)

	fee, hash, err := b.Send(from, txReq.Tx.To, txReq.Tx.Token, txReq.Tx.Value, data, hex.EncodeToString(key),
		txReq.Tx.Price, a.DryRun)
	if err != nil {
		a.Log.Warn("sending transaction", zap.String("net", txReq.Net), zap.String("from", from), zap.Error(err))

		return nil, 0, upstream(txReq.Net, err)
	}

	txReq.Tx.Hash = "0x" + hex.EncodeToString(hash)
	txReq.Tx.From = from
	txReq.Tx.Fee = fee.Uint64()
	txReq.Tx.Status = types.TrxPending

	a.Log.Info("transaction sent", zap.String("net", txReq.Net), zap.String("from", from),
		zap.String("hash", txReq.Tx.Hash), zap.Bool("dryRun", a.DryRun), zap.String("admin", user(r).ID))

	return txReq.Tx, http.StatusAccepted, nil
}

// tx replies the details of the transaction with the hash in the uri in the network queried.
func (a *API) tx(r *http.Request) (interface{}, int, error) {
	net := r.URL.Query().Get("net")
	if net == "" {
		return nil, 0, ErrMissingNet
	}

	b, ok := a.Chains[net]
	if !ok {
		return nil, 0, ErrNoNet
	}

	hash := strings.TrimPrefix(strings.ToLower(mux.Vars(r)["hash"]), "0x")
	if h, err := hex.DecodeString(hash); err != nil || len(h) != 32 { //nolint:gomnd // 32-byte hash
		return nil, 0, ErrNoHash
	}

	if _, ok = b.(block.Scanner); ok {
		hash = "0x" + hash
	}

	t, err := b.Get(hash)
	if err != nil {
		return nil, 0, upstream(net, err)
	}

	return t, http.StatusOK, nil
}
