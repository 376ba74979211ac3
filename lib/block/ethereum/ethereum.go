// Package ethereum implements the blockchain interfaces for ethereum networks.
package ethereum

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/tarancss/ethcli"

	"github.com/tarancss/luxhedge/lib/block/types"
)

// AvgBlockDefault is the average time to mine a block in seconds.
const AvgBlockDefault = 12

// Length of the "input" field of ERC20 calls, including the "0x" prefix: 4 bytes method plus 32 bytes per argument.
// MaxBlocksDefault is the number of blocks checked for uncles when none is configured.
const MaxBlocksDefault = 16

const (
	lenTransfer     = 2 + 8 + 64*2
	lenTransferFrom = 2 + 8 + 64*3
)

// ErrNoClient is returned by Init if the client cannot be created.
var ErrNoClient = errors.New("cannot connect to ethereum blockchain")

// Ethereum implements a connection to an ethereum-type chain.
type Ethereum struct {
	c  *ethcli.EthCli
	mb int
}

// Init returns a connection to an ethereum node, using secret if necessary for authentication. maxBlocks is required
// to indicate how many blocks will be taken into account for uncle management, MaxBlocksDefault if less than 1.
func Init(node, secret string, maxBlocks int) (*Ethereum, error) {
	if maxBlocks < 1 {
		maxBlocks = MaxBlocksDefault
	}

	c := ethcli.Init(node, secret)
	if c == nil {
		return nil, fmt.Errorf("%w in %s", ErrNoClient, node)
	}

	return &Ethereum{c: c, mb: maxBlocks}, nil
}

// MaxBlocks returns how many blocks will be taken into account for uncle management.
func (e *Ethereum) MaxBlocks() int {
	return e.mb
}

// AvgBlock returns the average time to mine a block in seconds.
func (e *Ethereum) AvgBlock() int {
	return AvgBlockDefault
}

// Close ends a connection
func (e *Ethereum) Close() {
	_ = e.c.End()
}

// Balance returns the ether balance and the balance of token if specified, in wei and token units.
func (e *Ethereum) Balance(address, token string) (*big.Int, *big.Int, error) {
	return e.c.GetBalance(address, token)
}

// LatestBlock returns the number of the last mined block.
func (e *Ethereum) LatestBlock() (uint64, error) {
	return e.c.GetLatestBlock()
}

// GetBlock returns in response the block number requested. If full, it provides all the details of the transactions.
// response must be a *map[string]interface{}.
func (e *Ethereum) GetBlock(block uint64, full bool, response interface{}) error {
	m, ok := response.(*map[string]interface{})
	if !ok {
		return types.ErrBlockDecode
	}

	if err := e.c.GetBlockByNumber(block, full, m); errors.Is(err, ethcli.ErrNoBlock) {
		return types.ErrNoBlock
	} else if err != nil {
		return fmt.Errorf("getting block %d: %w", block, err)
	}

	return nil
}

// DecodeBlock returns a struct with the values from the block data. It is used after a call to GetBlock.
func (e *Ethereum) DecodeBlock(t interface{}) (b types.Block, err error) {
	m, ok := t.(map[string]interface{})
	if !ok {
		return b, types.ErrBlockDecode
	}

	fields := []struct {
		key string
		dst *string
		err error
	}{
		{"hash", &b.Hash, types.ErrNoHash},
		{"parentHash", &b.PHash, types.ErrNoParentHash},
		{"number", &b.Number, types.ErrNoBlockNumber},
		{"timestamp", &b.TS, types.ErrNoTS},
	}

	for _, f := range fields {
		if *f.dst, ok = m[f.key].(string); !ok {
			return b, f.err
		}
	}

	return b, nil
}

// DecodeTxs returns a slice of transactions from the block data. It is used after a call to GetBlock. When the block
// was requested without full transaction data only the hashes are filled.
func (e *Ethereum) DecodeTxs(t interface{}) ([]types.Trans, error) {
	m, ok := t.(map[string]interface{})
	if !ok {
		return nil, types.ErrNoTrx
	}

	txList, ok := m["transactions"].([]interface{})
	if !ok {
		return nil, types.ErrNoTrx
	}

	txs := make([]types.Trans, len(txList))

	for i, raw := range txList {
		switch tx := raw.(type) {
		case string:
			txs[i].Hash = tx
		case map[string]interface{}:
			if err := decodeTx(tx, &txs[i]); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: transaction of type %T", types.ErrBadResponse, raw)
		}
	}

	return txs, nil
}

// decodeTx fills tr with an ether transfer or, if the input calls an ERC20 transfer method, with the token transfer.
func decodeTx(tx map[string]interface{}, tr *types.Trans) (err error) {
	var ok bool

	if tr.Block, ok = tx["blockNumber"].(string); !ok {
		return types.ErrNoBlockNumber
	}

	if tr.Hash, ok = tx["hash"].(string); !ok {
		return types.ErrNoTrxHash
	}

	if tr.To, ok = tx["to"].(string); !ok {
		return nil // contract creation, we dont care about this transaction's details
	}

	input, ok := tx["input"].(string)
	if !ok {
		return types.ErrNoTrxInput
	}

	if tr.From, ok = tx["from"].(string); !ok {
		return types.ErrNoTrxFrom
	}

	switch method(input) {
	case ethcli.ERC20transfer, ethcli.ERC20transfer256:
		if len(input) < lenTransfer {
			return types.ErrTrxWrongLen
		}

		tr.Token = tr.To
		tr.To = "0x" + input[10+24:74]
		tr.Value = trimValue(input[74:lenTransfer])
	case ethcli.ERC20transferFrom, ethcli.ERC20transferFrom256:
		if len(input) < lenTransferFrom {
			return types.ErrTrxWrongLen
		}

		tr.Token = tr.To
		tr.From = "0x" + input[10+24:74]
		tr.To = "0x" + input[74+24:138]
		tr.Value = trimValue(input[138:lenTransferFrom])
	default:
		if tr.Value, ok = tx["value"].(string); !ok {
			return types.ErrNoTrxValue
		}

		tr.Data = input
	}

	if tr.Gas, ok = tx["gas"].(string); !ok {
		return types.ErrNoTrxGasUsed
	}

	price, ok := tx["gasPrice"].(string)
	if !ok {
		return types.ErrNoTrxGasPrice
	}

	if tr.Price, err = strconv.ParseUint(price, 0, 64); err != nil {
		return fmt.Errorf("%w: %s", types.ErrNoTrxGasPrice, err.Error())
	}

	// status and fee come from the transaction receipt
	tr.Status = types.TrxPending

	return nil
}

// method returns the 4-byte method id in input, or "" if input is too short.
func method(input string) string {
	if len(input) < 10 {
		return ""
	}

	return input[2:10]
}

// trimValue returns the 0x-prefixed hex value without leading zeros, keeping an even number of digits.
func trimValue(v string) string {
	j := 0
	for j < len(v) && v[j] == '0' {
		j++
	}

	if j%2 == 1 {
		j--
	}

	return "0x" + v[j:]
}

// GetToken returns the name, symbol and decimals of a valid ERC20 token.
func (e *Ethereum) GetToken(token string) (t types.Token, err error) {
	if t.Name, err = e.c.GetTokenName(token); err != nil {
		return
	}

	if t.Symbol, err = e.c.GetTokenSymbol(token); err != nil {
		return
	}

	var dec uint64

	if dec, err = e.c.GetTokenDecimals(token); err != nil {
		return
	}

	t.Decimals = uint8(dec)

	return
}

// Send executes a transaction in the blockchain with the given parameters returning the expected fee, the
// transaction hash or an error otherwise.
func (e *Ethereum) Send(fromAddress, toAddress, token, amount string, data []byte, key string, priceIn uint64,
	dryRun bool,
) (*big.Int, []byte, error) {
	price, gas, hash, err := e.c.SendTrx(fromAddress, toAddress, token, amount, data, key, priceIn, dryRun)
	if err != nil {
		return nil, nil, err
	}

	fee := new(big.Int).SetUint64(price)

	return fee.Mul(fee, new(big.Int).SetUint64(gas)), hash, nil
}

// Get returns the details of the transaction for the given hash.
func (e *Ethereum) Get(hash string) (*types.Trans, error) {
	trx, err := e.c.GetTrx(hash)
	if errors.Is(err, ethcli.ErrNoTrx) {
		return nil, types.ErrNoTrx
	} else if err != nil {
		return nil, err
	}

	t := &types.Trans{
		Block:  "0x" + strconv.FormatUint(trx.Blk, 16),
		Hash:   trx.Hash,
		From:   trx.From,
		To:     trx.To,
		Value:  trx.Amount,
		Gas:    "0x" + strconv.FormatUint(trx.Gas, 16),
		Price:  trx.Price,
		Fee:    trx.Fee,
		Status: trx.Status,
		TS:     uint32(trx.TS),
	}

	if len(trx.Token) > 0 {
		t.Token = "0x" + hex.EncodeToString(trx.Token)
	}

	if len(trx.Data) > 0 {
		t.Data = "0x" + hex.EncodeToString(trx.Data)
	}

	return t, nil
}
