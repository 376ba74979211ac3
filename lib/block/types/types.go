// Package types common blockchain types.
package types

import (
	"errors"
	"strings"
)

// Transaction status constants.
const (
	TrxPending uint8 = 0
	TrxFailed  uint8 = 1
	TrxSuccess uint8 = 2
)

// Token is a blockchain asset.
type Token struct {
	Name     string      `json:"name"`
	Symbol   string      `json:"symbol"`
	Decimals uint8       `json:"decimals"`
	Data     interface{} `json:"data,omitempty"` // contains specific chain details
}

// Trans contains a simplified number of transaction fields. We keep just one transfer from `From` to `To`: for
// chains with many outputs per transaction (bitcoin) the clients report the first input and the first output. Value
// is expressed in the smallest unit of the chain ("0x" hex for ethereum, decimal otherwise).
type Trans struct {
	Block  string `json:"block"`
	Hash   string `json:"hash"`
	From   string `json:"from"`
	To     string `json:"to"`
	Token  string `json:"token,omitempty"`
	Value  string `json:"value"`
	Data   string `json:"data,omitempty"`
	Gas    string `json:"gas,omitempty"`
	Price  uint64 `json:"price,omitempty"`
	Fee    uint64 `json:"fee"`
	Status uint8  `json:"status"`
	TS     uint32 `json:"ts"`
}

// Parties returns the lowercased receiver and sender of t, in that order. Empty addresses are skipped.
func (t Trans) Parties() []string {
	p := make([]string, 0, 2) //nolint:gomnd // to and from

	for _, a := range []string{t.To, t.From} {
		if a != "" {
			p = append(p, strings.ToLower(a))
		}
	}

	return p
}

// Block contains a simplified list of block fields.
type Block struct {
	Hash   string  `json:"hash"`
	PHash  string  `json:"parentHash"`
	Number string  `json:"number"`
	TS     string  `json:"timestamp"`
	Tx     []Trans `json:"transactions"`
}

// Error codes.
var (
	ErrBlockDecode   = errors.New("unable to decode block data into Block type")
	ErrNoBlockNumber = errors.New("block data does not contain a block number")
	ErrNoTS          = errors.New("block data does not contain a timestamp")
	ErrNoHash        = errors.New("block data does not contain a hash")
	ErrNoParentHash  = errors.New("block data does not contain a parenthash")
	ErrNoBlock       = errors.New("block not available yet")
	ErrNoTrx         = errors.New("transaction not found")
	ErrNoTrxHash     = errors.New("malformed tx data in block, field 'hash' missing")
	ErrNoTrxInput    = errors.New("malformed tx data in block, field 'input' missing")
	ErrNoTrxValue    = errors.New("malformed tx data in block, field 'value' missing")
	ErrNoTrxFrom     = errors.New("malformed tx data in block, field 'from' missing")
	ErrTrxWrongLen   = errors.New("malformed tx data in block, field 'input' has wrong length for ERC20.Transfer")
	ErrNoTrxGasUsed  = errors.New("malformed tx data in block, field 'gas' missing")
	ErrNoTrxGasPrice = errors.New("malformed tx data in block, field 'gasPrice' missing")
	ErrNoAccount     = errors.New("account not found")
	ErrBadResponse   = errors.New("unexpected response from node")
	ErrNotSupported  = errors.New("operation not supported by this blockchain client")
)
