// Package block defines the interfaces required for all blockchain or network connections.
package block

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/tarancss/luxhedge/lib/block/bitcoin"
	"github.com/tarancss/luxhedge/lib/block/ethereum"
	"github.com/tarancss/luxhedge/lib/block/tron"
	"github.com/tarancss/luxhedge/lib/block/types"
	"github.com/tarancss/luxhedge/lib/config"
)

// Chain is the interface every blockchain client implements. It has been designed to be as much standard as possible,
// chains that cannot do something return types.ErrNotSupported.
type Chain interface {
	Close()
	Balance(account, token string) (bal, tokBal *big.Int, err error)
	Get(hash string) (*types.Trans, error)
	GetToken(token string) (types.Token, error)
	Send(fromAddress, toAddress, token, amount string, data []byte, key string, priceIn uint64,
		dryRun bool) (fee *big.Int, hash []byte, err error)
}

// Scanner is a Chain whose mined blocks can be scanned one by one.
type Scanner interface {
	Chain
	MaxBlocks() int // number of blocks that are controlled for orphans (uncles)
	AvgBlock() int  // average block mining rate in seconds
	LatestBlock() (uint64, error)
	GetBlock(block uint64, full bool, response interface{}) error
	DecodeBlock(b interface{}) (types.Block, error)
	DecodeTxs(t interface{}) ([]types.Trans, error)
}

// Init loads all the clients read from the config to blockchains into a map keyed by network name. Networks of an
// unknown type are logged and ignored.
func Init(bc []config.BlockConfig, log *zap.Logger) (map[string]Chain, error) {
	m := make(map[string]Chain, len(bc))

	for _, b := range bc {
		switch b.Type {
		case config.Ethereum:
			c, err := ethereum.Init(b.Node, b.Secret, b.MaxBlocks)
			if err != nil {
				End(m)

				return nil, fmt.Errorf("network %s: %w", b.Name, err)
			}

			m[b.Name] = c
		case config.Bitcoin:
			m[b.Name] = bitcoin.Init(b.Node)
		case config.Tron:
			m[b.Name] = tron.Init(b.Node, b.Secret)
		default:
			log.Warn("blockchain type not supported, ignoring", zap.String("net", b.Name), zap.String("type", b.Type))
		}
	}

	return m, nil
}

// Scanners returns the clients in m that can scan blocks.
func Scanners(m map[string]Chain) map[string]Scanner {
	s := make(map[string]Scanner)

	for name, c := range m {
		if sc, ok := c.(Scanner); ok {
			s[name] = sc
		}
	}

	return s
}

// End closes gracefully all the blockchain clients opened.
func End(bc map[string]Chain) {
	for _, c := range bc {
		c.Close()
	}
}
