// Package price gets the USD prices of the supported assets from CoinGecko and keeps them cached.
package price

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/karlseguin/ccache/v2"

	"github.com/tarancss/luxhedge/lib/rest"
)

const cacheKey = "usd"

// Coins maps the asset symbols to their CoinGecko ids.
var Coins = map[string]string{ //nolint:gochecknoglobals // read only
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"USDT": "tether",
	"TRX":  "tron",
}

// Prices maps asset symbols to their price in USD.
type Prices map[string]float64

// Client is a cached CoinGecko client.
type Client struct {
	c     *rest.Client
	cache *ccache.Cache
	ttl   time.Duration
	path  string
}

// New returns a client to the CoinGecko API at base url caching prices for ttl.
func New(base string, ttl time.Duration) *Client {
	ids := make([]string, 0, len(Coins))
	for _, id := range Coins {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	q := url.Values{"ids": {strings.Join(ids, ",")}, "vs_currencies": {"usd"}}

	return &Client{
		c:     rest.New(base, nil),
		cache: ccache.New(ccache.Configure().MaxSize(10).ItemsToPrune(1)), //nolint:gomnd // one entry
		ttl:   ttl,
		path:  "/simple/price?" + q.Encode(),
	}
}

// Close stops the cache.
func (c *Client) Close() {
	c.cache.Stop()
}

// USD returns the prices of all the supported assets.
func (c *Client) USD(ctx context.Context) (Prices, error) {
	item, err := c.cache.Fetch(cacheKey, c.ttl, func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}

	p, _ := item.Value().(Prices)

	out := make(Prices, len(p))
	for k, v := range p {
		out[k] = v
	}

	return out, nil
}

func (c *Client) fetch(ctx context.Context) (Prices, error) {
	var r map[string]map[string]float64
	if err := c.c.Get(ctx, c.path, &r); err != nil {
		return nil, fmt.Errorf("coingecko: %w", err)
	}

	p := make(Prices, len(Coins))

	for sym, id := range Coins {
		if v, ok := r[id]["usd"]; ok {
			p[sym] = v
		}
	}

	return p, nil
}
