package price

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coingecko(t *testing.T, calls *int32, status int) *httptest.Server {
	t.Helper()

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)

		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin,ethereum,tether,tron", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))

		if status != http.StatusOK {
			http.Error(w, `{"status":{"error_code":429}}`, status)

			return
		}

		_, _ = w.Write([]byte(`{"bitcoin":{"usd":64123.5},"ethereum":{"usd":3120.25},"tether":{"usd":1.0},"tron":{"usd":0.12}}`))
	}))
	t.Cleanup(s.Close)

	return s
}

func TestUSD(t *testing.T) {
	var calls int32

	c := New(coingecko(t, &calls, http.StatusOK).URL, time.Minute)
	defer c.Close()

	p, err := c.USD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Prices{"BTC": 64123.5, "ETH": 3120.25, "USDT": 1, "TRX": 0.12}, p)

	// cached, and the cached map cannot be changed by callers
	p["BTC"] = 0

	p, err = c.USD(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 64123.5, p["BTC"], 1e-9)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUSDExpired(t *testing.T) {
	var calls int32

	c := New(coingecko(t, &calls, http.StatusOK).URL, time.Nanosecond)
	defer c.Close()

	_, err := c.USD(context.Background())
	require.NoError(t, err)

	time.Sleep(time.Millisecond)

	_, err = c.USD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestUSDError(t *testing.T) {
	var calls int32

	c := New(coingecko(t, &calls, http.StatusTooManyRequests).URL, time.Minute)
	defer c.Close()

	_, err := c.USD(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")

	// errors are not cached
	_, err = c.USD(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
