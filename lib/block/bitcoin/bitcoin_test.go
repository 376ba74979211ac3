package bitcoin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/luxhedge/lib/block/types"
)

const (
	addr = "bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh"
	txid = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
)

func esplora(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/address/"+addr, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address":"` + addr + `",
			"chain_stats":{"funded_txo_sum":150000,"spent_txo_sum":50000,"tx_count":3},
			"mempool_stats":{"funded_txo_sum":2500,"spent_txo_sum":500,"tx_count":1}}`))
	})
	mux.HandleFunc("/tx/"+txid, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"txid":"` + txid + `","fee":1410,
			"vin":[{"prevout":{"scriptpubkey_address":"bc1qsender","value":200000}}],
			"vout":[{"scriptpubkey_address":"` + addr + `","value":100000},{"scriptpubkey_address":"bc1qchange","value":98590}],
			"status":{"confirmed":true,"block_height":840000,"block_time":1713571767}}`))
	})
	mux.HandleFunc("/tx/pending", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"txid":"pending","fee":200,"vin":[{"prevout":null}],"vout":[],"status":{"confirmed":false}}`))
	})
	mux.HandleFunc("/tx/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid hex string", http.StatusBadRequest)
	})

	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

func TestBalance(t *testing.T) {
	b := Init(esplora(t).URL)
	defer b.Close()

	bal, tokBal, err := b.Balance(addr, "")
	require.NoError(t, err)
	assert.Equal(t, "102000", bal.String())
	assert.Equal(t, "0", tokBal.String())

	_, _, err = b.Balance("unknown", "")
	assert.ErrorIs(t, err, types.ErrNoAccount)
}

func TestGet(t *testing.T) {
	b := Init(esplora(t).URL)

	tr, err := b.Get(txid)
	require.NoError(t, err)
	assert.Equal(t, &types.Trans{
		Block:  "840000",
		Hash:   txid,
		From:   "bc1qsender",
		To:     addr,
		Value:  "100000",
		Fee:    1410,
		Status: types.TrxSuccess,
		TS:     1713571767,
	}, tr)

	tr, err = b.Get("pending")
	require.NoError(t, err)
	assert.Equal(t, types.TrxPending, tr.Status)
	assert.Empty(t, tr.From)
	assert.Empty(t, tr.To)

	_, err = b.Get("unknown")
	assert.ErrorIs(t, err, types.ErrNoTrx)

	_, err = b.Get("broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid hex string")
}

func TestNotSupported(t *testing.T) {
	b := Init("http://localhost")

	_, _, err := b.Send(addr, addr, "", "1", nil, "", 0, true)
	assert.ErrorIs(t, err, types.ErrNotSupported)

	_, err = b.GetToken("x")
	assert.ErrorIs(t, err, types.ErrNotSupported)
}
