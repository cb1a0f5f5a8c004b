package main

import (
	"bytes"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/dexview/pkg/ledger"
	"github.com/uhyunpark/dexview/pkg/storage"
)

const scope = "1337:0x00000000000000000000000000000000000000ee"

func seed(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	journal, err := storage.NewPebbleStore(filepath.Join(dir, "journal"))
	require.NoError(t, err)
	require.NoError(t, journal.SaveEvents(scope, []ledger.Event{ledger.Placed{Order: ledger.Order{
		ID:         1,
		User:       common.HexToAddress("0xa1"),
		TokenGet:   common.HexToAddress("0xcc"),
		AmountGet:  ledger.NewAmount(new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))),
		TokenGive:  ledger.EtherAddress,
		AmountGive: ledger.NewAmount(big.NewInt(1e18)),
		Timestamp:  1700000000,
		Meta:       ledger.Meta{BlockNumber: 1},
	}}}))
	require.NoError(t, journal.Close())
	return dir
}

func TestRun_ListsScopes(t *testing.T) {
	dir := seed(t)
	var out bytes.Buffer
	require.NoError(t, run([]string{"-data", dir}, &out))
	assert.Equal(t, scope+"\n", out.String())
}

func TestRun_DumpsOrderBook(t *testing.T) {
	dir := seed(t)
	var out bytes.Buffer
	require.NoError(t, run([]string{"-data", dir, "-scope", scope, "-view", "orderbook"}, &out))
	assert.Contains(t, out.String(), `"amountGet": "10000000000000000000"`)
	assert.Contains(t, out.String(), `"tokenPrice": "0.1"`)
}

func TestRun_ErrorsReleaseJournal(t *testing.T) {
	dir := seed(t)
	var out bytes.Buffer

	err := run([]string{"-data", dir, "-scope", scope, "-view", "bogus"}, &out)
	assert.EqualError(t, err, `unknown view "bogus"`)
	err = run([]string{"-data", dir, "-scope", scope, "-view", "account-orders", "-account", "0x12"}, &out)
	assert.ErrorContains(t, err, "not a hex address")

	// a failed run must have closed the journal so the next one can open it
	require.NoError(t, run([]string{"-data", dir}, &out))
	assert.Contains(t, out.String(), scope)
}
