package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/dexview/pkg/app/dex"
	"github.com/uhyunpark/dexview/pkg/app/views"
	"github.com/uhyunpark/dexview/pkg/ledger"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")

// fakeViews serves canned views, or ErrNotLoaded when loaded is false.
type fakeViews struct {
	loaded  bool
	book    views.OrderBook
	tape    []views.DecoratedOrder
	candles views.CandleSeries
	asked   common.Address
}

func (f *fakeViews) check() error {
	if !f.loaded {
		return dex.ErrNotLoaded
	}
	return nil
}

func (f *fakeViews) OrderBook() (views.OrderBook, error) { return f.book, f.check() }
func (f *fakeViews) TradeTape() ([]views.DecoratedOrder, error) {
	return f.tape, f.check()
}
func (f *fakeViews) AccountFilled(a common.Address) ([]views.DecoratedOrder, error) {
	f.asked = a
	return []views.DecoratedOrder{}, f.check()
}
func (f *fakeViews) AccountOpen(a common.Address) ([]views.DecoratedOrder, error) {
	f.asked = a
	return []views.DecoratedOrder{}, f.check()
}
func (f *fakeViews) Candles() (views.CandleSeries, error) { return f.candles, f.check() }
func (f *fakeViews) Status() dex.Status                   { return dex.Status{Loaded: f.loaded} }

func tapeOf(ids ...uint64) []views.DecoratedOrder {
	out := make([]views.DecoratedOrder, 0, len(ids))
	for _, id := range ids {
		out = append(out, views.DecoratedOrder{
			Order:      ledger.Order{ID: id},
			TokenPrice: decimal.RequireFromString("0.1"),
			OrderType:  views.Buy,
		})
	}
	return out
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_NotLoaded(t *testing.T) {
	s := NewServer(&fakeViews{}, []string{"*"}, nil)
	h := s.Handler()

	for _, path := range []string{
		"/api/v1/orderbook",
		"/api/v1/trades",
		"/api/v1/candles",
		"/api/v1/accounts/" + alice.Hex() + "/trades",
		"/api/v1/accounts/" + alice.Hex() + "/orders",
	} {
		rec := get(t, h, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), path)
		assert.Equal(t, "not_loaded", body.Error, path)
	}

	rec := get(t, h, "/api/v1/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"loaded":false`)
}

func TestServer_Views(t *testing.T) {
	fv := &fakeViews{
		loaded: true,
		book: views.OrderBook{
			BuyOrders:  tapeOf(3),
			SellOrders: []views.DecoratedOrder{},
		},
		tape:    tapeOf(9, 8, 7),
		candles: views.CandleSeries{LastPrice: decimal.RequireFromString("0.1"), LastPriceChange: "+", Candles: []views.Candle{}},
	}
	h := NewServer(fv, []string{"*"}, nil).Handler()

	rec := get(t, h, "/api/v1/orderbook")
	require.Equal(t, http.StatusOK, rec.Code)
	var book struct {
		BuyOrders []struct {
			ID         uint64 `json:"id"`
			TokenPrice string `json:"tokenPrice"`
		} `json:"buyOrders"`
		SellOrders []json.RawMessage `json:"sellOrders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	require.Len(t, book.BuyOrders, 1)
	assert.Equal(t, uint64(3), book.BuyOrders[0].ID)
	assert.Equal(t, "0.1", book.BuyOrders[0].TokenPrice)
	assert.NotNil(t, book.SellOrders)

	rec = get(t, h, "/api/v1/trades?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var tape []struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tape))
	require.Len(t, tape, 2)
	assert.Equal(t, uint64(9), tape[0].ID)

	rec = get(t, h, "/api/v1/candles")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"lastPriceChange":"+"`)

	rec = get(t, h, "/api/v1/accounts/"+strings.ToLower(alice.Hex())+"/trades")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, alice, fv.asked)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestServer_BadRequests(t *testing.T) {
	h := NewServer(&fakeViews{loaded: true}, []string{"*"}, nil).Handler()

	rec := get(t, h, "/api/v1/accounts/0x1234/orders")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid address")

	rec = get(t, h, "/api/v1/trades?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_SubscribeReceivesLatestAndUpdates(t *testing.T) {
	s := NewServer(&fakeViews{loaded: true}, []string{"*"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	// pushed before anyone subscribed; a new subscriber still gets it
	s.BroadcastUpdate(dex.Update{
		Status:    dex.Status{Loaded: true},
		OrderBook: views.OrderBook{BuyOrders: tapeOf(1), SellOrders: []views.DecoratedOrder{}},
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"orderbook", "bogus"}}))
	msg := readMessage(t, conn)
	assert.Equal(t, ChannelOrderBook, msg.Type)

	msg = readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "unknown channel: bogus", msg.Data)

	s.BroadcastUpdate(dex.Update{
		Status:    dex.Status{Loaded: true},
		OrderBook: views.OrderBook{BuyOrders: tapeOf(1, 2), SellOrders: []views.DecoratedOrder{}},
	})
	msg = readMessage(t, conn)
	require.Equal(t, ChannelOrderBook, msg.Type)
	data, _ := json.Marshal(msg.Data)
	assert.Contains(t, string(data), `"id":2`)
}

func TestBroadcastUpdate_SkipsViewsUntilLoaded(t *testing.T) {
	s := NewServer(&fakeViews{}, nil, nil)
	s.BroadcastUpdate(dex.Update{Status: dex.Status{Loaded: false}})

	assert.Nil(t, s.hub.latestOf(ChannelOrderBook))
	assert.NotNil(t, s.hub.latestOf(ChannelStatus))
}
