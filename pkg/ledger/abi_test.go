package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	maker = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	taker = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	token = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func ether(n int64) Amount {
	return NewAmount(new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18)))
}

func sampleOrder(id uint64) Order {
	return Order{
		ID:         id,
		User:       maker,
		TokenGet:   token,
		AmountGet:  ether(10),
		TokenGive:  EtherAddress,
		AmountGive: ether(1),
		Timestamp:  1700000000,
		Meta:       Meta{BlockNumber: 7, LogIndex: 2},
	}
}

func TestTopicsMatchABI(t *testing.T) {
	for _, k := range Kinds {
		ev, ok := contractABI.Events[k.EventName()]
		if !ok {
			t.Fatalf("abi missing event %s", k.EventName())
		}
		if ev.ID != Topic(k) {
			t.Errorf("%s: topic %s, abi id %s", k, Topic(k).Hex(), ev.ID.Hex())
		}
	}
}

func TestDecodeLog_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
	}{
		{name: "placed", ev: Placed{sampleOrder(1)}},
		{name: "cancelled", ev: Cancelled{sampleOrder(2)}},
		{name: "filled", ev: Filled{Trade{Order: sampleOrder(3), UserFill: taker}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := EncodeLog(tt.ev)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := DecodeLog(l)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Kind() != tt.ev.Kind() {
				t.Fatalf("kind = %s, want %s", got.Kind(), tt.ev.Kind())
			}
			want := tt.ev.Base()
			base := got.Base()
			if base.ID != want.ID || base.User != want.User || base.TokenGive != want.TokenGive {
				t.Errorf("base mismatch: got %+v want %+v", base, want)
			}
			if base.AmountGet.Cmp(want.AmountGet.Int) != 0 || base.AmountGive.Cmp(want.AmountGive.Int) != 0 {
				t.Errorf("amounts mismatch: got %s/%s", base.AmountGet, base.AmountGive)
			}
			if base.Timestamp != want.Timestamp || base.Meta != want.Meta {
				t.Errorf("timestamp/meta mismatch: got %d %+v", base.Timestamp, base.Meta)
			}
			if f, ok := got.(Filled); ok && f.UserFill != taker {
				t.Errorf("userFill = %s, want %s", f.UserFill.Hex(), taker.Hex())
			}
		})
	}
}

func TestDecodeLog_Rejects(t *testing.T) {
	good, err := EncodeLog(Placed{sampleOrder(1)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	zeroID := sampleOrder(1)
	zeroID.ID = 0
	zeroLog, err := EncodeLog(Placed{zeroID})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tests := []struct {
		name string
		log  types.Log
	}{
		{name: "no topics", log: types.Log{Data: good.Data}},
		{name: "unknown topic", log: types.Log{Topics: []common.Hash{EventTopic("Deposit(address,address,uint256,uint256)")}, Data: good.Data}},
		{name: "truncated data", log: types.Log{Topics: good.Topics, Data: good.Data[:64]}},
		{name: "zero id", log: zeroLog},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeLog(tt.log)
			if !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("err = %v, want ErrMalformedEvent", err)
			}
		})
	}
}

func TestMemorySource_HistoryAndLive(t *testing.T) {
	src := NewMemorySource()
	early := sampleOrder(1)
	late := sampleOrder(2)
	late.Meta.BlockNumber = 20
	src.SetHistory(Placed{early}, Placed{late})

	from := uint64(10)
	got, err := src.FetchHistory(context.Background(), KindPlaced, from, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].Base().ID != 2 {
		t.Fatalf("history from block 10 = %v", got)
	}

	var seen []uint64
	sub, _ := src.Subscribe(context.Background(), KindCancelled, func(ev Event) {
		seen = append(seen, ev.Base().ID)
	})
	src.Emit(Cancelled{sampleOrder(1)})
	src.Emit(Placed{sampleOrder(3)})
	if len(seen) != 1 || seen[0] != 1 {
		t.Fatalf("live cancelled = %v, want [1]", seen)
	}

	sub.Unsubscribe()
	src.Emit(Cancelled{sampleOrder(4)})
	if len(seen) != 1 {
		t.Errorf("delivered after unsubscribe: %v", seen)
	}
	if _, ok := <-sub.Err(); ok {
		t.Error("err channel should be closed")
	}
}
