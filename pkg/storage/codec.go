package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexview/pkg/ledger"
)

// journalRecord is the stored form of one event.
type journalRecord struct {
	Kind     ledger.Kind     `json:"kind"`
	Order    ledger.Order    `json:"order"`
	UserFill *common.Address `json:"userFill,omitempty"`
}

func encodeEvent(ev ledger.Event) ([]byte, error) {
	rec := journalRecord{Kind: ev.Kind(), Order: ev.Base()}
	if f, ok := ev.(ledger.Filled); ok {
		u := f.UserFill
		rec.UserFill = &u
	}
	return json.Marshal(rec)
}

func decodeEvent(b []byte) (ledger.Event, error) {
	var rec journalRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	switch rec.Kind {
	case ledger.KindPlaced:
		return ledger.Placed{Order: rec.Order}, nil
	case ledger.KindCancelled:
		return ledger.Cancelled{Order: rec.Order}, nil
	case ledger.KindFilled:
		if rec.UserFill == nil {
			return nil, fmt.Errorf("filled record %d without userFill", rec.Order.ID)
		}
		return ledger.Filled{Trade: ledger.Trade{Order: rec.Order, UserFill: *rec.UserFill}}, nil
	default:
		return nil, fmt.Errorf("unknown record kind %d", rec.Kind)
	}
}

func encodeBlock(n uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], n)
	return k[:]
}

func decodeBlock(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("checkpoint has %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
