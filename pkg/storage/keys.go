package storage

import (
	"fmt"

	"github.com/uhyunpark/dexview/pkg/ledger"
)

// Key schema. A scope is "<chainID>:<contract>" so journals of different
// networks never mix.
//
//   ev:<scope>:<kind>:<block>:<logIndex>:<id> → journalRecord (JSON)
//   cp:<scope>:<kind>                         → last backfilled block (8 bytes)
//
// Block and log index are zero-padded so a prefix scan returns chain order.
const (
	prefixEvent      = "ev:"
	prefixCheckpoint = "cp:"
)

func eventKey(scope string, kind ledger.Kind, m ledger.Meta, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d:%010d:%020d", prefixEvent, scope, kind, m.BlockNumber, m.LogIndex, id))
}

func eventPrefix(scope string, kind ledger.Kind) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:", prefixEvent, scope, kind))
}

func scopePrefix(scope string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixEvent, scope))
}

func checkpointKey(scope string, kind ledger.Kind) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixCheckpoint, scope, kind))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
