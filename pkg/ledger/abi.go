package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/crypto/sha3"
)

// ErrMalformedEvent is returned when a log payload does not carry the expected fields.
var ErrMalformedEvent = errors.New("malformed event")

// exchangeABI holds the three events consumed from the exchange contract.
// None of the parameters are indexed; everything is in the log data.
const exchangeABI = `[
  {"type":"event","name":"Order","anonymous":false,"inputs":[
    {"name":"id","type":"uint256","indexed":false},
    {"name":"user","type":"address","indexed":false},
    {"name":"tokenGet","type":"address","indexed":false},
    {"name":"amountGet","type":"uint256","indexed":false},
    {"name":"tokenGive","type":"address","indexed":false},
    {"name":"amountGive","type":"uint256","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"Cancel","anonymous":false,"inputs":[
    {"name":"id","type":"uint256","indexed":false},
    {"name":"user","type":"address","indexed":false},
    {"name":"tokenGet","type":"address","indexed":false},
    {"name":"amountGet","type":"uint256","indexed":false},
    {"name":"tokenGive","type":"address","indexed":false},
    {"name":"amountGive","type":"uint256","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"Trade","anonymous":false,"inputs":[
    {"name":"id","type":"uint256","indexed":false},
    {"name":"user","type":"address","indexed":false},
    {"name":"tokenGet","type":"address","indexed":false},
    {"name":"amountGet","type":"uint256","indexed":false},
    {"name":"tokenGive","type":"address","indexed":false},
    {"name":"amountGive","type":"uint256","indexed":false},
    {"name":"userFill","type":"address","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false}]}
]`

// Event signatures as hashed into topic[0].
const (
	sigOrder  = "Order(uint256,address,address,uint256,address,uint256,uint256)"
	sigCancel = "Cancel(uint256,address,address,uint256,address,uint256,uint256)"
	sigTrade  = "Trade(uint256,address,address,uint256,address,uint256,address,uint256)"
)

var (
	contractABI abi.ABI

	topicByKind map[Kind]common.Hash
	kindByTopic map[common.Hash]Kind
)

func init() {
	var err error
	contractABI, err = abi.JSON(strings.NewReader(exchangeABI))
	if err != nil {
		panic(fmt.Errorf("parse exchange abi: %w", err))
	}
	topicByKind = map[Kind]common.Hash{
		KindPlaced:    EventTopic(sigOrder),
		KindCancelled: EventTopic(sigCancel),
		KindFilled:    EventTopic(sigTrade),
	}
	kindByTopic = make(map[common.Hash]Kind, len(topicByKind))
	for k, h := range topicByKind {
		kindByTopic[h] = k
	}
}

// EventTopic returns keccak256(signature), the topic[0] of a non-anonymous event.
func EventTopic(signature string) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	var out common.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Topic returns topic[0] for the kind.
func Topic(k Kind) common.Hash { return topicByKind[k] }

// KindOf classifies a log by its first topic.
func KindOf(l types.Log) (Kind, bool) {
	if len(l.Topics) == 0 {
		return 0, false
	}
	k, ok := kindByTopic[l.Topics[0]]
	return k, ok
}

// DecodeLog strictly decodes an exchange log into a Placed, Cancelled or Filled event.
func DecodeLog(l types.Log) (Event, error) {
	kind, ok := KindOf(l)
	if !ok {
		return nil, fmt.Errorf("%w: unknown topic", ErrMalformedEvent)
	}
	fields := make(map[string]interface{})
	if err := contractABI.UnpackIntoMap(fields, kind.EventName(), l.Data); err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", ErrMalformedEvent, kind.EventName(), err)
	}

	d := fieldDecoder{fields: fields}
	o := Order{
		ID:         d.id("id"),
		User:       d.address("user"),
		TokenGet:   d.address("tokenGet"),
		AmountGet:  Amount{d.amount("amountGet")},
		TokenGive:  d.address("tokenGive"),
		AmountGive: Amount{d.amount("amountGive")},
		Timestamp:  d.timestamp("timestamp"),
		Meta: Meta{
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash,
			LogIndex:    l.Index,
		},
	}

	var ev Event
	switch kind {
	case KindPlaced:
		ev = Placed{o}
	case KindCancelled:
		ev = Cancelled{o}
	case KindFilled:
		ev = Filled{Trade{Order: o, UserFill: d.address("userFill")}}
	}
	if d.err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, kind.EventName(), d.err)
	}
	return ev, nil
}

// fieldDecoder records the first missing or mistyped field.
type fieldDecoder struct {
	fields map[string]interface{}
	err    error
}

func (d *fieldDecoder) fail(name, msg string) {
	if d.err == nil {
		d.err = fmt.Errorf("field %q %s", name, msg)
	}
}

func (d *fieldDecoder) address(name string) common.Address {
	v, ok := d.fields[name]
	if !ok {
		d.fail(name, "missing")
		return common.Address{}
	}
	a, ok := v.(common.Address)
	if !ok {
		d.fail(name, fmt.Sprintf("has type %T", v))
	}
	return a
}

func (d *fieldDecoder) amount(name string) *big.Int {
	v, ok := d.fields[name]
	if !ok {
		d.fail(name, "missing")
		return nil
	}
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		d.fail(name, fmt.Sprintf("has type %T", v))
		return nil
	}
	return new(big.Int).Set(n)
}

func (d *fieldDecoder) id(name string) uint64 {
	n := d.amount(name)
	if n == nil {
		return 0
	}
	if !n.IsUint64() || n.Sign() == 0 {
		d.fail(name, "out of range")
		return 0
	}
	return n.Uint64()
}

func (d *fieldDecoder) timestamp(name string) int64 {
	n := d.amount(name)
	if n == nil {
		return 0
	}
	if !n.IsInt64() {
		d.fail(name, "out of range")
		return 0
	}
	return n.Int64()
}

// EncodeLog packs an event into a contract log carrying its Meta. It is the
// inverse of DecodeLog.
func EncodeLog(ev Event) (types.Log, error) {
	o := ev.Base()
	if o.AmountGet.IsNil() || o.AmountGive.IsNil() {
		return types.Log{}, fmt.Errorf("%w: nil amount", ErrMalformedEvent)
	}
	args := []interface{}{
		new(big.Int).SetUint64(o.ID),
		o.User,
		o.TokenGet,
		o.AmountGet.Int,
		o.TokenGive,
		o.AmountGive.Int,
	}
	if f, ok := ev.(Filled); ok {
		args = append(args, f.UserFill)
	}
	args = append(args, big.NewInt(o.Timestamp))

	event, ok := contractABI.Events[ev.Kind().EventName()]
	if !ok {
		return types.Log{}, fmt.Errorf("no abi event for %s", ev.Kind())
	}
	data, err := event.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		return types.Log{}, fmt.Errorf("pack %s: %w", event.Name, err)
	}
	return types.Log{
		Topics:      []common.Hash{Topic(ev.Kind())},
		Data:        data,
		BlockNumber: o.Meta.BlockNumber,
		TxHash:      o.Meta.TxHash,
		Index:       o.Meta.LogIndex,
	}, nil
}
