package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrPendingValue is returned when an unresolved placeholder is encoded.
var ErrPendingValue = errors.New("pending attribute value cannot be encoded")

// GeneralisedTimeLayout is the ASN.1 generalised time layout used for timestamp attributes.
const GeneralisedTimeLayout = "20060102150405-0700"

// AttributeKind tags the variant held by an AttributeValue.
type AttributeKind uint8

const (
	KindInvalid AttributeKind = iota
	KindAddress
	KindString
	KindBytes
	KindInt
	KindUint
	KindTimestamp
	KindBool
	KindPending
	KindTraits
)

var kindNames = map[AttributeKind]string{
	KindAddress:   "address",
	KindString:    "string",
	KindBytes:     "bytes",
	KindInt:       "int",
	KindUint:      "uint",
	KindTimestamp: "generalisedTime",
	KindBool:      "bool",
	KindPending:   "pending",
	KindTraits:    "traits",
}

func (k AttributeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// Trait is one entry of a non-fungible trait list.
type Trait struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	Count int    `json:"count"`
}

// AttributeValue is a resolved token/card attribute, or a placeholder still being computed.
// The zero value is invalid.
type AttributeValue struct {
	kind    AttributeKind
	addr    common.Address
	str     string
	raw     []byte
	num     *big.Int
	ts      time.Time
	flag    bool
	pending *Pending
	traits  []Trait
}

func AddressValue(addr common.Address) AttributeValue {
	return AttributeValue{kind: KindAddress, addr: addr}
}

func StringValue(s string) AttributeValue {
	return AttributeValue{kind: KindString, str: s}
}

func BytesValue(b []byte) AttributeValue {
	return AttributeValue{kind: KindBytes, raw: append([]byte(nil), b...)}
}

// IntValue stores a signed integer. A nil input is treated as zero.
func IntValue(v *big.Int) AttributeValue {
	return AttributeValue{kind: KindInt, num: copyBig(v)}
}

// UintValue stores an unsigned integer. Negative inputs are rejected by returning an Int value.
func UintValue(v *big.Int) AttributeValue {
	if v != nil && v.Sign() < 0 {
		return IntValue(v)
	}
	return AttributeValue{kind: KindUint, num: copyBig(v)}
}

func UintValueFrom(v uint64) AttributeValue {
	return UintValue(new(big.Int).SetUint64(v))
}

func TimestampValue(t time.Time) AttributeValue {
	return AttributeValue{kind: KindTimestamp, ts: t.UTC()}
}

func BoolValue(b bool) AttributeValue {
	return AttributeValue{kind: KindBool, flag: b}
}

// PendingValue wraps an asynchronously resolving placeholder.
func PendingValue(p *Pending) AttributeValue {
	if p == nil {
		p = NewPending()
	}
	return AttributeValue{kind: KindPending, pending: p}
}

func TraitsValue(traits []Trait) AttributeValue {
	return AttributeValue{kind: KindTraits, traits: append([]Trait(nil), traits...)}
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func (v AttributeValue) Kind() AttributeKind { return v.kind }

func (v AttributeValue) IsValid() bool { return v.kind != KindInvalid }

func (v AttributeValue) IsPending() bool { return v.kind == KindPending }

func (v AttributeValue) AsAddress() (common.Address, bool) {
	return v.addr, v.kind == KindAddress
}

func (v AttributeValue) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v AttributeValue) AsBytes() ([]byte, bool) {
	return v.raw, v.kind == KindBytes
}

func (v AttributeValue) AsInt() (*big.Int, bool) {
	if v.kind != KindInt {
		return nil, false
	}
	return copyBig(v.num), true
}

func (v AttributeValue) AsUint() (*big.Int, bool) {
	if v.kind != KindUint {
		return nil, false
	}
	return copyBig(v.num), true
}

func (v AttributeValue) AsTime() (time.Time, bool) {
	return v.ts, v.kind == KindTimestamp
}

func (v AttributeValue) AsBool() (bool, bool) {
	return v.flag, v.kind == KindBool
}

func (v AttributeValue) AsPending() (*Pending, bool) {
	return v.pending, v.kind == KindPending
}

func (v AttributeValue) AsTraits() ([]Trait, bool) {
	return v.traits, v.kind == KindTraits
}

// Resolved returns the concrete value. Pending placeholders yield their value once resolved.
func (v AttributeValue) Resolved() (AttributeValue, bool) {
	switch v.kind {
	case KindInvalid:
		return AttributeValue{}, false
	case KindPending:
		if v.pending == nil {
			return AttributeValue{}, false
		}
		return v.pending.Value()
	default:
		return v, true
	}
}

// String renders the value the way it is compared and displayed.
func (v AttributeValue) String() string {
	switch v.kind {
	case KindAddress:
		return v.addr.Hex()
	case KindString:
		return v.str
	case KindBytes:
		return hexutil.Encode(v.raw)
	case KindInt, KindUint:
		return copyBig(v.num).String()
	case KindTimestamp:
		return v.ts.Format(GeneralisedTimeLayout)
	case KindBool:
		if v.flag {
			return "true"
		}
		return "false"
	case KindPending:
		if resolved, ok := v.Resolved(); ok {
			return "pending<" + resolved.String() + ">"
		}
		return "pending<unresolved>"
	case KindTraits:
		return fmt.Sprintf("traits<%d>", len(v.traits))
	default:
		return ""
	}
}

// Equal reports value equality. Pending values compare by their resolved state.
func (v AttributeValue) Equal(other AttributeValue) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindBytes:
		return bytes.Equal(v.raw, other.raw)
	case KindInt, KindUint:
		return copyBig(v.num).Cmp(copyBig(other.num)) == 0
	case KindTimestamp:
		return v.ts.Equal(other.ts)
	case KindTraits:
		if len(v.traits) != len(other.traits) {
			return false
		}
		for i := range v.traits {
			if v.traits[i] != other.traits[i] {
				return false
			}
		}
		return true
	case KindPending:
		if v.pending == other.pending {
			return true
		}
		a, okA := v.Resolved()
		b, okB := other.Resolved()
		if okA != okB {
			return false
		}
		return !okA || a.Equal(b)
	default:
		return v.String() == other.String()
	}
}

// MarshalJSON encodes the value as a single-key object tagged by kind.
func (v AttributeValue) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch v.kind {
	case KindAddress:
		payload = v.addr.Hex()
	case KindString:
		payload = v.str
	case KindBytes:
		payload = hexutil.Encode(v.raw)
	case KindInt, KindUint:
		payload = copyBig(v.num).String()
	case KindTimestamp:
		payload = v.ts.Format(time.RFC3339)
	case KindBool:
		payload = v.flag
	case KindTraits:
		payload = v.traits
	case KindPending:
		return nil, ErrPendingValue
	default:
		return nil, fmt.Errorf("encode attribute: invalid kind")
	}
	return json.Marshal(map[string]interface{}{v.kind.String(): payload})
}

// UnmarshalJSON decodes the tagged representation produced by MarshalJSON.
func (v *AttributeValue) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("decode attribute: %w", err)
	}
	if len(tagged) != 1 {
		return fmt.Errorf("decode attribute: expected one tag, got %d", len(tagged))
	}

	for tag, raw := range tagged {
		switch tag {
		case "address":
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("decode address attribute: %w", err)
			}
			if !common.IsHexAddress(s) {
				return fmt.Errorf("decode address attribute: invalid address %q", s)
			}
			*v = AddressValue(common.HexToAddress(s))
		case "string":
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("decode string attribute: %w", err)
			}
			*v = StringValue(s)
		case "bytes":
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("decode bytes attribute: %w", err)
			}
			b, err := hexutil.Decode(s)
			if err != nil {
				return fmt.Errorf("decode bytes attribute: %w", err)
			}
			*v = BytesValue(b)
		case "int", "uint":
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("decode %s attribute: %w", tag, err)
			}
			n, ok := new(big.Int).SetString(s, 10)
			if !ok {
				return fmt.Errorf("decode %s attribute: invalid number %q", tag, s)
			}
			if tag == "int" {
				*v = IntValue(n)
			} else {
				*v = UintValue(n)
			}
		case "generalisedTime":
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("decode time attribute: %w", err)
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return fmt.Errorf("decode time attribute: %w", err)
			}
			*v = TimestampValue(t)
		case "bool":
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return fmt.Errorf("decode bool attribute: %w", err)
			}
			*v = BoolValue(b)
		case "traits":
			var traits []Trait
			if err := json.Unmarshal(raw, &traits); err != nil {
				return fmt.Errorf("decode traits attribute: %w", err)
			}
			*v = TraitsValue(traits)
		default:
			return fmt.Errorf("decode attribute: unknown tag %q", tag)
		}
	}
	return nil
}
