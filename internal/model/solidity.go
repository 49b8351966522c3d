package model

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SolidityType is a parsed elementary ABI type declared by a card's event origin.
type SolidityType struct {
	Base string
	Size int
}

// ParseSolidityType recognises address, bool, string, bytes, bytesN, uintN and intN.
func ParseSolidityType(raw string) (SolidityType, bool) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "address", "bool", "string", "bytes":
		return SolidityType{Base: raw}, true
	case "uint", "int":
		return SolidityType{Base: raw, Size: 256}, true
	}

	for _, base := range []string{"uint", "int", "bytes"} {
		if !strings.HasPrefix(raw, base) {
			continue
		}
		size, err := strconv.Atoi(strings.TrimPrefix(raw, base))
		if err != nil {
			return SolidityType{}, false
		}
		if base == "bytes" {
			if size < 1 || size > 32 {
				return SolidityType{}, false
			}
		} else if size < 8 || size > 256 || size%8 != 0 {
			return SolidityType{}, false
		}
		return SolidityType{Base: base, Size: size}, true
	}
	return SolidityType{}, false
}

func (t SolidityType) String() string {
	if t.Size == 0 {
		return t.Base
	}
	return t.Base + strconv.Itoa(t.Size)
}

// Coerce converts v to this type when a lossless conversion exists; otherwise v is returned unchanged.
func (t SolidityType) Coerce(v AttributeValue) AttributeValue {
	if v.IsPending() || !v.IsValid() {
		return v
	}

	switch t.Base {
	case "address":
		switch v.Kind() {
		case KindString:
			s, _ := v.AsString()
			if common.IsHexAddress(s) {
				return AddressValue(common.HexToAddress(s))
			}
		case KindBytes:
			b, _ := v.AsBytes()
			if len(b) == common.AddressLength {
				return AddressValue(common.BytesToAddress(b))
			}
		}
	case "bool":
		switch v.Kind() {
		case KindString:
			s, _ := v.AsString()
			if parsed, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				return BoolValue(parsed)
			}
		case KindUint, KindInt:
			n := v.number()
			return BoolValue(n.Sign() != 0)
		}
	case "string":
		if v.Kind() != KindString && v.Kind() != KindTraits {
			return StringValue(v.String())
		}
	case "bytes":
		if v.Kind() == KindString {
			s, _ := v.AsString()
			if b, err := hexutil.Decode(s); err == nil {
				return BytesValue(b)
			}
		}
	case "uint":
		switch v.Kind() {
		case KindString:
			s, _ := v.AsString()
			if n, ok := parseNumber(s); ok && n.Sign() >= 0 {
				return UintValue(n)
			}
		case KindInt:
			n := v.number()
			if n.Sign() >= 0 {
				return UintValue(n)
			}
		case KindBool:
			b, _ := v.AsBool()
			if b {
				return UintValueFrom(1)
			}
			return UintValueFrom(0)
		}
	case "int":
		switch v.Kind() {
		case KindString:
			s, _ := v.AsString()
			if n, ok := parseNumber(s); ok {
				return IntValue(n)
			}
		case KindUint:
			return IntValue(v.number())
		}
	}
	return v
}

func (v AttributeValue) number() *big.Int {
	return copyBig(v.num)
}

func parseNumber(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}
