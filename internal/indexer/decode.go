package indexer

import (
	"fmt"
	"math/big"
	"reflect"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"activityScope/internal/model"
)

// DecodeLog decodes a log of a known event into a RawEvent.
func DecodeLog(network uint64, event abi.Event, log types.Log, timestamp uint64) (model.RawEvent, error) {
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return model.RawEvent{}, fmt.Errorf("log topic does not match event %s", event.Name)
	}

	raw := make(map[string]interface{}, len(event.Inputs))
	if err := event.Inputs.NonIndexed().UnpackIntoMap(raw, log.Data); err != nil {
		return model.RawEvent{}, fmt.Errorf("unpack %s data: %w", event.Name, err)
	}
	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if err := abi.ParseTopicsIntoMap(raw, indexed, log.Topics[1:]); err != nil {
		return model.RawEvent{}, fmt.Errorf("parse %s topics: %w", event.Name, err)
	}

	data := make(model.Attributes, len(event.Inputs))
	for _, input := range event.Inputs {
		v, ok := raw[input.Name]
		if !ok {
			continue
		}
		value, err := attributeFromABI(input.Type, v)
		if err != nil {
			return model.RawEvent{}, fmt.Errorf("%s.%s: %w", event.Name, input.Name, err)
		}
		data[input.Name] = value
	}

	return model.RawEvent{
		Contract:         log.Address,
		Network:          network,
		EventName:        event.RawName,
		BlockNumber:      log.BlockNumber,
		TransactionID:    log.TxHash.Hex(),
		TransactionIndex: uint64(log.TxIndex),
		LogIndex:         uint64(log.Index),
		Timestamp:        time.Unix(int64(timestamp), 0).UTC(),
		Data:             data,
	}, nil
}

func attributeFromABI(typ abi.Type, value interface{}) (model.AttributeValue, error) {
	// Indexed dynamic values only carry their keccak hash.
	if hash, ok := value.(common.Hash); ok {
		return model.BytesValue(hash.Bytes()), nil
	}

	switch typ.T {
	case abi.AddressTy:
		addr, ok := value.(common.Address)
		if !ok {
			return model.AttributeValue{}, fmt.Errorf("unsupported address type %T", value)
		}
		return model.AddressValue(addr), nil
	case abi.BoolTy:
		b, ok := value.(bool)
		if !ok {
			return model.AttributeValue{}, fmt.Errorf("unsupported bool type %T", value)
		}
		return model.BoolValue(b), nil
	case abi.StringTy:
		s, ok := value.(string)
		if !ok {
			return model.AttributeValue{}, fmt.Errorf("unsupported string type %T", value)
		}
		return model.StringValue(s), nil
	case abi.UintTy:
		n, err := asBigInt(value)
		if err != nil {
			return model.AttributeValue{}, err
		}
		return model.UintValue(n), nil
	case abi.IntTy:
		n, err := asBigInt(value)
		if err != nil {
			return model.AttributeValue{}, err
		}
		return model.IntValue(n), nil
	case abi.BytesTy:
		b, ok := value.([]byte)
		if !ok {
			return model.AttributeValue{}, fmt.Errorf("unsupported bytes type %T", value)
		}
		return model.BytesValue(b), nil
	case abi.FixedBytesTy:
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Array || rv.Type().Elem().Kind() != reflect.Uint8 {
			return model.AttributeValue{}, fmt.Errorf("unsupported fixed bytes type %T", value)
		}
		b := make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
		return model.BytesValue(b), nil
	default:
		return model.StringValue(fmt.Sprint(value)), nil
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
