package holders

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"activityScope/internal/model"
)

const defaultBalanceTimeout = 30 * time.Second

// Caller performs eth_call. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainSource decodes the wallet's holder state of a token contract over eth_call.
// Name, symbol and decimals are read immediately; the balance resolves later
// as a pending value so that callers are not held up by it.
type ChainSource struct {
	caller         Caller
	owner          common.Address
	logger         *zap.Logger
	balanceTimeout time.Duration
}

// NewChainSource creates a source reading holder state of owner through caller.
func NewChainSource(caller Caller, owner common.Address, logger *zap.Logger) *ChainSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainSource{
		caller:         caller,
		owner:          owner,
		logger:         logger,
		balanceTimeout: defaultBalanceTimeout,
	}
}

// Holders returns the single holder snapshot of the owner for token.
func (s *ChainSource) Holders(ctx context.Context, token model.Token) ([]model.TokenHolder, error) {
	if s.caller == nil {
		return nil, fmt.Errorf("chain caller is nil")
	}
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values := model.Attributes{}
	if name, ok := s.readText(ctx, token.Contract, "name", stringABI, bytes32ABI); ok {
		values["name"] = model.StringValue(name)
	}
	if symbol, ok := s.readText(ctx, token.Contract, "symbol", stringABI, bytes32ABI); ok {
		values["symbol"] = model.StringValue(symbol)
	}
	if token.Type == model.TokenERC20 {
		if out, err := s.call(ctx, token.Contract, stringABI, "decimals"); err == nil {
			if decimals, err := asBigInt(out[0]); err == nil {
				values["decimals"] = model.UintValue(decimals)
			}
		} else {
			s.logger.Debug("decimals call failed", zap.String("token", token.Contract.Hex()), zap.Error(err))
		}
	}

	balance := model.NewPending()
	values["balance"] = model.PendingValue(balance)
	go s.resolveBalance(context.WithoutCancel(ctx), token.Contract, stringABI, balance)

	return []model.TokenHolder{{
		Contract: token.Contract,
		Tokens:   []model.HolderToken{{ID: "0", Type: token.Type, Index: 0}},
		Values:   values,
	}}, nil
}

func (s *ChainSource) resolveBalance(ctx context.Context, contract common.Address, parsed abi.ABI, balance *model.Pending) {
	ctx, cancel := context.WithTimeout(ctx, s.balanceTimeout)
	defer cancel()

	out, err := s.call(ctx, contract, parsed, "balanceOf", s.owner)
	if err != nil {
		s.logger.Warn("balance call failed", zap.String("token", contract.Hex()), zap.Error(err))
		balance.Resolve(model.AttributeValue{})
		return
	}
	amount, err := asBigInt(out[0])
	if err != nil {
		s.logger.Warn("balance decode failed", zap.String("token", contract.Hex()), zap.Error(err))
		balance.Resolve(model.AttributeValue{})
		return
	}
	balance.Resolve(model.UintValue(amount))
}

func (s *ChainSource) readText(ctx context.Context, contract common.Address, method string, stringABI, bytes32ABI abi.ABI) (string, bool) {
	if out, err := s.call(ctx, contract, stringABI, method); err == nil {
		if text, ok := out[0].(string); ok {
			return text, true
		}
	}
	out, err := s.call(ctx, contract, bytes32ABI, method)
	if err != nil {
		s.logger.Debug("text call failed", zap.String("token", contract.Hex()), zap.String("method", method), zap.Error(err))
		return "", false
	}
	return bytes32ToString(out[0])
}

func (s *ChainSource) call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	resp, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}
