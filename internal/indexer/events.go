package indexer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"activityScope/internal/model"
)

// eventSpec is a card origin event compiled to its ABI form.
type eventSpec struct {
	name  string
	event abi.Event
}

// BuildEvent compiles a declared origin event into an ABI event.
func BuildEvent(origin model.EventOrigin) (abi.Event, error) {
	args := make(abi.Arguments, 0, len(origin.Parameters))
	for _, param := range origin.Parameters {
		typ, err := abi.NewType(param.Type, "", nil)
		if err != nil {
			return abi.Event{}, fmt.Errorf("event %s parameter %s: %w", origin.EventName, param.Name, err)
		}
		args = append(args, abi.Argument{Name: param.Name, Type: typ, Indexed: param.Indexed})
	}
	return abi.NewEvent(origin.EventName, origin.EventName, false, args), nil
}

// contractEvents groups the origin events to poll by contract, keyed by topic0.
func contractEvents(scripts []model.TokenScript, network uint64) (map[common.Address]map[common.Hash]eventSpec, []error) {
	out := make(map[common.Address]map[common.Hash]eventSpec)
	var errs []error
	for _, script := range scripts {
		if !script.Scope.Matches(network) {
			continue
		}
		for _, card := range script.Cards {
			origin := card.Origin
			contract := origin.Contract
			if contract == (common.Address{}) {
				contract = script.Contract
			}
			if contract == model.NativeAssetAddress {
				continue
			}
			event, err := BuildEvent(origin)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if out[contract] == nil {
				out[contract] = make(map[common.Hash]eventSpec)
			}
			out[contract][event.ID] = eventSpec{name: origin.EventName, event: event}
		}
	}
	return out, errs
}
