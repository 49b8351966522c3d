package indexer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	return common.HexToAddress(input), nil
}

// ParseNetworks converts decimal network ids, skipping blanks and duplicates.
func ParseNetworks(inputs []string) ([]uint64, error) {
	seen := make(map[uint64]struct{}, len(inputs))
	networks := make([]uint64, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		network, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid network: %s", input)
		}
		if _, ok := seen[network]; ok {
			continue
		}
		seen[network] = struct{}{}
		networks = append(networks, network)
	}
	return networks, nil
}
