package holders

import (
	"context"
	"fmt"

	"activityScope/internal/model"
)

// Source decodes holders of tokens on one network.
type Source interface {
	Holders(ctx context.Context, token model.Token) ([]model.TokenHolder, error)
}

// Router dispatches holder lookups to the source of the token's network.
type Router map[uint64]Source

func (r Router) Holders(ctx context.Context, token model.Token) ([]model.TokenHolder, error) {
	source, ok := r[token.Network]
	if !ok {
		return nil, fmt.Errorf("no holder source for network %d", token.Network)
	}
	return source.Holders(ctx, token)
}
