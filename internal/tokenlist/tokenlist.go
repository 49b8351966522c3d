package tokenlist

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"activityScope/internal/feed"
	"activityScope/internal/model"
)

// Store is the token list with a change feed.
type Store struct {
	mu     sync.RWMutex
	tokens map[string]model.Token
	feed   *feed.Feed[model.ChangeSet[model.Token]]
}

func NewStore() *Store {
	return &Store{
		tokens: make(map[string]model.Token),
		feed:   feed.New[model.ChangeSet[model.Token]](),
	}
}

// Lookup returns the token of contract on network.
func (s *Store) Lookup(contract common.Address, network uint64) (model.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[model.TokenPrimaryKey(contract, network)]
	return token, ok
}

// Tokens returns every token ordered by network then contract.
func (s *Store) Tokens() []model.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

// Put adds or replaces tokens.
func (s *Store) Put(tokens ...model.Token) {
	s.apply(func() {
		for _, token := range tokens {
			s.tokens[token.PrimaryKey()] = token
		}
	})
}

// Remove deletes tokens by contract and network.
func (s *Store) Remove(tokens ...model.Token) {
	s.apply(func() {
		for _, token := range tokens {
			delete(s.tokens, token.PrimaryKey())
		}
	})
}

func (s *Store) apply(mutate func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.sortedLocked()
	mutate()
	after := s.sortedLocked()

	deletions, insertions, modifications := diffTokens(before, after)
	if len(deletions) == 0 && len(insertions) == 0 && len(modifications) == 0 {
		return
	}
	s.feed.Send(model.UpdateChange(after, deletions, insertions, modifications))
}

// ChangeFeed subscribes to the token set, starting with its current snapshot.
func (s *Store) ChangeFeed(context.Context) *feed.Subscription[model.ChangeSet[model.Token]] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feed.Subscribe(model.InitialChange(s.sortedLocked()))
}

func (s *Store) Close() {
	s.feed.Close()
}

func (s *Store) sortedLocked() []model.Token {
	out := make([]model.Token, 0, len(s.tokens))
	for _, token := range s.tokens {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Network != out[j].Network {
			return out[i].Network < out[j].Network
		}
		return out[i].Contract.Hex() < out[j].Contract.Hex()
	})
	return out
}

func diffTokens(before, after []model.Token) (deletions, insertions, modifications []int) {
	old := make(map[string]model.Token, len(before))
	for _, token := range before {
		old[token.PrimaryKey()] = token
	}
	current := make(map[string]struct{}, len(after))
	for i, token := range after {
		current[token.PrimaryKey()] = struct{}{}
		prev, ok := old[token.PrimaryKey()]
		switch {
		case !ok:
			insertions = append(insertions, i)
		case prev != token:
			modifications = append(modifications, i)
		}
	}
	for i, token := range before {
		if _, ok := current[token.PrimaryKey()]; !ok {
			deletions = append(deletions, i)
		}
	}
	return deletions, insertions, modifications
}

type tokenEntry struct {
	Contract string `yaml:"contract"`
	Network  uint64 `yaml:"network"`
	Type     string `yaml:"type"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

type tokensFile struct {
	Tokens []tokenEntry `yaml:"tokens"`
}

// Parse reads the tokens section of an assets document.
func Parse(data []byte) ([]model.Token, error) {
	var doc tokensFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode tokens: %w", err)
	}

	tokens := make([]model.Token, 0, len(doc.Tokens))
	for i, entry := range doc.Tokens {
		contract := strings.TrimSpace(entry.Contract)
		if !common.IsHexAddress(contract) {
			return nil, fmt.Errorf("token %d: invalid contract %q", i, entry.Contract)
		}
		if entry.Network == 0 {
			return nil, fmt.Errorf("token %d: network is required", i)
		}
		tokenType, err := model.ParseTokenType(entry.Type)
		if err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		tokens = append(tokens, model.Token{
			Contract: common.HexToAddress(contract),
			Network:  entry.Network,
			Type:     tokenType,
			Symbol:   entry.Symbol,
			Name:     entry.Name,
			Decimals: entry.Decimals,
		})
	}
	return tokens, nil
}

// LoadFile parses the tokens section of the assets file at path.
func LoadFile(path string) ([]model.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assets file: %w", err)
	}
	return Parse(data)
}
