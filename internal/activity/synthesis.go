package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"activityScope/internal/metrics"
	"activityScope/internal/model"
)

// EventQuerier reads decoded events. *eventsource.Store satisfies it.
type EventQuerier interface {
	Query(ctx context.Context, contract common.Address, network uint64, eventName, filter string) ([]model.RawEvent, error)
}

// CardSource lists the token scripts declaring cards. *cards.Registry satisfies it.
type CardSource interface {
	Scripts() []model.TokenScript
}

// ActivityWriter persists activities whose key is not stored yet. *storage.ActivityStore satisfies it.
type ActivityWriter interface {
	InsertNew(ctx context.Context, activities []model.Activity) ([]model.Activity, error)
}

// SynthesizerConfig holds the wallet context of synthesis.
type SynthesizerConfig struct {
	Wallet   common.Address
	Networks []uint64
	Workers  int
}

// Synthesizer derives activities from the latest token list, events and transactions.
// Upstream changes are coalesced: a burst of notifications leads to at most one queued pass.
type Synthesizer struct {
	cfg     SynthesizerConfig
	events  EventQuerier
	cards   CardSource
	factory *Factory
	holders *HolderCache
	store   ActivityWriter
	pool    pond.Pool
	logger  *zap.Logger

	mu       sync.Mutex
	tokens   []model.Token
	bindings []model.TokenCardBinding
}

// NewSynthesizer wires the synthesis pass to its stores and starts its worker pool.
func NewSynthesizer(
	cfg SynthesizerConfig,
	events EventQuerier,
	cards CardSource,
	factory *Factory,
	holders *HolderCache,
	store ActivityWriter,
	logger *zap.Logger,
) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Synthesizer{
		cfg:     cfg,
		events:  events,
		cards:   cards,
		factory: factory,
		holders: holders,
		store:   store,
		pool:    pond.NewPool(workers, pond.WithQueueSize(workers*8)),
		logger:  logger,
	}
}

// Close releases the worker pool.
func (s *Synthesizer) Close() {
	s.pool.StopAndWait()
}

// Bindings returns the bindings computed by the last pass.
func (s *Synthesizer) Bindings() []model.TokenCardBinding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TokenCardBinding(nil), s.bindings...)
}

// SetTokens replaces the token snapshot used by the next pass.
func (s *Synthesizer) SetTokens(tokens []model.Token) {
	s.mu.Lock()
	s.tokens = append([]model.Token(nil), tokens...)
	s.mu.Unlock()
}

// Run combines the latest value of each feed and runs a pass whenever any of them changes,
// once every feed has delivered at least one value. A nil channel counts as delivered.
// Token changes that only modify existing tokens are ignored. Run returns when ctx ends.
func (s *Synthesizer) Run(
	ctx context.Context,
	events <-chan model.ChangeSet[model.RawEvent],
	transactions <-chan model.ChangeSet[model.TransactionRecord],
	tokens <-chan model.ChangeSet[model.Token],
) error {
	trigger := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-trigger:
			}
			if _, err := s.RunPass(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("synthesis pass failed", zap.Error(err))
			}
		}
	}()
	defer func() { <-done }()

	seenEvents, seenTransactions, seenTokens := events == nil, transactions == nil, tokens == nil
	signal := func() {
		if !seenEvents || !seenTransactions || !seenTokens {
			return
		}
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case change, ok := <-tokens:
			if !ok {
				tokens, seenTokens = nil, true
				continue
			}
			if !change.HasMembershipChange() {
				continue
			}
			if change.Kind == model.ChangeError {
				s.logger.Warn("token feed error", zap.Error(change.Err))
				s.SetTokens(nil)
			} else {
				s.SetTokens(change.Items)
			}
			seenTokens = true
			signal()

		case change, ok := <-events:
			if !ok {
				events, seenEvents = nil, true
				continue
			}
			if change.Kind == model.ChangeError {
				s.logger.Warn("event feed error", zap.Error(change.Err))
			}
			seenEvents = true
			signal()

		case change, ok := <-transactions:
			if !ok {
				transactions, seenTransactions = nil, true
				continue
			}
			if change.Kind == model.ChangeError {
				s.logger.Warn("transaction feed error", zap.Error(change.Err))
			}
			seenTransactions = true
			signal()
		}
	}
}

// RunPass derives activities from the current snapshot and inserts the new ones.
// A failing binding query is logged and skipped; it does not abort the pass.
func (s *Synthesizer) RunPass(ctx context.Context) (int, error) {
	start := time.Now()
	inserted, err := s.runPass(ctx)
	metrics.SynthesisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SynthesisPasses.WithLabelValues("failed").Inc()
		return 0, err
	}
	metrics.SynthesisPasses.WithLabelValues("ok").Inc()
	metrics.ActivitiesInserted.Add(float64(inserted))
	return inserted, nil
}

func (s *Synthesizer) runPass(ctx context.Context) (int, error) {
	s.mu.Lock()
	tokens := s.tokens
	s.mu.Unlock()

	pairs := s.tokenCards(ctx, tokens)
	bindings := MapBindings(pairs, s.cfg.Wallet, s.cfg.Networks)
	s.mu.Lock()
	s.bindings = bindings
	s.mu.Unlock()
	if len(bindings) == 0 {
		return 0, nil
	}

	var (
		mu         sync.Mutex
		candidates []model.Activity
	)
	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, binding := range bindings {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			found := s.bindingActivities(groupCtx, binding)
			if len(found) == 0 {
				return
			}
			mu.Lock()
			candidates = append(candidates, found...)
			mu.Unlock()
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	inserted, err := s.store.InsertNew(ctx, candidates)
	if err != nil {
		return 0, fmt.Errorf("insert activities: %w", err)
	}
	s.logger.Info("synthesis pass complete",
		zap.Int("bindings", len(bindings)),
		zap.Int("candidates", len(candidates)),
		zap.Int("inserted", len(inserted)),
	)
	return len(inserted), nil
}

// tokenCards keeps tokens that have cards on their network and warms their holder entries.
func (s *Synthesizer) tokenCards(ctx context.Context, tokens []model.Token) []TokenCards {
	scripts := s.cards.Scripts()

	var pairs []TokenCards
	for _, token := range tokens {
		var matched []TokenCards
		for _, script := range scripts {
			if script.Contract == token.Contract && script.Scope.Matches(token.Network) {
				matched = append(matched, TokenCards{Token: token, Scope: script.Scope, Cards: script.Cards})
			}
		}
		if len(matched) == 0 {
			continue
		}
		if err := s.holders.EnsureCreated(ctx, token); err != nil {
			s.logger.Warn("holder load failed", zap.String("token", token.PrimaryKey()), zap.Error(err))
		}
		pairs = append(pairs, matched...)
	}
	return pairs
}

func (s *Synthesizer) bindingActivities(ctx context.Context, binding model.TokenCardBinding) []model.Activity {
	origin := binding.Card.Origin
	contract := origin.Contract
	if contract == (common.Address{}) {
		contract = binding.Token.Contract
	}

	events, err := s.events.Query(ctx, contract, binding.Network, origin.EventName, binding.InterpolatedFilter)
	if err != nil {
		metrics.BindingQueryErrors.Inc()
		s.logger.Warn("event query failed",
			zap.String("contract", contract.Hex()),
			zap.Uint64("network", binding.Network),
			zap.String("event", origin.EventName),
			zap.Error(err),
		)
		return nil
	}

	out := make([]model.Activity, 0, len(events))
	for _, event := range events {
		if activity, ok := s.factory.Create(event, binding.Network, binding.Token, binding.Card, binding.InterpolatedFilter); ok {
			out = append(out, activity)
		}
	}
	return out
}
