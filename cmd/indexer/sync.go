package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alitto/pond/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"activityScope/internal/activity"
	"activityScope/internal/cards"
	"activityScope/internal/chain"
	"activityScope/internal/config"
	"activityScope/internal/eventsource"
	"activityScope/internal/history"
	"activityScope/internal/holders"
	"activityScope/internal/indexer"
	"activityScope/internal/metrics"
	"activityScope/internal/model"
	"activityScope/internal/storage"
	"activityScope/internal/storage/postgres"
	"activityScope/internal/tokenlist"
)

// backends groups the persistence chosen for a run.
type backends struct {
	activities  storage.ActivityBackend
	sink        storage.TransactionSink
	checkpoints indexer.CheckpointStore
	close       func()
}

func openBackends(ctx context.Context, pgDSN, checkpointPath, outPath string) (backends, error) {
	if pgDSN == "" {
		return backends{
			activities:  storage.NewMemoryBackend(),
			sink:        storage.NewJsonlSink(outPath),
			checkpoints: indexer.NewFileCheckpoints(checkpointPath),
			close:       func() {},
		}, nil
	}

	store, err := postgres.NewStore(ctx, pgDSN)
	if err != nil {
		return backends{}, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return backends{}, fmt.Errorf("ensure schema: %w", err)
	}
	return backends{activities: store, sink: store, checkpoints: store, close: store.Close}, nil
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Assets == "" {
		return fmt.Errorf("assets file is required")
	}
	wallet, err := indexer.ParseAddress(cfg.Wallet)
	if err != nil {
		return fmt.Errorf("parse wallet: %w", err)
	}
	networks, err := indexer.ParseNetworks(cfg.Networks)
	if err != nil {
		return err
	}
	if len(networks) == 0 {
		return fmt.Errorf("at least one network is required")
	}

	tokens, err := tokenlist.LoadFile(cfg.Assets)
	if err != nil {
		return err
	}
	scripts, err := cards.LoadFile(cfg.Assets)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := openBackends(ctx, cfg.PGDSN, cfg.Checkpoint, cfg.Out)
	if err != nil {
		return err
	}
	defer be.close()

	activityStore := storage.NewActivityStore(be.activities, logger)
	defer activityStore.Close()
	transactionStore := storage.NewTransactionStore(be.sink, logger)
	defer transactionStore.Close()
	eventStore := eventsource.NewStore()
	defer eventStore.Close()
	tokenStore := tokenlist.NewStore()
	defer tokenStore.Close()
	tokenStore.Put(tokens...)
	registry := cards.NewRegistry(scripts...)

	var (
		loops       []func(context.Context) error
		holderRoute = holders.Router{}
		transport   = history.NewHTTPTransport(0, cfg.ExplorerRPS)
	)
	for _, network := range networks {
		rpcURL, ok := cfg.RPC[network]
		if !ok {
			logger.Warn("no rpc url, chain polling disabled", zap.Uint64("network", network))
		} else {
			client, err := chain.NewClient(ctx, rpcURL, network)
			if err != nil {
				return fmt.Errorf("connect rpc for network %d: %w", network, err)
			}
			defer client.Close()

			poller := indexer.NewPoller(indexer.PollConfig{
				Network:      network,
				FromBlock:    cfg.FromBlock,
				BatchSize:    cfg.BatchSize,
				MaxRetries:   cfg.MaxRetries,
				RetryBackoff: cfg.RetryBackoff,
				Workers:      cfg.Workers,
			}, client, eventStore, be.checkpoints, logger.With(zap.Uint64("network", network)))
			defer poller.Close()
			loops = append(loops, func(ctx context.Context) error {
				return poller.Run(ctx, cfg.PollInterval, registry.Scripts)
			})
			holderRoute[network] = holders.NewChainSource(client, wallet, logger)
		}

		if explorerURL, ok := cfg.ExplorerURL[network]; ok {
			explorer := history.NewExplorer(history.ExplorerConfig{
				BaseURL:  explorerURL,
				APIKey:   cfg.ExplorerKey,
				Wallet:   wallet,
				Network:  network,
				PageSize: cfg.PageSize,
				MaxPages: cfg.MaxPages,
			}, transport, logger)
			syncer := history.NewSyncer(explorer, transactionStore, be.checkpoints, cfg.FromBlock, logger.With(zap.Uint64("network", network)))
			loops = append(loops, func(ctx context.Context) error {
				return syncer.Run(ctx, cfg.HistoryInterval)
			})
		}
	}

	holderCache := activity.NewHolderCache(holderRoute)
	synthesizer := activity.NewSynthesizer(
		activity.SynthesizerConfig{Wallet: wallet, Networks: networks, Workers: cfg.Workers},
		eventStore,
		registry,
		activity.NewFactory(wallet, tokenStore),
		holderCache,
		activityStore,
		logger,
	)
	defer synthesizer.Close()
	resolver := activity.NewResolver(activityStore, holderCache, logger)

	tokenFeed := tokenStore.ChangeFeed(ctx)
	defer tokenFeed.Unsubscribe()
	eventFeed := eventStore.ChangeFeed(ctx)
	defer eventFeed.Unsubscribe()
	transactionFeed, err := transactionStore.ChangeFeed(ctx, storage.TransactionFilter{Networks: networks})
	if err != nil {
		return fmt.Errorf("subscribe transactions: %w", err)
	}
	defer transactionFeed.Unsubscribe()
	activityFeed, err := activityStore.ChangeFeed(ctx, model.NoFilter())
	if err != nil {
		return fmt.Errorf("subscribe activities: %w", err)
	}
	defer activityFeed.Unsubscribe()

	loops = append(loops,
		func(ctx context.Context) error {
			return synthesizer.Run(ctx, eventFeed.C(), transactionFeed.C(), tokenFeed.C())
		},
		func(ctx context.Context) error {
			return resolver.Run(ctx, activityFeed.C())
		},
	)
	if cfg.MetricsAddr != "" {
		loops = append(loops, func(ctx context.Context) error {
			return metrics.Serve(ctx, cfg.MetricsAddr, logger)
		})
	}

	logger.Info("sync start",
		zap.String("wallet", wallet.Hex()),
		zap.Uint64s("networks", networks),
		zap.Int("tokens", len(tokens)),
		zap.Int("scripts", len(scripts)),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	return runLoops(ctx, loops)
}

// runLoops runs every loop until ctx ends or one of them fails, which stops the others.
func runLoops(ctx context.Context, loops []func(context.Context) error) error {
	pool := pond.NewPool(len(loops))
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, loop := range loops {
		group.SubmitErr(func() error {
			return loop(groupCtx)
		})
	}
	err := group.Wait()
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, pond.ErrGroupStopped) {
		return nil
	}
	return err
}
