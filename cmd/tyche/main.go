package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/XavierBriggs/Tyche/adapters/vrfhttp"
	"github.com/XavierBriggs/Tyche/internal/api"
	"github.com/XavierBriggs/Tyche/internal/config"
	"github.com/XavierBriggs/Tyche/internal/keeper"
	"github.com/XavierBriggs/Tyche/internal/obs"
	"github.com/XavierBriggs/Tyche/internal/raffle"
	"github.com/XavierBriggs/Tyche/internal/registry"
	"github.com/XavierBriggs/Tyche/internal/settlement"
	"github.com/XavierBriggs/Tyche/internal/snapshot"
	"github.com/XavierBriggs/Tyche/internal/vrf"
	"github.com/XavierBriggs/Tyche/internal/wallet"
	"github.com/XavierBriggs/Tyche/internal/writer"
	"github.com/XavierBriggs/Tyche/networks/hardhat"
	"github.com/XavierBriggs/Tyche/networks/rinkeby"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration from .env and environment
	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		os.Exit(1)
	}

	log := obs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := obs.NewMetrics()
	clock := raffle.SystemClock{}

	network := selectNetwork(cfg)
	fmt.Printf("✓ Network %s (chain %d)\n", network.GetName(), network.GetChainID())

	// Initialize Postgres connection
	db, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		fmt.Printf("failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fmt.Printf("failed to ping database: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Connected to Postgres")

	// Initialize Redis connection; streams and the snapshot cache are skipped without it
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			fmt.Printf("failed to connect to Redis: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✓ Connected to Redis")
	}

	// Notification writer
	notifier := writer.NewWriter(db, redisClient, log)
	notifier.Start(ctx)

	// Payout sink
	var (
		sink   contracts.PayoutSink
		ledger *settlement.Ledger
	)
	switch cfg.PayoutSink {
	case config.SinkWallet:
		sink = wallet.NewClient(wallet.Config{BaseURL: cfg.WalletURL, APIKey: cfg.WalletAPIKey}, log)
	default:
		ledger = settlement.NewLedger(db, redisClient, clock, log)
		sink = ledger
	}
	fmt.Printf("✓ Payout sink: %s\n", cfg.PayoutSink)

	raffleCfgs, err := config.LoadRaffles(cfg.RafflesPath, network)
	if err != nil {
		fmt.Printf("failed to load raffles: %v\n", err)
		os.Exit(1)
	}

	// Randomness oracle: in-process coordinator on development networks
	var (
		oracle      contracts.RandomnessOracle
		coordinator *vrf.Coordinator
		subID       uint64
	)
	if network.IsDevelopment() {
		mock := network.(*hardhat.Module).GetMockConfig()
		vrfCfg := vrf.DefaultConfig()
		vrfCfg.BaseFee = mock.BaseFee
		vrfCfg.GasPriceLink = mock.GasPriceLink
		vrfCfg.FulfillDelay = mock.FulfillDelay

		coordinator = vrf.NewCoordinator(vrfCfg, clock, log)
		subID = coordinator.CreateSubscription()
		if err := coordinator.FundSubscription(subID, mock.SubscriptionFund); err != nil {
			fmt.Printf("failed to fund subscription: %v\n", err)
			os.Exit(1)
		}
		oracle = coordinator
		fmt.Printf("✓ Local VRF coordinator (subscription %d, funded %s)\n", subID, mock.SubscriptionFund)
	} else {
		client, err := vrfhttp.NewClient(vrfhttp.Config{
			BaseURL:     cfg.CoordinatorURL,
			APIKey:      cfg.CoordinatorAPIKey,
			CallbackURL: cfg.CallbackURL,
		})
		if err != nil {
			fmt.Printf("failed to create coordinator client: %v\n", err)
			os.Exit(1)
		}
		oracle = client
		fmt.Printf("✓ Remote VRF coordinator %s\n", cfg.CoordinatorURL)
	}

	// Round numbers continue from persisted history
	roundSources := []contracts.RoundSource{notifier}
	if ledger != nil {
		roundSources = append(roundSources, ledger)
	}

	// Build and register raffles
	raffleRegistry := registry.NewRaffleRegistry()
	for _, rc := range raffleCfgs {
		if coordinator != nil {
			rc.SubscriptionID = subID
		}
		startRound, err := raffle.ResumeRound(ctx, rc.Name, roundSources...)
		if err != nil {
			fmt.Printf("failed to resume raffle %s: %v\n", rc.Name, err)
			os.Exit(1)
		}
		engine, err := raffle.NewEngine(rc, oracle, sink,
			raffle.WithNotifier(notifier),
			raffle.WithClock(clock),
			raffle.WithLogger(log),
			raffle.WithMetrics(metrics),
			raffle.WithStartRound(startRound),
		)
		if err != nil {
			fmt.Printf("failed to create raffle %s: %v\n", rc.Name, err)
			os.Exit(1)
		}
		if err := raffleRegistry.Register(engine); err != nil {
			fmt.Printf("failed to register raffle %s: %v\n", rc.Name, err)
			os.Exit(1)
		}
		if coordinator != nil {
			if err := coordinator.AddConsumer(subID, rc.Name, engine); err != nil {
				fmt.Printf("failed to add consumer %s: %v\n", rc.Name, err)
				os.Exit(1)
			}
		}
	}
	fmt.Printf("✓ Registered %d raffle(s)\n", raffleRegistry.Count())

	if coordinator != nil {
		coordinator.Start(ctx)
	}

	// Keeper
	var cache *snapshot.Cache
	if redisClient != nil {
		cache = snapshot.NewCache(redisClient, cfg.CacheTTL)
	}
	pollInterval := cfg.KeeperPollInterval
	if pollInterval == 0 {
		pollInterval = network.GetKeeperPollInterval()
	}
	upkeeper := keeper.NewKeeper(keeper.Config{
		PollInterval: pollInterval,
		StuckAfter:   cfg.StuckAfter,
	}, raffleRegistry, cache, clock, log, metrics)

	if err := upkeeper.Start(ctx); err != nil {
		fmt.Printf("failed to start keeper: %v\n", err)
		os.Exit(1)
	}

	// HTTP API
	server := api.NewServer(api.Config{
		EntryRateLimit: cfg.EntryRateLimit,
		EntryBurst:     cfg.EntryBurst,
		CallbackToken:  cfg.CoordinatorAPIKey,
	}, raffleRegistry, network, notifier, metrics, log)
	if ledger != nil {
		server.SetPayoutSource(ledger)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped")
			cancel()
		}
	}()

	fmt.Printf("✓ Tyche started - listening on %s\n", cfg.HTTPAddr)
	fmt.Printf("  Keeper poll interval: %v\n", pollInterval)
	fmt.Println()

	for _, e := range raffleRegistry.GetAll() {
		fmt.Printf("  [%s]\n", e.Name())
		fmt.Printf("    Entrance fee: %s\n", e.EntranceFee())
		fmt.Printf("    Interval: %v\n", e.Interval())
	}

	// Wait for interrupt signal or a fatal server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}
	fmt.Println("\n✓ Shutting down gracefully...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	upkeeper.Stop()
	if coordinator != nil {
		coordinator.Stop()
	}
	notifier.Stop()

	upkeeper.CheckStuck()
	for _, e := range raffleRegistry.InState(models.RaffleStateCalculating) {
		fmt.Printf("⚠ raffle %s stopped while calculating round %d\n", e.Name(), e.Round())
	}

	select {
	case <-shutdownCtx.Done():
		fmt.Println("✗ Shutdown timeout exceeded")
		os.Exit(1)
	default:
		fmt.Println("✓ Tyche stopped")
	}
}

func selectNetwork(cfg *config.Config) contracts.NetworkProfile {
	if cfg.IsDevelopment() {
		return hardhat.NewModule()
	}
	return rinkeby.NewModule(cfg.SubscriptionID)
}
