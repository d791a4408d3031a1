// Command ledgerd runs the ledger service: the in-process double-entry
// engine, its CDC publisher/consumer, the loan amortization and payment
// scheduler, and the SEPA adapter, wired to a PostgreSQL metadata store.
// Grounded on the teacher's cmd/api/main.go: zerolog console writer outside
// production, config.Load(), pooled database connection, and a
// signal-driven graceful shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreledger/ledgerd/internal/cdc"
	"github.com/coreledger/ledgerd/internal/cdc/handlers"
	"github.com/coreledger/ledgerd/internal/cdc/kafka"
	"github.com/coreledger/ledgerd/internal/config"
	"github.com/coreledger/ledgerd/internal/ledger"
	"github.com/coreledger/ledgerd/internal/loan"
	"github.com/coreledger/ledgerd/internal/money"
	"github.com/coreledger/ledgerd/internal/scheduler"
	"github.com/coreledger/ledgerd/internal/sepa"
	"github.com/coreledger/ledgerd/internal/store/postgres"
	"github.com/coreledger/ledgerd/internal/sysaccounts"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	log.Info().Msg("connected to database")

	engine := ledger.New(make(chan ledger.Event, 1024))

	systemAccounts, err := sysaccounts.Bootstrap(engine, cfg.SystemAccountsPath, money.All())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap system accounts")
	}
	log.Info().Str("path", cfg.SystemAccountsPath).Msg("system accounts ready")

	publisher := kafka.NewPublisher(cfg.LedgerAddresses, cfg.CDCExchange)
	defer publisher.Close()

	routingKeys := make([]cdc.RoutingKey, len(cfg.CDCRoutingKeys))
	for i, k := range cfg.CDCRoutingKeys {
		routingKeys[i] = cdc.RoutingKey(k)
	}
	consumer := kafka.NewConsumer(cfg.LedgerAddresses, cfg.CDCExchange, cfg.CDCQueue, routingKeys, cfg.CDCDeadLetter)
	defer consumer.Close()

	dispatcher := handlers.NewDispatcher(
		handlers.NewAuditHandler(),
		handlers.NewBusinessHandler(st, handlers.NoOpTimeoutMonitor{}),
	)

	// Forward every engine lifecycle event onto the CDC bus; a delivery
	// failure here only drops the publish, it never blocks the write path.
	go func() {
		for ev := range engine.Events() {
			if err := publisher.Publish(ctx, cdc.FromEvent(ev)); err != nil {
				log.Error().Err(err).Str("transfer_id", ev.Transfer.ID.String()).Msg("failed to publish ledger event")
			}
		}
	}()

	go func() {
		if err := consumer.Consume(ctx, func(d cdc.Delivery) { dispatcher.Dispatch(ctx, d) }); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("cdc consumer stopped unexpectedly")
		}
	}()

	// Wired for its lifecycle alongside the scheduler and SEPA adapter; the
	// calling surface that invokes CreateLoan/Disburse is out of scope here.
	_ = loan.New(engine, st)

	tickInterval, err := time.ParseDuration(cfg.SchedulerTickInterval)
	if err != nil {
		log.Fatal().Err(err).Str("value", cfg.SchedulerTickInterval).Msg("invalid SCHEDULER_TICK_INTERVAL")
	}
	schedulerCfg := scheduler.DefaultConfig()
	schedulerCfg.Interval = tickInterval
	paymentScheduler := scheduler.New(engine, st, st, log.Logger, schedulerCfg)
	paymentScheduler.Start(ctx)
	defer paymentScheduler.Stop()

	dailyCap, err := money.New(cfg.SEPA.DailyCapMinor, money.EUR)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid SEPA_DAILY_CAP_MINOR")
	}
	maxTxCap, err := money.New(cfg.SEPA.MaxTransactionCapMinor, money.EUR)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid SEPA_MAX_TRANSACTION_CAP_MINOR")
	}
	sepaValidator := sepa.NewValidator(sepa.Config{
		DailyCap:          dailyCap,
		MaxTransactionCap: maxTxCap,
		CutOffHour:        cfg.SEPA.CutOffHour,
		SimulateWeekends:  cfg.SEPA.SimulateWeekends,
	}, nil)
	timerWheel := sepa.NewTimerWheel()
	sepaService := sepa.NewService(sepaValidator, timerWheel, st, engine, systemAccounts, log.Logger)
	defer sepaService.Close()

	log.Info().Str("env", cfg.Env).Msg("ledgerd started")

	<-ctx.Done()
	log.Info().Msg("shutting down")
}
