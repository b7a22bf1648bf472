package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/marketkeeper/config"
	"github.com/alejandrodnm/marketkeeper/internal/adapters/gateway"
	"github.com/alejandrodnm/marketkeeper/internal/adapters/lock"
	"github.com/alejandrodnm/marketkeeper/internal/adapters/notify"
	"github.com/alejandrodnm/marketkeeper/internal/adapters/storage"
	"github.com/alejandrodnm/marketkeeper/internal/application/resolve"
	"github.com/alejandrodnm/marketkeeper/internal/domain"
	"github.com/alejandrodnm/marketkeeper/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one full resolve pass and exit")
	report := flag.Bool("report", false, "print the local resolution history and exit")
	since := flag.Duration("since", 24*time.Hour, "history window for -report")
	onchain := flag.Bool("onchain", false, "print markets already resolved on-chain and exit")
	market := flag.Uint64("resolve", 0, "resolve a single market by ID and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print a full table per pass (default: compact lines)")
	listen := flag.Bool("listen", false, "answer Telegram /start /stop /status (overrides config)")
	flag.Parse()

	opts := runOptions{
		configPath: *configPath,
		once:       *once,
		report:     *report,
		since:      *since,
		onchain:    *onchain,
		market:     domain.MarketID(*market),
		verbose:    *verbose,
		logFormat:  *logFormat,
		table:      *table,
		listen:     *listen,
	}
	if err := run(opts); err != nil {
		slog.Error("marketkeeper failed", "err", err)
		os.Exit(1)
	}
}

type runOptions struct {
	configPath string
	once       bool
	report     bool
	since      time.Duration
	onchain    bool
	market     domain.MarketID
	verbose    bool
	logFormat  string
	table      bool
	listen     bool
}

// run devuelve el error en lugar de salir para que los defers (storage, redis)
// se ejecuten siempre.
func run(opts runOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config %q: %w", opts.configPath, err)
	}

	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	if opts.listen {
		cfg.Telegram.Listen = true
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := gateway.NewClient(gateway.Options{
		BaseURL:       cfg.Gateway.BaseURL,
		RatePerSec:    cfg.Gateway.RatePerSec,
		Timeout:       cfg.GatewayTimeout(),
		PriceDecimals: int32(cfg.Gateway.PriceDecimals),
	})
	console := notify.NewConsole(opts.table, !opts.verbose)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage %q: %w", cfg.Storage.DSN, err)
	}
	defer store.Close()

	switch {
	case opts.report:
		return runReport(ctx, store, console, opts.since)
	case opts.onchain:
		return runOnchainHistory(ctx, client, console)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	caller := domain.CallerIdentity{Address: cfg.Caller.Address, Label: cfg.Caller.Label}

	slog.Info("marketkeeper starting",
		"config", opts.configPath,
		"gateway", cfg.Gateway.BaseURL,
		"caller", caller,
		"quick_interval", cfg.QuickInterval(),
		"full_interval", cfg.FullInterval(),
		"max_attempts", cfg.Resolver.MaxAttempts,
		"once", opts.once,
	)

	if ledger, err := client.Ping(ctx); err != nil {
		slog.Warn("gateway not reachable yet", "err", err)
	} else {
		slog.Info("gateway reachable", "latest_ledger", ledger)
	}

	engine := resolve.New(resolve.Config{
		Retry: resolve.RetryPolicy{
			MaxAttempts: cfg.Resolver.MaxAttempts,
			BaseWait:    cfg.BaseBackoff(),
		},
		Workers: cfg.Resolver.Workers,
		LockTTL: cfg.LockTTL(),
	}, caller, client, client)

	locker, closeLocker := newLocker(ctx, cfg.Redis)
	defer closeLocker()
	engine.SetLocker(locker)

	notifiers := []ports.Notifier{console}
	tg := newTelegram(cfg.Telegram, store)
	if tg != nil {
		if name, err := tg.CheckStatus(); err != nil {
			slog.Warn("telegram status check failed", "err", err)
		} else {
			slog.Info("telegram alerts enabled", "bot", name, "chats", len(cfg.Telegram.ChatIDs))
		}
		notifiers = append(notifiers, tg)
	}
	notifier := notify.NewMulti(notifiers...)

	if opts.market != 0 {
		return runSingle(ctx, client, engine, notifier, store, opts.market)
	}

	sched := resolve.NewScheduler(resolve.SchedulerConfig{
		QuickInterval: cfg.QuickInterval(),
		FullInterval:  cfg.FullInterval(),
		Cooldown:      cfg.Cooldown(),
	}, engine, client, notifier, store)

	if opts.once {
		if _, err := sched.Trigger(ctx, domain.TriggerFull); err != nil {
			return fmt.Errorf("resolve pass: %w", err)
		}
		return nil
	}

	if tg != nil && cfg.Telegram.Listen {
		go func() {
			if err := tg.Listen(ctx); err != nil {
				slog.Warn("telegram listener exited", "err", err)
			}
		}()
	}

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler: %w", err)
	}

	slog.Info("marketkeeper stopped cleanly")
	return nil
}

// newLocker usa Redis si hay dirección configurada; si no, o si no responde,
// un lock en memoria.
func newLocker(ctx context.Context, cfg config.RedisConfig) (ports.MarketLocker, func()) {
	if cfg.Addr == "" {
		return lock.NewLocal(), func() {}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	r, err := lock.NewRedis(pingCtx, lock.RedisOptions{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err != nil {
		slog.Warn("redis unavailable, using in-process lock", "addr", cfg.Addr, "err", err)
		return lock.NewLocal(), func() {}
	}
	slog.Info("distributed lock enabled", "addr", cfg.Addr)
	return r, func() { r.Close() }
}

func newTelegram(cfg config.TelegramConfig, subs ports.SubscriberStorage) *notify.Telegram {
	if !cfg.Enabled {
		return nil
	}
	tg, err := notify.NewTelegram(notify.TelegramOptions{Token: cfg.Token, ChatIDs: cfg.ChatIDs}, subs)
	if err != nil {
		slog.Warn("telegram disabled", "err", err)
		return nil
	}
	return tg
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
