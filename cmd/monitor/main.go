package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"option-monitor/config"
	"option-monitor/internal/api"
	"option-monitor/internal/gateway"
	"option-monitor/internal/instruments"
	"option-monitor/internal/journal"
	"option-monitor/internal/logger"
	"option-monitor/internal/marketdata"
	"option-monitor/internal/marketdata/delta"
	"option-monitor/internal/marketdata/synthetic"
	"option-monitor/internal/metrics"
	"option-monitor/internal/notification"
	"option-monitor/internal/orchestrator"
	redisstore "option-monitor/internal/store/redis"
	sqlitestore "option-monitor/internal/store/sqlite"
)

const serviceName = "option-monitor"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[monitor] starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[monitor] config: %v", err)
	}
	logger.Init(serviceName, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus(2 * time.Minute)

	// ---- Market data ----
	var source marketdata.Source
	switch cfg.DataSource {
	case config.SourceSynthetic:
		log.Println("[monitor] *** SYNTHETIC DATA: candles are generated locally ***")
		source = synthetic.New()
	default:
		source = delta.New(delta.Config{BaseURL: cfg.DeltaBaseURL, Timeout: cfg.FetchTimeout, Debug: cfg.LogLevel == "debug"})
	}

	// ---- Journal sinks ----
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		log.Fatalf("[monitor] log dir: %v", err)
	}
	var sinks []journal.Sink
	if csvSink, err := journal.NewCSVSink(filepath.Join(cfg.LogDir, "trades.csv")); err != nil {
		log.Printf("[monitor] csv journal disabled: %v", err)
	} else {
		sinks = append(sinks, csvSink)
	}
	if jsonSink, err := journal.NewJSONLSink(filepath.Join(cfg.LogDir, "trades.jsonl")); err != nil {
		log.Printf("[monitor] jsonl journal disabled: %v", err)
	} else {
		sinks = append(sinks, jsonSink)
	}

	var (
		actionLog api.ActionLog
		sqlDB     *sql.DB
		rdb       *goredis.Client
		closers   []func() error
	)
	if cfg.SQLitePath != "" {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Printf("[monitor] sqlite journal disabled: %v", err)
			health.EnableSQLite(false)
		} else {
			sinks = append(sinks, journal.NewSQLiteSink(w))
			sqlDB = w.DB()
			health.EnableSQLite(true)
			if r, err := sqlitestore.NewReader(cfg.SQLitePath); err != nil {
				log.Printf("[monitor] sqlite reader unavailable: %v", err)
			} else {
				actionLog = r
				closers = append(closers, r.Close)
			}
		}
	}
	if cfg.RedisAddr != "" {
		w, err := redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   cfg.RedisStream,
		})
		if err != nil {
			log.Printf("[monitor] redis mirror disabled: %v", err)
			health.EnableRedis(false)
		} else {
			rs := journal.NewRedisSink(w)
			bw := rs.Buffered()
			bw.OnBuffer = func() { m.RedisBufferedWrites.Inc() }
			bw.OnFlush = func(n int) { log.Printf("[monitor] flushed %d buffered redis rows", n) }
			bw.Breaker().OnStateChange = func(from, to redisstore.State) {
				m.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					m.RedisCircuitBreakerTrips.Inc()
				}
				log.Printf("[monitor] redis circuit %s -> %s", from, to)
			}
			sinks = append(sinks, rs)
			rdb = w.Client()
			health.EnableRedis(true)
			if actionLog == nil {
				r, err := redisstore.NewReader(redisstore.ReaderConfig{
					Addr:     cfg.RedisAddr,
					Password: cfg.RedisPassword,
					Stream:   w.Stream(),
				})
				if err == nil {
					actionLog = r
					closers = append(closers, r.Close)
				}
			}
		}
	}

	multi := journal.NewMulti(sinks...)
	multi.OnError = func(sink string, err error) {
		m.JournalFailures.WithLabelValues(sink).Inc()
	}
	closers = append(closers, multi.Close)
	async := journal.NewAsync(multi, journal.DefaultQueueSize)
	async.OnDrop = func() { m.JournalDropped.Inc() }

	// ---- Alerts and dashboard ----
	if cfg.TelegramEnabled() {
		log.Printf("[monitor] telegram alerts to %d chat(s)", len(cfg.TelegramChatIDs))
	} else if cfg.TelegramToken != "" {
		log.Println("[monitor] TG_BOT_TOKEN set without TG_CHAT_ID, telegram disabled")
	}
	notifier := notification.FromConfig(notification.Options{
		TelegramToken:   cfg.TelegramToken,
		TelegramChatIDs: cfg.TelegramChatIDs,
		WebhookURL:      cfg.WebhookURL,
		OnError:         func(error) { m.NotifyFailures.Inc() },
	})
	hub := gateway.NewHub(gateway.DefaultReplaySize)
	hub.OnClientsChanged = func(n int) { m.WSClients.Set(float64(n)) }

	// ---- Orchestrator ----
	loader := instruments.NewLoader(cfg.InstrumentsFile)
	svc := orchestrator.New(orchestrator.Config{
		FetchTimeout: cfg.FetchTimeout,
		CloseWindow:  cfg.CloseWindow,
		ErrorBackoff: cfg.ErrorBackoff,
	}, orchestrator.Deps{
		Source:    source,
		Loader:    loader,
		Notifier:  notifier,
		Journal:   async,
		Publisher: hub,
		Metrics:   m,
		Health:    health,
	})
	if err := svc.Init(); err != nil {
		log.Fatalf("[monitor] %v", err)
	}
	slog.Info("monitor initialised", "run_id", svc.RunID(), "instruments", cfg.InstrumentsFile, "source", cfg.DataSource)
	if err := notifier.Send(ctx, notification.StartupAlert(serviceName, time.Now())); err != nil {
		log.Printf("[monitor] startup alert failed: %v", err)
	}

	apiSrv, err := api.NewServer(api.Config{
		Addr:       cfg.HTTPAddr,
		Status:     svc.Status,
		Actions:    actionLog,
		Hub:        hub,
		Reload:     svc,
		TOTPSecret: cfg.AdminTOTPSecret,
	})
	if err != nil {
		log.Fatalf("[monitor] api: %v", err)
	}
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, prometheus.DefaultGatherer)

	// ---- Run ----
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return svc.Run(gctx) })
	group.Go(func() error { return async.Run(gctx) })
	group.Go(func() error { return apiSrv.Run(gctx) })
	group.Go(func() error { return metricsSrv.Run(gctx) })
	group.Go(func() error {
		return health.RunLivenessChecker(gctx, rdb, sqlDB, 15*time.Second)
	})

	changes := make(chan struct{}, 1)
	group.Go(func() error {
		if err := instruments.Watch(gctx, cfg.InstrumentsFile, changes); err != nil {
			// The loop still polls modification times.
			log.Printf("[monitor] file watcher unavailable: %v", err)
		}
		return nil
	})
	group.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-changes:
				svc.RequestReload("watch")
			}
		}
	})

	err = group.Wait()
	log.Println("[monitor] shutting down...")
	if n := async.Flush(context.Background()); n > 0 {
		log.Printf("[monitor] flushed %d late journal rows", n)
	}
	hub.Close()
	for _, c := range closers {
		if cerr := c(); cerr != nil {
			log.Printf("[monitor] close: %v", cerr)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("[monitor] %v", err)
	}
	log.Println("[monitor] stopped")
}
