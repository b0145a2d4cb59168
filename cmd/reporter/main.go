package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pogostats/feishu-stats-reporter/internal/api"
	"github.com/pogostats/feishu-stats-reporter/internal/biz"
	"github.com/pogostats/feishu-stats-reporter/internal/biz/usecase"
	"github.com/pogostats/feishu-stats-reporter/internal/conf"
	"github.com/pogostats/feishu-stats-reporter/internal/data"
	"github.com/pogostats/feishu-stats-reporter/internal/i18n"
	"github.com/pogostats/feishu-stats-reporter/internal/infra/feishu"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
	"github.com/pogostats/feishu-stats-reporter/internal/metrics"
	"github.com/pogostats/feishu-stats-reporter/internal/server"
	"github.com/pogostats/feishu-stats-reporter/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logging.Init(os.Stderr)
	ctx := context.Background()

	// Load configuration
	cfg, err := conf.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.Err(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error(ctx, "invalid config", logging.Err(err))
		os.Exit(1)
	}
	if err := logging.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "ignoring log level", logging.Err(err))
	}

	m := metrics.NewManager()

	// Initialize clients
	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, log)
	if err := feishuClient.RefreshChats(ctx); err != nil {
		log.Warn(ctx, "failed to load chat list, will retry on first report", logging.Err(err))
	}

	// Initialize repository layer
	repos, err := data.NewRepositories(feishuClient, data.Options{
		DBDriver:     cfg.Database.Driver,
		DBDSN:        cfg.Database.DSN,
		KafkaBrokers: cfg.Kafka.Brokers,
		KafkaTopic:   cfg.Kafka.Topic,
	})
	if err != nil {
		log.Error(ctx, "failed to create repositories", logging.Err(err))
		os.Exit(1)
	}
	defer repos.Close()

	log.Info(ctx, "observation store opened",
		logging.String("driver", cfg.Database.Driver),
		logging.Bool("audit", len(cfg.Kafka.Brokers) > 0))

	translator, err := i18n.NewTranslator(cfg.LocaleDir, cfg.Locale, log)
	if err != nil {
		log.Error(ctx, "failed to load translations", logging.Err(err))
		os.Exit(1)
	}

	// Initialize usecase layer
	ucs := biz.Usecases{
		Stats: usecase.NewStatsUsecase(repos.Observation, cfg.StatWindow(), log,
			usecase.WithQueryTimeout(cfg.Database.QueryTimeout()),
			usecase.WithAggregationRecorder(m)),
		Reporter: usecase.NewChannelReporter(repos.Chat, cfg.Reporter.ToReporterConfig(), m, log),
	}

	// Initialize service layer
	reportSvc := service.NewReportService(cfg, ucs.Stats, ucs.Reporter, repos.Chat, repos.Audit, translator, m, log)
	scheduler, err := service.NewReportScheduler(cfg.Timezones(), cfg.Schedule.OffsetMinutes, reportSvc.OnScheduleFired, log)
	if err != nil {
		log.Error(ctx, "failed to create scheduler", logging.Err(err))
		os.Exit(1)
	}
	if err := scheduler.Start(ctx); err != nil {
		log.Error(ctx, "failed to start scheduler", logging.Err(err))
		os.Exit(1)
	}
	for _, e := range scheduler.Entries() {
		log.Info(ctx, "daily report armed",
			logging.String("timezone", e.Timezone),
			logging.Time("next_fire", e.NextFire))
	}

	// HTTP API for stats-mcp and on-demand runs
	var apiServer *api.Server
	if cfg.API.Addr != "" {
		if !cfg.API.Loopback() {
			log.Warn(ctx, "API listens beyond loopback without authentication", logging.String("addr", cfg.API.Addr))
		}
		var accessLog io.Writer
		if cfg.API.AccessLog {
			accessLog = os.Stdout
		}
		apiServer = api.NewServer(cfg.API.Addr, reportSvc, scheduler, ucs.Stats, m, log, accessLog)
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error(ctx, "API server error", logging.Err(err))
			}
		}()
		log.Info(ctx, "HTTP API server started", logging.String("addr", cfg.API.Addr))
	}

	// Chat commands
	srv := server.NewFeishuServer(feishuClient, reportSvc, repos.Chat, log)
	go func() {
		if err := srv.Start(ctx); err != nil {
			log.Error(ctx, "Feishu listener error", logging.Err(err))
		}
	}()

	log.Info(ctx, "stats reporter running", logging.Int("guilds", len(cfg.Guilds)))

	// SIGHUP reloads locale files; SIGINT/SIGTERM shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig != syscall.SIGHUP {
			break
		}
		if err := translator.Reload(); err != nil {
			log.Warn(ctx, "failed to reload translations", logging.Err(err))
			continue
		}
		log.Info(ctx, "translations reloaded", logging.String("locale", translator.Locale()))
	}

	log.Info(ctx, "shutting down")
	srv.Stop()
	scheduler.Stop()
	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Warn(ctx, "API server shutdown", logging.Err(err))
		}
	}
}
