package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/compliance-gateway/internal/config"
	"github.com/jmehdipour/compliance-gateway/internal/db"
	"github.com/jmehdipour/compliance-gateway/internal/kafka"
	"github.com/jmehdipour/compliance-gateway/internal/logger"
	"github.com/jmehdipour/compliance-gateway/internal/metrics"
	"github.com/jmehdipour/compliance-gateway/internal/repository"
	"github.com/jmehdipour/compliance-gateway/internal/webhook"
	"github.com/jmehdipour/compliance-gateway/internal/worker"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	deliverTrigger     string
	deliverMetricsAddr string
)

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Deliver pending webhook notifications (ticker | kafka trigger)",
	RunE:  runDeliver,
}

func init() {
	deliverCmd.Flags().StringVar(&deliverTrigger, "trigger", "", "ticker or kafka (default from config worker.trigger)")
	deliverCmd.Flags().StringVar(&deliverMetricsAddr, "metrics-addr", "", "serve /metrics on this address when set")
}

func runDeliver(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.Init(cfg.Log.Level)
	defer logger.Sync()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	trigger := deliverTrigger
	if trigger == "" {
		trigger = cfg.Worker.Trigger
	}
	if trigger != "ticker" && trigger != "kafka" {
		return fmt.Errorf("invalid trigger %q (want ticker or kafka)", trigger)
	}

	// 2) DB connections
	dbx, err := db.NewMySQLConnection(cfg.MySQL)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	// attempt history is optional; the queue works without ClickHouse
	var attempts worker.AttemptRecorder
	var chDB *sqlx.DB
	if cfg.ClickHouse.DSN != "" {
		chDB, err = db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			log.Warn("clickhouse unavailable, attempt history disabled", zap.Error(err))
		} else {
			defer chDB.Close()
			attempts = repository.NewCHDeliveryAttemptsRepository(chDB)
		}
	}

	// 3) deliverer
	d := worker.NewDeliverer(
		repository.NewNotificationsRepository(dbx, cfg.Webhook.ClaimTimeout),
		webhook.NewClient(cfg.Webhook.TimeoutMs, cfg.Webhook.UserAgent),
		attempts,
		log.Named("deliver"),
		worker.Options{
			BatchSize:  cfg.Webhook.BatchSize,
			MaxRetries: cfg.Webhook.MaxRetries,
			Backoff:    worker.Backoff{Base: cfg.Webhook.BackoffBase, Max: cfg.Webhook.BackoffMax},
		},
	)

	if deliverMetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(deliverMetricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server exited", zap.Error(err))
			}
		}()
	}

	// 4) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if trigger == "kafka" {
		consumer := kafka.NewConsumer(cfg.Kafka)
		defer consumer.Close()

		log.Info("deliver worker started",
			zap.String("trigger", trigger),
			zap.String("topic", consumer.Topic()),
			zap.Int("batch_size", cfg.Webhook.BatchSize))
		return ignoreCanceled(d.RunKafka(ctx, consumer))
	}

	log.Info("deliver worker started",
		zap.String("trigger", trigger),
		zap.Duration("interval", cfg.Worker.Interval),
		zap.Int("batch_size", cfg.Webhook.BatchSize))
	return ignoreCanceled(d.Run(ctx, cfg.Worker.Interval))
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
