package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/restobooking/config"
	"github.com/Domenick1991/restobooking/internal/bootstrap"
	"github.com/Domenick1991/restobooking/internal/email"
	"github.com/Domenick1991/restobooking/internal/kafka"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/notify"
	"github.com/joho/godotenv"
	kafkaGo "github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "restobooking-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "restobooking-worker",
		Level:       logger.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "worker shut down gracefully")
}

// run drives the sweep scheduler and, when Kafka is configured, the
// notification consumer until ctx is cancelled or one of them fails.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	services, err := bootstrap.New(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, services.Close(ctx))
	}()

	sweeps, err := services.SweepService()
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := sweeps.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if len(cfg.Kafka.Brokers) > 0 {
		sender, err := email.NewSender(cfg.SMTP, services.Location, logg)
		if err != nil {
			return err
		}
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, logg)
		defer consumer.Close()

		group.Go(func() error {
			return consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
				var event notify.Event
				if err := json.Unmarshal(msg.Value, &event); err != nil {
					logg.Error(ctx, "decode notification", err)
					return nil
				}
				return sender.Send(ctx, event)
			})
		})
	}

	logg.Info(ctx, "starting worker")
	return group.Wait()
}
