// Package bootstrap assembles the booking core from configuration: the
// store, the planning and allocation services, the waitlist matcher and the
// lifecycle sweeps, plus the optional Redis and Kafka collaborators.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/restobooking/config"
	"github.com/Domenick1991/restobooking/internal/cache"
	"github.com/Domenick1991/restobooking/internal/cron"
	"github.com/Domenick1991/restobooking/internal/kafka"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/metrics"
	"github.com/Domenick1991/restobooking/internal/migrate"
	"github.com/Domenick1991/restobooking/internal/notify"
	"github.com/Domenick1991/restobooking/internal/pool"
	"github.com/Domenick1991/restobooking/internal/repository"
	"github.com/Domenick1991/restobooking/internal/repository/memory"
	"github.com/Domenick1991/restobooking/internal/service/availability"
	"github.com/Domenick1991/restobooking/internal/service/booking"
	"github.com/Domenick1991/restobooking/internal/service/codes"
	"github.com/Domenick1991/restobooking/internal/service/inventory"
	"github.com/Domenick1991/restobooking/internal/service/lifecycle"
	"github.com/Domenick1991/restobooking/internal/service/waitlist"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepLockPrefix = "restobooking:sweeps:"
)

// Services is the wired service graph shared by the binaries.
type Services struct {
	Config   *config.Config
	Logger   *logger.Logger
	Location *time.Location
	Metrics  *prometheus.Registry

	Store     repository.Store
	Cache     *cache.RedisCache
	Planner   *availability.Planner
	Inventory *inventory.Inventory
	Codes     *codes.Registry
	Notifier  notify.Notifier
	Booking   *booking.BookingService
	Matcher   *waitlist.Matcher
	Sweeps    *cron.Registry

	sweepMetrics *metrics.SweepMetrics
	closers      []func(ctx context.Context) error
}

// New builds the graph. Redis and Kafka are optional: without an address the
// planner runs uncached and notifications are disabled.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Services, error) {
	loc, err := cfg.Restaurant.Location()
	if err != nil {
		return nil, err
	}

	s := &Services{
		Config:   cfg,
		Logger:   log,
		Location: loc,
		Metrics:  prometheus.NewRegistry(),
	}
	s.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.sweepMetrics = metrics.NewSweepMetrics(s.Metrics)

	if err := s.openStore(ctx); err != nil {
		return nil, multierr.Append(err, s.Close(ctx))
	}

	plannerOpts := []availability.Option{availability.WithLogger(log)}
	if cfg.Redis.Addr != "" {
		s.Cache = cache.NewRedisCache(cfg.Redis)
		s.closers = append(s.closers, func(context.Context) error { return s.Cache.Close() })
		plannerOpts = append(plannerOpts, availability.WithCache(s.Cache, cfg.Booking.SlotsCacheTTL()))
	} else {
		log.Warn(ctx, "redis not configured, slot cache disabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		dispatcher := notify.NewDispatcher(producer, cfg.Kafka.NotificationsTopic, cfg.Booking.NotificationQueueSize, log)
		dispatcher.Start()
		s.Notifier = dispatcher
		// the dispatcher drains into the producer, so it closes first
		s.closers = append(s.closers,
			func(ctx context.Context) error { return producer.Close() },
			dispatcher.Close,
		)
	} else {
		log.Warn(ctx, "kafka not configured, guest notifications disabled")
	}

	s.Planner = availability.NewPlanner(s.Store, loc, plannerOpts...)
	s.Inventory = inventory.New(s.Store)
	s.Codes = codes.NewRegistry(codes.WithMaxAttempts(cfg.Booking.CodeMaxAttempts))

	s.Booking = booking.NewBookingService(s.Store, s.Planner, s.Inventory, s.Codes,
		booking.WithWindow(cfg.Booking.MinLead(), cfg.Booking.MaxAdvance()),
		booking.WithConflictRetries(cfg.Booking.ConflictRetries),
		booking.WithNotifier(s.Notifier),
		booking.WithLogger(log),
	)
	s.Matcher = waitlist.NewMatcher(s.Store, s.Planner, s.Inventory, s.Codes,
		waitlist.WithOfferWindow(cfg.Booking.OfferWindow()),
		waitlist.WithNotifier(s.Notifier),
		waitlist.WithLogger(log),
	)
	s.Inventory.Subscribe(s.Matcher.OnTableFreed)

	s.Sweeps = cron.NewRegistry(
		lifecycle.NewNoShowSweep(lifecycle.NoShowParams{
			Store:     s.Store,
			Planner:   s.Planner,
			Inventory: s.Inventory,
			Codes:     s.Codes,
			Logger:    log,
			Metrics:   s.sweepMetrics,
			Grace:     cfg.Booking.NoShowGrace(),
		}),
		lifecycle.NewOfferExpirySweep(lifecycle.OfferExpiryParams{
			Store:     s.Store,
			Inventory: s.Inventory,
			Codes:     s.Codes,
			Notifier:  s.Notifier,
			Logger:    log,
			Metrics:   s.sweepMetrics,
			Window:    cfg.Booking.OfferWindow(),
		}),
		lifecycle.NewReminderSweep(lifecycle.ReminderParams{
			Store:    s.Store,
			Notifier: s.Notifier,
			Logger:   log,
			Metrics:  s.sweepMetrics,
			Lead:     cfg.Booking.ReminderLead(),
		}),
	)
	return s, nil
}

func (s *Services) openStore(ctx context.Context) error {
	cfg := s.Config
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		s.Store = memory.New()
		if err := Seed(ctx, s.Store, cfg.Restaurant); err != nil {
			return fmt.Errorf("seed memory store: %w", err)
		}
		s.Logger.Warn(ctx, "using the in-memory store, data is lost on exit")
		return nil

	case config.StoreDriverPostgres:
		if cfg.Database.AutoMigrate {
			if err := s.migrate(ctx); err != nil {
				return err
			}
		}
		p := pool.New(repository.PGDialer(cfg.Database.DSN()), pool.Options[*pgx.Conn]{
			MaxIdle:       cfg.Database.Pool.MaxIdle,
			IdleTimeout:   time.Duration(cfg.Database.Pool.IdleTimeoutSeconds) * time.Second,
			EvictInterval: time.Duration(cfg.Database.Pool.EvictIntervalSeconds) * time.Second,
			Alive:         repository.PGConnAlive,
			Metrics:       metrics.NewPoolMetrics(s.Metrics),
		})
		s.closers = append(s.closers, p.Shutdown)
		s.Store = repository.NewPGStore(p, s.Logger)
		return nil
	}
	return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func (s *Services) migrate(ctx context.Context) error {
	db, err := migrate.Open(s.Config.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	s.Logger.Info(ctx, "running migrations (auto_migrate)")
	if err := migrate.Run(ctx, db, "up"); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// SweepLock returns the lock for one sweep: a Redis lock keyed by the sweep
// name when Redis is configured, a process-local lock otherwise.
func (s *Services) SweepLock(sweep string) (cron.Lock, error) {
	if s.Cache == nil {
		return &cron.LocalLock{}, nil
	}
	ttl := time.Duration(s.Config.Worker.LockTTLSeconds) * time.Second
	lock, err := cron.NewRedisLock(s.Cache, cache.LockKey(sweepLockPrefix+sweep), ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// SweepService wires the registered sweeps into the scheduler.
func (s *Services) SweepService() (*cron.Service, error) {
	return cron.NewService(cron.ServiceParams{
		Logger:   s.Logger,
		Registry: s.Sweeps,
		Locks:    s.SweepLock,
		Metrics:  s.sweepMetrics,
		Interval: time.Duration(s.Config.Worker.SweepIntervalSeconds) * time.Second,
	})
}

// StorePinger checks the store answers a trivial query.
func (s *Services) StorePinger() PingFunc {
	return func(ctx context.Context) error {
		return s.Store.WithinTx(ctx, func(ctx context.Context, tx *repository.Tx) error {
			_, err := tx.Tables.MaxEnabledCapacity(ctx)
			return err
		})
	}
}

// Close releases collaborators in reverse order of creation.
func (s *Services) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i](ctx))
	}
	s.closers = nil
	return err
}

// PingFunc adapts a function to the health check interface.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

var _ availability.SlotCache = (*cache.RedisCache)(nil)
