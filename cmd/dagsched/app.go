package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/config"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/daginfo"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/scheduler"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/state"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/handlers"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/logger"
)

// app holds the dependencies shared by the commands
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *storage.DB
	redis *redis.Client
	store storage.DagInfoStore
	svc   *daginfo.Service

	health  map[string]handlers.HealthCheck
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, health: map[string]handlers.HealthCheck{}}
	a.closers = append(a.closers, func() error {
		_ = log.Sync()
		return nil
	})

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, a.redis.Close)
		a.health["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}

	var publishers []state.EventPublisher
	if cfg.Events.RecordHistory {
		publishers = append(publishers, state.NewHistoryTracker(a.db.DB))
	}
	if cfg.Events.PublishRedis {
		publishers = append(publishers, state.NewRedisPublisher(a.redis))
	}

	a.svc = daginfo.New(a.store,
		daginfo.WithLogger(log.Named("daginfo")),
		daginfo.WithStateManager(state.NewManager(state.NewMultiPublisher(publishers...))),
		daginfo.WithExclusiveTrigger(cfg.Scheduler.ExclusiveTrigger),
	)

	log.Info("Dependencies initialized",
		logger.StringField("store", cfg.Store.Driver),
		logger.Field("redis", a.redis != nil),
		logger.Field("exclusive_trigger", cfg.Scheduler.ExclusiveTrigger),
	)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case "postgres":
		db, err := storage.NewDB(&a.cfg.DB)
		if err != nil {
			return err
		}
		a.db = db
		a.store = storage.NewGormStore(db.DB)
		a.closers = append(a.closers, db.Close)
		a.health["store"] = db.Health
	case "mysql", "sqlite":
		store, err := storage.OpenSQLStore(ctx, a.cfg.Store.Driver, a.cfg.Store.DSN)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
		a.health["store"] = store.Ping
	case "memory":
		a.store = storage.NewMemoryStore()
	default:
		return fmt.Errorf("unsupported store driver %q", a.cfg.Store.Driver)
	}
	return nil
}

// newDispatcher returns a NATS dispatcher when configured, otherwise a log-only one
func (a *app) newDispatcher() (scheduler.Dispatcher, error) {
	if a.cfg.NATS.URL == "" {
		return scheduler.LogDispatcher{Log: a.log.Named("dispatch")}, nil
	}

	d, err := scheduler.NewNATSDispatcher(a.cfg.NATS.URL, a.log.Named("dispatch"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, d.Close)
	if err := d.ListenResults(a.svc); err != nil {
		return nil, err
	}
	return scheduler.NewResilientDispatcher(d, a.cfg.ResilienceConfig(), a.log.Named("dispatch")), nil
}

// newPoller builds the poller, claiming triggers through Redis when available
func (a *app) newPoller() (*scheduler.Poller, error) {
	dispatcher, err := a.newDispatcher()
	if err != nil {
		return nil, err
	}

	opts := []scheduler.PollerOption{scheduler.WithPollerLogger(a.log.Named("scheduler"))}
	if a.redis != nil {
		opts = append(opts, scheduler.WithLocker(scheduler.NewRedisLocker(a.redis, a.cfg.Scheduler.LockTTL)))
	}
	return scheduler.NewPoller(a.cfg.PollerConfig(), a.svc, dispatcher, opts...), nil
}

// accessLog returns the logrus logger used for HTTP access logs
func (a *app) accessLog() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	if a.cfg.Log.Encoding == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	if level, err := logrus.ParseLevel(a.cfg.Log.Level); err == nil {
		l.SetLevel(level)
	}
	return l
}

// Close releases everything in reverse order of acquisition
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
