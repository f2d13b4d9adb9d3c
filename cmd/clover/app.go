package main

import (
	"context"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectoinject/loglevel"
	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories"
	"github.com/Ramsey-B/clover/pkg/catalog"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/locking"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/routes/merge"
	"github.com/Ramsey-B/clover/pkg/routes/user"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	depTracing  = "tracing"
	depDatabase = "database"
	depRedis    = "redis"
	depGraph    = "graph"
	depProducer = "kafka-producer"
	depMerging  = "merging"

	lockKeyPrefix = "clover:"
)

// app owns every connection the commands need. Connections are opened by the
// startup sequence so transient failures are retried with backoff.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	db         database.DB
	redis      *locking.Client
	graph      *graph.Client
	producer   *kafka.Producer
	users      *repositories.UserRepository
	forwarders *repositories.ForwarderRepository
	lineage    *graph.LineageService
	service    *merging.Service

	shutdownTracing func(context.Context) error
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.New(logger, cfg.StartupMaxAttempts),
	}

	requires := []string{depDatabase}

	if cfg.OtelEnabled {
		a.startup.AddDependency(&startup.Func{Name: depTracing, OnStart: a.startTracing, OnStop: a.stopTracing})
		requires = append(requires, depTracing)
	}

	a.startup.AddDependency(&startup.Func{Name: depDatabase, OnStart: a.connectDatabase, OnStop: a.closeDatabase})

	if cfg.LockEnabled {
		a.startup.AddDependency(&startup.Func{Name: depRedis, OnStart: a.connectRedis, OnStop: a.closeRedis})
		requires = append(requires, depRedis)
	}
	if cfg.GraphEnabled {
		a.startup.AddDependency(&startup.Func{Name: depGraph, OnStart: a.connectGraph, OnStop: a.closeGraph})
		requires = append(requires, depGraph)
	}
	if cfg.KafkaProducerEnabled {
		a.startup.AddDependency(&startup.Func{Name: depProducer, OnStart: a.openProducer, OnStop: a.closeProducer})
		requires = append(requires, depProducer)
	}

	a.startup.AddDependency(&startup.Func{Name: depMerging, Requires: requires, OnStart: a.buildMerging})
	return a
}

func (a *app) Start(ctx context.Context) error {
	return a.startup.Start(ctx)
}

func (a *app) Stop(ctx context.Context) error {
	return a.startup.Stop(ctx)
}

func (a *app) startTracing(ctx context.Context) error {
	shutdown, err := tracing.Setup(ctx, a.cfg.AppName, a.cfg.Tracing())
	if err != nil {
		return err
	}
	a.shutdownTracing = shutdown
	return nil
}

func (a *app) stopTracing(ctx context.Context) error {
	if a.shutdownTracing == nil {
		return nil
	}
	return a.shutdownTracing(ctx)
}

func (a *app) connectDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, a.cfg.Database(), a.logger)
	if err != nil {
		return err
	}
	a.db = db

	if a.cfg.DatabaseMigrateOnStart {
		return a.migrate()
	}
	return nil
}

func (a *app) migrate() error {
	return database.NewMigrationService(a.logger, a.cfg.Migration()).MigratePostgres(a.db, a.cfg.DatabaseName)
}

func (a *app) closeDatabase(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *app) connectRedis(ctx context.Context) error {
	client, err := locking.NewClient(ctx, a.cfg.Redis(), a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	return nil
}

func (a *app) closeRedis(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func (a *app) connectGraph(ctx context.Context) error {
	client, err := graph.NewClient(a.cfg.Graph(), a.logger)
	if err != nil {
		return err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return errors.Wrap(err, "verify graph connectivity")
	}
	a.graph = client
	return nil
}

func (a *app) closeGraph(ctx context.Context) error {
	if a.graph == nil {
		return nil
	}
	return a.graph.Close(ctx)
}

func (a *app) openProducer(ctx context.Context) error {
	a.producer = kafka.NewProducer(a.cfg.Producer(), a.logger)
	return nil
}

func (a *app) closeProducer(ctx context.Context) error {
	if a.producer == nil {
		return nil
	}
	return a.producer.Close()
}

// buildMerging wires the repositories, the relation catalog and the merge
// service over whatever connections are enabled.
func (a *app) buildMerging(ctx context.Context) error {
	registry, err := catalog.Build(repositories.NewRelationRepository(a.db, a.logger))
	if err != nil {
		return errors.Wrap(err, "build relation registry")
	}

	a.users = repositories.NewUserRepository(a.db, a.logger)
	a.forwarders = repositories.NewForwarderRepository(a.db, a.logger, a.cfg.MergeForwardMaxDepth)
	engine := merging.NewEngine(a.logger, a.db, registry, a.users, a.forwarders)

	var locker merging.Locker
	if a.redis != nil {
		locker = locking.NewLocker(a.redis, lockKeyPrefix, a.cfg.LockTTL, a.cfg.LockWait)
	}

	var emitter merging.EventEmitter
	if a.producer != nil {
		emitter = events.NewEmitter(a.producer)
	}

	var lineage merging.LineageRecorder
	if a.graph != nil {
		a.lineage = graph.NewLineageService(a.graph, a.logger, a.cfg.MergeForwardMaxDepth)
		lineage = a.lineage
	}

	a.service = merging.NewService(a.logger, engine, a.users, locker, emitter, lineage)
	a.logger.WithContext(ctx).WithField("relations", len(registry.Names())).Info("Merge service ready")
	return nil
}

// newContainer registers what the HTTP handlers resolve per request. The
// lineage reader is only registered when the graph is enabled.
func (a *app) newContainer() (ectocontainer.DIContainer, error) {
	diConfig := ectoinject.DefaultContainerConfig
	diConfig.LoggerConfig = &ectocontainer.DIContainerLoggerConfig{
		Prefix:   "ectoinject",
		LogLevel: loglevel.WARN,
		Enabled:  true,
		LogFunc: func(ctx context.Context, level, msg string) {
			a.logger.WithContext(ctx).WithField("component", "ectoinject").Warn(msg)
		},
	}

	container, err := ectoinject.NewDIContainer(diConfig)
	if err != nil {
		return nil, errors.Wrap(err, "create dependency container")
	}

	registrations := []error{
		ectoinject.RegisterInstance[ectologger.Logger](container, a.logger),
		ectoinject.RegisterInstance[merge.Merger](container, a.service),
		ectoinject.RegisterInstance[user.RelatedLister](container, a.service),
		ectoinject.RegisterInstance[user.Resolver](container, a.forwarders),
	}
	if a.lineage != nil {
		registrations = append(registrations, ectoinject.RegisterInstance[user.LineageReader](container, a.lineage))
	}
	for _, err := range registrations {
		if err != nil {
			return nil, errors.Wrap(err, "register dependency")
		}
	}
	return container, nil
}

// withApp loads config, starts the app, runs fn and stops the app again.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	logger, sync, err := newLogger(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return err
	}
	defer sync()

	a := newApp(cfg, logger)
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background())
		return errors.Wrap(err, "start")
	}
	defer func() {
		if err := a.Stop(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to stop cleanly")
		}
	}()

	return fn(ctx, a)
}
