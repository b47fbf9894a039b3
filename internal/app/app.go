package app

import (
	"context"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/netpulse/netpulse/config"
	"github.com/netpulse/netpulse/internal/api"
	"github.com/netpulse/netpulse/internal/catalog"
	"github.com/netpulse/netpulse/internal/collector"
	"github.com/netpulse/netpulse/internal/events"
	"github.com/netpulse/netpulse/internal/health"
	"github.com/netpulse/netpulse/internal/ingest"
	"github.com/netpulse/netpulse/internal/query"
	"github.com/netpulse/netpulse/internal/rollup"
	"github.com/netpulse/netpulse/internal/sampler"
	"github.com/netpulse/netpulse/internal/store"
	"github.com/netpulse/netpulse/internal/webserver"
	"github.com/netpulse/netpulse/pkg/common"
	"github.com/netpulse/netpulse/pkg/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Application is the supervisor. It owns every long-lived task and is
// passed by reference to the HTTP handlers; there is no process-global
// daemon handle.
type Application struct {
	appConfig     *config.AppConfig
	dataStore     *store.Store
	sched         *cron.Cron
	bus           EventBus.Bus
	configManager *ConfigManager
	logLevel      zap.AtomicLevel

	appCatalog    *catalog.AppCatalog
	domainCatalog *catalog.DomainCatalog
	collector     *collector.Collector
	aggregator    *rollup.Aggregator
	retention     *rollup.Retention
	queryEngine   *query.Engine
	ingestService *ingest.Service
	healthTracker *health.Tracker
	hub           *webserver.Hub
	web           *webserver.WebServer
}

var (
	_ StoreProvider    = (*Application)(nil)
	_ ConfigProvider   = (*Application)(nil)
	_ SettingsProvider = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig { return a.appConfig }
func (a *Application) Store() *store.Store       { return a.dataStore }
func (a *Application) ConfigMgr() *ConfigManager { return a.configManager }
func (a *Application) Query() *query.Engine      { return a.queryEngine }
func (a *Application) Health() *health.Tracker   { return a.healthTracker }

// Init wires the whole daemon: logger, store, catalogs, periodic
// tasks, and the HTTP surface. Fatal errors abort startup.
func (a *Application) Init(ctx context.Context) error {
	cfg := a.appConfig

	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	a.initLogger()

	if err := os.MkdirAll(cfg.LogDir(), 0o700); err != nil {
		return common.FatalError(err, "create log directory")
	}
	if err := metrics.InitMetrics(cfg.MetricsDir()); err != nil {
		zap.S().Warn("failed to initialize metrics:", err)
	}

	a.dataStore, err = store.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	zap.L().Info("store opened",
		zap.String("path", cfg.DBPath()),
		zap.Int("schema_version", a.dataStore.SchemaVersion()))

	a.configManager = NewConfigManager(store.NewConfigRepository(a.dataStore))
	if err := a.configManager.Load(ctx); err != nil {
		return common.FatalError(err, "load runtime settings")
	}
	a.applyLogLevel()

	a.bus = EventBus.New()
	a.healthTracker = health.NewTracker()
	if err := a.healthTracker.Subscribe(a.bus); err != nil {
		return common.FatalError(err, "subscribe health tracker")
	}

	appRepo := store.NewAppRepository(a.dataStore)
	domainRepo := store.NewDomainRepository(a.dataStore)
	sampleRepo := store.NewSampleRepository(a.dataStore)
	aggRepo := store.NewAggregateRepository(a.dataStore)
	logRepo := store.NewRetentionLogRepository(a.dataStore)

	a.appCatalog = catalog.NewAppCatalog(appRepo, nil)
	a.domainCatalog = catalog.NewDomainCatalog(domainRepo, nil)

	source := sampler.NewSystemSampler(
		time.Duration(cfg.Sampler.TimeoutSeconds)*time.Second, nil)
	a.collector = collector.New(source, a.appCatalog, sampleRepo, a.bus, nil,
		a.configManager.SamplingInterval)

	a.aggregator = rollup.NewAggregator(aggRepo, logRepo, nil)
	a.retention = rollup.NewRetention(aggRepo, logRepo, a.configManager.RetentionPolicy, nil)

	a.queryEngine = query.NewEngine(appRepo, domainRepo, sampleRepo, aggRepo,
		store.NewSummaryRepository(a.dataStore), a.configManager.Tunables, nil)
	a.ingestService = ingest.NewService(a.domainCatalog, a.appCatalog, sampleRepo, nil)

	a.hub = NewLiveStatsHub(a.bus, a.queryEngine)
	a.web = webserver.New(cfg.Server.Host, a.configManager.GetInt(KeyServerPort))
	handler := &api.Handler{
		Query:    a.queryEngine,
		Ingest:   a.ingestService,
		Settings: &settingsFacade{app: a},
		Health:   a.healthTracker,
		Hub:      a.hub,
	}
	handler.Register(a.web)

	a.initJob()
	return nil
}

// initLogger installs the process-global zap logger: JSON to a rotated
// file teed with a console encoder, per the configured mode.
func (a *Application) initLogger() {
	cfg := a.appConfig

	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	a.logLevel = zapConfig.Level

	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}
		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}
	zap.ReplaceGlobals(logger)
}

func (a *Application) applyLogLevel() {
	level := a.configManager.GetString(KeyLogLevel)
	if a.appConfig.Logger.Level != "" && level == "" {
		level = a.appConfig.Logger.Level
	}
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(level)); err == nil {
		a.logLevel.SetLevel(zl)
	}
}

// Run starts every task and blocks until ctx is cancelled and all
// tasks have drained; the wait is bounded before the store closes
// regardless.
func (a *Application) Run(ctx context.Context) error {
	a.sched.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.collector.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return a.web.Start(gctx)
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		select {
		case err = <-done:
		case <-time.After(5 * time.Second):
			zap.L().Warn("tasks did not drain before deadline, closing store")
		}
	}
	a.Release()
	return err
}

// Release stops the scheduler and closes every resource. Committed work
// is durable through the store's write-ahead log.
func (a *Application) Release() {
	if a.sched != nil {
		schedCtx := a.sched.Stop()
		select {
		case <-schedCtx.Done():
		case <-time.After(5 * time.Second):
			zap.L().Warn("scheduler jobs did not finish before deadline")
		}
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.dataStore != nil {
		if err := a.dataStore.Close(); err != nil {
			zap.L().Error("failed to close store", zap.Error(err))
		}
	}
	_ = metrics.Close()
	_ = zap.L().Sync()
}

// settingsFacade adapts the config manager for the HTTP handlers and
// re-applies the log level after writes.
type settingsFacade struct {
	app *Application
}

func (f *settingsFacade) All(ctx context.Context) (map[string]string, error) {
	return f.app.configManager.All(ctx)
}

func (f *settingsFacade) Set(ctx context.Context, key, value string) error {
	if err := f.app.configManager.Set(ctx, key, value); err != nil {
		return err
	}
	f.app.applyLogLevel()
	return nil
}

func (f *settingsFacade) Reload(ctx context.Context) error {
	if err := f.app.configManager.Reload(ctx); err != nil {
		return err
	}
	f.app.applyLogLevel()
	return nil
}

func (f *settingsFacade) GetString(key string) string {
	return f.app.configManager.GetString(key)
}

// NewLiveStatsHub builds the websocket hub and feeds it one bandwidth
// point after every sampler tick.
func NewLiveStatsHub(bus EventBus.Bus, engine *query.Engine) *webserver.Hub {
	hub := webserver.NewHub()
	_ = bus.Subscribe(events.TopicSamplerTick, func(s events.TickStats) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		stat, err := engine.Bandwidth(ctx)
		if err != nil {
			return
		}
		hub.Broadcast(map[string]interface{}{
			"timestamp":        s.At,
			"apps":             s.Apps,
			"bytes_per_second": stat.BytesPerSecond,
			"window_seconds":   stat.WindowSeconds,
		})
	})
	return hub
}
