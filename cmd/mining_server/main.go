package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ktgames/mining/internal/actor"
	"github.com/ktgames/mining/internal/api"
	"github.com/ktgames/mining/internal/clock"
	"github.com/ktgames/mining/internal/config"
	"github.com/ktgames/mining/internal/database"
	"github.com/ktgames/mining/internal/datatable"
	"github.com/ktgames/mining/internal/dispatcher"
	"github.com/ktgames/mining/internal/influx"
	"github.com/ktgames/mining/internal/interaction"
	"github.com/ktgames/mining/internal/lifecycle"
	"github.com/ktgames/mining/internal/logging"
	"github.com/ktgames/mining/internal/monitor"
	intOtel "github.com/ktgames/mining/internal/otel"
	"github.com/ktgames/mining/internal/parser"
	"github.com/ktgames/mining/internal/scheduler"
	"github.com/ktgames/mining/internal/selector"
	"github.com/ktgames/mining/internal/session"
	"github.com/ktgames/mining/internal/storage"
	"github.com/ktgames/mining/internal/worker"
	"github.com/ktgames/mining/internal/world"
	"github.com/ktgames/mining/pkg/core"
	"github.com/ktgames/mining/pkg/gameinterface"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"golang.org/x/sync/errgroup"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentExtensionVersion string = "0.0.1"
	BuildDate               string = "unknown"

	ExtensionName string = "mining_server"
)

// file paths
var (
	// HomeDir holds the config file, logs and exports. MINING_HOME overrides
	// the working directory.
	HomeDir string

	LogFilePath string
	LogFile     *os.File

	SessionStartTime time.Time = time.Now()
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger is used by the database, influx and dispatcher plumbing
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// DBManager is set when tables are read from a database
	DBManager *database.Manager

	sessionCtx = session.NewContext()

	// Services
	storageBackend  storage.Backend
	orchestrator    *lifecycle.Orchestrator
	workerManager   *worker.Manager
	monitorService  *monitor.Service
	eventDispatcher *dispatcher.Dispatcher
	gameServer      *gameinterface.Server
	sched           *scheduler.Scheduler

	uploads sync.WaitGroup
)

func resolveHomeDir() string {
	if dir := os.Getenv("MINING_HOME"); dir != "" {
		return dir
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

// resolvePath makes relative config paths relative to HomeDir.
func resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(HomeDir, p)
}

// setupLogging loads the config and opens the log file. Console output is
// never used while serving because stdout carries replies to the game.
func setupLogging() error {
	HomeDir = resolveHomeDir()

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, "info", nil, nil)
	Logger = SlogManager.Logger()

	if err := config.Load(HomeDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	logsDir := resolvePath(viper.GetString("logsDir"))
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}

	LogFilePath = logging.LogFilePath(logsDir, ExtensionName, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		os.Rename(LogFilePath, LogFilePath+".old")
	}

	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to create/open log file %s: %w", LogFilePath, err)
	}

	var gelf io.Writer
	if viper.GetBool("graylog.enabled") {
		gelf, err = logging.NewGraylogWriter(viper.GetString("graylog.address"), ExtensionName)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
			gelf = nil
		}
	}

	setupTelemetry()

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	level := viper.GetString("logLevel")
	SlogManager.Setup(LogFile, level, otelLogProvider, gelf)
	SlogManager.SetContextProvider(logContext)
	Logger = SlogManager.Logger()
	ZLogger = logging.NewZerolog(LogFile, level, gelf)

	Logger.Info("Logging to file", "path", LogFilePath)
	return nil
}

func setupTelemetry() {
	otelCfg := config.GetOTelConfig()
	if !otelCfg.Enabled {
		return
	}

	var err error
	OTelProvider, err = intOtel.New(intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		ServiceVersion: CurrentExtensionVersion,
		BatchTimeout:   otelCfg.BatchTimeout,
		LogWriter:      LogFile,
		MetricWriter:   LogFile,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
	})
	if err != nil {
		Logger.Error("Failed to initialize OTel provider", "error", err)
		OTelProvider = nil
		return
	}
	if otelCfg.Endpoint != "" {
		Logger.Info("OTel provider initialized", "file", LogFilePath, "endpoint", otelCfg.Endpoint)
	} else {
		Logger.Info("OTel provider initialized", "file", LogFilePath)
	}
}

// logContext adds the live session and spot counts to every log record.
func logContext() []slog.Attr {
	attrs := logging.SessionAttrs(sessionCtx.Get())
	if orchestrator != nil {
		snap := orchestrator.Snapshot()
		attrs = append(attrs,
			slog.Int("spotsActive", snap.Active),
			slog.Int("spotsConverting", snap.Converting))
	}
	return attrs
}

func initStorage() (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()
	storageCfg.Memory.OutputDir = resolvePath(storageCfg.Memory.OutputDir)
	storageCfg.SQLite.DumpPath = resolvePath(storageCfg.SQLite.DumpPath)

	backend, err := storage.NewBackend(storageCfg, Logger)
	if err != nil {
		return nil, err
	}

	if viper.GetBool("influx.enabled") {
		backupPath := filepath.Join(HomeDir, fmt.Sprintf("%s_%s.influx.gz", ExtensionName, SessionStartTime.Format("20060102_150405")))
		backend = storage.NewMulti(backend, influx.NewManager(ZLogger, backupPath))
	}

	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to init storage %s: %w", storageCfg.Type, err)
	}
	Logger.Info("Storage backend initialized", "type", storageCfg.Type, "influx", viper.GetBool("influx.enabled"))
	return backend, nil
}

func initTables() (datatable.Tables, error) {
	if strings.EqualFold(viper.GetString("tablesSource"), "db") {
		DBManager = database.NewManager(ZLogger)
		if err := DBManager.Connect(); err != nil {
			return nil, err
		}
		if err := DBManager.Setup(); err != nil {
			return nil, err
		}
		Logger.Info("Reading tables from database", "dialect", DBManager.DB.Dialector.Name())
		return datatable.NewDBSource(DBManager.DB), nil
	}

	path := resolvePath(viper.GetString("tablesFile"))
	src, err := datatable.OpenFile(path)
	if err != nil {
		return nil, err
	}
	Logger.Info("Reading tables from file", "path", path)
	return src, nil
}

// lifecycleConfig maps the mining config section onto lifecycle tuning.
func lifecycleConfig(m config.MiningConfig, log *slog.Logger) lifecycle.Config {
	cfg := lifecycle.DefaultConfig()
	cfg.UseChaos = m.UseChaos
	cfg.Threshold = m.DepletionThreshold
	cfg.RespawnDelay = m.RespawnDelay
	cfg.CrumbleDelay = m.CrumbleDelay
	cfg.DepleteDelay = m.DepleteDelay
	cfg.AnchorOffset = m.AnchorOffset
	cfg.AnchorFieldClass = m.AnchorFieldClass
	cfg.TransformTolerance = m.TransformTolerance
	cfg.RadialDamage = m.RadialDamage
	cfg.DamageRadius = m.DamageRadius

	if t, err := core.ParseMineralType(m.FallbackType); err == nil {
		cfg.FallbackType = t
	} else if m.FallbackType != "" {
		log.Warn("Unknown fallback mineral type, using default", "type", m.FallbackType, "default", cfg.FallbackType)
	}

	cfg.Actor = actor.Config{
		Threshold:       m.DepletionThreshold,
		ImpactForce:     m.ImpactForce,
		ImpulseStrength: m.ImpulseStrength,
		ImpulseRadius:   m.ImpulseRadius,
		ScaleStep:       m.ScaleStep,
		ScaleInterval:   m.ScaleInterval,
		MinScale:        m.MinScale,
	}
	return cfg
}

func sessionDefaults() session.Options {
	return session.Options{
		WorldName:        viper.GetString("worldName"),
		Seed:             viper.GetInt64("mining.seed"),
		UseChaos:         viper.GetBool("mining.useChaos"),
		ExtensionVersion: CurrentExtensionVersion,
		Tag:              viper.GetString("defaultTag"),
	}
}

func registerLifecycleHandlers(d *dispatcher.Dispatcher) {
	d.Register(":INIT:", func(e dispatcher.Event) (any, error) {
		go func() {
			gameServer.Callback(":EXT:READY:")
			gameServer.Callback(":VERSION:", CurrentExtensionVersion)
		}()
		return "ok", nil
	})

	d.Register(":VERSION:", func(e dispatcher.Event) (any, error) {
		return []string{CurrentExtensionVersion, BuildDate}, nil
	})

	d.Register(":GETDIR:HOME:", func(e dispatcher.Event) (any, error) {
		return HomeDir, nil
	})

	d.Register(":GETDIR:LOG:", func(e dispatcher.Event) (any, error) {
		return LogFilePath, nil
	})

	d.Register(":SAVE:", func(e dispatcher.Event) (any, error) {
		Logger.Info("Received :SAVE: command, ending session")
		if err := workerManager.EndSession(); err != nil && !errors.Is(err, worker.ErrNoActiveSession) {
			return nil, err
		}
		flushTelemetry()
		return "ok", nil
	}, dispatcher.Logged())
}

func flushTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if OTelProvider != nil {
		if err := OTelProvider.Flush(ctx); err != nil {
			Logger.Warn("Failed to flush OTel data", "error", err)
		}
	}
}

// uploadSession sends every exported report of the ended session to the
// web frontend.
func uploadSession(s core.Session) {
	if viper.GetString("api.apiKey") == "" {
		return
	}

	backends := []storage.Backend{storageBackend}
	if multi, ok := storageBackend.(*storage.Multi); ok {
		backends = multi.Backends()
	}

	client := api.New(viper.GetString("api.serverUrl"), viper.GetString("api.apiKey"))
	for _, b := range backends {
		u, ok := b.(storage.Uploadable)
		if !ok || u.GetExportedFilePath() == "" {
			continue
		}
		path, meta := u.GetExportedFilePath(), u.GetExportMetadata()

		uploads.Add(1)
		go func() {
			defer uploads.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := client.Upload(ctx, path, meta); err != nil {
				Logger.Error("Failed to upload session report", "path", path, "session", s.UUID, "error", err)
				return
			}
			Logger.Info("Uploaded session report", "path", path, "session", s.UUID)
		}()
	}
}

func checkServerStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := api.New(viper.GetString("api.serverUrl"), viper.GetString("api.apiKey"))
	if err := client.Healthcheck(ctx); err != nil {
		Logger.Info("Web frontend is offline", "error", err)
	} else {
		Logger.Info("Web frontend is online")
	}
}

// startServices builds everything the command loop needs, in dependency order.
func startServices() error {
	var err error

	storageBackend, err = initStorage()
	if err != nil {
		return err
	}

	tables, err := initTables()
	if err != nil {
		Logger.Error("Failed to open tables, mining disabled", "error", err)
	}

	mining := config.Mining()
	clk := clock.System{}
	sched = scheduler.New(clk)
	w := world.New(world.Config{Tolerance: mining.TransformTolerance}, Logger)

	deps := lifecycle.Dependencies{
		Spawner:  w,
		Physics:  w,
		Timers:   sched,
		Tables:   tables,
		Recorder: storageBackend,
		Seeds:    selector.NewSeedSource(mining.Seed),
		Logger:   Logger,
	}
	orchestrator, err = lifecycle.New(lifecycleConfig(mining, Logger), deps)
	if err != nil {
		return fmt.Errorf("failed to create lifecycle: %w", err)
	}

	tracer := interaction.New(w, clk, mining.TraceLength, mining.SphereRadius)
	tracer.OnMeshHit(func(ev core.InstanceHitEvent) {
		if err := orchestrator.HandleInstanceHit(ev); err != nil {
			Logger.Warn("Instance hit not converted", "instance", ev.Instance, "error", err)
		}
	})
	tracer.OnHitResults(func(ev core.HitResultsEvent) {
		if err := orchestrator.HandleHits(ev.Hits); err != nil {
			Logger.Warn("Sweep hits not applied", "hits", len(ev.Hits), "error", err)
		}
	})

	eventDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(ZLogger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	gameServer = gameinterface.NewServer(eventDispatcher, CurrentExtensionVersion, os.Stdout)

	workerManager = worker.NewManager(worker.Dependencies{
		Parser:          parser.NewParser(Logger, clk),
		Lifecycle:       orchestrator,
		Tracer:          tracer,
		SessionContext:  sessionCtx,
		Clock:           clk,
		Logger:          Logger,
		SessionDefaults: sessionDefaults(),
		OnSessionEnd:    uploadSession,
	}, storageBackend)

	registerLifecycleHandlers(eventDispatcher)
	workerManager.RegisterHandlers(eventDispatcher)
	Logger.Info("Command handlers registered", "commands", len(eventDispatcher.Commands()))

	// spot generations recorded by Start belong to this session
	if _, err := workerManager.StartSession(sessionDefaults()); err != nil {
		Logger.Error("Failed to start session", "error", err)
	}
	if err := orchestrator.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle: %w", err)
	}

	monitorService = monitor.NewService(monitor.Dependencies{
		Lifecycle:      orchestrator,
		SessionContext: sessionCtx,
		QueueLengths:   workerManager.QueueLengths,
		StatusPath:     resolvePath(viper.GetString("statusFile")),
		Logger:         Logger,
	})
	if err := monitorService.Start(); err != nil {
		Logger.Error("Failed to start status monitor", "error", err)
	}

	go checkServerStatus()
	return nil
}

func serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tick := config.Mining().TickInterval
	if tick <= 0 {
		tick = 50 * time.Millisecond
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Run(gctx, tick)
		return nil
	})
	g.Go(func() error {
		// end of input stops the service
		defer cancel()
		err := gameServer.Serve(gctx, os.Stdin)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	Logger.Info("Serving commands on stdin", "tick", tick)
	return g.Wait()
}

func shutdown() {
	Logger.Info("Shutting down...")

	// drain queued removals before the lifecycle stops
	if eventDispatcher != nil {
		eventDispatcher.Close()
	}
	if orchestrator != nil {
		orchestrator.Shutdown()
	}
	if workerManager != nil {
		if err := workerManager.EndSession(); err != nil && !errors.Is(err, worker.ErrNoActiveSession) {
			Logger.Error("Failed to end session", "error", err)
		}
	}
	if monitorService != nil {
		monitorService.Stop()
	}
	uploads.Wait()

	if storageBackend != nil {
		if err := storageBackend.Close(); err != nil {
			Logger.Error("Failed to close storage", "error", err)
		}
	}
	if DBManager != nil {
		if err := DBManager.Close(); err != nil {
			Logger.Error("Failed to close database", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		Logger.Warn("Failed to flush logs", "error", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	if LogFile != nil {
		LogFile.Close()
	}
}

func main() {
	if err := setupLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}

	args := os.Args[1:]
	if len(args) > 0 {
		if err := runCommand(args); err != nil {
			Logger.Error("Command failed", "command", args[0], "error", err)
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	Logger.Info("Starting up...", "version", CurrentExtensionVersion, "build", BuildDate)
	if err := startServices(); err != nil {
		Logger.Error("Failed to start services", "error", err)
		shutdown()
		os.Exit(1)
	}

	if err := serve(); err != nil {
		Logger.Error("Command loop failed", "error", err)
	}
	shutdown()
}
