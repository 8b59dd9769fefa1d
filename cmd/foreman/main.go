// Command foreman is the host extension library. Build with
// -buildmode=c-shared; the host loads it and talks to it through the
// exported RVExtension functions.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/wytcherly/foreman/internal/api"
	"github.com/wytcherly/foreman/internal/brain"
	"github.com/wytcherly/foreman/internal/cache"
	"github.com/wytcherly/foreman/internal/cogmap"
	"github.com/wytcherly/foreman/internal/config"
	"github.com/wytcherly/foreman/internal/dispatcher"
	"github.com/wytcherly/foreman/internal/foreman"
	"github.com/wytcherly/foreman/internal/handlers"
	"github.com/wytcherly/foreman/internal/influx"
	"github.com/wytcherly/foreman/internal/llm"
	"github.com/wytcherly/foreman/internal/logging"
	"github.com/wytcherly/foreman/internal/monitor"
	intOtel "github.com/wytcherly/foreman/internal/otel"
	"github.com/wytcherly/foreman/internal/parser"
	"github.com/wytcherly/foreman/internal/registry"
	"github.com/wytcherly/foreman/internal/storage"
	"github.com/wytcherly/foreman/internal/worker"
	"github.com/wytcherly/foreman/pkg/core"
	"github.com/wytcherly/foreman/pkg/hostapi"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentExtensionVersion = "0.1.0"
	BuildDate               = "unknown"

	ExtensionName = "foreman"
	ForemanID     = "foreman"
)

// file paths
var (
	// ModulePath is the absolute path to this library file.
	ModulePath string
	// ModuleFolder holds the config file; relative paths in config resolve against it.
	ModuleFolder string

	LogFilePath string
	LogFile     *os.File
)

// global variables
var (
	SlogManager  *logging.SlogManager
	Logger       *slog.Logger
	OTelProvider *intOtel.Provider
	Influx       *influx.Manager

	SessionStartTime = time.Now()

	eventDispatcher *dispatcher.Dispatcher
	handlerService  *handlers.Service
	workerManager   *worker.Manager
	monitorService  *monitor.Service
	recorder        *handlers.Recorder
	loop            *foreman.Loop
	visionBrain     *brain.Brain
	storageBackend  storage.Backend
	uploader        *api.Client
)

// init is run automatically when the library is loaded
func init() {
	ModulePath = modulePath()
	ModuleFolder = filepath.Dir(ModulePath)
	if ModulePath == "" {
		ModuleFolder, _ = os.Getwd()
	}

	// config first so the log level is known
	configErr := config.Load(ModuleFolder)
	if configErr != nil {
		config.LoadDefaults()
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.SetContextProvider(func() []slog.Attr {
		if handlerService == nil {
			return nil
		}
		return handlerService.SessionAttrs()
	})
	setupLogging()
	if configErr != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		Logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}

	zlog := logging.NewConsoleLogger(logWriter(), viper.GetString("logLevel"))
	setupOTel()

	if err := setupServices(zlog); err != nil {
		Logger.Error("Failed to set up services!", "error", err)
		panic(err)
	}

	hostapi.Default.SetVersion(CurrentExtensionVersion)
	hostapi.Default.SetLogger(Logger)
	hostapi.Default.SetDispatcher(eventDispatcher)

	config.Watch(onConfigChange)

	go startGoroutines()
}

func resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ModuleFolder, path)
}

func logWriter() io.Writer {
	if LogFile != nil {
		return LogFile
	}
	return os.Stdout
}

func setupLogging() {
	f, path, err := logging.OpenLogFile(resolve(viper.GetString("logsDir")), ExtensionName, SessionStartTime)
	LogFilePath = path
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
	} else {
		LogFile = f
	}

	graylogAddr := ""
	if viper.GetBool("graylog.enabled") {
		graylogAddr = viper.GetString("graylog.address")
	}
	var file io.Writer
	if LogFile != nil {
		file = LogFile
	}
	if err := SlogManager.Setup(file, viper.GetString("logLevel"), graylogAddr); err != nil {
		SlogManager.Logger().Warn("Graylog shipping disabled", "error", err)
	}
	Logger = SlogManager.Logger()
	Logger.Info("Begin logging", "path", LogFilePath, "version", CurrentExtensionVersion, "build", BuildDate)
}

func setupOTel() {
	otelCfg := config.GetOTelConfig()
	var w io.Writer = os.Stdout
	if otelCfg.MetricsFile != "" {
		f, err := os.OpenFile(resolve(otelCfg.MetricsFile), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			Logger.Error("Failed to open metrics file", "error", err)
		} else {
			w = f
		}
	}

	p, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		Version:      CurrentExtensionVersion,
		Interval:     otelCfg.Interval,
		MetricWriter: w,
	})
	if err != nil {
		Logger.Error("Failed to initialize OTel provider", "error", err)
		return
	}
	OTelProvider = p
	if p.Enabled() {
		Logger.Info("OTel provider initialized", "interval", otelCfg.Interval)
	}
}

// setupServices builds every component and registers its commands.
func setupServices(zlog zerolog.Logger) error {
	d, err := dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	eventDispatcher = d

	Influx = influx.NewManager(zlog, filepath.Join(resolve(viper.GetString("logsDir")), "influx_backup.log.gz"))
	var points handlers.PointWriter
	var metrics worker.PointWriter
	if viper.GetBool("influx.enabled") {
		points, metrics = Influx, Influx
	}
	recorder = handlers.NewRecorder(points, SlogManager.WriteLog)

	reg := registry.NewMemory()
	perception := cache.NewPerceptionCache()
	body := hostapi.NewBody(hostapi.Default)
	commander := hostapi.NewCommander(hostapi.Default)
	p := parser.NewParser(Logger)

	brainCfg := config.GetBrainConfig()
	cogmapPath := brainCfg.CogmapPath
	if cogmapPath == "" {
		cogmapPath = cogmap.DefaultPath(ModuleFolder)
	}
	cogmapWriter := cogmap.NewWriter(resolve(cogmapPath))

	var scanner foreman.Scanner = commander
	if brainCfg.Enabled {
		cfg, err := brainConfig(brainCfg)
		if err != nil {
			return err
		}
		visionBrain, err = brain.New(cfg, brain.Dependencies{
			ID:         ForemanID,
			Body:       body,
			Capturer:   body,
			Decider:    llm.New(brainCfg.URL, llmOptions(brainCfg)...),
			Perception: perception,
			Recorder:   recorder,
			Map:        cogmapWriter,
			Logger:     Logger.With("component", "brain"),
		})
		if err != nil {
			return fmt.Errorf("failed to create vision brain: %w", err)
		}
		scanner = visionBrain
	}

	loop, err = foreman.NewLoop(loopConfig(config.GetForemanConfig()), foreman.Dependencies{
		ID:         ForemanID,
		Registry:   reg,
		Commander:  commander,
		Presenter:  commander,
		Scanner:    scanner,
		Recorder:   recorder,
		Perception: perception,
		Logger:     Logger.With("component", "foreman"),
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatch loop: %w", err)
	}

	handlerService = handlers.NewService(handlers.Dependencies{
		LogManager:       SlogManager,
		Parser:           p,
		Registry:         reg,
		Perception:       perception,
		Loop:             loop,
		Body:             body,
		Recorder:         recorder,
		Cogmap:           cogmapWriter,
		Condition:        config.GetConditionConfig(),
		ExtensionVersion: CurrentExtensionVersion,
		Brain:            visionBrain,
		OnSessionEnd:     onSessionEnd,
	})
	handlerService.RegisterHandlers(d)

	workerManager = worker.NewManager(worker.Dependencies{
		LogManager: SlogManager,
		Parser:     p,
		Perception: perception,
		Cogmap:     cogmapWriter,
		Metrics:    metrics,
	})
	workerManager.RegisterHandlers(d)

	d.Register(":EXT:SHUTDOWN:", func(dispatcher.Event) (any, error) {
		go shutdown()
		return "shutting down", nil
	})

	if up := config.GetUploadConfig(); up.Enabled {
		uploader = api.New(up.URL, up.Secret)
	}

	d.Register(":MONITOR:STATUS:", func(dispatcher.Event) (any, error) {
		if monitorService == nil {
			return nil, fmt.Errorf("monitor not started")
		}
		lines, _ := monitorService.GetProgramStatus()
		return lines[1], nil
	})
	return nil
}

// startGoroutines connects the slow external services off the load path.
func startGoroutines() {
	backend, err := storage.NewBackend(config.GetStorageConfig(), SlogManager)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		notifyHost(":STORAGE:ERROR:", err.Error())
	} else if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err)
		notifyHost(":STORAGE:ERROR:", err.Error())
	} else {
		storageBackend = backend
		handlerService.SetBackend(backend)
		Logger.Info("Storage backend initialized", "type", viper.GetString("storage.type"))
		notifyHost(":STORAGE:OK:", viper.GetString("storage.type"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Influx.Connect(ctx); err != nil {
		Logger.Info("InfluxDB not connected", "reason", err)
	}

	if uploader != nil {
		if err := uploader.Healthcheck(ctx); err != nil {
			Logger.Warn("Session viewer not reachable, uploads may fail", "error", err)
		}
	}

	monitorService = monitor.NewService(monitor.Dependencies{
		LogManager:    SlogManager,
		Backend:       storageBackend,
		Loop:          loop,
		Buffers:       eventDispatcher.BufferLengths,
		SessionActive: handlerService.SessionActive,
		OutputDir:     resolve(viper.GetString("logsDir")),
	})
	if err := monitorService.Start(); err != nil {
		Logger.Error("Failed to start status monitor", "error", err)
	}

	notifyHost(":EXT:READY:", CurrentExtensionVersion)
}

func notifyHost(function, data string) {
	if err := hostapi.Default.Call(function, data); err != nil {
		Logger.Debug("Host notification dropped", "function", function, "error", err)
	}
}

// onSessionEnd flushes metrics and ships the export to the session viewer.
func onSessionEnd(sess core.Session, exportPath string) {
	flushMetrics()
	if uploader == nil || exportPath == "" {
		return
	}
	meta := api.SessionMetadata{
		SessionID:   sess.ID,
		SessionName: sess.Name,
		Duration:    time.Since(sess.StartTime).Seconds(),
		Tag:         config.GetUploadConfig().Tag,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := uploader.Upload(ctx, exportPath, meta); err != nil {
			Logger.Error("Failed to upload session export", "path", exportPath, "error", err)
			notifyHost(":UPLOAD:ERROR:", err.Error())
			return
		}
		Logger.Info("Uploaded session export", "path", exportPath)
		notifyHost(":UPLOAD:OK:", filepath.Base(exportPath))
	}()
}

func flushMetrics() {
	if OTelProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := OTelProvider.Flush(ctx); err != nil {
		Logger.Warn("Failed to flush metrics", "error", err)
	}
}

type shutdownStep struct {
	name string
	run  func() error
}

// shutdownSteps lists what shutdown stops, in order. The brain goes first
// so no late decision reaches a closed backend.
func shutdownSteps() []shutdownStep {
	return []shutdownStep{
		{"brain", func() error {
			if visionBrain != nil {
				visionBrain.Close()
			}
			return nil
		}},
		{"monitor", func() error {
			if monitorService != nil {
				monitorService.Stop()
			}
			return nil
		}},
		{"loop", func() error {
			if loop != nil {
				loop.Abort(core.AbortForemanOrder)
			}
			return nil
		}},
		{"dispatcher", func() error {
			if eventDispatcher != nil {
				eventDispatcher.Close()
			}
			return nil
		}},
		{"storage", func() error {
			if storageBackend == nil {
				return nil
			}
			return storageBackend.Close()
		}},
		{"influx", func() error {
			if Influx == nil {
				return nil
			}
			return Influx.Close()
		}},
		{"metrics", func() error {
			if OTelProvider == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return OTelProvider.Shutdown(ctx)
		}},
	}
}

// shutdown drains the buffered commands and closes every connection. The
// host sends :EXT:SHUTDOWN: before unloading the library.
func shutdown() {
	Logger.Info("Shutting down")
	for _, step := range shutdownSteps() {
		if err := step.run(); err != nil {
			Logger.Error("Shutdown step failed", "step", step.name, "error", err)
		}
	}
	Logger.Info("Shutdown complete")
	_ = SlogManager.Close()
	if LogFile != nil {
		_ = LogFile.Close()
	}
}

// onConfigChange re-applies the settings that are safe to change live.
func onConfigChange(e fsnotify.Event) {
	SlogManager.SetLevel(viper.GetString("logLevel"))
	if loop != nil {
		loop.SetConfig(loopConfig(config.GetForemanConfig()))
	}
	Logger.Info("Config reloaded", "file", e.Name, "logLevel", viper.GetString("logLevel"))
}

func main() {}
