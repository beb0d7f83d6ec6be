package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opencpx/cpx/internal/logger"
	"github.com/opencpx/cpx/internal/telemetry"
	"github.com/opencpx/cpx/internal/web/handlers"
	"github.com/opencpx/cpx/pkg/agent"
	"github.com/opencpx/cpx/pkg/apiclient"
	"github.com/opencpx/cpx/pkg/cdr"
	"github.com/opencpx/cpx/pkg/channel"
	"github.com/opencpx/cpx/pkg/channel/endpoint"
	"github.com/opencpx/cpx/pkg/cluster"
	"github.com/opencpx/cpx/pkg/config"
	"github.com/opencpx/cpx/pkg/event"
	"github.com/opencpx/cpx/pkg/keyring"
	"github.com/opencpx/cpx/pkg/metrics"
	prom "github.com/opencpx/cpx/pkg/metrics/prometheus"
	"github.com/opencpx/cpx/pkg/nls"
	"github.com/opencpx/cpx/pkg/queue"
	"github.com/opencpx/cpx/pkg/session"
	"github.com/opencpx/cpx/pkg/store"
	"github.com/opencpx/cpx/pkg/web"
)

var (
	startHost string
	startPort int
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the CPX daemon",
	Long: `Start the CPX daemon with the specified configuration.

The daemon runs in the foreground; use a process supervisor for
daemonization. Use --config to specify a custom configuration file, or it
will use the default location at $XDG_CONFIG_HOME/cpx/config.yaml.

Examples:
  # Start with default config location
  cpxd start

  # Start with custom config file
  cpxd start --config /etc/cpx/config.yaml

  # Start with environment variable overrides
  CPX_LOGGING_LEVEL=DEBUG cpxd start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startHost, "host", "", "Listen address (overrides config)")
	startCmd.Flags().IntVar(&startPort, "port", 0, "Listen port (overrides config)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if startHost != "" {
		cfg.Server.Host = startHost
	}
	if startPort != 0 {
		cfg.Server.Port = startPort
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "cpxd",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "cpxd",
		ServiceVersion: Version,
		Node:           cfg.Cluster.NodeName,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("cpxd starting",
		"version", Version,
		"config", getConfigSource(GetConfigFile()),
		"log_level", cfg.Logging.Level)

	var (
		webMetrics     metrics.WebMetrics
		queueMetrics   metrics.QueueMetrics
		eventMetrics   metrics.EventMetrics
		channelMetrics metrics.ChannelMetrics
		cdrMetrics     metrics.CDRMetrics
	)
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		webMetrics = prom.NewWebMetrics()
		queueMetrics = prom.NewQueueMetrics()
		eventMetrics = prom.NewEventMetrics()
		channelMetrics = prom.NewChannelMetrics()
		cdrMetrics = prom.NewCDRMetrics()
		logger.Info("metrics collection enabled")
	}

	st, err := store.New(&cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("failed to seed store defaults: %w", err)
	}

	keys, err := keyring.Load(cfg.Key.Path)
	if err != nil {
		return fmt.Errorf("failed to load RSA key from %s: %w\n\n"+
			"Generate one with:\n  cpxd config init", cfg.Key.Path, err)
	}

	sessions := session.NewTable(webMetrics)
	events := event.NewManager(eventMetrics)

	var journal cdr.Sink
	if cfg.CDR.Enabled {
		j, err := cdr.OpenJournal(cfg.CDR.Dir)
		if err != nil {
			return fmt.Errorf("failed to open cdr journal: %w", err)
		}
		defer func() { _ = j.Close() }()
		journal = j
		logger.Info("cdr journal open", logger.KeyPath, cfg.CDR.Dir)
	} else {
		journal = cdr.NewMemorySink()
	}
	cdrSub := events.Subscribe()
	defer events.Evict(cdrSub)
	go cdr.Follow(ctx, cdr.WithMetrics(journal, cdrMetrics), cdrSub)

	clus, err := cluster.New(cfg.Cluster)
	if err != nil {
		return fmt.Errorf("failed to join cluster: %w", err)
	}
	logger.Info("cluster joined",
		logger.KeyNode, clus.Self(),
		"members", clus.Members())

	// Node names double as reachable hostnames; every node serves the
	// cluster RPC on the same listener port.
	queues := queue.NewManager(queue.ManagerConfig{
		Elector: clus,
		Store:   st,
		Clients: func(node string) queue.LeaderRPC {
			return apiclient.NewLeaderClient(fmt.Sprintf("http://%s:%d", node, cfg.Server.Port))
		},
		Metrics: queueMetrics,
	})
	if err := queues.LoadPersisted(ctx); err != nil {
		return fmt.Errorf("failed to start persisted queues: %w", err)
	}

	languages, err := nls.New(cfg.NLS.Dir)
	if err != nil {
		return fmt.Errorf("failed to scan language catalog: %w", err)
	}
	if cfg.NLS.Watch {
		if err := languages.Watch(); err != nil {
			logger.Warn("language catalog watch unavailable", logger.Err(err))
		}
	}
	defer func() { _ = languages.Close() }()

	dispatcher := handlers.New(handlers.Config{
		Sessions:       sessions,
		Store:          st,
		Keys:           keys,
		Events:         events,
		Agents:         agent.NewRegistry(),
		Properties:     channel.NewRegistry(),
		Starter:        endpoint.NewLocalStarter(),
		Queues:         queues,
		Languages:      languages,
		Metrics:        webMetrics,
		ChannelMetrics: channelMetrics,
		AgentRoot:      cfg.WWW.AgentRoot,
		ContribRoot:    cfg.WWW.ContribRoot,
		DynamicRoot:    cfg.WWW.DynamicRoot,
		IdleTimeout:    cfg.Session.IdleTimeout,
		PollTimeout:    cfg.Session.PollTimeout,
	})

	srv := web.NewServer(web.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, handlers.NewRouter(dispatcher, cfg.Metrics.Enabled))

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("cpxd is running",
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	var serveErr error
	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
		serveErr = <-serverDone
	case serveErr = <-serverDone:
		signal.Stop(sigChan)
	}

	// listener first, then the queue workers, then cluster departure
	queues.Close()
	if err := clus.Leave(cfg.ShutdownTimeout); err != nil {
		logger.Warn("cluster leave error", logger.Err(err))
	}

	if serveErr != nil {
		logger.Error("server error", logger.Err(serveErr))
		return serveErr
	}
	logger.Info("cpxd stopped gracefully")
	return nil
}
