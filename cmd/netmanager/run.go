package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dcrodman/netmanager/internal/api"
	"github.com/dcrodman/netmanager/internal/core"
	"github.com/dcrodman/netmanager/internal/core/data"
	"github.com/dcrodman/netmanager/internal/core/debug"
	"github.com/dcrodman/netmanager/internal/metrics"
	"github.com/dcrodman/netmanager/internal/session"
	"github.com/dcrodman/netmanager/internal/transport"
	"github.com/dcrodman/netmanager/internal/transport/tcp"
	"github.com/dcrodman/netmanager/internal/transport/websocket"
	"github.com/dcrodman/netmanager/internal/world/headless"
)

type runMode int

const (
	modeServer runMode = iota
	modeClient
	modeHost
)

func run(mode runMode) error {
	// Held until every deferred cleanup below has run.
	var wg sync.WaitGroup
	wg.Add(1)
	defer wg.Done()

	cfg, err := core.LoadConfig(ConfigFlag)
	if err != nil {
		return err
	}
	if AddressFlag != "" {
		cfg.NetworkAddress = AddressFlag
	}
	fmt.Println("using configuration directory:", ConfigFlag)

	// Change to the same directory as the config file so that any relative
	// paths in the config file will resolve.
	if err := os.Chdir(filepath.Clean(ConfigFlag)); err != nil {
		return fmt.Errorf("error changing to config directory: %w", err)
	}

	logger, err := core.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}

	opts := session.Options{
		Config:   cfg,
		Logger:   logger,
		Loader:   headless.NewLoader(cfg.Scenes.OfflineScene, cfg.Scenes.LoadDelay),
		Registry: headless.NewRegistry(logger),
		Metrics:  metrics.NewMetrics(prometheus.DefaultRegisterer),
	}
	opts.ServerTransport, opts.ClientTransport = newTransports(cfg, logger)

	if cfg.Debugging.Enabled {
		debug.StartUtilities(logger, cfg.Debugging.PprofPort)
		if cfg.Debugging.PacketLoggingEnabled {
			opts.Tracer = &debug.FrameLogger{Logger: logger}
		}
	}

	var journal *data.Journal
	if cfg.Database.Engine != "" {
		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := data.Close(db); err != nil {
				logger.Warnf("error closing database: %v", err)
			}
		}()
		journal = data.NewJournal(db, logger)
		defer journal.Close()
		opts.Journal = journal
	}

	s, err := session.New(opts)
	if err != nil {
		return err
	}

	var apiServer *api.Server
	if cfg.Web.HTTPPort > 0 {
		apiServer = api.NewServer(s, prometheus.DefaultGatherer, logger)
		apiServer.Start(cfg.Web.HTTPPort)
	}

	switch mode {
	case modeServer:
		err = s.StartServer()
	case modeClient:
		err = s.StartClient()
	case modeHost:
		err = s.StartHost()
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Register a SIGTERM handler so that Ctrl-C will shut the session down gracefully.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go exitHandler(cancel, c, &wg)

	tick(ctx, s, cfg.TickInterval(), logger)
	s.Shutdown()
	if apiServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("error shutting down status API: %v", err)
		}
	}
	logger.Info("shut down")
	return nil
}

// tick drives the session at a fixed rate until ctx is cancelled or the
// session drops back to idle (for example when a client loses its server).
func tick(ctx context.Context, s *session.Session, interval time.Duration, logger logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Update()
			if s.Mode() == session.Idle {
				logger.Info("session is no longer active")
				return
			}
		}
	}
}

func newTransports(cfg *core.Config, logger logrus.FieldLogger) (transport.Server, transport.Client) {
	if cfg.UseWebSockets {
		return websocket.NewServer(logger), websocket.NewClient(logger)
	}
	return tcp.NewServer(logger), tcp.NewClient(logger)
}

func openDatabase(cfg *core.Config) (*gorm.DB, error) {
	dataSource := cfg.DatabaseURL()
	if cfg.Database.Engine == "sqlite" {
		dataSource = cfg.Database.Filename
	}
	return data.Open(cfg.Database.Engine, dataSource, cfg.Debugging.DatabaseLoggingEnabled)
}

func exitHandler(cancelFn func(), c chan os.Signal, wg ...*sync.WaitGroup) {
	<-c
	fmt.Println("waiting to shut down gracefully...")

	cancelFn()
	exitChan := make(chan bool)
	go func() {
		for _, wg := range wg {
			wg.Wait()
		}
		exitChan <- true
	}()

	select {
	case <-c:
		fmt.Println("hard exiting (killed)")
	case <-exitChan:
	}

	os.Exit(0)
}
