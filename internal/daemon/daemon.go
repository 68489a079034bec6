// Package daemon runs one RCF session from configuration: it connects,
// binds, starts delivery and forwards frames until it is told to stop, then
// stops, unbinds and releases everything it started.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"firestige.xyz/sle/internal/config"
	"firestige.xyz/sle/internal/core"
	logpkg "firestige.xyz/sle/internal/log"
	"firestige.xyz/sle/internal/metrics"
	"firestige.xyz/sle/internal/rcf"
	"firestige.xyz/sle/internal/sink"
	"firestige.xyz/sle/internal/sle/pdu"
	"firestige.xyz/sle/internal/sle/session"
	"firestige.xyz/sle/pkg/ccsds"
)

// Daemon manages the lifecycle of one RCF session.
type Daemon struct {
	config     *config.Config
	configPath string
	pidFile    string
	logger     *slog.Logger

	// Core components
	session       *session.Session
	service       *rcf.Service
	fanout        *sink.Fanout
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	runErr       chan error
	loopRunning  bool
	loopDone     bool
}

// New loads the configuration and creates a daemon.
func New(configPath, pidFile string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	d := NewWithConfig(cfg, pidFile)
	d.configPath = configPath
	return d, nil
}

// NewWithConfig creates a daemon from an already validated configuration.
func NewWithConfig(cfg *config.Config, pidFile string) *Daemon {
	d := &Daemon{
		config:       cfg,
		pidFile:      pidFile,
		logger:       slog.Default(),
		shutdownChan: make(chan struct{}, 1),
		runErr:       make(chan error, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start initializes logging, sinks and metrics, connects to the provider,
// binds and starts frame delivery.
func (d *Daemon) Start() error {
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	d.logger.Info("starting sle rcf client",
		"config", d.configPath,
		"provider", d.config.Provider.Address,
		"service_instance", d.config.RCF.ServiceInstanceID,
	)

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	if err := d.startSinks(); err != nil {
		return fmt.Errorf("failed to start sinks: %w", err)
	}

	d.session = session.New(d.config.SessionConfig(), logpkg.Component("session"))
	d.service = rcf.NewService(rcf.ServiceConfig{
		Session:  d.session,
		Defaults: d.config.Defaults(),
		Bind:     d.config.BindParams(),
		Decoder: ccsds.NewFrameDecoder(ccsds.FrameOptions{
			FECF:                  d.config.Frame.FECF,
			AOSOCF:                d.config.Frame.AOSOCF,
			AOSHeaderErrorControl: d.config.Frame.AOSHeaderErrorControl,
		}),
		Forwarder: d.fanout,
		Logger:    logpkg.Component("rcf"),
	})

	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	if err := d.session.Connect(d.ctx); err != nil {
		return fmt.Errorf("failed to connect provider: %w", err)
	}
	go func() { d.runErr <- d.service.Run(d.ctx) }()
	d.loopRunning = true

	if err := d.bind(); err != nil {
		return err
	}
	if err := d.startDelivery(); err != nil {
		return err
	}

	if sr := d.config.RCF.StatusReport; sr.Type != "" {
		if err := d.service.ScheduleStatusReport(sr.Type, sr.Cycle); err != nil {
			d.logger.Warn("failed to schedule status report", "error", err)
		}
	}

	d.logger.Info("frame delivery started", "sinks", d.fanout.Names())
	return nil
}

// await waits for one of want within the return timeout.
func (d *Daemon) await(want ...session.State) (session.State, error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.config.RCF.ReturnTimeout)
	defer cancel()
	return d.service.Await(ctx, want...)
}

func (d *Daemon) bind() error {
	if err := d.service.Bind(); err != nil {
		return fmt.Errorf("bind: %w", err)
	}
	st, err := d.await(session.StateReady, session.StateUnbound)
	if err != nil {
		return fmt.Errorf("waiting for bind return: %w", err)
	}
	if st != session.StateReady {
		return errors.New("bind rejected by provider")
	}
	return nil
}

func (d *Daemon) startDelivery() error {
	if err := d.service.Start(d.config.StartRequest()); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	st, err := d.await(session.StateActive, session.StateReady)
	if err != nil {
		return fmt.Errorf("waiting for start return: %w", err)
	}
	if st != session.StateActive {
		return errors.New("start rejected by provider")
	}
	return nil
}

// Stop stops delivery, unbinds and releases every component. It is safe to
// call after a failed Start.
func (d *Daemon) Stop() {
	d.logger.Info("initiating graceful shutdown")

	if d.service != nil && !d.loopDone {
		d.release()
	}
	if d.session != nil {
		_ = d.session.Close()
	}
	// The receive loop may still be forwarding a transfer buffer; the sinks
	// stop only after it has returned.
	if d.loopRunning && !d.loopDone {
		select {
		case err := <-d.runErr:
			d.loopDone = true
			if err != nil {
				d.logger.Warn("receive loop ended with error", "error", err)
			}
		case <-time.After(5 * time.Second):
			d.logger.Error("receive loop did not end after close")
		}
	}

	if d.fanout != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.fanout.Stop(shutdownCtx); err != nil {
			d.logger.Error("error stopping sinks", "error", err)
		}
		cancel()
	}

	if d.metricsServer != nil {
		if err := d.metricsServer.Stop(context.Background()); err != nil {
			d.logger.Error("error stopping metrics server", "error", err)
		}
	}

	d.cancel()
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}
	if err := d.removePIDFile(); err != nil {
		d.logger.Error("error removing PID file", "error", err)
	}
	d.logger.Info("sle rcf client stopped")
}

// release walks the association back to unbound, aborting when the
// provider does not answer.
func (d *Daemon) release() {
	if d.service.State() == session.StateActive {
		if err := d.service.Stop(); err != nil {
			d.logger.Warn("stop failed", "error", err)
		} else if _, err := d.await(session.StateReady, session.StateActive); err != nil {
			d.logger.Warn("no stop return", "error", err)
		}
	}
	if d.service.State() == session.StateReady {
		if err := d.service.Unbind(pdu.UnbindEnd); err != nil {
			d.logger.Warn("unbind failed", "error", err)
		} else if _, err := d.await(session.StateUnbound); err != nil {
			d.logger.Warn("no unbind return", "error", err)
		}
	}
	if d.service.State() != session.StateUnbound {
		if err := d.service.PeerAbort(pdu.AbortOtherReason); err != nil {
			d.logger.Warn("peer abort failed", "error", err)
		}
	}
}

// Run blocks until shutdown is triggered by a signal, TriggerShutdown, the
// end of data (when configured) or the end of the association.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	var endOfData <-chan struct{}
	if d.config.RCF.StopOnEndOfData {
		endOfData = d.service.EndOfData()
	}

	d.logger.Info("daemon running, waiting for signals")
	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				d.logger.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil
			case syscall.SIGHUP:
				if err := d.Reload(); err != nil {
					d.logger.Error("failed to reload config", "error", err)
				}
			}

		case <-d.shutdownChan:
			d.logger.Info("shutdown triggered")
			d.Stop()
			return nil

		case <-endOfData:
			d.logger.Info("end of data received, shutting down")
			d.Stop()
			return nil

		case err := <-d.runErr:
			d.loopDone = true
			if err != nil {
				d.logger.Error("association ended", "error", err)
			}
			d.Stop()
			if errors.Is(err, core.ErrPeerAborted) || err == nil {
				return err
			}
			return fmt.Errorf("receive loop: %w", err)

		case <-d.ctx.Done():
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// TriggerShutdown asks Run to shut down.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Status returns the service status for the status endpoint.
func (d *Daemon) Status() any {
	if d.service == nil {
		return map[string]string{"state": session.StateUnbound.String()}
	}
	return d.service.Status()
}

// Reload re-reads the configuration file. Only logging is hot-reloadable;
// other changes are reported and need a restart.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		return errors.New("no configuration file to reload")
	}
	d.logger.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	hotReloaded := []string{}
	if newConfig.Log.Level != d.config.Log.Level || newConfig.Log.Format != d.config.Log.Format {
		hotReloaded = append(hotReloaded, "log")
	}

	requiresRestart := []string{}
	if newConfig.Provider.Address != d.config.Provider.Address {
		requiresRestart = append(requiresRestart, "provider.address")
	}
	if newConfig.RCF.ServiceInstanceID != d.config.RCF.ServiceInstanceID {
		requiresRestart = append(requiresRestart, "rcf.service_instance_id")
	}
	if newConfig.Metrics.Listen != d.config.Metrics.Listen {
		requiresRestart = append(requiresRestart, "metrics.listen")
	}
	if len(newConfig.Sinks) != len(d.config.Sinks) {
		requiresRestart = append(requiresRestart, "sinks")
	}

	d.config.Log = newConfig.Log
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}

	d.logger.Info("configuration reloaded",
		"hot_reloaded", hotReloaded,
		"requires_restart", requiresRestart,
	)
	return nil
}

func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.config.Log); err != nil {
		return err
	}
	d.logger = logpkg.Component("daemon")
	d.logger.Debug("logging initialized", "level", d.config.Log.Level, "format", d.config.Log.Format)
	return nil
}

func (d *Daemon) startSinks() error {
	fw := d.config.Forwarding
	fanout, err := sink.Build(d.config.Sinks, sink.Options{
		BatchSize:    fw.BatchSize,
		BatchTimeout: fw.BatchTimeout,
		QueueSize:    fw.QueueSize,
	})
	if err != nil {
		return err
	}
	if err := fanout.Start(d.ctx); err != nil {
		return err
	}
	d.fanout = fanout
	return nil
}

func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		d.logger.Info("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path, d.Status)
	return d.metricsServer.Start(d.ctx)
}

// MetricsAddr returns the bound metrics address, empty when disabled.
func (d *Daemon) MetricsAddr() string {
	if d.metricsServer == nil {
		return ""
	}
	return d.metricsServer.Addr()
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	pid := os.Getpid()
	if err := os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}
	d.logger.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	return nil
}
