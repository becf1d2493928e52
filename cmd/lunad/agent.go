// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coredatabase "github.com/clustervision/luna2-daemon-sub002/core/database"
	"github.com/clustervision/luna2-daemon-sub002/core/status"
	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
	haservice "github.com/clustervision/luna2-daemon-sub002/domain/ha/service"
	hastate "github.com/clustervision/luna2-daemon-sub002/domain/ha/state"
	journalservice "github.com/clustervision/luna2-daemon-sub002/domain/journal/service"
	journalstate "github.com/clustervision/luna2-daemon-sub002/domain/journal/state"
	maintenanceservice "github.com/clustervision/luna2-daemon-sub002/domain/maintenance/service"
	maintenancestate "github.com/clustervision/luna2-daemon-sub002/domain/maintenance/state"
	recordsservice "github.com/clustervision/luna2-daemon-sub002/domain/records/service"
	recordsstate "github.com/clustervision/luna2-daemon-sub002/domain/records/state"
	"github.com/clustervision/luna2-daemon-sub002/domain/schema"
	statuslogservice "github.com/clustervision/luna2-daemon-sub002/domain/statuslog/service"
	statuslogstate "github.com/clustervision/luna2-daemon-sub002/domain/statuslog/state"
	taskqueueservice "github.com/clustervision/luna2-daemon-sub002/domain/taskqueue/service"
	taskqueuestate "github.com/clustervision/luna2-daemon-sub002/domain/taskqueue/state"
	"github.com/clustervision/luna2-daemon-sub002/internal/command"
	"github.com/clustervision/luna2-daemon-sub002/internal/config"
	"github.com/clustervision/luna2-daemon-sub002/internal/controlplane"
	"github.com/clustervision/luna2-daemon-sub002/internal/database"
	"github.com/clustervision/luna2-daemon-sub002/internal/hasync"
	"github.com/clustervision/luna2-daemon-sub002/internal/peer"
	"github.com/clustervision/luna2-daemon-sub002/internal/servicecontrol"
	"github.com/clustervision/luna2-daemon-sub002/internal/tablehash"
	"github.com/clustervision/luna2-daemon-sub002/internal/worker/cleanup"
	"github.com/clustervision/luna2-daemon-sub002/internal/worker/configaudit"
	"github.com/clustervision/luna2-daemon-sub002/internal/worker/controlsocket"
	"github.com/clustervision/luna2-daemon-sub002/internal/worker/discovery"
	"github.com/clustervision/luna2-daemon-sub002/internal/worker/dispatcher"
	"github.com/clustervision/luna2-daemon-sub002/internal/worker/hajournal"
	"github.com/clustervision/luna2-daemon-sub002/internal/worker/httpserver"
	"github.com/clustervision/luna2-daemon-sub002/internal/worker/taskexec"
	"github.com/clustervision/luna2-daemon-sub002/internal/worker/tasks"
)

const (
	rosterCacheTTL = 30 * time.Second

	// interruptedDetail is reported to the requester of a task that was
	// in progress when the daemon stopped.
	interruptedDetail = "interrupted by controller restart"
)

// Agent owns every worker of a running daemon.
type Agent struct {
	catacomb catacomb.Catacomb

	hostname     string
	controlPlane *controlplane.ControlPlane
	peerAddr     net.Addr
}

// NewAgent prepares the database, builds the domain services and starts
// the workers described by the config. The returned agent runs until it
// is killed or one of its workers fails.
func NewAgent(ctx context.Context, cfg config.Config, clk clock.Clock, db *sql.DB) (*Agent, error) {
	runner := database.NewTxnRunner(db,
		database.WithClock(clk),
		database.WithLogger(loggo.GetLogger("luna.database")),
	)
	if err := database.ApplyDDL(ctx, runner, schema.ControllerDDL()); err != nil {
		return nil, errors.Annotate(err, "applying schema")
	}
	factory := func() (coredatabase.TxnRunner, error) { return runner, nil }

	haSvc := haservice.NewService(hastate.NewState(factory), clk)
	if err := haSvc.SeedControllers(ctx, cfg.Roster()); err != nil {
		return nil, errors.Annotate(err, "seeding controller roster")
	}
	roster, err := haSvc.Controllers(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	me, err := identify(roster, cfg.Hostname)
	if err != nil {
		return nil, errors.Trace(err)
	}
	logger.Infof("running as controller %q", me.Hostname)
	if err := haSvc.Initialise(ctx, cfg.HA.Enabled, cfg.HA.Master, cfg.HA.Shadow || me.Shadow); err != nil {
		return nil, errors.Annotate(err, "initialising ha state")
	}
	if cfg.HA.Overrule {
		if err := haSvc.SetFlag(ctx, ha.FlagOverrule, true); err != nil {
			return nil, errors.Annotate(err, "raising overrule flag")
		}
	}
	rosterCache := haservice.NewRosterCache(haSvc, clk, rosterCacheTTL)

	queueSvc := taskqueueservice.NewService(taskqueuestate.NewState(factory), cfg.QueuePolicy(), clk)
	statusSvc := statuslogservice.NewService(statuslogstate.NewState(factory), clk)
	maintenanceSvc := maintenanceservice.NewService(maintenancestate.NewState(factory), clk)
	journalSvc := journalservice.NewService(journalstate.NewState(factory), rosterCache, me.Hostname, clk)
	recordsSvc := recordsservice.NewService(recordsstate.NewState(factory), journalSvc)
	if err := recordsSvc.RegisterAppliers(journalSvc); err != nil {
		return nil, errors.Trace(err)
	}

	if err := recoverInterrupted(ctx, queueSvc, statusSvc, me.Hostname); err != nil {
		return nil, errors.Annotate(err, "recovering interrupted tasks")
	}

	registry := prometheus.NewRegistry()
	dispatcherMetrics := dispatcher.NewMetricsCollector()
	auditMetrics := tablehash.NewMetricsCollector()
	configMetrics := configaudit.NewMetricsCollector()
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		dispatcherMetrics,
		auditMetrics,
		configMetrics,
	} {
		if err := registry.Register(c); err != nil {
			return nil, errors.Annotate(err, "registering metrics")
		}
	}

	a := &Agent{hostname: me.Hostname}
	var workers []worker.Worker
	started := func(w worker.Worker) {
		workers = append(workers, w)
	}
	fail := func(err error) (*Agent, error) {
		for _, w := range workers {
			_ = worker.Stop(w)
		}
		return nil, err
	}

	cmdRunner := command.NewRunner(clk)
	executor, err := taskexec.NewExecutor(taskexec.Config{
		Hostname:  me.Hostname,
		StatusLog: statusSvc,
		Services:  servicecontrol.NewController(servicecontrol.NewDBusAPI),
		Commands:  cmdRunner,
		Units: taskexec.Services{
			DHCP:  cfg.Commands.DHCPUnit,
			DHCP6: cfg.Commands.DHCP6Unit,
			DNS:   cfg.Commands.DNSUnit,
		},
		Images: taskexec.ImageCommands{
			Pack:      cfg.Commands.ImagePack,
			Cleanup:   cfg.Commands.ImageCleanup,
			Sync:      cfg.Commands.ImageSync,
			Provision: cfg.Commands.ImageProvision,
		},
		Logger: loggo.GetLogger("luna.taskexec"),
	})
	if err != nil {
		return fail(errors.Trace(err))
	}
	disp, err := dispatcher.NewDispatcher(dispatcher.Config{
		Queue:       queueSvc,
		Executor:    executor,
		Clock:       clk,
		Logger:      loggo.GetLogger("luna.dispatcher"),
		Metrics:     dispatcherMetrics,
		MaxLanes:    cfg.Dispatcher.MaxLanes,
		RaceBackoff: cfg.Dispatcher.RaceBackoff,
	})
	if err != nil {
		return fail(errors.Trace(err))
	}
	started(disp)
	a.controlPlane = controlplane.New(queueSvc, disp, statusSvc, haSvc)

	secret := []byte(cfg.Secret)
	tokens, err := peer.NewTokenProvider(me.Hostname, secret, clk)
	if err != nil {
		return fail(errors.Trace(err))
	}
	verifier, err := peer.NewTokenVerifier(me.Hostname, secret, clk)
	if err != nil {
		return fail(errors.Trace(err))
	}
	peerLogger := loggo.GetLogger("luna.peer")
	peers, err := peer.NewClient(peer.ClientConfig{
		Hostname:           me.Hostname,
		Tokens:             tokens,
		Clock:              clk,
		Logger:             peerLogger,
		Secure:             cfg.PeerTLS,
		InsecureSkipVerify: !cfg.VerifyPeerTLS,
	})
	if err != nil {
		return fail(errors.Trace(err))
	}
	peerHandler, err := peer.NewHandler(peer.ServerConfig{
		Hostname: me.Hostname,
		Verifier: verifier,
		HA:       haSvc,
		Records:  recordsSvc,
		Journal:  journalSvc,
		Logger:   peerLogger,
	})
	if err != nil {
		return fail(errors.Trace(err))
	}
	peerListener, err := httpserver.Listen(cfg.ListenAddress)
	if err != nil {
		return fail(errors.Trace(err))
	}
	a.peerAddr = peerListener.Addr()
	peerServer, err := httpserver.NewWorkerShim(httpserver.Config{
		Name:                 "peer",
		Listener:             peerListener,
		Handler:              peerHandler,
		Logger:               loggo.GetLogger("luna.httpserver.peer"),
		CertFile:             cfg.CertFile,
		KeyFile:              cfg.KeyFile,
		PrometheusRegisterer: registry,
	})
	if err != nil {
		_ = peerListener.Close()
		return fail(errors.Trace(err))
	}
	started(peerServer)

	if cfg.MetricsAddress != "" {
		metricsListener, err := httpserver.Listen(cfg.MetricsAddress)
		if err != nil {
			return fail(errors.Trace(err))
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer, err := httpserver.NewWorkerShim(httpserver.Config{
			Name:     "metrics",
			Listener: metricsListener,
			Handler:  mux,
			Logger:   loggo.GetLogger("luna.httpserver.metrics"),
		})
		if err != nil {
			_ = metricsListener.Close()
			return fail(errors.Trace(err))
		}
		started(metricsServer)
	}

	socket, err := controlsocket.NewWorker(controlsocket.Config{
		ControlPlane:      a.controlPlane,
		Logger:            loggo.GetLogger("luna.controlsocket"),
		SocketName:        cfg.ControlSocket,
		NewSocketListener: controlsocket.NewSocketListener,
	})
	if err != nil {
		return fail(errors.Trace(err))
	}
	started(socket)

	tasksWorker, err := tasks.NewWorker(tasks.Config{
		Queue:      queueSvc,
		Dispatcher: disp,
		Clock:      clk,
		Logger:     loggo.GetLogger("luna.worker.tasks"),
		Interval:   cfg.Intervals.Tasks,
	})
	if err != nil {
		return fail(errors.Trace(err))
	}
	started(tasksWorker)

	cleanupWorker, err := cleanup.NewWorker(cleanup.Config{
		Hostname:        me.Hostname,
		StatusLog:       statusSvc,
		Pings:           haSvc,
		Holds:           maintenanceSvc,
		Queue:           queueSvc,
		Clock:           clk,
		Logger:          loggo.GetLogger("luna.worker.cleanup"),
		Interval:        cfg.Intervals.Cleanup,
		StatusRetention: cfg.Retention.Status,
		PingRetention:   cfg.Retention.Pings,
		HoldRetention:   cfg.Retention.Holds,
	})
	if err != nil {
		return fail(errors.Trace(err))
	}
	started(cleanupWorker)

	if cfg.Commands.Discovery != "" {
		discoveryWorker, err := discovery.NewWorker(discovery.Config{
			Command:  cfg.Commands.Discovery,
			Runner:   cmdRunner,
			Ports:    maintenanceSvc,
			Clock:    clk,
			Logger:   loggo.GetLogger("luna.worker.discovery"),
			Interval: cfg.Intervals.Discovery,
		})
		if err != nil {
			return fail(errors.Trace(err))
		}
		started(discoveryWorker)
	}

	if len(cfg.Commands.RenderConfig) > 0 {
		auditWorker, err := configaudit.NewWorker(configaudit.Config{
			Commands: cfg.Commands.RenderConfig,
			Runner:   cmdRunner,
			Flags:    maintenanceSvc,
			Clock:    clk,
			Logger:   loggo.GetLogger("luna.worker.configaudit"),
			Metrics:  configMetrics,
			Interval: cfg.Intervals.ConfigAudit,
		})
		if err != nil {
			return fail(errors.Trace(err))
		}
		started(auditWorker)
	}

	syncer, err := hasync.NewSyncer(hasync.Config{
		Hostname:   me.Hostname,
		HA:         haSvc,
		Roster:     rosterCache,
		Journal:    journalSvc,
		Peers:      peers,
		Clock:      clk,
		Logger:     loggo.GetLogger("luna.hasync"),
		PingWindow: cfg.HA.PingWindow,
	})
	if err != nil {
		return fail(errors.Trace(err))
	}
	journalConfig := hajournal.Config{
		HA:            haSvc,
		Syncer:        syncer,
		Clock:         clk,
		Logger:        loggo.GetLogger("luna.worker.hajournal"),
		Interval:      cfg.Intervals.Journal,
		AuditInterval: cfg.HA.AuditInterval,
	}
	if cfg.HA.Audit {
		auditor, err := tablehash.NewAuditor(tablehash.Config{
			Hostname: me.Hostname,
			HA:       haSvc,
			Roster:   rosterCache,
			Records:  recordsSvc,
			Peers:    peers,
			Tasks:    a.controlPlane,
			Logger:   loggo.GetLogger("luna.tablehash"),
			Metrics:  auditMetrics,
		})
		if err != nil {
			return fail(errors.Trace(err))
		}
		journalConfig.Auditor = auditor
	}
	journalWorker, err := hajournal.NewWorker(journalConfig)
	if err != nil {
		return fail(errors.Trace(err))
	}
	started(journalWorker)

	if err := catacomb.Invoke(catacomb.Plan{
		Site: &a.catacomb,
		Work: a.loop,
		Init: workers,
	}); err != nil {
		return fail(errors.Trace(err))
	}
	return a, nil
}

// identify finds the local controller in the roster, either by the
// configured hostname or by the addresses of the local interfaces.
func identify(roster []ha.Controller, hostname string) (ha.Controller, error) {
	if hostname != "" {
		me, ok := ha.Lookup(roster, hostname)
		if !ok {
			return ha.Controller{}, errors.NotFoundf("controller %q in roster", hostname)
		}
		return me, nil
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ha.Controller{}, errors.Annotate(err, "listing interface addresses")
	}
	me, err := ha.Identify(roster, addrs)
	return me, errors.Trace(err)
}

// recoverInterrupted tells the requesters of tasks that were running
// when the daemon stopped that their task did not complete.
func recoverInterrupted(ctx context.Context, queue *taskqueueservice.Service, statusLog *statuslogservice.Service, hostname string) error {
	interrupted, err := queue.RecoverInterrupted(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	for _, task := range interrupted {
		if task.RequestID == "" {
			continue
		}
		if err := statusLog.AppendResult(ctx, task.RequestID, task.Subsystem, status.Result{
			Actor:   hostname,
			Command: task.Task,
			Detail:  interruptedDetail,
		}); err != nil {
			return errors.Trace(err)
		}
		if err := statusLog.Finish(ctx, task.RequestID, task.Subsystem); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Hostname is the identity the agent runs as.
func (a *Agent) Hostname() string {
	return a.hostname
}

// PeerAddr is the address the peer API listens on.
func (a *Agent) PeerAddr() net.Addr {
	return a.peerAddr
}

// Kill is part of the worker.Worker interface.
func (a *Agent) Kill() {
	a.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (a *Agent) Wait() error {
	return a.catacomb.Wait()
}

func (a *Agent) loop() error {
	<-a.catacomb.Dying()
	return a.catacomb.ErrDying()
}
