// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package tablehash detects and repairs drift of the tracked tables
// between controllers by comparing per table fingerprints.
package tablehash

import (
	"context"
	"sync"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"

	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
	"github.com/clustervision/luna2-daemon-sub002/domain/records"
	"github.com/clustervision/luna2-daemon-sub002/internal/controlplane"
	"github.com/clustervision/luna2-daemon-sub002/internal/peer"
	"github.com/clustervision/luna2-daemon-sub002/internal/worker/taskexec"
)

// ReloadLane is the lane the dependent service reloads are queued in.
const ReloadLane = "housekeeper"

// reloadTasks are queued after any table was repaired, as the data
// behind them changed outside the mutation path.
var reloadTasks = []string{
	taskexec.DNSReload,
	taskexec.DHCPRestart,
	taskexec.DHCP6Restart,
}

// Logger represents the logging methods called.
type Logger interface {
	Warningf(message string, args ...any)
	Infof(message string, args ...any)
	Debugf(message string, args ...any)
}

// HAState reports the HA state of the controller.
type HAState interface {
	Status(ctx context.Context) (ha.State, error)
}

// Roster returns the known controllers.
type Roster interface {
	Controllers(ctx context.Context) ([]ha.Controller, error)
}

// Records gives access to the local tracked tables.
type Records interface {
	Tables() []string
	Checksums(ctx context.Context) (map[string]string, error)
	Replace(ctx context.Context, content records.Table) error
}

// Peers fetches fingerprints and table content from other controllers.
type Peers interface {
	Ping(ctx context.Context, target ha.Controller) (peer.PingResponse, error)
	Checksums(ctx context.Context, target ha.Controller) (map[string]string, error)
	Table(ctx context.Context, target ha.Controller, name string) (records.Table, error)
}

// Submitter queues tasks.
type Submitter interface {
	Submit(ctx context.Context, args controlplane.SubmitArgs) (controlplane.SubmitResult, error)
}

// Config holds the dependencies of an auditor.
type Config struct {
	Hostname string
	HA       HAState
	Roster   Roster
	Records  Records
	Peers    Peers
	Tasks    Submitter
	Logger   Logger

	// Metrics is optional.
	Metrics *Collector
}

// Validate returns an error if the config cannot be used.
func (c Config) Validate() error {
	if c.Hostname == "" {
		return errors.NotValidf("empty Hostname")
	}
	if c.HA == nil {
		return errors.NotValidf("nil HA")
	}
	if c.Roster == nil {
		return errors.NotValidf("nil Roster")
	}
	if c.Records == nil {
		return errors.NotValidf("nil Records")
	}
	if c.Peers == nil {
		return errors.NotValidf("nil Peers")
	}
	if c.Tasks == nil {
		return errors.NotValidf("nil Tasks")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Auditor compares the local tracked tables against the peers.
type Auditor struct {
	config Config
}

// NewAuditor returns an auditor for the config.
func NewAuditor(config Config) (*Auditor, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Auditor{config: config}, nil
}

// Report describes the outcome of one audit.
type Report struct {
	// Skipped is set when this controller is not eligible for repair.
	Skipped bool

	// Mismatched are the tables whose fingerprint differed from a peer.
	Mismatched []string

	// Repaired are the tables replaced with a peer's content.
	Repaired []string
}

// Audit runs one audit round. Only an enabled, non master and non shadow
// controller repairs itself. For every mismatched table the content of
// the first disagreeing peer replaces the local table wholesale; a peer
// reporting itself master is consulted before the others. Unreachable
// peers and failed repairs are logged and skipped.
func (a *Auditor) Audit(ctx context.Context) (Report, error) {
	state, err := a.config.HA.Status(ctx)
	if err != nil {
		return Report{}, errors.Trace(err)
	}
	if !state.Enabled || state.Master || state.Shadow {
		return Report{Skipped: true}, nil
	}

	peers, err := a.peers(ctx)
	if err != nil {
		return Report{}, errors.Trace(err)
	}
	if len(peers) == 0 {
		return Report{Skipped: true}, nil
	}

	local, err := a.config.Records.Checksums(ctx)
	if err != nil {
		return Report{}, errors.Annotate(err, "fingerprinting local tables")
	}
	remote, master := a.collect(ctx, peers)
	peers = masterFirst(peers, master)

	var report Report
	for _, table := range a.config.Records.Tables() {
		source, ok := firstDisagreeing(table, local[table], peers, remote)
		if !ok {
			continue
		}
		report.Mismatched = append(report.Mismatched, table)
		a.config.Logger.Warningf("table %q differs from %s, repairing", table, source.Hostname)

		content, err := a.config.Peers.Table(ctx, source, table)
		if err != nil {
			a.config.Logger.Warningf("fetching table %q from %s: %v", table, source.Hostname, err)
			continue
		}
		if err := a.config.Records.Replace(ctx, content); err != nil {
			a.config.Logger.Warningf("replacing table %q: %v", table, err)
			continue
		}
		report.Repaired = append(report.Repaired, table)
		a.config.Metrics.repaired(table)
	}

	if len(report.Repaired) > 0 {
		a.config.Logger.Infof("repaired tables %v", report.Repaired)
		a.reload(ctx)
	}
	return report, nil
}

// peers returns the controllers to compare against: not this controller,
// not a beacon alias and not shadow when this controller is shadow too.
func (a *Auditor) peers(ctx context.Context) ([]ha.Controller, error) {
	roster, err := a.config.Roster.Controllers(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	me, _ := ha.Lookup(roster, a.config.Hostname)
	var peers []ha.Controller
	for _, c := range ha.Peers(roster, a.config.Hostname) {
		if me.Shadow && c.Shadow {
			continue
		}
		peers = append(peers, c)
	}
	return peers, nil
}

// collect fetches the fingerprints of every peer concurrently, along
// with the hostname of the peer that reports itself master. Peers that
// cannot be reached are left out.
func (a *Auditor) collect(ctx context.Context, peers []ha.Controller) (map[string]map[string]string, string) {
	var (
		mu     sync.Mutex
		remote = make(map[string]map[string]string)
		master string
	)
	var g errgroup.Group
	for _, target := range peers {
		target := target
		g.Go(func() error {
			sums, err := a.config.Peers.Checksums(ctx, target)
			if err != nil {
				a.config.Logger.Warningf("fetching checksums of %s: %v", target.Hostname, err)
				return nil
			}
			pong, err := a.config.Peers.Ping(ctx, target)
			if err != nil {
				a.config.Logger.Debugf("pinging %s: %v", target.Hostname, err)
			}

			mu.Lock()
			defer mu.Unlock()
			remote[target.Hostname] = sums
			if err == nil && pong.Master {
				master = target.Hostname
			}
			return nil
		})
	}
	_ = g.Wait()
	return remote, master
}

func masterFirst(peers []ha.Controller, master string) []ha.Controller {
	ordered := make([]ha.Controller, 0, len(peers))
	for _, c := range peers {
		if c.Hostname == master {
			ordered = append(ordered, c)
		}
	}
	for _, c := range peers {
		if c.Hostname != master {
			ordered = append(ordered, c)
		}
	}
	return ordered
}

func firstDisagreeing(
	table, local string,
	peers []ha.Controller,
	remote map[string]map[string]string,
) (ha.Controller, bool) {
	for _, c := range peers {
		sums, ok := remote[c.Hostname]
		if !ok {
			continue
		}
		sum, ok := sums[table]
		if !ok || sum == local {
			continue
		}
		return c, true
	}
	return ha.Controller{}, false
}

func (a *Auditor) reload(ctx context.Context) {
	queued := set.NewStrings()
	for _, task := range reloadTasks {
		res, err := a.config.Tasks.Submit(ctx, controlplane.SubmitArgs{
			Lane: ReloadLane,
			Task: task,
		})
		if err != nil {
			a.config.Logger.Warningf("queueing %s after repair: %v", task, err)
			continue
		}
		queued.Add(task)
		a.config.Logger.Debugf("%s queued as request %s (%s)", task, res.RequestID, res.Outcome)
	}
	if queued.Size() != len(reloadTasks) {
		a.config.Logger.Warningf("only %v of the dependent reloads were queued", queued.SortedValues())
	}
}
