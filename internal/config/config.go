// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config reads the controller daemon configuration.
package config

import (
	"net"
	"os"
	"time"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
	"github.com/clustervision/luna2-daemon-sub002/domain/taskqueue"
)

const (
	// DefaultPath is where the daemon looks for its configuration.
	DefaultPath = "/trinity/local/luna/daemon/config/luna.yaml"

	// DefaultServerPort is the port peers listen on when the roster
	// does not say otherwise.
	DefaultServerPort = 7050
)

// Controller is a roster entry.
type Controller struct {
	Hostname   string `yaml:"hostname"`
	IPv4       string `yaml:"ipv4,omitempty"`
	IPv6       string `yaml:"ipv6,omitempty"`
	Beacon     bool   `yaml:"beacon,omitempty"`
	Shadow     bool   `yaml:"shadow,omitempty"`
	ServerPort int    `yaml:"serverport,omitempty"`
	Domain     string `yaml:"domain,omitempty"`
}

// HA holds the initial HA state of a controller that boots for the
// first time.
type HA struct {
	Enabled bool `yaml:"enabled"`
	Master  bool `yaml:"master"`
	Shadow  bool `yaml:"shadow"`

	// Overrule makes this controller take over the master role on its
	// first sync round after start.
	Overrule bool `yaml:"overrule"`

	// PingWindow is how recent a probe from a peer must be.
	PingWindow time.Duration `yaml:"ping-window"`

	// Audit gates the table-hash auditor.
	Audit         bool          `yaml:"audit"`
	AuditInterval time.Duration `yaml:"audit-interval"`
}

// Intervals holds the periods of the housekeeper loops.
type Intervals struct {
	Tasks       time.Duration `yaml:"tasks"`
	Cleanup     time.Duration `yaml:"cleanup"`
	Discovery   time.Duration `yaml:"discovery"`
	ConfigAudit time.Duration `yaml:"config-audit"`
	Journal     time.Duration `yaml:"journal"`
}

// Retention holds how long housekeeping keeps records around.
type Retention struct {
	Status time.Duration `yaml:"status"`
	Pings  time.Duration `yaml:"pings"`
	Holds  time.Duration `yaml:"reserved-ip-holds"`
}

// Queue holds the time based task queue rules.
type Queue struct {
	DedupWindow time.Duration `yaml:"dedup-window"`
	ExpireAfter time.Duration `yaml:"expire-after"`
}

// Dispatcher bounds the lane drainers.
type Dispatcher struct {
	MaxLanes    int           `yaml:"max-lanes"`
	RaceBackoff time.Duration `yaml:"race-backoff"`
}

// Commands names the collaborators the daemon drives.
type Commands struct {
	DHCPUnit  string `yaml:"dhcp-unit"`
	DHCP6Unit string `yaml:"dhcp6-unit"`
	DNSUnit   string `yaml:"dns-unit"`

	ImagePack      string `yaml:"image-pack"`
	ImageCleanup   string `yaml:"image-cleanup"`
	ImageSync      string `yaml:"image-sync"`
	ImageProvision string `yaml:"image-provision"`

	// Discovery prints "<mac> <switch> <port>" lines.
	Discovery string `yaml:"discovery"`

	// RenderConfig lists commands whose output is scanned for the
	// invalid marker.
	RenderConfig []string `yaml:"render-config"`
}

// Config is the daemon configuration.
type Config struct {
	// Hostname overrides the identity found from the roster.
	Hostname string `yaml:"hostname,omitempty"`

	Database      string `yaml:"database"`
	ListenAddress string `yaml:"listen-address"`
	CertFile      string `yaml:"cert-file,omitempty"`
	KeyFile       string `yaml:"key-file,omitempty"`

	// PeerTLS makes peer calls use https. VerifyPeerTLS toggles
	// certificate verification of those calls.
	PeerTLS       bool `yaml:"peer-tls"`
	VerifyPeerTLS bool `yaml:"verify-peer-tls"`

	// Secret signs the tokens exchanged between controllers.
	Secret string `yaml:"secret"`

	// ControlSocket is the unix socket serving task submission and
	// status polling to local clients.
	ControlSocket string `yaml:"control-socket"`

	MetricsAddress string `yaml:"metrics-address,omitempty"`
	LoggingConfig  string `yaml:"logging-config"`
	LogFile        string `yaml:"log-file,omitempty"`

	Controllers []Controller `yaml:"controllers"`
	HA          HA           `yaml:"ha"`
	Intervals   Intervals    `yaml:"intervals"`
	Retention   Retention    `yaml:"retention"`
	Queue       Queue        `yaml:"queue"`
	Dispatcher  Dispatcher   `yaml:"dispatcher"`
	Commands    Commands     `yaml:"commands"`
}

// Default returns the configuration used for every value the file
// leaves out.
func Default() Config {
	policy := taskqueue.DefaultPolicy()
	return Config{
		Database:      "/trinity/local/luna/daemon/luna.db",
		ListenAddress: ":7050",
		ControlSocket: "/run/luna/lunad.socket",
		VerifyPeerTLS: true,
		LoggingConfig: "<root>=INFO",
		HA: HA{
			PingWindow:    2 * time.Minute,
			Audit:         true,
			AuditInterval: time.Hour,
		},
		Intervals: Intervals{
			Tasks:       5 * time.Second,
			Cleanup:     time.Minute,
			Discovery:   5 * time.Minute,
			ConfigAudit: 10 * time.Minute,
			Journal:     5 * time.Second,
		},
		Retention: Retention{
			Status: time.Hour,
			Pings:  6 * time.Hour,
			Holds:  10 * time.Minute,
		},
		Queue: Queue{
			DedupWindow: policy.DedupWindow,
			ExpireAfter: policy.ExpireAfter,
		},
		Dispatcher: Dispatcher{
			MaxLanes:    16,
			RaceBackoff: 10 * time.Second,
		},
		Commands: Commands{
			DHCPUnit:  "dhcpd",
			DHCP6Unit: "dhcpd6",
			DNSUnit:   "named",
		},
	}
}

// Read loads the configuration file at path on top of the defaults.
func Read(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Annotatef(err, "reading config %q", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Annotatef(err, "config %q", path)
	}
	return cfg, nil
}

// Parse decodes YAML configuration on top of the defaults and validates
// the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.NewNotValid(err, "decoding yaml")
	}
	for i := range cfg.Controllers {
		if cfg.Controllers[i].ServerPort == 0 {
			cfg.Controllers[i].ServerPort = DefaultServerPort
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Trace(err)
	}
	return cfg, nil
}

// Validate returns an error if the configuration cannot be used.
func (c Config) Validate() error {
	if c.Database == "" {
		return errors.NotValidf("empty database")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return errors.NewNotValid(err, "listen-address")
	}
	if c.ControlSocket == "" {
		return errors.NotValidf("empty control-socket")
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.NotValidf("cert-file without key-file")
	}
	if c.Secret == "" {
		return errors.NotValidf("empty secret")
	}
	if len(c.Controllers) == 0 {
		return errors.NotValidf("empty controllers")
	}
	seen := set.NewStrings()
	for _, ctrl := range c.Controllers {
		if ctrl.Hostname == "" {
			return errors.NotValidf("controller without hostname")
		}
		if seen.Contains(ctrl.Hostname) {
			return errors.NotValidf("duplicate controller %q", ctrl.Hostname)
		}
		seen.Add(ctrl.Hostname)
		if ctrl.IPv4 == "" && ctrl.IPv6 == "" {
			return errors.NotValidf("controller %q without address", ctrl.Hostname)
		}
		for _, addr := range []string{ctrl.IPv4, ctrl.IPv6} {
			if addr != "" && net.ParseIP(addr) == nil {
				return errors.NotValidf("controller %q address %q", ctrl.Hostname, addr)
			}
		}
	}
	if c.Hostname != "" && !seen.Contains(c.Hostname) {
		return errors.NotValidf("hostname %q not in controllers", c.Hostname)
	}

	durations := map[string]time.Duration{
		"ha.ping-window":              c.HA.PingWindow,
		"ha.audit-interval":           c.HA.AuditInterval,
		"intervals.tasks":             c.Intervals.Tasks,
		"intervals.cleanup":           c.Intervals.Cleanup,
		"intervals.discovery":         c.Intervals.Discovery,
		"intervals.config-audit":      c.Intervals.ConfigAudit,
		"intervals.journal":           c.Intervals.Journal,
		"retention.status":            c.Retention.Status,
		"retention.pings":             c.Retention.Pings,
		"retention.reserved-ip-holds": c.Retention.Holds,
		"queue.dedup-window":          c.Queue.DedupWindow,
		"queue.expire-after":          c.Queue.ExpireAfter,
		"dispatcher.race-backoff":     c.Dispatcher.RaceBackoff,
	}
	for name, d := range durations {
		if d <= 0 {
			return errors.NotValidf("%s %v", name, d)
		}
	}
	if c.Dispatcher.MaxLanes <= 0 {
		return errors.NotValidf("dispatcher.max-lanes %d", c.Dispatcher.MaxLanes)
	}
	return nil
}

// Roster returns the configured controllers.
func (c Config) Roster() []ha.Controller {
	out := make([]ha.Controller, len(c.Controllers))
	for i, ctrl := range c.Controllers {
		out[i] = ha.Controller{
			Hostname:   ctrl.Hostname,
			IPv4:       ctrl.IPv4,
			IPv6:       ctrl.IPv6,
			Beacon:     ctrl.Beacon,
			Shadow:     ctrl.Shadow,
			ServerPort: ctrl.ServerPort,
			Domain:     ctrl.Domain,
		}
	}
	return out
}

// QueuePolicy returns the task queue rules.
func (c Config) QueuePolicy() taskqueue.Policy {
	return taskqueue.Policy{
		DedupWindow: c.Queue.DedupWindow,
		ExpireAfter: c.Queue.ExpireAfter,
	}
}
