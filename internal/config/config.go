// Package config handles TOML configuration parsing and validation for the
// dhcpcore server and client daemons.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/athena-dhcpd/dhcpcore/internal/events"
	"github.com/athena-dhcpd/dhcpcore/internal/hostname"
)

// Config is the top-level configuration. The server daemon reads [server],
// [subnet] and [hooks]; the client daemon reads [client] and [hooks].
type Config struct {
	Server ServerConfig `toml:"server"`
	Subnet SubnetConfig `toml:"subnet"`
	Client ClientConfig `toml:"client"`
	Hooks  HooksConfig  `toml:"hooks"`
}

// ServerConfig holds core server settings.
type ServerConfig struct {
	Interface      string          `toml:"interface"`
	BindAddress    string          `toml:"bind_address"`
	ServerID       string          `toml:"server_id"`
	LogLevel       string          `toml:"log_level"`
	LogFormat      string          `toml:"log_format"`
	LeaseDB        string          `toml:"lease_db"`
	MetricsAddress string          `toml:"metrics_address"`
	StrictOptions  bool            `toml:"strict_options"`
	SweepInterval  string          `toml:"sweep_interval"`
	OfferTimeout   string          `toml:"offer_timeout"`
	QuarantineTime string          `toml:"quarantine_time"`
	MaxDeclines    int             `toml:"max_declines"`
	RateLimit      RateLimitConfig `toml:"rate_limit"`
	Hostname       hostname.Config `toml:"hostname"`
}

// RateLimitConfig holds anti-starvation settings (RFC 5765).
type RateLimitConfig struct {
	Enabled               bool `toml:"enabled"`
	MaxDiscoversPerSecond int  `toml:"max_discovers_per_second"`
	MaxPerMACPerSecond    int  `toml:"max_per_mac_per_second"`
}

// SubnetConfig describes the one served subnet and its address range.
type SubnetConfig struct {
	Network      string   `toml:"network"`
	RangeStart   string   `toml:"range_start"`
	RangeEnd     string   `toml:"range_end"`
	Routers      []string `toml:"routers"`
	DNSServers   []string `toml:"dns_servers"`
	NTPServers   []string `toml:"ntp_servers"`
	DomainName   string   `toml:"domain_name"`
	DomainSearch []string `toml:"domain_search"`
	LeaseTime    string   `toml:"lease_time"`
	RenewalTime  string   `toml:"renewal_time"`
	RebindTime   string   `toml:"rebind_time"`
}

// ClientConfig holds client daemon settings.
type ClientConfig struct {
	Interface      string `toml:"interface"`
	Hostname       string `toml:"hostname"`
	ClientID       string `toml:"client_id"`
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
	StateDB        string `toml:"state_db"`
	RequestedLease string `toml:"requested_lease"`
	RetransmitBase string `toml:"retransmit_base"`
	RetransmitMax  string `toml:"retransmit_max"`
	MaxAttempts    int    `toml:"max_attempts"`
	OfferPolicy    string `toml:"offer_policy"`
	StrictOptions  bool   `toml:"strict_options"`
	MetricsAddress string `toml:"metrics_address"`
}

// HooksConfig holds event hook settings.
type HooksConfig struct {
	EventBufferSize   int          `toml:"event_buffer_size"`
	ScriptConcurrency int          `toml:"script_concurrency"`
	ScriptTimeout     string       `toml:"script_timeout"`
	Scripts           []ScriptHook `toml:"script"`
}

// ScriptHook defines a script hook.
type ScriptHook struct {
	Name    string   `toml:"name"`
	Events  []string `toml:"events"`
	Command string   `toml:"command"`
	Timeout string   `toml:"timeout"`
}

// Offer selection policies for the client.
const (
	OfferPolicyFirst = "first"
)

// Load reads and parses a TOML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in default values for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Interface == "" {
		cfg.Server.Interface = DefaultInterface
	}
	if cfg.Server.BindAddress == "" {
		cfg.Server.BindAddress = DefaultBindAddress
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = DefaultLogLevel
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = DefaultLogFormat
	}
	if cfg.Server.LeaseDB == "" {
		cfg.Server.LeaseDB = DefaultLeaseDB
	}
	if cfg.Server.SweepInterval == "" {
		cfg.Server.SweepInterval = DefaultSweepInterval.String()
	}
	if cfg.Server.OfferTimeout == "" {
		cfg.Server.OfferTimeout = DefaultOfferTimeout.String()
	}
	if cfg.Server.QuarantineTime == "" {
		cfg.Server.QuarantineTime = DefaultQuarantineTime.String()
	}
	if cfg.Server.MaxDeclines == 0 {
		cfg.Server.MaxDeclines = DefaultMaxDeclines
	}
	if cfg.Server.RateLimit.MaxDiscoversPerSecond == 0 {
		cfg.Server.RateLimit.MaxDiscoversPerSecond = DefaultRateLimitDiscovers
	}
	if cfg.Server.RateLimit.MaxPerMACPerSecond == 0 {
		cfg.Server.RateLimit.MaxPerMACPerSecond = DefaultRateLimitPerMAC
	}

	if cfg.Server.Hostname.MaxLength == 0 {
		cfg.Server.Hostname.MaxLength = hostname.DefaultMaxLength
	}

	if cfg.Subnet.LeaseTime == "" {
		cfg.Subnet.LeaseTime = DefaultLeaseTime.String()
	}

	// Client defaults
	if cfg.Client.Interface == "" {
		cfg.Client.Interface = DefaultInterface
	}
	if cfg.Client.LogLevel == "" {
		cfg.Client.LogLevel = DefaultLogLevel
	}
	if cfg.Client.LogFormat == "" {
		cfg.Client.LogFormat = DefaultLogFormat
	}
	if cfg.Client.StateDB == "" {
		cfg.Client.StateDB = DefaultStateDB
	}
	if cfg.Client.RetransmitBase == "" {
		cfg.Client.RetransmitBase = DefaultRetransmitBase.String()
	}
	if cfg.Client.RetransmitMax == "" {
		cfg.Client.RetransmitMax = DefaultRetransmitMax.String()
	}
	if cfg.Client.MaxAttempts == 0 {
		cfg.Client.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Client.OfferPolicy == "" {
		cfg.Client.OfferPolicy = OfferPolicyFirst
	}

	// Hooks defaults
	if cfg.Hooks.EventBufferSize == 0 {
		cfg.Hooks.EventBufferSize = DefaultEventBufferSize
	}
	if cfg.Hooks.ScriptConcurrency == 0 {
		cfg.Hooks.ScriptConcurrency = DefaultScriptConcurrency
	}
	if cfg.Hooks.ScriptTimeout == "" {
		cfg.Hooks.ScriptTimeout = DefaultScriptTimeout.String()
	}
}

// validate checks the configuration for errors.
func validate(cfg *Config) error {
	if cfg.Server.ServerID != "" {
		if ip := net.ParseIP(cfg.Server.ServerID); ip == nil || ip.To4() == nil {
			return fmt.Errorf("server.server_id %q is not a valid IPv4 address", cfg.Server.ServerID)
		}
	}
	if _, _, err := net.SplitHostPort(cfg.Server.BindAddress); err != nil {
		return fmt.Errorf("server.bind_address %q: %w", cfg.Server.BindAddress, err)
	}
	for name, s := range map[string]string{
		"server.sweep_interval":  cfg.Server.SweepInterval,
		"server.offer_timeout":   cfg.Server.OfferTimeout,
		"server.quarantine_time": cfg.Server.QuarantineTime,
		"hooks.script_timeout":   cfg.Hooks.ScriptTimeout,
	} {
		if d, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		} else if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, s)
		}
	}

	for name, addr := range map[string]string{
		"server.metrics_address": cfg.Server.MetricsAddress,
		"client.metrics_address": cfg.Client.MetricsAddress,
	} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%s %q: %w", name, addr, err)
		}
	}

	for name, f := range map[string]string{
		"server.log_format": cfg.Server.LogFormat,
		"client.log_format": cfg.Client.LogFormat,
	} {
		if f != "json" && f != "text" {
			return fmt.Errorf("%s must be \"json\" or \"text\", got %q", name, f)
		}
	}

	if cfg.Subnet.Network != "" {
		if err := validateSubnet(&cfg.Subnet); err != nil {
			return err
		}
	}

	if err := validateClient(&cfg.Client); err != nil {
		return err
	}

	for i, h := range cfg.Hooks.Scripts {
		if h.Command == "" {
			return fmt.Errorf("hooks.script[%d]: command is required", i)
		}
		if h.Timeout != "" {
			if _, err := time.ParseDuration(h.Timeout); err != nil {
				return fmt.Errorf("hooks.script[%d].timeout: %w", i, err)
			}
		}
	}
	return nil
}

func validateSubnet(sub *SubnetConfig) error {
	_, network, err := net.ParseCIDR(sub.Network)
	if err != nil {
		return fmt.Errorf("subnet: invalid network %q: %w", sub.Network, err)
	}
	if network.IP.To4() == nil {
		return fmt.Errorf("subnet: network %s is not IPv4", network)
	}

	start := net.ParseIP(sub.RangeStart)
	if start == nil {
		return fmt.Errorf("subnet: invalid range_start %q", sub.RangeStart)
	}
	end := net.ParseIP(sub.RangeEnd)
	if end == nil {
		return fmt.Errorf("subnet: invalid range_end %q", sub.RangeEnd)
	}
	if !network.Contains(start) {
		return fmt.Errorf("subnet: range_start %s is not in network %s", start, network)
	}
	if !network.Contains(end) {
		return fmt.Errorf("subnet: range_end %s is not in network %s", end, network)
	}

	for field, list := range map[string][]string{
		"routers":     sub.Routers,
		"dns_servers": sub.DNSServers,
		"ntp_servers": sub.NTPServers,
	} {
		for _, s := range list {
			if ip := net.ParseIP(s); ip == nil || ip.To4() == nil {
				return fmt.Errorf("subnet.%s: %q is not a valid IPv4 address", field, s)
			}
		}
	}

	lease, err := time.ParseDuration(sub.LeaseTime)
	if err != nil {
		return fmt.Errorf("subnet.lease_time: %w", err)
	}
	if lease < time.Second {
		return fmt.Errorf("subnet.lease_time must be at least 1s, got %s", sub.LeaseTime)
	}
	t1, t2 := DefaultT1(lease), DefaultT2(lease)
	if sub.RenewalTime != "" {
		if t1, err = time.ParseDuration(sub.RenewalTime); err != nil {
			return fmt.Errorf("subnet.renewal_time: %w", err)
		}
	}
	if sub.RebindTime != "" {
		if t2, err = time.ParseDuration(sub.RebindTime); err != nil {
			return fmt.Errorf("subnet.rebind_time: %w", err)
		}
	}
	// RFC 2131 §4.4.5: T1 < T2 < lease
	if t1 <= 0 || t1 >= t2 || t2 >= lease {
		return fmt.Errorf("subnet: need 0 < renewal_time (%s) < rebind_time (%s) < lease_time (%s)", t1, t2, lease)
	}
	return nil
}

func validateClient(c *ClientConfig) error {
	if c.OfferPolicy != OfferPolicyFirst {
		return fmt.Errorf("client.offer_policy must be %q, got %q", OfferPolicyFirst, c.OfferPolicy)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("client.max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	base, err := time.ParseDuration(c.RetransmitBase)
	if err != nil {
		return fmt.Errorf("client.retransmit_base: %w", err)
	}
	ceiling, err := time.ParseDuration(c.RetransmitMax)
	if err != nil {
		return fmt.Errorf("client.retransmit_max: %w", err)
	}
	if base <= 0 || ceiling < base {
		return fmt.Errorf("client: need 0 < retransmit_base (%s) <= retransmit_max (%s)", base, ceiling)
	}
	if c.RequestedLease != "" {
		if _, err := time.ParseDuration(c.RequestedLease); err != nil {
			return fmt.Errorf("client.requested_lease: %w", err)
		}
	}
	return nil
}

// DefaultT1 is the RFC 2131 §4.4.5 renewal time for a lease: half of it.
func DefaultT1(lease time.Duration) time.Duration {
	return lease / 2
}

// DefaultT2 is the RFC 2131 §4.4.5 rebinding time for a lease: 0.875 of it.
func DefaultT2(lease time.Duration) time.Duration {
	return lease * 7 / 8
}

func parseOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// LeaseTime returns the lease duration handed out for the subnet.
func (cfg *Config) LeaseTime() time.Duration {
	return parseOr(cfg.Subnet.LeaseTime, DefaultLeaseTime)
}

// RenewalTime returns the effective renewal time (T1).
func (cfg *Config) RenewalTime() time.Duration {
	return parseOr(cfg.Subnet.RenewalTime, DefaultT1(cfg.LeaseTime()))
}

// RebindTime returns the effective rebind time (T2).
func (cfg *Config) RebindTime() time.Duration {
	return parseOr(cfg.Subnet.RebindTime, DefaultT2(cfg.LeaseTime()))
}

// SweepInterval returns how often the server runs the expiry sweep.
func (cfg *Config) SweepInterval() time.Duration {
	return parseOr(cfg.Server.SweepInterval, DefaultSweepInterval)
}

// OfferTimeout returns how long an unconfirmed offer holds its address.
func (cfg *Config) OfferTimeout() time.Duration {
	return parseOr(cfg.Server.OfferTimeout, DefaultOfferTimeout)
}

// QuarantineTime returns how long a declined address is held back.
func (cfg *Config) QuarantineTime() time.Duration {
	return parseOr(cfg.Server.QuarantineTime, DefaultQuarantineTime)
}

// ScriptTimeout returns the default hook script timeout.
func (cfg *Config) ScriptTimeout() time.Duration {
	return parseOr(cfg.Hooks.ScriptTimeout, DefaultScriptTimeout)
}

// ScriptHooks converts the [[hooks.script]] tables for the event
// dispatcher. A hook without its own timeout gets hooks.script_timeout.
func (cfg *Config) ScriptHooks() []events.ScriptConfig {
	hooks := make([]events.ScriptConfig, 0, len(cfg.Hooks.Scripts))
	for _, h := range cfg.Hooks.Scripts {
		hooks = append(hooks, events.ScriptConfig{
			Name:    h.Name,
			Events:  h.Events,
			Command: h.Command,
			Timeout: parseOr(h.Timeout, cfg.ScriptTimeout()),
		})
	}
	return hooks
}

// RetransmitBase returns the first client retransmission interval.
func (cfg *Config) RetransmitBase() time.Duration {
	return parseOr(cfg.Client.RetransmitBase, DefaultRetransmitBase)
}

// RetransmitMax returns the cap on the client retransmission interval.
func (cfg *Config) RetransmitMax() time.Duration {
	return parseOr(cfg.Client.RetransmitMax, DefaultRetransmitMax)
}

// RequestedLease returns the lease time the client asks for, or zero.
func (cfg *Config) RequestedLease() time.Duration {
	return parseOr(cfg.Client.RequestedLease, 0)
}

// ServerIP returns the parsed server identifier IP.
func (cfg *Config) ServerIP() net.IP {
	if cfg.Server.ServerID == "" {
		return nil
	}
	return net.ParseIP(cfg.Server.ServerID).To4()
}

// Network returns the parsed subnet, or nil if none is configured.
func (cfg *Config) Network() *net.IPNet {
	_, network, err := net.ParseCIDR(cfg.Subnet.Network)
	if err != nil {
		return nil
	}
	return network
}

// ParseIPs parses a list of validated address strings.
func ParseIPs(list []string) []net.IP {
	var ips []net.IP
	for _, s := range list {
		if ip := net.ParseIP(s).To4(); ip != nil {
			ips = append(ips, ip)
		}
	}
	return ips
}
