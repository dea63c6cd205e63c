package config

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[server]
interface = "eth0"
bind_address = "0.0.0.0:67"
server_id = "192.168.1.1"
log_level = "info"
lease_db = "/tmp/test.db"

[subnet]
network = "192.168.1.0/24"
range_start = "192.168.1.100"
range_end = "192.168.1.200"
routers = ["192.168.1.1"]
dns_servers = ["8.8.8.8"]
domain_search = ["lan", "example.com"]
lease_time = "1h"

[client]
interface = "eth1"
hostname = "nas"
metrics_address = "127.0.0.1:9168"

[[hooks.script]]
name = "notify"
events = ["lease.*"]
command = "/usr/local/bin/notify"
`

func TestLoadMinimalConfig(t *testing.T) {
	path := writeTestConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Interface != "eth0" {
		t.Errorf("Interface = %q, want %q", cfg.Server.Interface, "eth0")
	}
	if cfg.Server.BindAddress != "0.0.0.0:67" {
		t.Errorf("BindAddress = %q, want %q", cfg.Server.BindAddress, "0.0.0.0:67")
	}
	if cfg.Subnet.Network != "192.168.1.0/24" {
		t.Errorf("Subnet network = %q, want %q", cfg.Subnet.Network, "192.168.1.0/24")
	}
	if len(cfg.Subnet.DomainSearch) != 2 {
		t.Errorf("DomainSearch = %v, want 2 entries", cfg.Subnet.DomainSearch)
	}
	if cfg.Client.Interface != "eth1" || cfg.Client.Hostname != "nas" || cfg.Client.MetricsAddress != "127.0.0.1:9168" {
		t.Errorf("Client = %+v", cfg.Client)
	}
	if len(cfg.Hooks.Scripts) != 1 || cfg.Hooks.Scripts[0].Name != "notify" {
		t.Errorf("Scripts = %+v", cfg.Hooks.Scripts)
	}
	if cfg.Client.OfferPolicy != OfferPolicyFirst {
		t.Errorf("OfferPolicy = %q, want %q", cfg.Client.OfferPolicy, OfferPolicyFirst)
	}
}

func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path.toml")
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := writeTestConfig(t, "this is not valid toml {{{{")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func validConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{ServerID: "192.168.1.1"},
		Subnet: SubnetConfig{
			Network:    "192.168.1.0/24",
			RangeStart: "192.168.1.100",
			RangeEnd:   "192.168.1.200",
			LeaseTime:  "8h",
		},
	}
	applyDefaults(cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"server id not an ip", func(c *Config) { c.Server.ServerID = "not-an-ip" }, "server_id"},
		{"server id ipv6", func(c *Config) { c.Server.ServerID = "fe80::1" }, "server_id"},
		{"bad bind address", func(c *Config) { c.Server.BindAddress = "nope" }, "bind_address"},
		{"bad sweep interval", func(c *Config) { c.Server.SweepInterval = "soon" }, "sweep_interval"},
		{"zero offer timeout", func(c *Config) { c.Server.OfferTimeout = "0s" }, "offer_timeout"},
		{"bad server metrics address", func(c *Config) { c.Server.MetricsAddress = "9167" }, "server.metrics_address"},
		{"bad client metrics address", func(c *Config) { c.Client.MetricsAddress = "localhost" }, "client.metrics_address"},
		{"client metrics address", func(c *Config) { c.Client.MetricsAddress = ":9168" }, ""},
		{"unknown log format", func(c *Config) { c.Client.LogFormat = "xml" }, "client.log_format"},
		{"bad network", func(c *Config) { c.Subnet.Network = "not-a-cidr" }, "invalid network"},
		{"range outside network", func(c *Config) { c.Subnet.RangeStart = "10.0.0.1" }, "range_start"},
		{"bad router", func(c *Config) { c.Subnet.Routers = []string{"x"} }, "routers"},
		{"t1 after t2", func(c *Config) {
			c.Subnet.RenewalTime = "7h"
			c.Subnet.RebindTime = "6h"
		}, "renewal_time"},
		{"t2 after lease", func(c *Config) { c.Subnet.RebindTime = "9h" }, "rebind_time"},
		{"unknown offer policy", func(c *Config) { c.Client.OfferPolicy = "best" }, "offer_policy"},
		{"retransmit max below base", func(c *Config) { c.Client.RetransmitMax = "1s" }, "retransmit"},
		{"script without command", func(c *Config) {
			c.Hooks.Scripts = []ScriptHook{{Name: "x"}}
		}, "command is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateWithoutSubnet(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		t.Errorf("client-only config rejected: %v", err)
	}
}

func TestLeaseTimers(t *testing.T) {
	cfg := &Config{Subnet: SubnetConfig{LeaseTime: "1h"}}

	if d := cfg.LeaseTime(); d != time.Hour {
		t.Errorf("LeaseTime() = %v, want 1h", d)
	}
	if d := cfg.RenewalTime(); d != 30*time.Minute {
		t.Errorf("RenewalTime() = %v, want 30m", d)
	}
	if d := cfg.RebindTime(); d != 52*time.Minute+30*time.Second {
		t.Errorf("RebindTime() = %v, want 52m30s", d)
	}

	cfg.Subnet.RenewalTime = "20m"
	cfg.Subnet.RebindTime = "40m"
	if d := cfg.RenewalTime(); d != 20*time.Minute {
		t.Errorf("RenewalTime() = %v, want 20m", d)
	}
	if d := cfg.RebindTime(); d != 40*time.Minute {
		t.Errorf("RebindTime() = %v, want 40m", d)
	}

	empty := &Config{}
	if d := empty.LeaseTime(); d != DefaultLeaseTime {
		t.Errorf("LeaseTime() without config = %v, want %v", d, DefaultLeaseTime)
	}
}

func TestServerIP(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{ServerID: "192.168.1.1"},
	}
	ip := cfg.ServerIP()
	if ip == nil || !ip.Equal(net.IPv4(192, 168, 1, 1)) {
		t.Errorf("ServerIP() = %v, want 192.168.1.1", ip)
	}
	if len(ip) != net.IPv4len {
		t.Errorf("ServerIP() length = %d, want 4", len(ip))
	}

	cfg2 := &Config{
		Server: ServerConfig{ServerID: ""},
	}
	if cfg2.ServerIP() != nil {
		t.Error("ServerIP() should return nil for empty server_id")
	}
}

func TestParseIPs(t *testing.T) {
	ips := ParseIPs([]string{"10.0.0.1", "bogus", "10.0.0.2"})
	if len(ips) != 2 || !ips[1].Equal(net.IPv4(10, 0, 0, 2)) {
		t.Errorf("ParseIPs = %v", ips)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	if cfg.Server.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.Subnet.LeaseTime == "" {
		t.Error("default LeaseTime should be set")
	}
	if cfg.Client.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("default MaxAttempts = %d, want %d", cfg.Client.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.RetransmitBase() != DefaultRetransmitBase || cfg.RetransmitMax() != DefaultRetransmitMax {
		t.Errorf("retransmit = %v/%v", cfg.RetransmitBase(), cfg.RetransmitMax())
	}
	if cfg.SweepInterval() != DefaultSweepInterval {
		t.Errorf("SweepInterval() = %v, want %v", cfg.SweepInterval(), DefaultSweepInterval)
	}
}

func TestScriptHooks(t *testing.T) {
	path := writeTestConfig(t, `
[hooks]
script_timeout = "5s"

[[hooks.script]]
name = "notify"
events = ["lease.*"]
command = "/usr/local/bin/notify"

[[hooks.script]]
name = "configure"
events = ["client.bound", "client.renewed"]
command = "/usr/local/bin/ifup-hook"
timeout = "30s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	hooks := cfg.ScriptHooks()
	if len(hooks) != 2 {
		t.Fatalf("ScriptHooks() returned %d hooks, want 2", len(hooks))
	}
	if hooks[0].Timeout != 5*time.Second {
		t.Errorf("notify timeout = %v, want 5s", hooks[0].Timeout)
	}
	if hooks[1].Timeout != 30*time.Second {
		t.Errorf("configure timeout = %v, want 30s", hooks[1].Timeout)
	}
	if hooks[1].Command != "/usr/local/bin/ifup-hook" || len(hooks[1].Events) != 2 {
		t.Errorf("configure hook = %+v", hooks[1])
	}
}
