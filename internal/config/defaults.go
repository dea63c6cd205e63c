package config

import "time"

// Default configuration values.
const (
	DefaultInterface          = "eth0"
	DefaultBindAddress        = "0.0.0.0:67"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultLeaseDB            = "/var/lib/dhcpcore/leases.db"
	DefaultStateDB            = "/var/lib/dhcpcore/client.db"
	DefaultLeaseTime          = 12 * time.Hour
	DefaultSweepInterval      = 30 * time.Second
	DefaultOfferTimeout       = 60 * time.Second
	DefaultQuarantineTime     = 1 * time.Hour
	DefaultMaxDeclines        = 3
	DefaultRateLimitDiscovers = 100
	DefaultRateLimitPerMAC    = 5
	DefaultRetransmitBase     = 4 * time.Second
	DefaultRetransmitMax      = 64 * time.Second
	DefaultMaxAttempts        = 5
	DefaultEventBufferSize    = 10000
	DefaultScriptConcurrency  = 4
	DefaultScriptTimeout      = 10 * time.Second
)
