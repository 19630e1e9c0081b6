// Copyright (C) 2026 Nym Technologies. Licensed under Apache-2.0.

// Package config defines the on-disk, schema-versioned configuration tree
// for the tunnel core daemon, parsed from HCL the same way the teacher
// project renders its firewall config (hcl tags, @default/@enum doc
// comments above each field).
package config

import "time"

// CurrentSchemaVersion is the schema version this binary writes and
// understands. Bumped whenever a field's meaning changes incompatibly.
const CurrentSchemaVersion = "1.0"

// Config is the top-level configuration for the nym-vpnd daemon.
type Config struct {
	// Schema version for forward/backward compatibility checks.
	// @default: "1.0"
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	// DataDir holds the per-network persisted state: device keypair pems,
	// wireguard keypair pems, the credential SQLite database and the
	// encrypted account mnemonic blob.
	// @default: "/var/lib/nym-vpnd"
	DataDir string `hcl:"data_dir,optional" json:"data_dir,omitempty"`

	// LogDir overrides the default log directory.
	LogDir string `hcl:"log_dir,optional" json:"log_dir,omitempty"`

	// LogLevel is one of debug|info|warn|error. No environment variable
	// overrides it.
	// @default: "info"
	LogLevel string `hcl:"log_level,optional" json:"log_level,omitempty"`

	Network *NetworkConfig `hcl:"network,block" json:"network,omitempty"`
	Account *AccountConfig `hcl:"account,block" json:"account,omitempty"`
	Tunnel  *TunnelConfig  `hcl:"tunnel,block" json:"tunnel,omitempty"`
	Daemon  *DaemonConfig  `hcl:"daemon,block" json:"daemon,omitempty"`
	Feature *FeatureConfig `hcl:"features,block" json:"features,omitempty"`
}

// NetworkConfig describes how to reach the account-management API and the
// directory of gateways.
type NetworkConfig struct {
	// Name of the selected network environment, e.g. "mainnet", "sandbox".
	// @default: "mainnet"
	Name string `hcl:"name,optional" json:"name,omitempty"`

	// ApiURL is the base URL of the account-management REST API
	// (routes prefixed /public/v1, see spec §6).
	ApiURL string `hcl:"api_url,optional" json:"api_url,omitempty"`

	// StaticApiAddresses, if non-empty, pins the resolved addresses for
	// ApiURL's host, bypassing DNS (account controller command
	// SetStaticApiAddresses).
	StaticApiAddresses []string `hcl:"static_api_addresses,optional" json:"static_api_addresses,omitempty"`

	// RequestTimeout bounds every REST call (spec §6: "60s per request").
	// @default: "60s"
	RequestTimeout time.Duration `hcl:"request_timeout,optional" json:"request_timeout,omitempty"`

	// GeoIPDatabase, if set, enables country-code cross-checks in the
	// gateway selector's Location entry/exit policy.
	GeoIPDatabase string `hcl:"geoip_database,optional" json:"geoip_database,omitempty"`
}

// AccountConfig tunes the account controller's background cadences.
type AccountConfig struct {
	// SyncInterval is how often SyncAccountState/SyncDeviceState are queued.
	// @default: "5m"
	SyncInterval time.Duration `hcl:"sync_interval,optional" json:"sync_interval,omitempty"`

	// ZkNymCheckInterval is how often the controller checks whether a
	// zk-nym top-up should be queued.
	// @default: "60s"
	ZkNymCheckInterval time.Duration `hcl:"zk_nym_check_interval,optional" json:"zk_nym_check_interval,omitempty"`

	// ZkNymSoftThreshold is the minimum number of locally-stored tickets
	// per ticket type below which a top-up request is queued.
	// @default: 10
	ZkNymSoftThreshold int `hcl:"zk_nym_soft_threshold,optional" json:"zk_nym_soft_threshold,omitempty"`

	// ZkNymMaxConsecutiveFailures is parsed and defaulted, but no code
	// reads it; automatic zk-nym requests are not capped by it.
	// @default: 5
	ZkNymMaxConsecutiveFailures int `hcl:"zk_nym_max_consecutive_failures,optional" json:"zk_nym_max_consecutive_failures,omitempty"`

	// ShutdownGracePeriod is parsed and defaulted, but no code reads it;
	// Forget and shutdown do not wait on it.
	// @default: "5s"
	ShutdownGracePeriod time.Duration `hcl:"shutdown_grace_period,optional" json:"shutdown_grace_period,omitempty"`
}

// TunnelConfig tunes default tunnel behavior.
type TunnelConfig struct {
	// CredentialsMode enables zk-nym ticketbook issuance/consumption.
	// @default: false
	CredentialsMode bool `hcl:"credentials_mode,optional" json:"credentials_mode,omitempty"`

	// AllowLAN permits LAN traffic through the kill-switch.
	// @default: false
	AllowLAN bool `hcl:"allow_lan,optional" json:"allow_lan,omitempty"`

	// TwoHop selects the WireGuard two-hop stack instead of pure mixnet.
	// @default: false
	TwoHop bool `hcl:"two_hop,optional" json:"two_hop,omitempty"`

	// Netstack selects the userspace-netstack WireGuard stack over the
	// two-tun-device stack. Only meaningful when TwoHop is set.
	// @default: false
	Netstack bool `hcl:"netstack,optional" json:"netstack,omitempty"`

	// MTU overrides the tun device MTU. Zero means "use the platform
	// default" (1500 desktop, 1280 mobile, per spec §4.7).
	MTU int `hcl:"mtu,optional" json:"mtu,omitempty"`

	// DNS servers to use inside the tunnel.
	DNS []string `hcl:"dns,optional" json:"dns,omitempty"`

	// AllowedEndpoints are non-tunnel destinations always permitted
	// through the firewall (e.g. resolved vpn-api addresses).
	AllowedEndpoints []string `hcl:"allowed_endpoints,optional" json:"allowed_endpoints,omitempty"`

	// RetryInitialBackoff/RetryMultiplier/RetryMaxBackoff default to the
	// tunnel monitor's reconnect backoff values (spec §4.7: initial=2s,
	// multiplier=2, max=15s). The monitor does not read them; its backoff
	// uses fixed constants with those values.
	// @default: "2s"
	RetryInitialBackoff time.Duration `hcl:"retry_initial_backoff,optional" json:"retry_initial_backoff,omitempty"`
	// @default: 2
	RetryMultiplier float64 `hcl:"retry_multiplier,optional" json:"retry_multiplier,omitempty"`
	// @default: "15s"
	RetryMaxBackoff time.Duration `hcl:"retry_max_backoff,optional" json:"retry_max_backoff,omitempty"`
}

// DaemonConfig controls the IPC listener.
type DaemonConfig struct {
	// SocketPath overrides the platform default (spec §6: Linux
	// /run/nym-vpn.sock, macOS /var/run/nym-vpn.sock, Windows named pipe
	// \\.\pipe\nym-vpn).
	SocketPath string `hcl:"socket_path,optional" json:"socket_path,omitempty"`
}

// FeatureConfig is a set of off-by-default feature flags.
type FeatureConfig struct {
	// BlockHyperV is the flag for a block-all Hyper-V rule while
	// Connecting or Blocked, to prevent WSL2 leaks (spec §4.1). No code
	// reads it: the state machine never sets firewall.Policy.BlockHyperV,
	// and no NYM_FIREWALL_BLOCK_HYPERV environment variable is consulted.
	// @default: true
	BlockHyperV bool `hcl:"block_hyperv,optional" json:"block_hyperv,omitempty"`

	// KillSwitch, when true, keeps the Blocked firewall policy installed
	// while Offline rather than opening the network (spec §4.8 "Offline
	// keeps Blocked iff kill-switch is desired").
	// @default: true
	KillSwitch bool `hcl:"kill_switch,optional" json:"kill_switch,omitempty"`
}

// Default returns a Config with every optional field filled to its
// documented default.
func Default() *Config {
	return &Config{
		SchemaVersion: CurrentSchemaVersion,
		DataDir:       "/var/lib/nym-vpnd",
		LogLevel:      "info",
		Network: &NetworkConfig{
			Name:           "mainnet",
			RequestTimeout: 60 * time.Second,
		},
		Account: &AccountConfig{
			SyncInterval:                5 * time.Minute,
			ZkNymCheckInterval:          60 * time.Second,
			ZkNymSoftThreshold:          10,
			ZkNymMaxConsecutiveFailures: 5,
			ShutdownGracePeriod:         5 * time.Second,
		},
		Tunnel: &TunnelConfig{
			RetryInitialBackoff: 2 * time.Second,
			RetryMultiplier:     2,
			RetryMaxBackoff:     15 * time.Second,
		},
		Daemon:  &DaemonConfig{},
		Feature: &FeatureConfig{BlockHyperV: true, KillSwitch: true},
	}
}

// withDefaults returns a shallow copy of c with zero-valued fields and
// missing nested blocks filled from Default(). Nested blocks that c
// already has are shared with the copy, so their zero fields are filled
// in place.
func (c *Config) withDefaults() *Config {
	d := Default()
	if c == nil {
		return d
	}
	merged := *c
	if merged.SchemaVersion == "" {
		merged.SchemaVersion = d.SchemaVersion
	}
	if merged.DataDir == "" {
		merged.DataDir = d.DataDir
	}
	if merged.LogLevel == "" {
		merged.LogLevel = d.LogLevel
	}
	if merged.Network == nil {
		merged.Network = d.Network
	} else if merged.Network.RequestTimeout == 0 {
		merged.Network.RequestTimeout = d.Network.RequestTimeout
	}
	if merged.Account == nil {
		merged.Account = d.Account
	} else {
		if merged.Account.SyncInterval == 0 {
			merged.Account.SyncInterval = d.Account.SyncInterval
		}
		if merged.Account.ZkNymCheckInterval == 0 {
			merged.Account.ZkNymCheckInterval = d.Account.ZkNymCheckInterval
		}
		if merged.Account.ZkNymSoftThreshold == 0 {
			merged.Account.ZkNymSoftThreshold = d.Account.ZkNymSoftThreshold
		}
		if merged.Account.ZkNymMaxConsecutiveFailures == 0 {
			merged.Account.ZkNymMaxConsecutiveFailures = d.Account.ZkNymMaxConsecutiveFailures
		}
		if merged.Account.ShutdownGracePeriod == 0 {
			merged.Account.ShutdownGracePeriod = d.Account.ShutdownGracePeriod
		}
	}
	if merged.Tunnel == nil {
		merged.Tunnel = d.Tunnel
	} else {
		if merged.Tunnel.RetryInitialBackoff == 0 {
			merged.Tunnel.RetryInitialBackoff = d.Tunnel.RetryInitialBackoff
		}
		if merged.Tunnel.RetryMultiplier == 0 {
			merged.Tunnel.RetryMultiplier = d.Tunnel.RetryMultiplier
		}
		if merged.Tunnel.RetryMaxBackoff == 0 {
			merged.Tunnel.RetryMaxBackoff = d.Tunnel.RetryMaxBackoff
		}
	}
	if merged.Daemon == nil {
		merged.Daemon = d.Daemon
	}
	if merged.Feature == nil {
		merged.Feature = d.Feature
	}
	return &merged
}
