package config

import (
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"

	nymerrors "go.nymvpn.network/core/internal/errors"
)

// Load parses an HCL config file at path and fills in defaults for every
// field left unset.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, nymerrors.Wrapf(err, nymerrors.KindValidation, "parse config %s", path)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return cfg.withDefaults(), nil
}

// LoadOrDefault behaves like Load but returns Default() when path does not
// exist, matching the daemon's "run with sane defaults if unconfigured"
// startup behavior.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate rejects a config with an unsupported schema version or an
// internally inconsistent tunnel section.
func Validate(cfg *Config) error {
	if cfg.SchemaVersion != "" && cfg.SchemaVersion != CurrentSchemaVersion {
		return nymerrors.Errorf(nymerrors.KindValidation,
			"unsupported schema_version %q, expected %q", cfg.SchemaVersion, CurrentSchemaVersion)
	}
	if cfg.Tunnel != nil && cfg.Tunnel.Netstack && !cfg.Tunnel.TwoHop {
		return nymerrors.New(nymerrors.KindValidation, "netstack requires two_hop to be enabled")
	}
	return nil
}
