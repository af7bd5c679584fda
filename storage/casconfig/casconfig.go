// Package casconfig turns a list of archive locations into one storage.CAS
// for an audit chain to write through.
package casconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"

	"xdao.co/ledgercore/storage"
	"xdao.co/ledgercore/storage/casregistry"
)

const (
	// PolicyFirst writes to the first sink only; reads fall back in order.
	PolicyFirst = "first"
	// PolicyAll writes to every sink and requires identical CIDs.
	PolicyAll = "all"
)

// Config lists audit sinks as casregistry locations.
//
//	{"write_policy": "all", "sinks": ["file:/var/lib/ledgercore/audit", "grpc:archive:7443"]}
//
// The same fields can come from the environment, e.g.
// LEDGERCORE_ARCHIVE_SINKS=file:/tmp/audit,grpc:archive:7443.
type Config struct {
	WritePolicy string   `json:"write_policy,omitempty" env:"WRITE_POLICY" envDefault:"first"`
	Sinks       []string `json:"sinks"                  env:"SINKS"        envSeparator:","`
}

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("casconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("casconfig: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// FromEnv reads Config from variables named prefix+"SINKS" and
// prefix+"WRITE_POLICY".
func FromEnv(prefix string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return cfg, fmt.Errorf("casconfig: parse env: %w", err)
	}
	return cfg, nil
}

// Enabled reports whether any sink is configured. A chain without sinks is
// kept in memory only.
func (c Config) Enabled() bool { return len(c.Sinks) > 0 }

func (c Config) Validate() error {
	if len(c.Sinks) == 0 {
		return errors.New("casconfig: at least one sink is required")
	}
	seen := make(map[string]struct{}, len(c.Sinks))
	for _, loc := range c.Sinks {
		if _, _, err := casregistry.Split(loc); err != nil {
			return err
		}
		if _, ok := seen[loc]; ok {
			return fmt.Errorf("casconfig: duplicate sink %q", loc)
		}
		seen[loc] = struct{}{}
	}
	switch c.WritePolicy {
	case "", PolicyFirst, PolicyAll:
		return nil
	default:
		return fmt.Errorf("casconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens every sink for usage. The returned close function closes them
// in reverse order.
func (c Config) Open(usage casregistry.Usage) (storage.CAS, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	named := make([]storage.NamedCAS, 0, len(c.Sinks))
	closers := make([]func() error, 0, len(c.Sinks))
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	for _, loc := range c.Sinks {
		cas, closeFn, err := casregistry.Open(loc, usage)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		named = append(named, storage.NamedCAS{Name: loc, CAS: cas})
		closers = append(closers, closeFn)
	}

	if len(named) == 1 {
		return named[0].CAS, closeAll, nil
	}
	if c.WritePolicy == PolicyAll {
		return storage.ReplicatingCAS{Backends: named}, closeAll, nil
	}
	adapters := make([]storage.CAS, 0, len(named))
	for _, n := range named {
		adapters = append(adapters, n.CAS)
	}
	return storage.MultiCAS{Adapters: adapters}, closeAll, nil
}
