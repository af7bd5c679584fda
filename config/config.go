// Package config loads process configuration from LEDGERCORE_* environment
// variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"xdao.co/ledgercore/consensus"
	"xdao.co/ledgercore/fixedpoint"
	"xdao.co/ledgercore/storage/casconfig"
)

type Config struct {
	LogLevel       string `env:"LEDGERCORE_LOG_LEVEL"       envDefault:"info"`
	LogDevelopment bool   `env:"LEDGERCORE_LOG_DEVELOPMENT"`

	// MetricsAddr serves /metrics when set, e.g. ":9464".
	MetricsAddr string `env:"LEDGERCORE_METRICS_ADDR"`

	// SeedFile holds the hex root seed; signing is off when empty.
	SeedFile   string `env:"LEDGERCORE_PQC_SEED_FILE"`
	SignerRole string `env:"LEDGERCORE_PQC_ROLE" envDefault:"engine"`

	// ArchiveFile is a casconfig JSON document; when set it replaces the
	// LEDGERCORE_ARCHIVE_* variables.
	ArchiveFile string           `env:"LEDGERCORE_ARCHIVE_CONFIG"`
	Archive     casconfig.Config `envPrefix:"LEDGERCORE_ARCHIVE_"`
	Consensus   Consensus        `envPrefix:"LEDGERCORE_PSI_"`
}

// Consensus mirrors consensus.Config. Fixed-point fields are decimal strings
// parsed with the same rules as every other ledger value.
type Consensus struct {
	Epsilon            fixedpoint.Value `env:"EPSILON"             envDefault:"1"`
	IQRMultiplier      fixedpoint.Value `env:"IQR_MULTIPLIER"      envDefault:"1.5"`
	MinSamples         int              `env:"MIN_SAMPLES"         envDefault:"4"`
	AgreementThreshold fixedpoint.Value `env:"AGREEMENT_THRESHOLD" envDefault:"0.666666666666666666"`
	TrimFraction       fixedpoint.Value `env:"TRIM_FRACTION"       envDefault:"0.2"`
	DeviationThreshold fixedpoint.Value `env:"DEVIATION_THRESHOLD" envDefault:"10"`
	Deadline           time.Duration    `env:"DEADLINE"            envDefault:"5s"`
}

// Load reads the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads environ instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if _, err := cfg.ConsensusConfig(); err != nil {
		return Config{}, err
	}
	if cfg.ArchiveFile != "" {
		archive, err := casconfig.LoadFile(cfg.ArchiveFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Archive = archive
	}
	if cfg.Archive.Enabled() {
		if err := cfg.Archive.Validate(); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// ConsensusConfig returns the validated round constants.
func (c Config) ConsensusConfig() (consensus.Config, error) {
	out := consensus.Config{
		Epsilon:            c.Consensus.Epsilon,
		IQRMultiplier:      c.Consensus.IQRMultiplier,
		MinSamples:         c.Consensus.MinSamples,
		AgreementThreshold: c.Consensus.AgreementThreshold,
		TrimFraction:       c.Consensus.TrimFraction,
		DeviationThreshold: c.Consensus.DeviationThreshold,
		Deadline:           c.Consensus.Deadline,
	}
	if err := out.Validate(); err != nil {
		return consensus.Config{}, err
	}
	return out, nil
}

// Logger builds the process logger: JSON production encoding unless
// LogDevelopment is set.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.LogDevelopment {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
