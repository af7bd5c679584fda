package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/config"
	"xdao.co/ledgercore/engine"
	"xdao.co/ledgercore/incident"
	"xdao.co/ledgercore/metrics"
	"xdao.co/ledgercore/pqc"
	"xdao.co/ledgercore/storage"
	"xdao.co/ledgercore/storage/casregistry"
	_ "xdao.co/ledgercore/storage/grpccas"
	_ "xdao.co/ledgercore/storage/localfs"
	_ "xdao.co/ledgercore/storage/memcas"
)

// app carries the process-wide collaborators built from LEDGERCORE_* env.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	reg     *prometheus.Registry
	metrics *metrics.Recorder
	signer  pqc.Signer
	key     *pqc.KeyPair

	out, errOut io.Writer
}

func newApp(out, errOut io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, reg: reg, metrics: m, out: out, errOut: errOut}
	if cfg.SeedFile != "" {
		root, err := pqc.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("seed file: %w", err)
		}
		seed, err := pqc.DeriveSeed(root, cfg.SignerRole)
		if err != nil {
			return nil, fmt.Errorf("derive %s seed: %w", cfg.SignerRole, err)
		}
		a.signer = pqc.Dilithium3{}
		if a.key, err = a.signer.GenerateKeypair(seed); err != nil {
			return nil, err
		}
		log.Info("pqc signing enabled",
			zap.String("algorithm", a.signer.Algorithm()),
			zap.String("role", cfg.SignerRole),
			zap.String("seed_hash", a.key.SeedHash),
		)
	}
	return a, nil
}

// close zeroizes key material and flushes the logger.
func (a *app) close() {
	if a.key != nil {
		_ = a.key.Zeroize()
	}
	_ = a.log.Sync()
}

// archive opens loc, or the configured sinks when loc is empty. A nil CAS
// means no archive is configured.
func (a *app) archive(loc string) (storage.CAS, func() error, error) {
	if loc != "" {
		return casregistry.Open(loc, casregistry.UsageSink)
	}
	if a.cfg.Archive.Enabled() {
		return a.cfg.Archive.Open(casregistry.UsageSink)
	}
	return nil, func() error { return nil }, nil
}

func (a *app) chain(sink storage.CAS) *audit.Chain {
	opts := []audit.Option{audit.WithLogger(a.log), audit.WithMetrics(a.metrics)}
	if sink != nil {
		opts = append(opts, audit.WithSink(sink))
	}
	return audit.NewChain(opts...)
}

func (a *app) engine(clock audit.Clock) *engine.Engine {
	opts := []engine.Option{
		engine.WithClock(clock),
		engine.WithLogger(a.log),
		engine.WithMetrics(a.metrics),
	}
	if a.signer != nil {
		opts = append(opts, engine.WithSigner(a.signer, a.key))
	}
	return engine.New(opts...)
}

// incidents returns a handler whose exit function stores the code in *code
// instead of terminating, so run can return it to main.
func (a *app) incidents(chain *audit.Chain, clock audit.Clock, code *int) *incident.Handler {
	opts := []incident.Option{
		incident.WithClock(clock),
		incident.WithLogger(a.log),
		incident.WithMetrics(a.metrics),
		incident.WithExit(func(c int) { *code = c }),
	}
	if a.signer != nil {
		opts = append(opts, incident.WithSigner(a.signer, a.key))
	}
	return incident.New(chain, opts...)
}

// report prints an incident and, when the chain is archived, the manifest
// that holds it.
func (a *app) report(rec incident.Record, chain *audit.Chain, sink storage.CAS) {
	fmt.Fprintf(a.errOut, "incident %s (exit %d): %s\n", rec.Class, rec.ExitCode, rec.Reason)
	fmt.Fprintf(a.errOut, "finality_seal %s\n", rec.FinalitySeal)
	if sink == nil {
		return
	}
	if id, err := chain.Checkpoint(); err == nil {
		fmt.Fprintf(a.errOut, "incident_manifest %s\n", id)
	}
}

// serveMetrics exposes the registry until ctx ends when LEDGERCORE_METRICS_ADDR
// is set.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	a.log.Info("serving metrics", zap.String("addr", a.cfg.MetricsAddr))
}
