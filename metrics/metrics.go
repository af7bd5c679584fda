// Package metrics exposes prometheus instruments for the certified engine,
// the audit chain, consensus rounds and incidents.
//
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"xdao.co/ledgercore/faults"
)

const namespace = "ledgercore"

type Recorder struct {
	operations   *prometheus.CounterVec
	auditEntries prometheus.Counter
	rounds       *prometheus.CounterVec
	incidents    *prometheus.CounterVec
}

// New registers the ledgercore instruments on reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Certified arithmetic operations by operation and outcome kind.",
		}, []string{"op", "outcome"}),
		auditEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "entries_appended_total",
			Help:      "Entries appended to audit chains.",
		}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "rounds_total",
			Help:      "Consensus rounds by degradation mode and outcome.",
		}, []string{"mode", "achieved"}),
		incidents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incident",
			Name:      "triggered_total",
			Help:      "Incident halts by exit code.",
		}, []string{"code"}),
	}
	var err error
	if r.operations, err = register(reg, r.operations); err != nil {
		return nil, err
	}
	if r.auditEntries, err = register(reg, r.auditEntries); err != nil {
		return nil, err
	}
	if r.rounds, err = register(reg, r.rounds); err != nil {
		return nil, err
	}
	if r.incidents, err = register(reg, r.incidents); err != nil {
		return nil, err
	}
	return r, nil
}

// register adopts an already-registered collector so several recorders built
// on one registry share instruments.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveOperation counts one engine call. The outcome label is "ok" or the
// fault kind of err.
func (r *Recorder) ObserveOperation(op string, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(faults.KindOf(err))
		if outcome == "" {
			outcome = "unknown"
		}
	}
	r.operations.WithLabelValues(op, outcome).Inc()
}

func (r *Recorder) ObserveAppend() {
	if r == nil {
		return
	}
	r.auditEntries.Inc()
}

func (r *Recorder) ObserveRound(mode string, achieved bool) {
	if r == nil {
		return
	}
	r.rounds.WithLabelValues(mode, strconv.FormatBool(achieved)).Inc()
}

func (r *Recorder) ObserveIncident(code int) {
	if r == nil {
		return
	}
	r.incidents.WithLabelValues(strconv.Itoa(code)).Inc()
}
