package consensus

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/engine"
	"xdao.co/ledgercore/faults"
	"xdao.co/ledgercore/fixedpoint"
	"xdao.co/ledgercore/metrics"
)

// Gatherer collects one sample per shard for a round. It must honor ctx:
// shards that have not answered by the deadline are simply absent from the
// returned slice.
type Gatherer interface {
	Gather(ctx context.Context, roundID string, shards []string) ([]Sample, error)
}

// Escalator receives rounds that ended in safe mode.
type Escalator func(res Result, err error)

type Coordinator struct {
	cfg      Config
	eng      *engine.Engine
	detector Detector
	escalate Escalator
	clock    audit.Clock
	log      *zap.Logger
	metrics  *metrics.Recorder
}

type Option func(*Coordinator)

func WithDetector(d Detector) Option {
	return func(c *Coordinator) {
		if d != nil {
			c.detector = d
		}
	}
}

func WithEscalator(fn Escalator) Option {
	return func(c *Coordinator) { c.escalate = fn }
}

func WithClock(clock audit.Clock) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New validates cfg and returns a coordinator computing through eng.
func New(cfg Config, eng *engine.Engine, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if eng == nil {
		return nil, faults.New(faults.KindInternal, "PSI-CONFIG-002", "consensus requires an engine")
	}
	c := &Coordinator{
		cfg:      cfg,
		eng:      eng,
		detector: DeviationDetector{Threshold: cfg.DeviationThreshold},
		clock:    audit.FixedClock(0),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Coordinator) Config() Config { return c.cfg }

// Run gathers samples under the configured deadline, then resolves the
// round. Shards that miss the deadline are treated as outlier candidates.
func (c *Coordinator) Run(ctx context.Context, chain *audit.Chain, g Gatherer, roundID string, shards []string) (Result, error) {
	if chain == nil {
		return Result{}, faults.New(faults.KindInternal, "PSI-AUDIT-001", "consensus requires an audit chain")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Deadline)
	defer cancel()
	samples, err := g.Gather(ctx, roundID, shards)
	if err != nil {
		res := Result{RoundID: roundID, DegradationMode: ModeSafe}
		err = faults.Wrap(faults.KindConsensus, "PSI-GATHER-001", "gather shard samples", err)
		c.metrics.ObserveRound(string(res.DegradationMode), false)
		expected := append([]string(nil), shards...)
		sort.Strings(expected)
		r := &roundState{Coordinator: c, chain: chain, id: roundID}
		if logErr := r.step("psisync.collect", map[string]any{
			"expected": nonNil(expected),
			"samples":  map[string]any{},
		}, engine.ErrorResult(err)); logErr != nil {
			return res, logErr
		}
		return res, err
	}
	return c.Resolve(chain, Round{ID: roundID, Expected: shards, Samples: samples})
}

// Resolve executes one round over already collected samples.
func (c *Coordinator) Resolve(chain *audit.Chain, round Round) (Result, error) {
	if chain == nil {
		return Result{}, faults.New(faults.KindInternal, "PSI-AUDIT-001", "consensus requires an audit chain")
	}
	r := &roundState{
		Coordinator: c,
		chain:       chain,
		id:          round.ID,
		calc:        calc{eng: c.eng, chain: chain, ann: audit.Annotation{CorrelationID: round.ID}},
		res: Result{
			RoundID:         round.ID,
			Deviations:      map[string]fixedpoint.Value{},
			DegradationMode: ModeSafe,
		},
	}
	res, err := r.run(round)
	c.metrics.ObserveRound(string(res.DegradationMode), res.Achieved)
	return res, err
}

type roundState struct {
	*Coordinator
	chain *audit.Chain
	id    string
	calc  calc
	res   Result

	samples      []Sample
	participants int
	iqrOutliers  []string
}

func (r *roundState) run(round Round) (Result, error) {
	if err := r.collect(round); err != nil {
		return r.res, err
	}

	values := make([]fixedpoint.Value, len(r.samples))
	for i, s := range r.samples {
		values[i] = s.Value
	}
	sortValues(values)

	var (
		candidate fixedpoint.Value
		err       error
		skip      bool
	)
	switch {
	case values[0] == values[len(values)-1]:
		// One sample, or all identical.
		candidate = values[0]
	case len(values) < r.cfg.MinSamples:
		skip = true
	default:
		if candidate, err = r.robustCandidate(values); err != nil {
			return r.res, err
		}
	}

	if !skip {
		ok, err := r.agreement("median", candidate)
		if err != nil {
			return r.res, err
		}
		if ok {
			return r.finish(ModeNone, candidate)
		}
		r.log.Warn("psisync round degraded to trimmed mean", zap.String("round", r.id))
	}

	mean, err := r.trimmedMean(values)
	if err != nil {
		return r.res, err
	}
	ok, err := r.agreement("trimmed_mean", mean)
	if err != nil {
		return r.res, err
	}
	if ok {
		return r.finish(ModeTrimmedMean, mean)
	}
	return r.fail()
}

func (r *roundState) collect(round Round) error {
	expected := map[string]bool{}
	for _, id := range round.Expected {
		expected[id] = true
	}

	seen := map[string]bool{}
	var unexpected []string
	var collectErr error
	for _, s := range round.Samples {
		switch {
		case s.ShardID == "":
			collectErr = faults.New(faults.KindConsensus, "PSI-COLLECT-002", "sample without shard id")
		case seen[s.ShardID]:
			collectErr = faults.New(faults.KindConsensus, "PSI-COLLECT-002", fmt.Sprintf("duplicate sample for shard %q", s.ShardID))
		case len(expected) > 0 && !expected[s.ShardID]:
			unexpected = append(unexpected, s.ShardID)
			continue
		}
		if collectErr != nil {
			break
		}
		seen[s.ShardID] = true
		r.samples = append(r.samples, s)
	}
	sort.Slice(r.samples, func(i, j int) bool { return r.samples[i].ShardID < r.samples[j].ShardID })
	sort.Strings(unexpected)

	var missing []string
	for id := range expected {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	r.res.Missing = missing
	r.participants = len(r.samples) + len(missing)

	if collectErr == nil && len(r.samples) == 0 {
		collectErr = faults.New(faults.KindConsensus, "PSI-COLLECT-001", "round has no samples")
	}

	reported := make(map[string]any, len(r.samples))
	for _, s := range r.samples {
		reported[s.ShardID] = map[string]any{
			"packet_ref": s.PacketRef,
			"sequence":   s.Sequence,
			"value":      s.Value,
		}
	}
	var result any = map[string]any{
		"count":      uint64(len(r.samples)),
		"missing":    nonNil(missing),
		"unexpected": nonNil(unexpected),
	}
	if collectErr != nil {
		result = engine.ErrorResult(collectErr)
	}
	expectedList := append([]string(nil), round.Expected...)
	sort.Strings(expectedList)
	if err := r.step("psisync.collect", map[string]any{
		"expected": nonNil(expectedList),
		"samples":  reported,
	}, result); err != nil {
		return err
	}
	return collectErr
}

// robustCandidate rejects IQR outliers and returns the median of the rest.
func (r *roundState) robustCandidate(values []fixedpoint.Value) (fixedpoint.Value, error) {
	q1, q3, err := r.calc.quartiles(values)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	low, high, iqr, err := r.calc.fence(q1, q3, r.cfg.IQRMultiplier)
	if err != nil {
		return fixedpoint.Value{}, err
	}

	var kept []fixedpoint.Value
	for _, s := range r.samples {
		if s.Value.Less(low) || high.Less(s.Value) {
			r.iqrOutliers = append(r.iqrOutliers, s.ShardID)
			continue
		}
		kept = append(kept, s.Value)
	}
	if err := r.step("psisync.iqr", map[string]any{
		"multiplier": r.cfg.IQRMultiplier,
		"q1":         q1,
		"q3":         q3,
	}, map[string]any{
		"high":     high,
		"iqr":      iqr,
		"low":      low,
		"outliers": nonNil(r.iqrOutliers),
	}); err != nil {
		return fixedpoint.Value{}, err
	}

	sortValues(kept)
	m, err := r.calc.median(kept)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	if err := r.step("psisync.median", map[string]any{"values": kept}, m); err != nil {
		return fixedpoint.Value{}, err
	}
	return m, nil
}

// agreement measures every present shard against candidate and reports
// whether the agreeing fraction of all participants reaches the threshold.
func (r *roundState) agreement(stage string, candidate fixedpoint.Value) (bool, error) {
	deviations := make(map[string]fixedpoint.Value, len(r.samples))
	agreeing := 0
	for _, s := range r.samples {
		dev, err := r.eng.AbsDiff(r.chain, s.Value, candidate, r.calc.ann)
		if err != nil {
			return false, err
		}
		deviations[s.ShardID] = dev
		if !r.cfg.Epsilon.Less(dev) {
			agreeing++
		}
	}
	ratio, err := r.calc.ratio(agreeing, r.participants)
	if err != nil {
		return false, err
	}
	flagged := r.detector.DetectMisbehavingShards(candidate, deviations)
	score := fixedpoint.Zero()
	if agreeing > len(flagged) {
		if score, err = r.calc.ratio(agreeing-len(flagged), r.participants); err != nil {
			return false, err
		}
	}
	ok := !ratio.Less(r.cfg.AgreementThreshold)

	r.res.Deviations = deviations
	r.res.AgreementRatio = ratio
	r.res.ByzantineScore = score
	r.res.Flagged = flagged

	err = r.step("psisync.agreement", map[string]any{
		"candidate": candidate,
		"epsilon":   r.cfg.Epsilon,
		"stage":     stage,
		"threshold": r.cfg.AgreementThreshold,
	}, map[string]any{
		"agreeing":        uint64(agreeing),
		"byzantine_score": score,
		"deviations":      deviations,
		"flagged":         nonNil(flagged),
		"participants":    uint64(r.participants),
		"ratio":           ratio,
		"reached":         ok,
	})
	return ok, err
}

func (r *roundState) trimmedMean(sorted []fixedpoint.Value) (fixedpoint.Value, error) {
	k, err := r.calc.trimCount(len(sorted), r.cfg.TrimFraction)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	kept := sorted[k : len(sorted)-k]
	mean, err := r.calc.mean(kept)
	if err != nil {
		return fixedpoint.Value{}, err
	}
	if err := r.step("psisync.trimmed_mean", map[string]any{
		"fraction": r.cfg.TrimFraction,
		"trimmed":  uint64(k),
		"values":   sorted,
	}, mean); err != nil {
		return fixedpoint.Value{}, err
	}
	return mean, nil
}

func (r *roundState) finish(mode Mode, value fixedpoint.Value) (Result, error) {
	r.res.GlobalValue = value
	r.res.Achieved = true
	r.res.DegradationMode = mode
	r.res.Outliers = r.outliers()
	r.res.Evidence = r.evidence()
	if err := r.step("psisync.result", map[string]any{"mode": string(mode)}, map[string]any{
		"achieved": true,
		"value":    value,
	}); err != nil {
		return r.res, err
	}
	r.log.Info("psisync round agreed",
		zap.String("round", r.id),
		zap.String("mode", string(mode)),
		zap.String("value", value.CanonicalString()),
	)
	return r.res, nil
}

func (r *roundState) fail() (Result, error) {
	r.res.GlobalValue = fixedpoint.Zero()
	r.res.Achieved = false
	r.res.DegradationMode = ModeSafe
	r.res.Outliers = r.outliers()
	r.res.Evidence = r.evidence()
	failure := faults.New(faults.KindConsensus, "PSI-CONSENSUS-001",
		fmt.Sprintf("round %q: agreement %s below threshold %s", r.id, r.res.AgreementRatio, r.cfg.AgreementThreshold))
	if err := r.step("psisync.result", map[string]any{"mode": string(ModeSafe)}, map[string]any{
		"achieved": false,
		"evidence": r.res.Evidence,
	}); err != nil {
		return r.res, err
	}
	r.log.Error("psisync consensus failure",
		zap.String("round", r.id),
		zap.Strings("outliers", r.res.Outliers),
		zap.Error(failure),
	)
	if r.escalate != nil {
		r.escalate(r.res, failure)
	}
	return r.res, failure
}

func (r *roundState) outliers() []string {
	out := append(append([]string(nil), r.iqrOutliers...), r.res.Missing...)
	sort.Strings(out)
	return out
}

func (r *roundState) evidence() map[string]any {
	return map[string]any{
		"agreement_ratio": r.res.AgreementRatio,
		"byzantine_score": r.res.ByzantineScore,
		"deviations":      r.res.Deviations,
		"flagged":         nonNil(r.res.Flagged),
		"missing":         nonNil(r.res.Missing),
		"outliers":        nonNil(r.outliers()),
		"participants":    uint64(r.participants),
		"sample_count":    uint64(len(r.samples)),
	}
}

func (r *roundState) step(op string, inputs map[string]any, result any) error {
	var corr *string
	if r.id != "" {
		id := r.id
		corr = &id
	}
	_, err := r.chain.Append(op, inputs, result, corr, nil, r.clock.Timestamp())
	return err
}

func sortValues(v []fixedpoint.Value) {
	sort.Slice(v, func(i, j int) bool { return v[i].Less(v[j]) })
}

// nonNil keeps empty lists serialized as [] rather than null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
